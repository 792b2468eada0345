package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"notemirror/models"
	"notemirror/remote"
)

// setupEngineTestDB initializes a clean mirror database for one engine test.
func setupEngineTestDB(t *testing.T, name string) func() {
	t.Helper()

	path := "./test_engine_" + name + ".ddb"
	os.Remove(path)
	os.Remove(path + ".wal")

	if err := models.InitTestDB(path); err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}

	return func() {
		models.CloseDB()
		os.Remove(path)
		os.Remove(path + ".wal")
	}
}

// testConfig returns a config suitable for driving the engine against a fake
// client.
func testConfig() *Config {
	return &Config{
		RemoteBaseURL: "http://fake",
		AuthToken:     "test-token",
		Workers:       3,
		MemoryBudget:  1 << 20,
		MaxChunkSize:  100,
	}
}

// newTestCoordinator builds a coordinator with millisecond backoff so retry
// paths run fast.
func newTestCoordinator(client remote.Client, cfg *Config) *Coordinator {
	return &Coordinator{
		client: client,
		cfg:    cfg,
		retry: remote.RetryPolicy{
			MaxAttempts: 4,
			BaseDelay:   time.Millisecond,
			MaxDelay:    4 * time.Millisecond,
		},
	}
}

// fakeClient is a scriptable in-memory Client. Chunks and task batches are
// served in order per scope; bodies can fail transiently (N failures then
// success) or persistently. It also tracks the high-water mark of body bytes
// concurrently in flight, for memory budget assertions.
type fakeClient struct {
	mu sync.Mutex

	accountID  string
	accountErr error

	watermarks map[string]int64          // scope name -> server-side watermark
	chunks     map[string][]remote.Chunk // scope name -> chunks served in order
	chunkIdx   map[string]int
	fetchAfter map[string][]int64 // records afterWatermark per FetchChunk call

	bodies        map[string][]byte
	bodyErrs      map[string]error // persistent failure per note
	bodyFailures  map[string]int   // transient failures remaining before success
	bodyDelay     time.Duration
	bytesInFlight int64
	bytesPeak     int64

	authTokens map[string]string // linked notebook guid -> exchanged token
	authErrs   map[string]error

	taskBatches []remote.TaskBatch
	taskIdx     int
	taskAfter   []int64
}

func newFakeClient(accountID string) *fakeClient {
	return &fakeClient{
		accountID:    accountID,
		watermarks:   map[string]int64{},
		chunks:       map[string][]remote.Chunk{},
		chunkIdx:     map[string]int{},
		fetchAfter:   map[string][]int64{},
		bodies:       map[string][]byte{},
		bodyErrs:     map[string]error{},
		bodyFailures: map[string]int{},
		authTokens:   map[string]string{},
		authErrs:     map[string]error{},
	}
}

func (f *fakeClient) AccountIdentity(ctx context.Context) (string, error) {
	if f.accountErr != nil {
		return "", f.accountErr
	}
	return f.accountID, nil
}

func (f *fakeClient) CurrentWatermark(ctx context.Context, scope remote.Scope) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermarks[scope.Name()], nil
}

func (f *fakeClient) FetchChunk(ctx context.Context, scope remote.Scope, afterWatermark int64, maxEntries int) (*remote.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := scope.Name()
	f.fetchAfter[name] = append(f.fetchAfter[name], afterWatermark)

	queue := f.chunks[name]
	idx := f.chunkIdx[name]
	if idx >= len(queue) {
		// Nothing more to serve: empty chunk that doesn't advance
		return &remote.Chunk{FinalWatermark: afterWatermark}, nil
	}
	f.chunkIdx[name] = idx + 1
	chunk := queue[idx]
	return &chunk, nil
}

func (f *fakeClient) FetchNoteBody(ctx context.Context, scope remote.Scope, noteGUID string) ([]byte, error) {
	f.mu.Lock()
	if err, ok := f.bodyErrs[noteGUID]; ok {
		f.mu.Unlock()
		return nil, err
	}
	if f.bodyFailures[noteGUID] > 0 {
		f.bodyFailures[noteGUID]--
		f.mu.Unlock()
		return nil, errors.New("transient body fetch failure")
	}
	body, ok := f.bodies[noteGUID]
	if !ok {
		f.mu.Unlock()
		return nil, &remote.NotFoundError{Kind: "note", GUID: noteGUID}
	}

	f.bytesInFlight += int64(len(body))
	if f.bytesInFlight > f.bytesPeak {
		f.bytesPeak = f.bytesInFlight
	}
	delay := f.bodyDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.bytesInFlight -= int64(len(body))
	f.mu.Unlock()
	return body, nil
}

func (f *fakeClient) AuthenticateLinkedNotebook(ctx context.Context, ln remote.LinkedNotebook) (*remote.AuthScope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.authErrs[ln.GUID]; ok {
		return nil, err
	}
	token, ok := f.authTokens[ln.GUID]
	if !ok {
		return nil, remote.Fatal("unknown linked notebook "+ln.GUID, nil)
	}
	return &remote.AuthScope{Token: token, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeClient) FetchTaskBatch(ctx context.Context, afterCursor int64, maxEntries int) (*remote.TaskBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.taskAfter = append(f.taskAfter, afterCursor)
	if f.taskIdx >= len(f.taskBatches) {
		return &remote.TaskBatch{NextCursor: afterCursor}, nil
	}
	batch := f.taskBatches[f.taskIdx]
	f.taskIdx++
	return &batch, nil
}
