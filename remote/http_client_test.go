package remote_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notemirror/remote"
)

func TestHTTPClient_FetchChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync/chunks" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer account-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("after"); got != "100" {
			t.Errorf("unexpected after param %q", got)
		}
		fmt.Fprint(w, `{
			"notebooks": [{"guid": "nb-1", "name": "Journal"}],
			"notes": [{"guid": "n-1", "title": "Note", "notebook_guid": "nb-1", "active": true, "content_size": 10, "content_hash": "h"}],
			"expunged_notes": ["n-old"],
			"final_watermark": 150
		}`)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "account-token")
	chunk, err := c.FetchChunk(context.Background(), remote.PrimaryScope("account-token"), 100, 50)
	if err != nil {
		t.Fatalf("FetchChunk failed: %v", err)
	}
	if chunk.FinalWatermark != 150 {
		t.Errorf("expected final watermark 150, got %d", chunk.FinalWatermark)
	}
	if len(chunk.Notebooks) != 1 || len(chunk.Notes) != 1 || len(chunk.ExpungedNotes) != 1 {
		t.Errorf("chunk decoded wrong: %+v", chunk)
	}
	if chunk.EntryCount() != 3 || chunk.IsEmpty() {
		t.Errorf("EntryCount/IsEmpty wrong for %+v", chunk)
	}
}

func TestHTTPClient_LinkedScopeUsesExchangedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/linked/ln-1/sync/watermark" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer share-token" {
			t.Errorf("expected exchanged share token, got %q", got)
		}
		fmt.Fprint(w, `{"watermark": 42}`)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "account-token")
	wm, err := c.CurrentWatermark(context.Background(), remote.LinkedScope("ln-1", "share-token"))
	if err != nil {
		t.Fatalf("CurrentWatermark failed: %v", err)
	}
	if wm != 42 {
		t.Errorf("expected watermark 42, got %d", wm)
	}
}

func TestHTTPClient_RateLimitMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "tok")
	_, err := c.CurrentWatermark(context.Background(), remote.PrimaryScope("tok"))
	if remote.Classify(err) != remote.ClassRateLimited {
		t.Fatalf("expected rate-limited classification, got %v", err)
	}
	if got := remote.RetryAfterOf(err); got != 30*time.Second {
		t.Errorf("expected Retry-After 30s honored, got %s", got)
	}
}

func TestHTTPClient_AuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "bad-token")
	_, err := c.AccountIdentity(context.Background())
	if remote.Classify(err) != remote.ClassFatal {
		t.Fatalf("expected fatal classification for 401, got %v", err)
	}
}

func TestHTTPClient_MissingNoteBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "tok")
	_, err := c.FetchNoteBody(context.Background(), remote.PrimaryScope("tok"), "gone-note")
	if !remote.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	var nf *remote.NotFoundError
	if errors.As(err, &nf) && nf.GUID != "gone-note" {
		t.Errorf("not-found error should carry the note GUID, got %q", nf.GUID)
	}
}

func TestHTTPClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "tok")
	_, err := c.CurrentWatermark(context.Background(), remote.PrimaryScope("tok"))
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if remote.Classify(err) != remote.ClassTransient {
		t.Errorf("expected transient classification for 502, got %v", remote.Classify(err))
	}
}

func TestHTTPClient_AuthenticateLinkedNotebook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/linked/ln-1/authenticate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("share_key"); got != "sk-123" {
			t.Errorf("unexpected share_key %q", got)
		}
		fmt.Fprint(w, `{"token": "scoped-token", "expires_at": "2026-09-01T00:00:00Z"}`)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "account-token")
	auth, err := c.AuthenticateLinkedNotebook(context.Background(), remote.LinkedNotebook{
		GUID:     "ln-1",
		ShareKey: "sk-123",
	})
	if err != nil {
		t.Fatalf("AuthenticateLinkedNotebook failed: %v", err)
	}
	if auth.Token != "scoped-token" {
		t.Errorf("expected scoped token, got %q", auth.Token)
	}
}

func TestHTTPClient_FetchTaskBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tasks/changes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("after"); got != "5000" {
			t.Errorf("unexpected after param %q", got)
		}
		fmt.Fprint(w, `{
			"tasks": [{"guid": "t-1", "title": "Do it"}],
			"next_cursor": 6000,
			"has_more": false
		}`)
	}))
	defer srv.Close()

	c := remote.NewHTTPClient(srv.URL, "tok")
	batch, err := c.FetchTaskBatch(context.Background(), 5000, 100)
	if err != nil {
		t.Fatalf("FetchTaskBatch failed: %v", err)
	}
	if len(batch.Tasks) != 1 || batch.NextCursor != 6000 || batch.HasMore {
		t.Errorf("batch decoded wrong: %+v", batch)
	}
}
