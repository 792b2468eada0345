package remote

import (
	"context"
	"time"
)

// ============================================================================
// Remote Client Boundary
//
// The sync engine treats the hosted note service as an opaque capability
// behind the Client interface. Everything the engine needs — watermark
// queries, incremental chunks, note bodies, linked-notebook authentication,
// and the timestamp-cursored task stream — is expressed here. The concrete
// transport lives in http_client.go; tests substitute fakes.
// ============================================================================

// Scope identifies one independently-watermarked synchronization stream:
// the primary account (empty LinkedNotebookGUID) or a single linked notebook.
// AuthToken carries the scope's credential — the account token for the
// primary scope, or the short-lived token obtained via
// AuthenticateLinkedNotebook for a linked scope.
type Scope struct {
	LinkedNotebookGUID string
	AuthToken          string
}

// PrimaryScope returns the scope for the main account stream.
func PrimaryScope(token string) Scope {
	return Scope{AuthToken: token}
}

// LinkedScope returns the scope for one linked notebook's stream.
func LinkedScope(notebookGUID, token string) Scope {
	return Scope{LinkedNotebookGUID: notebookGUID, AuthToken: token}
}

// IsPrimary reports whether this scope is the primary account stream.
func (s Scope) IsPrimary() bool {
	return s.LinkedNotebookGUID == ""
}

// Name returns a stable label for logging.
func (s Scope) Name() string {
	if s.IsPrimary() {
		return "primary"
	}
	return "linked:" + s.LinkedNotebookGUID
}

// Notebook is the wire representation of a notebook in a sync chunk.
type Notebook struct {
	GUID               string `json:"guid"`
	Name               string `json:"name"`
	Stack              string `json:"stack,omitempty"`
	IsDefault          bool   `json:"is_default"`
	LinkedNotebookGUID string `json:"linked_notebook_guid,omitempty"`
}

// NoteMetadata is the wire representation of a note in a sync chunk.
// Bodies are never carried in chunks — they are fetched separately via
// FetchNoteBody, which is why ContentSize and ContentHash travel with the
// metadata: the download pool budgets memory by ContentSize, and the store
// detects remote content changes by ContentHash.
type NoteMetadata struct {
	GUID         string    `json:"guid"`
	Title        string    `json:"title"`
	NotebookGUID string    `json:"notebook_guid"`
	Active       bool      `json:"active"`
	TagGUIDs     []string  `json:"tag_guids,omitempty"`
	ContentSize  int64     `json:"content_size"`
	ContentHash  string    `json:"content_hash"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tag is the wire representation of a tag. Tags form a tree via ParentGUID.
type Tag struct {
	GUID       string `json:"guid"`
	Name       string `json:"name"`
	ParentGUID string `json:"parent_guid,omitempty"`
}

// LinkedNotebook describes a notebook shared into this account by another
// account. Discovered in primary-scope chunks; synchronized under its own
// watermark and its own authentication.
type LinkedNotebook struct {
	GUID      string `json:"guid"`
	ShareName string `json:"share_name"`
	ShareKey  string `json:"share_key"`
	ShardID   string `json:"shard_id"`
}

// Chunk is one batch of incremental changes for a scope. FinalWatermark is
// the sequence number the scope is at once every entry in the chunk has been
// applied; the store persists it only after a fully successful atomic apply.
type Chunk struct {
	Notebooks               []Notebook       `json:"notebooks,omitempty"`
	Notes                   []NoteMetadata   `json:"notes,omitempty"`
	Tags                    []Tag            `json:"tags,omitempty"`
	LinkedNotebooks         []LinkedNotebook `json:"linked_notebooks,omitempty"`
	ExpungedNotebooks       []string         `json:"expunged_notebooks,omitempty"`
	ExpungedNotes           []string         `json:"expunged_notes,omitempty"`
	ExpungedTags            []string         `json:"expunged_tags,omitempty"`
	ExpungedLinkedNotebooks []string         `json:"expunged_linked_notebooks,omitempty"`
	FinalWatermark          int64            `json:"final_watermark"`
}

// IsEmpty reports whether the chunk carries no changes at all.
func (c *Chunk) IsEmpty() bool {
	return len(c.Notebooks) == 0 && len(c.Notes) == 0 && len(c.Tags) == 0 &&
		len(c.LinkedNotebooks) == 0 && len(c.ExpungedNotebooks) == 0 &&
		len(c.ExpungedNotes) == 0 && len(c.ExpungedTags) == 0 &&
		len(c.ExpungedLinkedNotebooks) == 0
}

// EntryCount returns the number of entities and expunge notices in the chunk.
func (c *Chunk) EntryCount() int {
	return len(c.Notebooks) + len(c.Notes) + len(c.Tags) + len(c.LinkedNotebooks) +
		len(c.ExpungedNotebooks) + len(c.ExpungedNotes) + len(c.ExpungedTags) +
		len(c.ExpungedLinkedNotebooks)
}

// AuthScope is the credential returned by a linked-notebook authentication
// exchange. The token is valid for the single linked notebook it was issued
// for, until ExpiresAt.
type AuthScope struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Task is the wire representation of a task in the task/reminder stream.
type Task struct {
	GUID      string     `json:"guid"`
	NoteGUID  string     `json:"note_guid,omitempty"`
	Title     string     `json:"title"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	Completed bool       `json:"completed"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Reminder is the wire representation of a reminder attached to a task.
type Reminder struct {
	GUID      string     `json:"guid"`
	TaskGUID  string     `json:"task_guid"`
	RemindAt  *time.Time `json:"remind_at,omitempty"`
	Done      bool       `json:"done"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TaskBatch is one batch of incremental task/reminder changes. The task API
// generation is cursored by timestamp (epoch milliseconds) rather than by
// sequence number; NextCursor is persisted only after the batch is applied
// atomically, mirroring chunk watermark semantics.
type TaskBatch struct {
	Tasks             []Task     `json:"tasks,omitempty"`
	Reminders         []Reminder `json:"reminders,omitempty"`
	ExpungedTasks     []string   `json:"expunged_tasks,omitempty"`
	ExpungedReminders []string   `json:"expunged_reminders,omitempty"`
	NextCursor        int64      `json:"next_cursor"`
	HasMore           bool       `json:"has_more"`
}

// Client is the read-only capability the sync engine holds on the remote
// note service. Implementations must return errors classifiable by
// Classify — transient failures as ordinary errors, rate limiting as
// *RateLimitError, and non-retryable conditions as *FatalError.
type Client interface {
	// AccountIdentity returns the stable identifier of the authenticated
	// account, used for the local identity guard.
	AccountIdentity(ctx context.Context) (string, error)

	// CurrentWatermark returns the scope's current server-side watermark.
	CurrentWatermark(ctx context.Context, scope Scope) (int64, error)

	// FetchChunk returns the next batch of changes strictly after
	// afterWatermark, carrying at most maxEntries entries.
	FetchChunk(ctx context.Context, scope Scope, afterWatermark int64, maxEntries int) (*Chunk, error)

	// FetchNoteBody returns the full body of one note. Returns
	// *NotFoundError if the note no longer exists remotely.
	FetchNoteBody(ctx context.Context, scope Scope, noteGUID string) ([]byte, error)

	// AuthenticateLinkedNotebook exchanges a linked notebook's share key
	// for a scope-limited token.
	AuthenticateLinkedNotebook(ctx context.Context, ln LinkedNotebook) (*AuthScope, error)

	// FetchTaskBatch returns the next batch of task/reminder changes
	// strictly after the given cursor (epoch milliseconds).
	FetchTaskBatch(ctx context.Context, afterCursor int64, maxEntries int) (*TaskBatch, error)
}
