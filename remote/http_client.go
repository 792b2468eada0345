package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rohanthewiz/serr"
)

// ============================================================================
// HTTP Client
//
// JSON-over-HTTP implementation of the Client interface. The engine never
// sees HTTP details — status codes are mapped into the error taxonomy here:
//
//   429                 -> *RateLimitError (Retry-After honored)
//   401, 403            -> *FatalError (credentials rejected; retrying is useless)
//   404                 -> *NotFoundError (entity gone remotely)
//   5xx, network errors -> plain error (transient, retried by RetryPolicy)
// ============================================================================

// defaultHTTPTimeout bounds any single request. Note bodies can be large,
// so this is generous compared to the metadata endpoints' typical latency.
const defaultHTTPTimeout = 60 * time.Second

// HTTPClient talks to the remote note service's REST surface.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPClient creates a client for the service at baseURL, authenticating
// with the pre-acquired account token. Credential acquisition (OAuth) is
// outside this program; the token arrives via configuration.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		hc: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
	}
}

// SetTimeout overrides the per-request timeout.
func (c *HTTPClient) SetTimeout(d time.Duration) {
	c.hc.Timeout = d
}

// scopePath returns the URL prefix for a scope's sync endpoints.
func (c *HTTPClient) scopePath(scope Scope) string {
	if scope.IsPrimary() {
		return c.baseURL + "/v1/sync"
	}
	return c.baseURL + "/v1/linked/" + url.PathEscape(scope.LinkedNotebookGUID) + "/sync"
}

// scopeToken returns the credential for a scope — the linked notebook's
// exchanged token when present, the account token otherwise.
func (c *HTTPClient) scopeToken(scope Scope) string {
	if scope.AuthToken != "" {
		return scope.AuthToken
	}
	return c.token
}

// do issues one request with bearer auth and maps the response status into
// the error taxonomy. On success the caller owns the response body.
func (c *HTTPClient) do(ctx context.Context, method, rawURL, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, serr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, serr.Wrap(err, "request failed")
	}

	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	// Drain so the connection can be reused
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(retryAfterFrom(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Fatal(fmt.Sprintf("remote rejected credentials (status %d)", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Kind: "resource", GUID: rawURL}
	default:
		// 5xx and anything unexpected: transient, let the retry policy decide
		return nil, serr.New(fmt.Sprintf("remote returned status %d for %s", resp.StatusCode, rawURL))
	}
}

// getJSON issues a GET and decodes the JSON response into out.
func (c *HTTPClient) getJSON(ctx context.Context, rawURL, token string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, rawURL, token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return serr.Wrap(err, "failed to decode response")
	}
	return nil
}

// AccountIdentity implements Client.
func (c *HTTPClient) AccountIdentity(ctx context.Context) (string, error) {
	var body struct {
		AccountID string `json:"account_id"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/v1/account", c.token, &body); err != nil {
		return "", err
	}
	if body.AccountID == "" {
		return "", serr.New("account endpoint returned empty account_id")
	}
	return body.AccountID, nil
}

// CurrentWatermark implements Client.
func (c *HTTPClient) CurrentWatermark(ctx context.Context, scope Scope) (int64, error) {
	var body struct {
		Watermark int64 `json:"watermark"`
	}
	if err := c.getJSON(ctx, c.scopePath(scope)+"/watermark", c.scopeToken(scope), &body); err != nil {
		return 0, err
	}
	return body.Watermark, nil
}

// FetchChunk implements Client.
func (c *HTTPClient) FetchChunk(ctx context.Context, scope Scope, afterWatermark int64, maxEntries int) (*Chunk, error) {
	u := fmt.Sprintf("%s/chunks?after=%d&max=%d", c.scopePath(scope), afterWatermark, maxEntries)
	chunk := &Chunk{}
	if err := c.getJSON(ctx, u, c.scopeToken(scope), chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// FetchNoteBody implements Client. The body is returned raw; compression
// and envelope encoding happen store-side.
func (c *HTTPClient) FetchNoteBody(ctx context.Context, scope Scope, noteGUID string) ([]byte, error) {
	u := c.baseURL + "/v1/notes/" + url.PathEscape(noteGUID) + "/content"
	resp, err := c.do(ctx, http.MethodGet, u, c.scopeToken(scope))
	if err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Kind: "note", GUID: noteGUID}
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		// A connection dropped mid-body is a truncated download: transient
		return nil, serr.Wrap(err, "failed to read note body")
	}
	return data, nil
}

// AuthenticateLinkedNotebook implements Client. Exchanges the share key for
// a scope-limited token. A revoked or unshared notebook yields a Fatal
// error here, which the linked-notebook syncer downgrades to a per-notebook
// warning.
func (c *HTTPClient) AuthenticateLinkedNotebook(ctx context.Context, ln LinkedNotebook) (*AuthScope, error) {
	u := c.baseURL + "/v1/linked/" + url.PathEscape(ln.GUID) + "/authenticate?share_key=" + url.QueryEscape(ln.ShareKey)
	resp, err := c.do(ctx, http.MethodPost, u, c.token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	auth := &AuthScope{}
	if err := json.NewDecoder(resp.Body).Decode(auth); err != nil {
		return nil, serr.Wrap(err, "failed to decode auth response")
	}
	if auth.Token == "" {
		return nil, serr.New("linked notebook auth returned empty token")
	}
	return auth, nil
}

// FetchTaskBatch implements Client.
func (c *HTTPClient) FetchTaskBatch(ctx context.Context, afterCursor int64, maxEntries int) (*TaskBatch, error) {
	u := c.baseURL + "/v1/tasks/changes?after=" + strconv.FormatInt(afterCursor, 10) +
		"&max=" + strconv.Itoa(maxEntries)
	batch := &TaskBatch{}
	if err := c.getJSON(ctx, u, c.token, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// retryAfterFrom parses the Retry-After header (delta seconds). Falls back
// to one minute when the header is missing or unparseable.
func retryAfterFrom(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}
