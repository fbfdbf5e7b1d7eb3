// Package remote implements the push protocol against the session service.
// The client is stateless beyond one call: it submits a record body, then
// the record's photos as one multipart batch, and reports a single outcome.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/example/fieldsync/internal/common"
	"github.com/example/fieldsync/internal/models"
)

// PushResult reports a successful push.
type PushResult struct {
	// RemoteID is the server-assigned session identifier.
	RemoteID string
}

// Client talks to the remote session service over HTTP.
type Client struct {
	baseURL     string
	pushTimeout time.Duration
	httpClient  *http.Client
}

// NewClient returns a Client for the service at baseURL. Every push is
// bounded by pushTimeout so a stalled connection fails the record instead
// of hanging the pass.
func NewClient(baseURL string, pushTimeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		pushTimeout: pushTimeout,
		httpClient:  &http.Client{},
	}
}

// apiResponse is the service's JSON envelope.
type apiResponse struct {
	Success   bool            `json:"success"`
	SessionID json.RawMessage `json:"session_id"`
	Message   string          `json:"message"`
	Errors    []string        `json:"errors"`
}

// remoteID renders session_id whether the server sent it as a string or a
// number.
func (r *apiResponse) remoteID() string {
	raw := bytes.TrimSpace(r.SessionID)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (r *apiResponse) errorText() string {
	if len(r.Errors) > 0 {
		return strings.Join(r.Errors, "; ")
	}
	return r.Message
}

// Push submits the record body and, when present, its attachments. It
// succeeds only if both steps succeed; any failure leaves nothing partially
// synced on our side. Local-only metadata (local id, sync state, fail
// reason) is never transmitted: the wire body is exactly the session fields.
func (c *Client) Push(ctx context.Context, record *models.Record, attachments []*models.Attachment) (*PushResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()

	remoteID, err := c.pushSession(ctx, record.Body)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := c.pushAttachments(ctx, remoteID, attachments); err != nil {
			return nil, err
		}
	}

	return &PushResult{RemoteID: remoteID}, nil
}

func (c *Client) pushSession(ctx context.Context, body models.SessionBody) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: encode session: %v", common.ErrPushFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	apiResp, err := c.do(req)
	if err != nil {
		return "", err
	}

	remoteID := apiResp.remoteID()
	if remoteID == "" {
		return "", fmt.Errorf("%w: server did not return a session id", common.ErrPushFailed)
	}
	return remoteID, nil
}

func (c *Client) pushAttachments(ctx context.Context, remoteID string, attachments []*models.Attachment) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, a := range attachments {
		part, err := w.CreatePart(photoPartHeader(a))
		if err != nil {
			return fmt.Errorf("%w: multipart: %v", common.ErrPushFailed, err)
		}
		if _, err := part.Write(a.Data); err != nil {
			return fmt.Errorf("%w: multipart: %v", common.ErrPushFailed, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: multipart: %v", common.ErrPushFailed, err)
	}

	url := fmt.Sprintf("%s/api/sessions/%s/photos", c.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	_, err = c.do(req)
	return err
}

func photoPartHeader(a *models.Attachment) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="photos"; filename="%s"`, a.StoredName))
	if a.ContentType != "" {
		h.Set("Content-Type", a.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	return h
}

// do executes the request and decodes the service envelope, converting
// transport failures, timeouts, non-2xx statuses and success:false bodies
// into ErrPushFailed.
func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", common.ErrPushFailed, common.ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrPushFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", common.ErrPushFailed, err)
	}

	apiResp := &apiResponse{}
	if err := json.Unmarshal(body, apiResp); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: malformed response: %v", common.ErrPushFailed, err)
	}

	if resp.StatusCode >= 300 || !apiResp.Success {
		reason := apiResp.errorText()
		if reason == "" {
			reason = resp.Status
		}
		return nil, fmt.Errorf("%w: %s", common.ErrPushFailed, reason)
	}

	return apiResp, nil
}

// Ping checks service reachability with a cheap request. The caller bounds
// ctx; any error means unreachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ping: unexpected status %s", resp.Status)
	}
	return nil
}
