// Package authority relays license-affecting actions to the licensing authority.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sjperalta/interlock-api/internal/models"
)

// maxResponseBytes caps how much of an authority reply is kept
const maxResponseBytes = 64 * 1024

// Result is the authority's answer to a license action
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Raw is the reply body as received
	Raw string `json:"-"`
}

// LicensingAuthority applies a license action for a subject
type LicensingAuthority interface {
	Apply(ctx context.Context, actionType models.ActionType, subjectID uint) (*Result, error)
}

type applyRequest struct {
	ActionType models.ActionType `json:"action_type"`
	SubjectID  uint              `json:"subject_id"`
}

// HTTPClient talks to the authority's REST endpoint
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an authority client with a bounded request timeout
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Apply posts the action and decodes {success, message}
func (c *HTTPClient) Apply(ctx context.Context, actionType models.ActionType, subjectID uint) (*Result, error) {
	body, err := json.Marshal(applyRequest{ActionType: actionType, SubjectID: subjectID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/license-actions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build authority request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authority unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read authority response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("authority returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	result := &Result{Raw: string(raw)}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("invalid authority response: %w", err)
	}
	return result, nil
}

// Call is one request seen by the Mock
type Call struct {
	ActionType models.ActionType
	SubjectID  uint
}

// Mock is an in-process authority that accepts every action unless told otherwise
type Mock struct {
	mu     sync.Mutex
	calls  []Call
	Err    error
	Reject bool
	Delay  time.Duration
}

// NewMock creates an accepting mock authority
func NewMock() *Mock {
	return &Mock{}
}

// Apply records the call and answers according to the mock's settings
func (m *Mock) Apply(ctx context.Context, actionType models.ActionType, subjectID uint) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{ActionType: actionType, SubjectID: subjectID})
	err, reject, delay := m.Err, m.Reject, m.Delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}

	result := &Result{
		Success: !reject,
		Message: fmt.Sprintf("license action %s for subject %d accepted", actionType, subjectID),
	}
	if reject {
		result.Message = fmt.Sprintf("license action %s for subject %d rejected", actionType, subjectID)
	}
	raw, _ := json.Marshal(result)
	result.Raw = string(raw)
	return result, nil
}

// Calls returns the requests received so far
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
