// Package syncclient is the HTTP client for the attendance server.
// Every failure it returns carries a syncerr kind: auth for 401/403 and
// expired tokens, transport for everything else.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Rejection codes returned by the server.
const (
	CodeDuplicate      = "duplicate"
	CodeUnknownStudent = "unknown_student"
	CodeInvalid        = "invalid"
)

// DefaultTimeout bounds every request unless the caller sets HTTP.Timeout.
const DefaultTimeout = 15 * time.Second

// Client is an HTTP client for the attendance server.
type Client struct {
	BaseURL  string
	Token    string
	DeviceID string
	HTTP     *http.Client
	now      func() time.Time
}

// New creates a client. A zero timeout uses DefaultTimeout.
func New(baseURL, token, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:  baseURL,
		Token:    token,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// --- Wire types (mirrors internal/api, independently defined) ---

// BatchRequest is the body for POST /v1/attendance/batch.
type BatchRequest struct {
	DeviceID string   `json:"device_id"`
	Records  []Record `json:"records"`
}

// Record is one attendance event on the wire.
type Record struct {
	LocalID    string `json:"local_id"`
	StudentID  string `json:"student_id"`
	TeacherID  string `json:"teacher_id"`
	ClassID    string `json:"class_id"`
	Subject    string `json:"subject,omitempty"`
	Period     string `json:"period,omitempty"`
	Date       string `json:"date"`
	Status     string `json:"status"`
	Method     string `json:"method"`
	CapturedAt string `json:"captured_at"`
}

// BatchResponse lists what the server kept and what it refused.
type BatchResponse struct {
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Rejection is one record the server refused.
type Rejection struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
	Code    string `json:"code,omitempty"`
}

// RosterResponse is the response from GET /v1/roster.
type RosterResponse struct {
	Students []models.Student `json:"students"`
	Classes  []models.Class   `json:"classes"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ToRecord converts a queued event to its wire form.
func ToRecord(ev models.AttendanceEvent) Record {
	return Record{
		LocalID:    ev.LocalID,
		StudentID:  ev.StudentID,
		TeacherID:  ev.TeacherID,
		ClassID:    ev.ClassID,
		Subject:    ev.Subject,
		Period:     ev.Period,
		Date:       ev.Date,
		Status:     string(ev.Status),
		Method:     string(ev.Method),
		CapturedAt: ev.CapturedAt.UTC().Format(time.RFC3339Nano),
	}
}

// --- Methods ---

// HealthCheck hits /healthz. It needs no token.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitAttendance sends events as one batch. The caller maps the echoed
// local ids back onto its queue.
func (c *Client) SubmitAttendance(ctx context.Context, events []models.AttendanceEvent) (*BatchResponse, error) {
	req := BatchRequest{DeviceID: c.DeviceID, Records: make([]Record, len(events))}
	for i, ev := range events {
		req.Records[i] = ToRecord(ev)
	}
	var resp BatchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/attendance/batch", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchRoster downloads the roster for classID, or every class the teacher
// can see when classID is empty.
func (c *Client) FetchRoster(ctx context.Context, classID string) (*RosterResponse, error) {
	path := "/v1/roster"
	if classID != "" {
		path += "?" + url.Values{"class_id": {classID}}.Encode()
	}
	var resp RosterResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// APIError is a non-2xx response other than 401/403.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// do executes an authenticated request after checking the token locally.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	if err := CheckToken(c.Token, c.now()); err != nil {
		return err
	}
	return c.doRequest(ctx, method, path, body, result, true)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return syncerr.Transport(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return syncerr.Transport(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil && envelope.Error.Code != "" {
			apiErr.Code, apiErr.Message = envelope.Error.Code, envelope.Error.Message
		} else {
			apiErr.Message = string(bytes.TrimSpace(respBody))
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return syncerr.Auth(fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message))
		case http.StatusForbidden:
			return syncerr.Auth(fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message))
		case http.StatusNotFound:
			return syncerr.Transport(fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message))
		default:
			return syncerr.Transport(apiErr)
		}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return syncerr.Transport(fmt.Errorf("unmarshal response: %w", err))
		}
	}
	return nil
}
