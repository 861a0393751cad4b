package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/serverdb"
)

const testJWTKey = "test-signing-key"

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	BaseURL string
	client  *http.Client
}

// newTestHarness creates a TestHarness backed by an in-memory ledger
// seeded with one class of two students.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	store, err := serverdb.New(conn, serverdb.DialectSQLite)
	if err != nil {
		t.Fatalf("init server db: %v", err)
	}
	err = store.ImportRoster(context.Background(),
		[]models.Class{{ID: "c-7a", Name: "7A", TeacherID: "t-1"}, {ID: "c-8b", Name: "8B"}},
		[]models.Student{
			{ID: "s-1", ClassID: "c-7a", Name: "Ada", RollNumber: "01"},
			{ID: "s-2", ClassID: "c-7a", Name: "Grace", RollNumber: "02"},
			{ID: "s-3", ClassID: "c-8b", Name: "Alan", RollNumber: "01"},
		})
	if err != nil {
		t.Fatalf("seed roster: %v", err)
	}

	cfg := Config{
		ListenAddr: ":0",
		JWTKey:     testJWTKey,
		JWTIssuer:  "rollcall",
		MaxBatch:   100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		httpSrv.Close()
		store.Close()
	})

	return &TestHarness{
		t:       t,
		Server:  srv,
		Store:   store,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
	}
}

// Token issues a token for subject with role.
func (h *TestHarness) Token(subject, role string) string {
	h.t.Helper()
	tok, _, err := IssueToken(testJWTKey, "rollcall", subject, role, time.Hour)
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return tok
}

// Do sends an HTTP request and returns the response. Caller closes the body.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		reader = &buf
	}

	req, err := http.NewRequest(method, h.BaseURL+path, reader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}
	return resp
}

// DoJSON sends a request, requires a 2xx and decodes the body into out.
func (h *TestHarness) DoJSON(method, path, token string, body, out any) {
	h.t.Helper()

	resp := h.Do(method, path, token, body)
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}
}

// AssertError checks the status and error code of a failed request.
func (h *TestHarness) AssertError(resp *http.Response, status int, code string) {
	h.t.Helper()
	defer resp.Body.Close()

	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("expected status %d, got %d: %s", status, resp.StatusCode, body)
	}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		h.t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != code {
		h.t.Errorf("error code = %q, want %q", er.Error.Code, code)
	}
}

func record(localID, studentID string) RecordInput {
	return RecordInput{
		LocalID:    localID,
		StudentID:  studentID,
		ClassID:    "c-7a",
		Date:       "2026-03-02",
		Status:     "present",
		Method:     "rfid",
		CapturedAt: "2026-03-02T08:00:00Z",
	}
}
