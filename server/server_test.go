package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/provtrace/provtrace/queue"
	"github.com/provtrace/provtrace/server"
)

func TestHandleLog_Start_PushesToQueue(t *testing.T) {
	q := queue.New()
	s := server.New(q, server.NewAuditLog(), 0)

	body := `{"job_id":"j1","cluster_name":"c1","path":"/jobs/j1","type":"start","request_payload":{"start_or_end":{"ts":1}}}`
	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("response: got %v, want status=ok", resp)
	}
	if q.Len() != 1 {
		t.Fatalf("queue length: got %d, want 1", q.Len())
	}
	reqs := q.TakeAll()
	if reqs[0].JobID != "j1" {
		t.Errorf("queued request job id: got %q, want j1", reqs[0].JobID)
	}
}

func TestHandleLog_MalformedBody_Returns400_NeverQueued(t *testing.T) {
	q := queue.New()
	s := server.New(q, server.NewAuditLog(), 0)

	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{not json`))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	if q.Len() != 0 {
		t.Errorf("malformed input must never reach the queue, got %d queued", q.Len())
	}
}

func TestHandleLog_UnknownCallType_Returns400(t *testing.T) {
	q := queue.New()
	s := server.New(q, server.NewAuditLog(), 0)

	body := `{"job_id":"j1","cluster_name":"c1","type":"bogus","request_payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	q := queue.New()
	s := server.New(q, server.NewAuditLog(), 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("response: got %v, want status=ok", resp)
	}
}
