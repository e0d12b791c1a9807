package model_test

import (
	"strings"
	"testing"

	"github.com/provtrace/provtrace/model"
)

func TestParseRequest_Start(t *testing.T) {
	body := []byte(`{
		"job_id": "j1",
		"cluster_name": "c1",
		"path": "/jobs/j1",
		"type": "start",
		"request_payload": {"start_or_end": {"ts": 1}}
	}`)

	req, err := model.ParseRequest(body)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Type != model.CallStart {
		t.Errorf("type: got %q, want start", req.Type)
	}
	if req.Payload.StartOrEnd == nil || req.Payload.StartOrEnd.TS != 1 {
		t.Errorf("start_or_end payload: got %+v", req.Payload.StartOrEnd)
	}
	if req.Key() != "j1c1" {
		t.Errorf("key: got %q, want j1c1", req.Key())
	}
}

func TestParseRequest_Exec(t *testing.T) {
	body := []byte(`{
		"job_id": "j1",
		"cluster_name": "c1",
		"path": "/jobs/j1",
		"type": "exec",
		"request_payload": {
			"exec": {
				"step_name": "s",
				"start_time": 2,
				"end_time": 5,
				"events": [
					{"pid": 7, "ts": 2, "operation": "process_start", "payload": {"process_start": {"ppid": 1}}},
					{"pid": 7, "ts": 3, "operation": "read", "payload": {"access_in": {"path_in": "/a"}}},
					{"pid": 7, "ts": 4, "operation": "write", "payload": {"access_out": {"path_out": "/b"}}},
					{"pid": 7, "ts": 5, "operation": "process_end", "payload": {}}
				]
			}
		}
	}`)

	req, err := model.ParseRequest(body)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.Type != model.CallExec {
		t.Fatalf("type: got %q, want exec", req.Type)
	}
	if len(req.Payload.Exec.Events) != 4 {
		t.Fatalf("events: got %d, want 4", len(req.Payload.Exec.Events))
	}
}

func TestParseRequest_MissingPayload(t *testing.T) {
	body := []byte(`{"job_id":"j","cluster_name":"c","type":"start","request_payload":{}}`)
	if _, err := model.ParseRequest(body); err == nil {
		t.Fatal("expected error for missing start_or_end payload")
	}
}

func TestParseRequest_WrongPayloadForType(t *testing.T) {
	body := []byte(`{"job_id":"j","cluster_name":"c","type":"start","request_payload":{"exec":{"step_name":"s"}}}`)
	if _, err := model.ParseRequest(body); err == nil {
		t.Fatal("expected error for exec payload on a start request")
	}
}

func TestParseRequest_UnknownOperation(t *testing.T) {
	body := []byte(`{
		"job_id": "j", "cluster_name": "c", "type": "exec",
		"request_payload": {"exec": {"step_name": "s", "events": [
			{"pid": 1, "ts": 1, "operation": "mmap", "payload": {}}
		]}}
	}`)
	_, err := model.ParseRequest(body)
	if err == nil {
		t.Fatal("expected error for unknown operation")
	}
	if !strings.Contains(err.Error(), "unknown syscall operation") {
		t.Errorf("error: got %q", err)
	}
}

func TestParseRequest_PayloadOperationMismatch(t *testing.T) {
	body := []byte(`{
		"job_id": "j", "cluster_name": "c", "type": "exec",
		"request_payload": {"exec": {"step_name": "s", "events": [
			{"pid": 1, "ts": 1, "operation": "read", "payload": {"access_out": {"path_out": "/x"}}}
		]}}
	}`)
	_, err := model.ParseRequest(body)
	if err == nil {
		t.Fatal("expected error for payload/operation mismatch")
	}
	if !strings.Contains(err.Error(), "payload/operation mismatch") {
		t.Errorf("error: got %q", err)
	}
}

func TestParseRequest_UnknownField(t *testing.T) {
	body := []byte(`{"job_id":"j","cluster_name":"c","type":"start","request_payload":{"start_or_end":{"ts":1}},"bogus":true}`)
	if _, err := model.ParseRequest(body); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestParseRequest_UnknownCallType(t *testing.T) {
	body := []byte(`{"job_id":"j","cluster_name":"c","type":"pause","request_payload":{}}`)
	if _, err := model.ParseRequest(body); err == nil {
		t.Fatal("expected error for unknown call type")
	}
}
