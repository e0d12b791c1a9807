package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseRequest is the batch parser's contract (spec §6 "parser
// contract"): it turns one HTTP batch-post body into a ParsedRequest.
// The wire format itself is this repo's own choice (spec §1 treats the
// physical encoding as a Non-goal) — JSON, matching the field names in
// model's JSON tags.
//
// ParseRequest rejects unknown fields (a typo'd key would otherwise be
// silently dropped) and validates that Type's payload variant is the
// one actually populated, so a malformed body is caught here rather
// than reaching the processor as a payload/operation mismatch.
func ParseRequest(body []byte) (ParsedRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	var req ParsedRequest
	if err := dec.Decode(&req); err != nil {
		return ParsedRequest{}, fmt.Errorf("decode request: %w", err)
	}

	switch req.Type {
	case CallStart, CallEnd:
		if req.Payload.StartOrEnd == nil {
			return ParsedRequest{}, fmt.Errorf("%s request missing start_or_end payload", req.Type)
		}
		if req.Payload.Exec != nil {
			return ParsedRequest{}, fmt.Errorf("%s request must not carry an exec payload", req.Type)
		}
	case CallExec:
		if req.Payload.Exec == nil {
			return ParsedRequest{}, fmt.Errorf("exec request missing exec payload")
		}
		if req.Payload.StartOrEnd != nil {
			return ParsedRequest{}, fmt.Errorf("exec request must not carry a start_or_end payload")
		}
		for i, ev := range req.Payload.Exec.Events {
			family, ok := ev.Operation.Family()
			if !ok {
				return ParsedRequest{}, fmt.Errorf("event %d: %w", i, &UnknownOpError{Operation: ev.Operation})
			}
			if err := ev.CheckPayload(family); err != nil {
				return ParsedRequest{}, fmt.Errorf("event %d: %w", i, err)
			}
		}
	default:
		return ParsedRequest{}, fmt.Errorf("unknown call type: %q", req.Type)
	}

	return req, nil
}
