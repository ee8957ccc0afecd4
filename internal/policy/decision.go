package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relayworks/threadrelay/internal/model"
)

// ErrNoFence means the response body contained no markdown code fence.
var ErrNoFence = errors.New("no fenced block in response")

// ErrInvalidJSON means the fenced interior was not a valid decision
// object.
var ErrInvalidJSON = errors.New("fenced block is not a valid decision")

// ParseError is the parse failure surfaced to the consumer; callers
// treat it as "no answer", never as a user-visible failure.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("decision parse failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseDecision locates a markdown-fenced block (```json ... ``` or a
// bare ``` ... ```) in raw, and parses its interior as the two-field
// decision object. The answered field must be a strict JSON boolean.
func ParseDecision(raw string) (model.Decision, error) {
	interior, ok := extractFence(raw)
	if !ok {
		return model.Decision{}, &ParseError{Err: ErrNoFence}
	}

	// Decode into loose types first so a non-boolean "answered" is a
	// parse failure rather than a silent coercion.
	var fields struct {
		Answer   *string         `json:"answer"`
		Answered json.RawMessage `json:"answered"`
	}
	dec := json.NewDecoder(bytes.NewReader(interior))
	if err := dec.Decode(&fields); err != nil {
		return model.Decision{}, &ParseError{Err: fmt.Errorf("%w: %v", ErrInvalidJSON, err)}
	}
	if fields.Answer == nil || len(fields.Answered) == 0 {
		return model.Decision{}, &ParseError{Err: ErrInvalidJSON}
	}

	// json.Unmarshal treats a literal null as a no-op on bool, so it has
	// to be rejected before decoding.
	var answered bool
	if raw := bytes.TrimSpace(fields.Answered); bytes.Equal(raw, []byte("null")) {
		return model.Decision{}, &ParseError{Err: fmt.Errorf("%w: answered is not a boolean", ErrInvalidJSON)}
	}
	if err := json.Unmarshal(fields.Answered, &answered); err != nil {
		return model.Decision{}, &ParseError{Err: fmt.Errorf("%w: answered is not a boolean", ErrInvalidJSON)}
	}

	return model.Decision{Answer: *fields.Answer, Answered: answered}, nil
}

// extractFence returns the interior of the first fenced block. A
// language tag on the opening fence ("json") is skipped.
func extractFence(raw string) ([]byte, bool) {
	const fence = "```"

	s := []byte(raw)
	start := bytes.Index(s, []byte(fence))
	if start < 0 {
		return nil, false
	}
	rest := s[start+len(fence):]

	// Skip an optional language tag up to the first newline.
	if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
		tag := bytes.TrimSpace(rest[:nl])
		if len(tag) > 0 && !bytes.HasPrefix(tag, []byte("{")) {
			rest = rest[nl+1:]
		} else if len(tag) == 0 {
			rest = rest[nl+1:]
		}
	}

	end := bytes.Index(rest, []byte(fence))
	if end < 0 {
		return nil, false
	}
	return bytes.TrimSpace(rest[:end]), true
}
