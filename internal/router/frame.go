package router

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Control frames.
const (
	FramePing = "2"
	FramePong = "3"
)

// Frame prefixes.
const (
	prefixAuth  = "40"
	prefixEvent = "42"
)

// AuthFrame builds the authentication frame 40{"token":"<token>"}.
func AuthFrame(token string) []byte {
	body, _ := marshalNoEscape(struct {
		Token string `json:"token"`
	}{Token: token})
	return append([]byte(prefixAuth), body...)
}

// EventFrame builds an outbound event frame 42[name, payload].
func EventFrame(name string, payload any) ([]byte, error) {
	body, err := marshalNoEscape([]any{name, payload})
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", name, err)
	}
	return append([]byte(prefixEvent), body...), nil
}

// ParseEvent extracts the event name and payload of an inbound frame.
// It locates the first '[' and decodes from there; frames that fail to decode
// or whose first element is not a string yield ok == false.
func ParseEvent(data []byte) (name string, payload json.RawMessage, ok bool) {
	i := bytes.IndexByte(data, '[')
	if i < 0 {
		return "", nil, false
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data[i:], &arr); err != nil || len(arr) == 0 {
		return "", nil, false
	}
	if err := json.Unmarshal(arr[0], &name); err != nil {
		return "", nil, false
	}
	if len(arr) > 1 {
		payload = arr[1]
	}
	return name, payload, true
}

// marshalNoEscape is json.Marshal without HTML escaping and without the
// trailing newline json.Encoder appends.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
