package apiclient

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"
)

// Unwrap returns the effective payload of a response body. API-gateway
// style responses carry the real payload JSON-encoded as a string in a
// top-level "body" field; that string is decoded and returned. Any other
// JSON document is returned as is.
func Unwrap(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []byte("null"), nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, &ParseError{Body: snippet(trimmed), Err: errors.New("invalid JSON")}
	}

	doc := gjson.ParseBytes(trimmed)
	if !doc.IsObject() {
		return trimmed, nil
	}

	inner := doc.Get("body")
	if inner.Type != gjson.String {
		return trimmed, nil
	}
	if !gjson.Valid(inner.Str) {
		return nil, &ParseError{Body: snippet([]byte(inner.Str)), Err: errors.New("body field is not valid JSON")}
	}
	return bytes.TrimSpace([]byte(inner.Str)), nil
}

func snippet(b []byte) string {
	const maxSnippet = 512
	if len(b) > maxSnippet {
		return string(b[:maxSnippet]) + "..."
	}
	return string(b)
}
