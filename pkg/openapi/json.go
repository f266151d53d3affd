package openapi

import (
	"bytes"
	"encoding/json"
	"io"
)

// MarshalJSON renders the spec as indented JSON.
func MarshalJSON(spec *Spec) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteJSON(spec, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON writes the spec to w as indented JSON. Descriptions keep their
// literal <, > and & characters.
func WriteJSON(spec *Spec, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(spec)
}
