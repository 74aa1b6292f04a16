package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is one classification record. It is either fully populated from
// the output template (success shape) or carries only the error metadata
// (error shape) — never a mix of the two.
//
// Fields keep insertion order so output files always read
// CVE_ID, template fields, execution_time_seconds, attempts.
type Result struct {
	fields []resultField
}

type resultField struct {
	name  string
	value any
}

// NewResult starts a result for the given identifier.
func NewResult(id string) *Result {
	r := &Result{}
	r.Set("CVE_ID", id)
	return r
}

// Set appends a field, replacing an earlier value with the same name.
func (r *Result) Set(name string, value any) {
	for i := range r.fields {
		if r.fields[i].name == name {
			r.fields[i].value = value
			return
		}
	}
	r.fields = append(r.fields, resultField{name: name, value: value})
}

// Get returns the value for name.
func (r *Result) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.name == name {
			return f.value, true
		}
	}
	return nil, false
}

// ID returns the record identifier.
func (r *Result) ID() string {
	v, _ := r.Get("CVE_ID")
	id, _ := v.(string)
	return id
}

// IsError reports whether this is an error-shaped result.
func (r *Result) IsError() bool {
	v, ok := r.Get("error")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// DecodeResult parses a persisted record back into a Result, keeping the
// file's key order so a rewrite does not reshuffle the fields. Numbers
// are kept as their literal text for the same reason.
func DecodeResult(data []byte) (*Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("record is not a JSON object")
	}

	r := &Result{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to parse record: unexpected token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to parse record field %q: %w", name, err)
		}
		r.Set(name, value)
	}
	return r, nil
}

// MarshalJSON writes the fields as a JSON object in insertion order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
