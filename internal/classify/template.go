package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TemplateField maps one final result field to the model-side key it is
// read from.
type TemplateField struct {
	Final string
	Model string
}

// OutputTemplate is the result schema: an ordered final-field -> model-field
// mapping loaded once at startup and immutable for the run. Order follows
// the template file so output records keep a stable field layout.
type OutputTemplate struct {
	fields []TemplateField
}

// LoadTemplate reads and parses the output template file.
func LoadTemplate(path string) (*OutputTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	tpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}
	return tpl, nil
}

// ParseTemplate decodes a flat JSON object of string->string pairs,
// preserving the order in which the keys appear.
func ParseTemplate(data []byte) (*OutputTemplate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("template must be a JSON object")
	}

	var tpl OutputTemplate
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := keyTok.(string)

		valTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		val, ok := valTok.(string)
		if !ok {
			return nil, fmt.Errorf("template value for %q must be a string", key)
		}

		tpl.fields = append(tpl.fields, TemplateField{Final: key, Model: val})
	}

	if len(tpl.fields) == 0 {
		return nil, fmt.Errorf("template declares no fields")
	}
	return &tpl, nil
}

// Fields returns the declared fields in template order.
func (t *OutputTemplate) Fields() []TemplateField {
	return t.fields
}

// DefaultValue returns the declared per-field default: an empty list for
// vendor/product-like fields, nil for everything else.
func DefaultValue(finalName string) any {
	if strings.Contains(finalName, "Vendors") || strings.Contains(finalName, "Products") {
		return []any{}
	}
	return nil
}
