package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema is the structural contract for a schema document. Keys it
// does not mention are ignored.
const documentSchema = `{
  "type": "object",
  "required": ["resource", "fields"],
  "properties": {
    "resource": {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "fields": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["column", "type", "operators"],
        "properties": {
          "column": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "operators": {"type": "array", "items": {"type": "string"}},
          "enumValues": {"type": "array", "items": {"type": "string"}},
          "nullable": {"type": "boolean"}
        }
      }
    }
  }
}`

var documentValidator = mustCompile(documentSchema)

func mustCompile(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("schema: invalid document schema: %v", err))
	}
	return s
}

// LoadFilterSchema parses a JSON schema document. Operators are taken as
// written; no defaults are filled in.
func LoadFilterSchema(data []byte) (*FilterSchema, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return LoadFilterSchemaDocument(doc)
}

// LoadFilterSchemaDocument loads an already decoded document, such as the
// output of a JSON or YAML decoder.
func LoadFilterSchemaDocument(doc any) (*FilterSchema, error) {
	result, err := documentValidator.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(errs, "; "))
	}

	// Round-trip through JSON so both decoders land on the same struct tags.
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	var raw FilterSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	return build(raw.Resource, raw.Fields, raw.Version, false)
}
