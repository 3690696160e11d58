package releases

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const indexSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["title", "features", "files"],
    "properties": {
      "title": {"type": "string"},
      "commit": {"type": "string"},
      "type": {"type": "string"},
      "gh_release": {"type": "string"},
      "gh_changes": {"type": "string"},
      "vscode_release": {"type": "string"},
      "vs_release": {"type": "string"},
      "features": {"type": "array", "items": {"type": "string"}},
      "files": {
        "type": "object",
        "additionalProperties": {
          "type": "object",
          "required": ["url"],
          "properties": {
            "url": {"type": "string", "minLength": 1},
            "hash": {"type": "string"}
          }
        }
      },
      "src": {"type": "string"},
      "zip": {"type": "string"}
    }
  }
}`

const metaSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["label"],
    "properties": {
      "label": {"type": "string"},
      "type": {"type": "string"}
    }
  }
}`

var (
	compiledIndexSchema = mustCompile("index.json", indexSchema)
	compiledMetaSchema  = mustCompile("meta.json", metaSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("releases: load %s schema: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// validate checks raw JSON against schema.
func validate(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return nil
}
