package pathgen

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const topicsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["topics"],
  "properties": {
    "topics": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "description", "difficulty", "estimated_time", "xp_reward"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "difficulty": {"enum": ["easy", "medium", "hard"]},
          "estimated_time": {"type": "integer", "minimum": 0},
          "xp_reward": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

var compiledSchema = mustSchema(topicsSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile topics schema: %v", err))
	}
	return s
}

// validate checks raw against the topics schema. At most five violations are
// reported.
func validate(raw []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for i, e := range result.Errors() {
		if i == 5 {
			msgs = append(msgs, "...")
			break
		}
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}
