// internal/common/validation/answers.go
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// answersSchema constrains a submitted questionnaire answer map before it
// reaches the scoring engine. The two required keys mirror the engine's
// required inputs; everything else is free-form string answers.
const answersSchema = `{
	"type": "object",
	"properties": {
		"invest_time": {"type": "string", "pattern": "^[0-9]+$"},
		"max_loss": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
		"target": {"type": "string"},
		"year_for_invest": {"type": "string", "pattern": "^[0-9]+$"}
	},
	"required": ["invest_time", "max_loss"],
	"additionalProperties": {"type": "string"}
}`

var compiledAnswersSchema = gojsonschema.NewStringLoader(answersSchema)

// ValidateAnswers checks a raw answer map against the questionnaire schema
// and returns a list of field-level problems, empty when valid.
func ValidateAnswers(answers map[string]string) ([]string, error) {
	doc := make(map[string]interface{}, len(answers))
	for k, v := range answers {
		doc[k] = v
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}

	result, err := gojsonschema.Validate(compiledAnswersSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate answers: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}

// Describe joins problems into one detail string for error reporting.
func Describe(problems []string) string {
	return strings.Join(problems, "; ")
}
