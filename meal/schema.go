package meal

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
)

func nutrientProperties() map[string]*jsonschema.Schema {
	zero := 0.0
	return map[string]*jsonschema.Schema{
		"cal":     {Type: "number", Minimum: &zero},
		"protein": {Type: "number", Minimum: &zero},
		"fat":     {Type: "number", Minimum: &zero},
		"carbs":   {Type: "number", Minimum: &zero},
	}
}

// EstimateSchema describes the reply shape requested from the estimator for a whole meal.
func EstimateSchema() *jsonschema.Schema {
	zero := 0.0
	itemProps := nutrientProperties()
	itemProps["name"] = &jsonschema.Schema{Type: "string"}
	itemProps["weight_g"] = &jsonschema.Schema{Type: "number", Minimum: &zero}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"items": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type:       "object",
					Properties: itemProps,
					Required:   []string{"name", "weight_g", "cal", "protein", "fat", "carbs"},
				},
			},
			"total": {
				Type:       "object",
				Properties: nutrientProperties(),
				Required:   []string{"cal", "protein", "fat", "carbs"},
			},
		},
		Required: []string{"items", "total"},
	}
}

// NutrientsSchema describes the single-ingredient reply used when renaming.
func NutrientsSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: nutrientProperties(),
		Required:   []string{"cal", "protein", "fat", "carbs"},
	}
}

// SchemaJSON renders a schema for embedding into a prompt.
func SchemaJSON(s *jsonschema.Schema) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
