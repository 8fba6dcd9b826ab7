// Package estimator holds the prompts shared by every estimation backend and the
// decorators (cache, retry, logging, telemetry) layered on top of them.
package estimator

import (
	"fmt"
	"strings"

	"tastebalance/meal"
)

const photoInstructions = `You are a nutrition expert. Identify every ingredient visible in the photo of the meal,
estimate its weight in grams and its calories, protein, fat and carbohydrates.
Reply with a single JSON object only, no prose and no code fences, matching this JSON schema:
%s
Example:
{"items":[{"name":"chicken","weight_g":150,"cal":230,"protein":32,"fat":5,"carbs":0},{"name":"rice","weight_g":200,"cal":260,"protein":6,"fat":2,"carbs":56}],"total":{"cal":490,"protein":38,"fat":7,"carbs":56}}
If there is no food in the photo reply with {"items":[]}.`

const textInstructions = `You are a nutrition expert. The user described a meal in their own words:
%q
Split it into ingredients, estimate each ingredient's weight in grams and its calories, protein,
fat and carbohydrates. Reply with a single JSON object only, no prose and no code fences,
matching this JSON schema:
%s
If the text does not describe food reply with {"items":[]}.`

const ingredientInstructions = `You are a nutrition expert. Give the calories, protein, fat and carbohydrates of
%q weighing %s g.
Reply with a single JSON object only, matching this JSON schema:
%s`

func schemaText(fn func() (string, error)) string {
	s, err := fn()
	if err != nil {
		// the schemas are static; a marshal failure would be a programming error
		panic(fmt.Sprintf("estimator: render schema: %v", err))
	}
	return s
}

var (
	estimateSchemaJSON = schemaText(func() (string, error) { return meal.SchemaJSON(meal.EstimateSchema()) })
	nutrientSchemaJSON = schemaText(func() (string, error) { return meal.SchemaJSON(meal.NutrientsSchema()) })
)

// PhotoPrompt is sent alongside the meal photo.
func PhotoPrompt() string {
	return fmt.Sprintf(photoInstructions, estimateSchemaJSON)
}

// TextPrompt asks for an estimate of a free-text meal description.
func TextPrompt(description string) string {
	return fmt.Sprintf(textInstructions, strings.TrimSpace(description), estimateSchemaJSON)
}

// IngredientPrompt asks for the nutrients of a single renamed ingredient at a fixed weight.
func IngredientPrompt(name string, weightG float64) string {
	return fmt.Sprintf(ingredientInstructions, strings.TrimSpace(name), meal.FormatWeight(weightG), nutrientSchemaJSON)
}
