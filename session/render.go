package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tastebalance"
	"tastebalance/meal"
)

// Button actions understood by OnButton.
const (
	ActionStart        = "start"
	ActionHelp         = "help"
	ActionStats        = "stats"
	ActionHistory      = "history"
	ActionPremium      = "premium"
	ActionCheckPremium = "check_premium"
	ActionManual       = "manual"
	ActionFeedbackMenu = "feedback_menu"
	ActionFeedback     = "feedback"
	ActionCooperation  = "cooperation"
	ActionEditMeal     = "edit_meal"
	ActionEditItem     = "edit_item"
	ActionEditName     = "edit_name"
	ActionEditWeight   = "edit_weight"
	ActionDeleteItem   = "delete_item"
	ActionSaveMeal     = "save_meal_to_stats"
)

// EditItemAction builds the action selecting ingredient i.
func EditItemAction(i int) string {
	return ActionEditItem + ":" + strconv.Itoa(i)
}

// parseAction splits "edit_item:3" into its name and argument.
func parseAction(action string) (name string, arg int, hasArg bool, err error) {
	name, rawArg, found := strings.Cut(strings.TrimSpace(action), ":")
	if !found {
		return name, 0, false, nil
	}
	arg, err = strconv.Atoi(rawArg)
	return name, arg, true, err
}

type Button struct {
	Label  string
	Action string
}

// Reply is one outbound message with an optional inline keyboard.
type Reply struct {
	Text    string
	Buttons [][]Button
}

const (
	msgWelcome = "Hi! I estimate calories, protein, fat and carbs of your meals.\n" +
		"Send a photo of your meal or tap \"Manual entry\" to describe it in words."
	msgHelp = "How it works:\n" +
		"1. Send a photo of your meal, or tap \"Manual entry\" and describe it.\n" +
		"2. Check the estimate. Premium users can rename, reweigh or delete ingredients.\n" +
		"3. Save the meal to keep today's totals.\n\n" +
		"Commands: /start, /stats, /history, /premium, /help"
	msgIdleHint        = "Send a photo of your meal or tap \"Manual entry\"."
	msgMealHint        = "Use the buttons below to edit or save this meal."
	msgAnalyzingPhoto  = "Analyzing your photo..."
	msgAnalyzingText   = "Analyzing your description..."
	msgManualPrompt    = "Describe what you ate, for example: \"2 eggs, toast with butter, coffee with milk\"."
	msgFeedbackPrompt  = "Write your message and I will pass it on to the team."
	msgCoopPrompt      = "Tell us about your cooperation proposal and how to reach you."
	msgFeedbackMenu    = "What would you like to send?"
	msgFeedbackSent    = "Thank you! Your message has been sent."
	msgFeedbackFailed  = "Sorry, your message could not be delivered. Please try again later."
	msgNoData          = "There is no meal to edit. Send a photo or use \"Manual entry\" first."
	msgInvariant       = "Something went wrong, please start again with /start"
	msgDownloadFailed  = "I could not download the photo. Please send it again."
	msgEstimateFailed  = "The analysis service is not responding right now. Please try again later."
	msgNotRecognized   = "I could not identify the meal. Try another photo or describe it in text."
	msgServiceError    = "Something went wrong on our side. Please try again later."
	msgPickIngredient  = "Which ingredient do you want to change?"
	msgEmptyName       = "The name cannot be empty. Enter the new ingredient name."
	msgInvalidWeight   = "Please enter the weight in grams as a positive number, for example 150."
	msgRecalcFailed    = "I could not recalculate the nutrients, so the previous values were kept."
	msgAllDeleted      = "All ingredients were removed, the meal has been discarded."
	msgSaveFailed      = "The meal could not be saved. Please try again."
	msgQuotaExceeded   = "You have used your %d free photo analyses for today.\nPremium removes the limit and unlocks meal editing."
	msgPremiumOnly     = "Editing and saving meals is a Premium feature.\nPremium also removes the daily photo limit."
	msgPremiumInfo     = "Premium includes:\n- unlimited photo analyses\n- a more accurate model\n- editing ingredients, weights and names\n- saving meals and daily statistics\n- an evening summary of your day"
	msgPremiumGranted  = "Premium activated until %s."
	msgPremiumActive   = "Premium is active until %s."
	msgPremiumForever  = "Premium is active."
	msgPremiumInactive = "Premium is not active."
	msgUnknownAction   = "Unknown action. Use /start to open the menu."
)

func mainMenu() [][]Button {
	return [][]Button{
		{{Label: "✍️ Manual entry", Action: ActionManual}},
		{{Label: "📊 Today", Action: ActionStats}, {Label: "📅 History", Action: ActionHistory}},
		{{Label: "⭐ Premium", Action: ActionPremium}, {Label: "💬 Feedback", Action: ActionFeedbackMenu}},
		{{Label: "❓ Help", Action: ActionHelp}},
	}
}

func mealButtons() [][]Button {
	return [][]Button{
		{{Label: "✏️ Edit", Action: ActionEditMeal}, {Label: "✅ Save", Action: ActionSaveMeal}},
	}
}

func upsellButtons() [][]Button {
	return [][]Button{{{Label: "⭐ About Premium", Action: ActionPremium}}}
}

func feedbackButtons() [][]Button {
	return [][]Button{
		{{Label: "💬 Feedback", Action: ActionFeedback}},
		{{Label: "🤝 Cooperation", Action: ActionCooperation}},
	}
}

func whole(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}

func itemLabel(it meal.Item) string {
	return fmt.Sprintf("%s (%s g)", it.Name, meal.FormatWeight(it.WeightG))
}

// renderMeal lists the ingredients and totals, rounded to whole units.
func renderMeal(est *meal.Estimate) Reply {
	var b strings.Builder
	b.WriteString("🍽 Meal estimate:\n")
	for _, it := range est.Items {
		fmt.Fprintf(&b, "- %s: %s kcal\n", itemLabel(it), whole(it.Cal))
	}
	fmt.Fprintf(&b, "\nTotal: %s kcal, protein %s g, fat %s g, carbs %s g",
		whole(est.Total.Cal), whole(est.Total.Protein), whole(est.Total.Fat), whole(est.Total.Carbs))
	return Reply{Text: b.String(), Buttons: mealButtons()}
}

func renderIngredientPicker(est *meal.Estimate) Reply {
	rows := make([][]Button, 0, len(est.Items)+1)
	for i, it := range est.Items {
		rows = append(rows, []Button{{Label: itemLabel(it), Action: EditItemAction(i)}})
	}
	rows = append(rows, []Button{{Label: "✅ Save", Action: ActionSaveMeal}})
	return Reply{Text: msgPickIngredient, Buttons: rows}
}

func renderFieldPicker(it meal.Item) Reply {
	return Reply{
		Text: fmt.Sprintf("Ingredient: %s\nWhat do you want to change?", itemLabel(it)),
		Buttons: [][]Button{
			{{Label: "Name", Action: ActionEditName}, {Label: "Weight", Action: ActionEditWeight}},
			{{Label: "🗑 Delete", Action: ActionDeleteItem}},
			{{Label: "⬅️ Back", Action: ActionEditMeal}},
		},
	}
}

func renderSaved(rec tastebalance.MealRecord, day tastebalance.DayTotals) Reply {
	return Reply{
		Text: fmt.Sprintf("✅ Saved: %s kcal, protein %s g, fat %s g, carbs %s g.\n\nToday so far: %s kcal, protein %s g, fat %s g, carbs %s g.",
			whole(rec.Cal), whole(rec.Protein), whole(rec.Fat), whole(rec.Carbs),
			whole(day.Cal), whole(day.Protein), whole(day.Fat), whole(day.Carbs)),
		Buttons: mainMenu(),
	}
}

// RenderDayTotals formats a day's totals; the digest reuses it.
func RenderDayTotals(title string, t tastebalance.DayTotals) string {
	return fmt.Sprintf("%s\nCalories: %s kcal\nProtein: %s g\nFat: %s g\nCarbs: %s g",
		title, whole(t.Cal), whole(t.Protein), whole(t.Fat), whole(t.Carbs))
}

func renderHistory(meals []tastebalance.MealRecord, days int) string {
	if len(meals) == 0 {
		return fmt.Sprintf("No meals saved in the last %d days.", days)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📅 Last %d days:\n", days)
	date := ""
	var day tastebalance.DayTotals
	flush := func() {
		if date != "" {
			fmt.Fprintf(&b, "  total: %s kcal\n", whole(day.Cal))
		}
	}
	for _, m := range meals {
		if m.Date != date {
			flush()
			date = m.Date
			day = tastebalance.DayTotals{}
			fmt.Fprintf(&b, "\n%s\n", date)
		}
		day.Cal += m.Cal
		fmt.Fprintf(&b, "  %s %s: %s kcal\n", m.Time, m.Description, whole(m.Cal))
	}
	flush()
	return strings.TrimRight(b.String(), "\n")
}

func renderPremiumStatus(acc tastebalance.Account, now time.Time) string {
	if !acc.PremiumActive(now) {
		return msgPremiumInactive
	}
	if acc.PremiumUntil == nil {
		return msgPremiumForever
	}
	return fmt.Sprintf(msgPremiumActive, acc.PremiumUntil.In(now.Location()).Format("2006-01-02 15:04"))
}
