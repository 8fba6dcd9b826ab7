package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tastebalance"
	"tastebalance/gate"
	"tastebalance/meal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// PremiumGrantDuration is what the admin code grants.
	PremiumGrantDuration = 30 * 24 * time.Hour

	historyDays = 7
)

// Messenger delivers replies to a user.
type Messenger interface {
	Send(ctx context.Context, userID int64, r Reply) error
}

// Feedback is a free-text message a user asked to pass on to the operators.
type Feedback struct {
	UserID int64
	Kind   string
	Text   string
}

// Format renders the message for operators, identifying the sender by id only.
func (fb Feedback) Format() string {
	label := "Feedback"
	if fb.Kind == FeedbackKindCooperation {
		label = "Cooperation request"
	}
	return fmt.Sprintf("%s from user %d:\n%s", label, fb.UserID, fb.Text)
}

type FeedbackSink interface {
	Forward(ctx context.Context, fb Feedback) error
}

type PhotoArchive interface {
	Save(ctx context.Context, userID int64, photo []byte) (string, error)
}

// PhotoFetcher downloads the bytes of an inbound photo.
type PhotoFetcher func(ctx context.Context) ([]byte, error)

type EngineOpts struct {
	Store     *Store
	Gate      *gate.Gate
	Estimator tastebalance.Estimator
	Messenger Messenger
	Feedback  FeedbackSink
	// Archive is optional.
	Archive PhotoArchive
	// AdminCode grants premium when sent as a message. Empty disables it.
	AdminCode     string
	FreePhotos    int
	RetryInterval time.Duration
	Tracer        trace.Tracer
	Meter         metric.Meter
}

// Engine routes inbound events through the per-user state machine.
type Engine struct {
	store         *Store
	gate          *gate.Gate
	est           tastebalance.Estimator
	msgr          Messenger
	feedback      FeedbackSink
	archive       PhotoArchive
	adminCode     string
	freePhotos    int
	retryInterval time.Duration
	tracer        trace.Tracer

	captures        metric.Int64Counter
	captureFailures metric.Int64Counter
	edits           metric.Int64Counter
	commits         metric.Int64Counter
	upsells         metric.Int64Counter
}

func NewEngine(opts EngineOpts) *Engine {
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tastebalance.TracerNameEngine)
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(tastebalance.MeterName)
	}
	if opts.Store == nil {
		opts.Store = NewStore(DefaultTTL)
	}
	if opts.FreePhotos == 0 {
		opts.FreePhotos = gate.DefaultFreePhotosPerDay
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = tastebalance.RetryInterval
	}

	captures, _ := opts.Meter.Int64Counter("captures_total",
		metric.WithDescription("Total number of successful meal captures"))
	captureFailures, _ := opts.Meter.Int64Counter("capture_failures_total",
		metric.WithDescription("Total number of captures that failed to produce an estimate"))
	edits, _ := opts.Meter.Int64Counter("edits_total",
		metric.WithDescription("Total number of applied ingredient edits"))
	commits, _ := opts.Meter.Int64Counter("commits_total",
		metric.WithDescription("Total number of meals saved to the ledger"))
	upsells, _ := opts.Meter.Int64Counter("upsells_total",
		metric.WithDescription("Total number of premium upsell messages shown"))

	return &Engine{
		store:           opts.Store,
		gate:            opts.Gate,
		est:             opts.Estimator,
		msgr:            opts.Messenger,
		feedback:        opts.Feedback,
		archive:         opts.Archive,
		adminCode:       strings.TrimSpace(opts.AdminCode),
		freePhotos:      opts.FreePhotos,
		retryInterval:   opts.RetryInterval,
		tracer:          opts.Tracer,
		captures:        captures,
		captureFailures: captureFailures,
		edits:           edits,
		commits:         commits,
		upsells:         upsells,
	}
}

// Store exposes the session store, e.g. for the janitor or debugging.
func (e *Engine) Store() *Store {
	return e.store
}

func (e *Engine) send(ctx context.Context, userID int64, r Reply) {
	if err := e.msgr.Send(ctx, userID, r); err != nil {
		slog.Error("ENGINE: Failed to send reply", "user_id", userID, "error", err)
	}
}

func (e *Engine) text(ctx context.Context, userID int64, text string) {
	e.send(ctx, userID, Reply{Text: text})
}

func (e *Engine) startSpan(ctx context.Context, name string, userID int64) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.Int64("user.id", userID)))
}

func (e *Engine) do(ctx context.Context, userID int64, span trace.Span, fn func(*EditSession) error) {
	err := e.store.Do(ctx, userID, func(s *EditSession) error {
		before := s.State
		err := fn(s)
		span.SetAttributes(
			attribute.String("session.state_before", before.String()),
			attribute.String("session.state_after", s.State.String()),
		)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, "event failed")
		span.RecordError(err)
		slog.Error("ENGINE: Event failed", "user_id", userID, "error", err)
	}
}

func (e *Engine) tier(premium bool) tastebalance.Tier {
	if premium {
		return tastebalance.TierPremium
	}
	return tastebalance.TierLite
}

// OnPhoto runs a photo capture: quota gate, download, estimate, normalize.
// Any failure leaves the session as it was.
func (e *Engine) OnPhoto(ctx context.Context, userID int64, fetch PhotoFetcher) {
	ctx, span := e.startSpan(ctx, "Engine.OnPhoto", userID)
	defer span.End()

	e.do(ctx, userID, span, func(s *EditSession) error {
		decision, err := e.gate.CanCapture(ctx, userID)
		if err != nil {
			e.text(ctx, userID, msgServiceError)
			return err
		}
		if !decision.Allowed {
			e.upsell(ctx, userID, fmt.Sprintf(msgQuotaExceeded, e.freePhotos))
			return nil
		}

		e.text(ctx, userID, msgAnalyzingPhoto)

		photo, err := tastebalance.RetryWith(ctx, "download_photo", e.retryInterval, func() ([]byte, error) {
			return fetch(ctx)
		})
		if err != nil {
			e.text(ctx, userID, msgDownloadFailed)
			return fmt.Errorf("download photo: %w", err)
		}

		if err := e.gate.ConsumePhoto(ctx, userID); err != nil {
			e.text(ctx, userID, msgServiceError)
			return err
		}

		if e.archive != nil {
			if key, err := e.archive.Save(ctx, userID, photo); err != nil {
				slog.Warn("ENGINE: Failed to archive photo", "user_id", userID, "error", err)
			} else {
				slog.Debug("ENGINE: Photo archived", "user_id", userID, "key", key)
			}
		}

		raw, err := e.est.EstimatePhoto(ctx, photo, e.tier(decision.Premium))
		return e.finishCapture(ctx, s, raw, err)
	})
}

// finishCapture installs the estimate on success. On failure a pending manual entry is
// abandoned and any other state is left untouched.
func (e *Engine) finishCapture(ctx context.Context, s *EditSession, raw string, estErr error) error {
	if estErr != nil {
		e.captureFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "estimator")))
		if s.State == StateManualTextPending {
			s.Reset()
		}
		e.text(ctx, s.UserID, msgEstimateFailed)
		return fmt.Errorf("estimate: %w", estErr)
	}

	est, err := meal.Normalize(raw)
	if err != nil {
		reason := meal.ReasonUnparseable
		var nerr *meal.NormalizeError
		if errors.As(err, &nerr) {
			reason = nerr.Reason
		}
		e.captureFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		slog.Warn("ENGINE: Could not normalize estimate", "user_id", s.UserID, "reason", reason, "raw", raw)
		if s.State == StateManualTextPending {
			s.Reset()
		}
		e.text(ctx, s.UserID, msgNotRecognized)
		return nil
	}

	s.SetMeal(est)
	e.captures.Add(ctx, 1)
	slog.Info("ENGINE: Meal captured", "user_id", s.UserID, "items", len(est.Items), "cal", est.Total.Cal)
	e.send(ctx, s.UserID, renderMeal(s.Meal))
	return nil
}

// OnText handles a free-text message according to the session state.
func (e *Engine) OnText(ctx context.Context, userID int64, text string) {
	ctx, span := e.startSpan(ctx, "Engine.OnText", userID)
	defer span.End()

	original := text
	text = strings.TrimSpace(text)
	if e.adminCode != "" && text == e.adminCode {
		e.grantPremium(ctx, userID)
		return
	}

	e.do(ctx, userID, span, func(s *EditSession) error {
		switch s.State {
		case StateManualTextPending:
			if text == "" {
				e.text(ctx, userID, msgManualPrompt)
				return nil
			}
			premium, err := e.gate.IsPremiumActive(ctx, userID)
			if err != nil {
				e.text(ctx, userID, msgServiceError)
				return err
			}
			e.text(ctx, userID, msgAnalyzingText)
			raw, err := e.est.EstimateText(ctx, text, e.tier(premium))
			return e.finishCapture(ctx, s, raw, err)

		case StateFeedbackPending:
			return e.forwardFeedback(ctx, s, original)

		case StateAwaitName:
			return e.applyRename(ctx, s, text)

		case StateAwaitWeight:
			return e.applyReweight(ctx, s, text)

		case StateMealReady:
			if !s.HasMeal() {
				s.Reset()
				e.text(ctx, userID, msgInvariant)
				return nil
			}
			e.send(ctx, userID, Reply{Text: msgMealHint, Buttons: mealButtons()})
			return nil

		default:
			e.send(ctx, userID, Reply{Text: msgIdleHint, Buttons: mainMenu()})
			return nil
		}
	})
}

func (e *Engine) forwardFeedback(ctx context.Context, s *EditSession, text string) error {
	kind := s.FeedbackKind
	s.Reset()

	if strings.TrimSpace(text) == "" {
		e.text(ctx, s.UserID, msgFeedbackFailed)
		return nil
	}
	if err := e.feedback.Forward(ctx, Feedback{UserID: s.UserID, Kind: kind, Text: text}); err != nil {
		e.text(ctx, s.UserID, msgFeedbackFailed)
		return fmt.Errorf("forward feedback: %w", err)
	}
	e.send(ctx, s.UserID, Reply{Text: msgFeedbackSent, Buttons: mainMenu()})
	return nil
}

func (e *Engine) applyRename(ctx context.Context, s *EditSession, text string) error {
	if !s.validIndex() {
		s.clearStage()
		e.text(ctx, s.UserID, msgInvariant)
		return nil
	}
	if text == "" {
		e.text(ctx, s.UserID, msgEmptyName)
		return nil
	}

	idx := s.EditingIndex
	weight := s.Meal.Items[idx].WeightG

	premium, err := e.gate.IsPremiumActive(ctx, s.UserID)
	if err != nil {
		slog.Warn("ENGINE: Premium lookup failed, using lite tier", "user_id", s.UserID, "error", err)
	}

	var nutrients *meal.Nutrients
	raw, err := e.est.EstimateIngredient(ctx, text, weight, e.tier(premium))
	if err == nil {
		if n, nerr := meal.NormalizeNutrients(raw); nerr == nil {
			nutrients = &n
		} else {
			err = nerr
		}
	}
	if err != nil {
		slog.Warn("ENGINE: Ingredient recalculation failed, keeping nutrients", "user_id", s.UserID, "error", err)
		e.text(ctx, s.UserID, msgRecalcFailed)
	}

	if rerr := s.Meal.Rename(idx, text, nutrients); rerr != nil {
		s.clearStage()
		e.text(ctx, s.UserID, msgInvariant)
		return rerr
	}
	s.clearStage()
	e.edits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "rename")))
	e.send(ctx, s.UserID, renderMeal(s.Meal))
	return nil
}

func (e *Engine) applyReweight(ctx context.Context, s *EditSession, text string) error {
	if !s.validIndex() {
		s.clearStage()
		e.text(ctx, s.UserID, msgInvariant)
		return nil
	}

	w, err := meal.ParseWeight(text)
	if err != nil {
		e.text(ctx, s.UserID, msgInvalidWeight)
		return nil
	}
	if err := s.Meal.Reweight(s.EditingIndex, w); err != nil {
		if errors.Is(err, meal.ErrInvalidWeight) {
			e.text(ctx, s.UserID, msgInvalidWeight)
			return nil
		}
		s.clearStage()
		e.text(ctx, s.UserID, msgInvariant)
		return err
	}
	s.clearStage()
	e.edits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "reweight")))
	e.send(ctx, s.UserID, renderMeal(s.Meal))
	return nil
}

func (e *Engine) upsell(ctx context.Context, userID int64, text string) {
	e.upsells.Add(ctx, 1)
	e.send(ctx, userID, Reply{Text: text, Buttons: upsellButtons()})
}

func premiumGated(action string) bool {
	switch action {
	case ActionEditMeal, ActionEditItem, ActionEditName, ActionEditWeight, ActionDeleteItem, ActionSaveMeal:
		return true
	}
	return false
}

// OnButton handles a button press or command. Edit and save actions are checked
// against premium before the session is consulted.
func (e *Engine) OnButton(ctx context.Context, userID int64, action string) {
	ctx, span := e.startSpan(ctx, "Engine.OnButton", userID)
	defer span.End()
	span.SetAttributes(attribute.String("action", action))

	name, arg, hasArg, err := parseAction(action)
	if err != nil || (hasArg && name != ActionEditItem) {
		slog.Warn("ENGINE: Malformed action", "user_id", userID, "action", action)
		e.text(ctx, userID, msgUnknownAction)
		return
	}

	if premiumGated(name) {
		premium, err := e.gate.IsPremiumActive(ctx, userID)
		if err != nil {
			e.text(ctx, userID, msgServiceError)
			slog.Error("ENGINE: Premium lookup failed", "user_id", userID, "error", err)
			return
		}
		if !premium {
			e.upsell(ctx, userID, msgPremiumOnly)
			return
		}
	}

	switch name {
	case ActionHelp:
		e.send(ctx, userID, Reply{Text: msgHelp, Buttons: mainMenu()})
	case ActionStats:
		e.showStats(ctx, userID)
	case ActionHistory:
		e.showHistory(ctx, userID)
	case ActionPremium:
		e.showPremium(ctx, userID, true)
	case ActionCheckPremium:
		e.showPremium(ctx, userID, false)
	case ActionFeedbackMenu:
		e.send(ctx, userID, Reply{Text: msgFeedbackMenu, Buttons: feedbackButtons()})
	default:
		e.do(ctx, userID, span, func(s *EditSession) error {
			return e.sessionButton(ctx, s, name, arg, hasArg)
		})
	}
}

func (e *Engine) sessionButton(ctx context.Context, s *EditSession, name string, arg int, hasArg bool) error {
	userID := s.UserID

	switch name {
	case ActionStart:
		s.Reset()
		e.send(ctx, userID, Reply{Text: msgWelcome, Buttons: mainMenu()})
		return nil

	case ActionManual:
		s.Reset()
		s.State = StateManualTextPending
		e.text(ctx, userID, msgManualPrompt)
		return nil

	case ActionFeedback, ActionCooperation:
		s.Reset()
		s.State = StateFeedbackPending
		s.FeedbackKind = name
		if name == ActionCooperation {
			e.text(ctx, userID, msgCoopPrompt)
		} else {
			e.text(ctx, userID, msgFeedbackPrompt)
		}
		return nil
	}

	// everything below needs a meal
	if !s.HasMeal() {
		if s.State != StateManualTextPending && s.State != StateFeedbackPending {
			s.Reset()
		}
		e.text(ctx, userID, msgNoData)
		return nil
	}

	switch name {
	case ActionEditMeal:
		s.clearStage()
		e.send(ctx, userID, renderIngredientPicker(s.Meal))

	case ActionEditItem:
		if !hasArg || arg < 0 || arg >= len(s.Meal.Items) {
			s.clearStage()
			e.text(ctx, userID, msgInvariant)
			return fmt.Errorf("edit item %d: %w", arg, meal.ErrIndexOutOfRange)
		}
		s.State = StateMealReady
		s.EditingIndex = arg
		e.send(ctx, userID, renderFieldPicker(s.Meal.Items[arg]))

	case ActionEditName, ActionEditWeight:
		if !s.validIndex() {
			s.clearStage()
			e.text(ctx, userID, msgInvariant)
			return nil
		}
		it := s.Meal.Items[s.EditingIndex]
		if name == ActionEditName {
			s.State = StateAwaitName
			e.text(ctx, userID, fmt.Sprintf("Enter the new name for \"%s\".", it.Name))
		} else {
			s.State = StateAwaitWeight
			e.text(ctx, userID, fmt.Sprintf("Enter the new weight of \"%s\" in grams (now %s g).", it.Name, meal.FormatWeight(it.WeightG)))
		}

	case ActionDeleteItem:
		if !s.validIndex() {
			s.clearStage()
			e.text(ctx, userID, msgInvariant)
			return nil
		}
		if err := s.Meal.Delete(s.EditingIndex); err != nil {
			s.clearStage()
			e.text(ctx, userID, msgInvariant)
			return err
		}
		e.edits.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "delete")))
		if s.Meal.Empty() {
			s.Reset()
			e.send(ctx, userID, Reply{Text: msgAllDeleted, Buttons: mainMenu()})
			return nil
		}
		s.clearStage()
		e.send(ctx, userID, renderMeal(s.Meal))

	case ActionSaveMeal:
		rec, err := e.gate.Commit(ctx, userID, *s.Meal)
		if err != nil {
			e.text(ctx, userID, msgSaveFailed)
			return err
		}
		s.Reset()
		e.commits.Add(ctx, 1)

		day, err := e.gate.DayTotals(ctx, userID)
		if err != nil {
			slog.Warn("ENGINE: Failed to load day totals", "user_id", userID, "error", err)
			day = tastebalance.DayTotals{Cal: rec.Cal, Protein: rec.Protein, Fat: rec.Fat, Carbs: rec.Carbs}
		}
		e.send(ctx, userID, renderSaved(rec, day))

	default:
		slog.Warn("ENGINE: Unknown action", "user_id", userID, "action", name)
		e.text(ctx, userID, msgUnknownAction)
	}
	return nil
}

func (e *Engine) grantPremium(ctx context.Context, userID int64) {
	until, err := e.gate.GrantPremium(ctx, userID, PremiumGrantDuration)
	if err != nil {
		slog.Error("ENGINE: Failed to grant premium", "user_id", userID, "error", err)
		e.text(ctx, userID, msgServiceError)
		return
	}
	slog.Info("ENGINE: Premium granted via admin code", "user_id", userID, "until", until)
	e.send(ctx, userID, Reply{
		Text:    fmt.Sprintf(msgPremiumGranted, until.Format("2006-01-02")),
		Buttons: mainMenu(),
	})
}

func (e *Engine) showStats(ctx context.Context, userID int64) {
	t, err := e.gate.DayTotals(ctx, userID)
	if err != nil {
		slog.Error("ENGINE: Failed to load stats", "user_id", userID, "error", err)
		e.text(ctx, userID, msgServiceError)
		return
	}
	e.send(ctx, userID, Reply{Text: RenderDayTotals("📊 Today:", t), Buttons: mainMenu()})
}

func (e *Engine) showHistory(ctx context.Context, userID int64) {
	meals, err := e.gate.History(ctx, userID, historyDays)
	if err != nil {
		slog.Error("ENGINE: Failed to load history", "user_id", userID, "error", err)
		e.text(ctx, userID, msgServiceError)
		return
	}
	e.send(ctx, userID, Reply{Text: renderHistory(meals, historyDays), Buttons: mainMenu()})
}

func (e *Engine) showPremium(ctx context.Context, userID int64, withInfo bool) {
	acc, err := e.gate.Account(ctx, userID)
	if err != nil {
		slog.Error("ENGINE: Failed to load account", "user_id", userID, "error", err)
		e.text(ctx, userID, msgServiceError)
		return
	}
	status := renderPremiumStatus(acc, e.gate.Now())
	if withInfo {
		status = msgPremiumInfo + "\n\n" + status
	}
	e.send(ctx, userID, Reply{
		Text:    status,
		Buttons: [][]Button{{{Label: "🔄 Check status", Action: ActionCheckPremium}}},
	})
}
