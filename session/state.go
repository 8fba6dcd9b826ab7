// Package session runs the per-user meal capture and edit conversation.
package session

import (
	"time"

	"tastebalance/meal"
)

// State is the full (mode, stage) product of a conversation. Stages other than none
// exist only while a meal is ready, so illegal pairs cannot be represented.
type State int

const (
	StateIdle State = iota
	StateManualTextPending
	StateFeedbackPending
	StateMealReady
	StateAwaitName
	StateAwaitWeight
)

func (s State) Mode() string {
	switch s {
	case StateManualTextPending:
		return "manual_text_pending"
	case StateFeedbackPending:
		return "feedback_pending"
	case StateMealReady, StateAwaitName, StateAwaitWeight:
		return "meal_ready"
	default:
		return "idle"
	}
}

func (s State) Stage() string {
	switch s {
	case StateAwaitName:
		return "await_new_name"
	case StateAwaitWeight:
		return "await_new_weight"
	default:
		return "none"
	}
}

func (s State) String() string {
	return s.Mode() + "/" + s.Stage()
}

const (
	FeedbackKindFeedback    = "feedback"
	FeedbackKindCooperation = "cooperation"
)

// EditSession is one user's in-flight conversation. It is only ever touched through Store.Do.
type EditSession struct {
	UserID       int64
	State        State
	FeedbackKind string
	EditingIndex int
	Meal         *meal.Estimate
	Touched      time.Time
}

func newEditSession(userID int64) *EditSession {
	return &EditSession{UserID: userID, EditingIndex: -1}
}

func (s *EditSession) HasMeal() bool {
	return s.Meal != nil && !s.Meal.Empty()
}

// Reset returns the session to idle and drops any meal.
func (s *EditSession) Reset() {
	s.State = StateIdle
	s.FeedbackKind = ""
	s.EditingIndex = -1
	s.Meal = nil
}

// SetMeal installs a freshly captured estimate.
func (s *EditSession) SetMeal(est meal.Estimate) {
	s.Reset()
	s.Meal = &est
	s.State = StateMealReady
}

// clearStage leaves any in-progress edit while keeping the meal.
func (s *EditSession) clearStage() {
	s.EditingIndex = -1
	if s.HasMeal() {
		s.State = StateMealReady
		return
	}
	s.Reset()
}

func (s *EditSession) validIndex() bool {
	return s.HasMeal() && s.EditingIndex >= 0 && s.EditingIndex < len(s.Meal.Items)
}

func (s *EditSession) disposable() bool {
	return s.State == StateIdle && s.Meal == nil
}

// snapshot deep-copies the session.
func (s *EditSession) snapshot() EditSession {
	cp := *s
	if s.Meal != nil {
		m := s.Meal.Clone()
		cp.Meal = &m
	}
	return cp
}
