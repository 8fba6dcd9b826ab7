// Package mock provides a canned estimator for the console and tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tastebalance"
)

// DefaultPhotoReply mimics a chatty model that wraps its JSON in prose and fences.
const DefaultPhotoReply = "Here is the breakdown:\n```json\n" +
	`{"items":[{"name":"chicken","weight_g":150,"cal":230,"protein":32,"fat":5,"carbs":0},` +
	`{"name":"rice","weight_g":200,"cal":260,"protein":6,"fat":2,"carbs":56}],` +
	`"total":{"cal":490,"protein":38,"fat":7,"carbs":56}}` + "\n```"

const DefaultIngredientReply = `{"cal":180,"protein":7,"fat":1.5,"carbs":36}`

// Call records one invocation.
type Call struct {
	Kind  string
	Input string
	Tier  tastebalance.Tier
}

// Estimator returns fixed replies, or queued ones when present.
type Estimator struct {
	mu sync.Mutex

	PhotoReply      string
	TextReply       string
	IngredientReply string
	Err             error

	queue []result
	calls []Call
}

type result struct {
	reply string
	err   error
}

func NewEstimator() *Estimator {
	return &Estimator{
		PhotoReply:      DefaultPhotoReply,
		TextReply:       DefaultPhotoReply,
		IngredientReply: DefaultIngredientReply,
	}
}

// Enqueue makes the next call return reply and err, ahead of the fixed replies.
func (m *Estimator) Enqueue(reply string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, result{reply: reply, err: err})
}

// Calls returns the recorded invocations.
func (m *Estimator) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Estimator) respond(call Call, fixed string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r.reply, r.err
	}
	if m.Err != nil {
		return "", m.Err
	}
	return fixed, nil
}

func (m *Estimator) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return m.respond(Call{Kind: "photo", Input: fmt.Sprintf("%d bytes", len(photo)), Tier: tier}, m.PhotoReply)
}

func (m *Estimator) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return m.respond(Call{Kind: "text", Input: description, Tier: tier}, m.TextReply)
}

func (m *Estimator) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	input := strings.TrimSpace(name) + " " + fmt.Sprint(weightG)
	return m.respond(Call{Kind: "ingredient", Input: input, Tier: tier}, m.IngredientReply)
}
