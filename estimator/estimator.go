package estimator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"tastebalance"
	"tastebalance/meal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	KindPhoto      = "photo"
	KindText       = "text"
	KindIngredient = "ingredient"
)

// Cache stores raw replies keyed by a hash of the request.
type Cache interface {
	GetEstimate(ctx context.Context, key string) (string, bool, error)
	PutEstimate(ctx context.Context, key, result string) error
}

// Cached serves repeated requests from the cache. Only replies that normalize
// successfully are stored, so a bad reply is never pinned.
type Cached struct {
	next  tastebalance.Estimator
	cache Cache
}

func NewCached(next tastebalance.Estimator, cache Cache) *Cached {
	return &Cached{next: next, cache: cache}
}

func cacheKey(kind string, tier tastebalance.Tier, parts ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(tier.String()))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) lookup(ctx context.Context, key string, call func() (string, error), valid func(string) bool) (string, error) {
	if hit, ok, err := c.cache.GetEstimate(ctx, key); err != nil {
		slog.Warn("ESTIMATOR: Cache read failed", "error", err)
	} else if ok {
		slog.Debug("ESTIMATOR: Cache hit", "key", key)
		return hit, nil
	}

	out, err := call()
	if err != nil {
		return "", err
	}
	if valid(out) {
		if err := c.cache.PutEstimate(ctx, key, out); err != nil {
			slog.Warn("ESTIMATOR: Cache write failed", "error", err)
		}
	}
	return out, nil
}

func validEstimate(raw string) bool {
	_, err := meal.Normalize(raw)
	return err == nil
}

func validNutrients(raw string) bool {
	_, err := meal.NormalizeNutrients(raw)
	return err == nil
}

func (c *Cached) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return c.lookup(ctx, cacheKey(KindPhoto, tier, photo), func() (string, error) {
		return c.next.EstimatePhoto(ctx, photo, tier)
	}, validEstimate)
}

func (c *Cached) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return c.lookup(ctx, cacheKey(KindText, tier, []byte(description)), func() (string, error) {
		return c.next.EstimateText(ctx, description, tier)
	}, validEstimate)
}

func (c *Cached) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	key := cacheKey(KindIngredient, tier, []byte(name), []byte(meal.FormatWeight(weightG)))
	return c.lookup(ctx, key, func() (string, error) {
		return c.next.EstimateIngredient(ctx, name, weightG, tier)
	}, validNutrients)
}

// Retrying retries failed calls with the shared bounded policy.
type Retrying struct {
	next     tastebalance.Estimator
	interval time.Duration
}

func NewRetrying(next tastebalance.Estimator) *Retrying {
	return &Retrying{next: next, interval: tastebalance.RetryInterval}
}

// WithInterval overrides the pause between attempts.
func (r *Retrying) WithInterval(d time.Duration) *Retrying {
	r.interval = d
	return r
}

func (r *Retrying) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return tastebalance.RetryWith(ctx, "estimate_photo", r.interval, func() (string, error) {
		return r.next.EstimatePhoto(ctx, photo, tier)
	})
}

func (r *Retrying) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return tastebalance.RetryWith(ctx, "estimate_text", r.interval, func() (string, error) {
		return r.next.EstimateText(ctx, description, tier)
	})
}

func (r *Retrying) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return tastebalance.RetryWith(ctx, "estimate_ingredient", r.interval, func() (string, error) {
		return r.next.EstimateIngredient(ctx, name, weightG, tier)
	})
}

// Logged records every round-trip with an EstimationLogger.
type Logged struct {
	next   tastebalance.Estimator
	logger tastebalance.EstimationLogger
}

func NewLogged(next tastebalance.Estimator, logger tastebalance.EstimationLogger) *Logged {
	return &Logged{next: next, logger: logger}
}

func preview(s string) string {
	if r := []rune(s); len(r) > 200 {
		return string(r[:197]) + "..."
	}
	return s
}

func (l *Logged) record(kind string, tier tastebalance.Tier, input string, call func() (string, error)) (string, error) {
	start := time.Now()
	out, err := call()
	entry := tastebalance.EstimationLog{
		Timestamp: start,
		Kind:      kind,
		Tier:      tier.String(),
		Input:     preview(input),
		Output:    out,
		Duration:  time.Since(start),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if lerr := l.logger.LogEstimation(entry); lerr != nil {
		slog.Warn("ESTIMATOR: Failed to log estimation", "error", lerr)
	}
	return out, err
}

func (l *Logged) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return l.record(KindPhoto, tier, fmt.Sprintf("<photo %d bytes>", len(photo)), func() (string, error) {
		return l.next.EstimatePhoto(ctx, photo, tier)
	})
}

func (l *Logged) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return l.record(KindText, tier, description, func() (string, error) {
		return l.next.EstimateText(ctx, description, tier)
	})
}

func (l *Logged) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return l.record(KindIngredient, tier, name+" "+meal.FormatWeight(weightG)+"g", func() (string, error) {
		return l.next.EstimateIngredient(ctx, name, weightG, tier)
	})
}

// Instrumented wraps an estimator with spans, call counters and a latency histogram.
type Instrumented struct {
	next     tastebalance.Estimator
	tracer   trace.Tracer
	calls    metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewInstrumented(next tastebalance.Estimator, tracer trace.Tracer, meter metric.Meter) *Instrumented {
	calls, _ := meter.Int64Counter("estimator_calls_total",
		metric.WithDescription("Total number of estimator calls"))
	failures, _ := meter.Int64Counter("estimator_failures_total",
		metric.WithDescription("Total number of estimator calls that failed"))
	latency, _ := meter.Float64Histogram("estimator_latency_seconds",
		metric.WithDescription("Time taken by the estimator to reply in seconds"))
	return &Instrumented{
		next:     next,
		tracer:   tracer,
		calls:    calls,
		failures: failures,
		latency:  latency,
	}
}

func (in *Instrumented) observe(ctx context.Context, kind string, tier tastebalance.Tier, call func(ctx context.Context) (string, error)) (string, error) {
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("tier", tier.String()),
	)
	ctx, span := in.tracer.Start(ctx, "Estimator."+kind, trace.WithAttributes(
		attribute.String("estimator.kind", kind),
		attribute.String("estimator.tier", tier.String()),
	))
	defer span.End()

	in.calls.Add(ctx, 1, attrs)
	start := time.Now()
	out, err := call(ctx)
	in.latency.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		in.failures.Add(ctx, 1, attrs)
		span.SetStatus(codes.Error, "estimator call failed")
		span.RecordError(err)
		return "", err
	}
	span.SetAttributes(attribute.Int("estimator.reply_length", len(out)))
	return out, nil
}

func (in *Instrumented) EstimatePhoto(ctx context.Context, photo []byte, tier tastebalance.Tier) (string, error) {
	return in.observe(ctx, KindPhoto, tier, func(ctx context.Context) (string, error) {
		return in.next.EstimatePhoto(ctx, photo, tier)
	})
}

func (in *Instrumented) EstimateText(ctx context.Context, description string, tier tastebalance.Tier) (string, error) {
	return in.observe(ctx, KindText, tier, func(ctx context.Context) (string, error) {
		return in.next.EstimateText(ctx, description, tier)
	})
}

func (in *Instrumented) EstimateIngredient(ctx context.Context, name string, weightG float64, tier tastebalance.Tier) (string, error) {
	return in.observe(ctx, KindIngredient, tier, func(ctx context.Context) (string, error) {
		return in.next.EstimateIngredient(ctx, name, weightG, tier)
	})
}
