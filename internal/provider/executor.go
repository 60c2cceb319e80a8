// Cascade executor. Walks an ordered list of (provider, model, effort)
// candidates strictly sequentially, stopping at the first structurally valid
// result. Sequential on purpose: providers bill per call, so racing
// attempts in parallel would pay for output that gets discarded.
//
// A failing entry is never retried in place — repeated calls to a provider
// that just failed add latency without improving the odds — the executor
// simply moves to the next cascade entry.
package provider

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-wingman-backend/internal/policy"
)

var (
	// attemptsTotal counts cascade attempts by provider, model, and outcome
	// ("success" or one of the redacted error kinds).
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_attempts_total",
			Help: "Total provider generation attempts by outcome.",
		},
		[]string{"provider", "model", "outcome"},
	)

	// cascadeExhausted counts requests for which every cascade entry failed.
	cascadeExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_cascade_exhausted_total",
			Help: "Requests for which all cascade entries failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(attemptsTotal, cascadeExhausted)
}

// Attempt is the ephemeral diagnostic record for one cascade step. It is
// summarized into the generation event, never persisted individually.
type Attempt struct {
	Index     int
	Provider  string
	Model     string
	Effort    string
	ErrorKind string // empty on the successful attempt
}

// Outcome is the terminal result of one cascade execution. Success=false
// means every entry failed; the caller must not charge quota and should
// degrade to placeholder messaging.
type Outcome struct {
	Success      bool
	Suggestions  []string
	Provider     string
	Model        string
	Effort       string
	InputTokens  int
	OutputTokens int
	Attempts     []Attempt
}

// Executor runs cascades against a registry of constructed clients.
type Executor struct {
	// Clients maps provider names (as used in policy entries) to clients.
	Clients Registry

	// AttemptTimeout bounds each individual provider call.
	AttemptTimeout time.Duration
	// OverallTimeout bounds the whole cascade; a deadline hit mid-cascade is
	// a Failure outcome, never a partial charge.
	OverallTimeout time.Duration
}

// Execute runs the cascade for one request. Attempts are strictly
// sequential; the first entry producing a non-empty, structurally valid
// suggestion array wins.
func (e *Executor) Execute(ctx context.Context, req Request, cascade []policy.Entry) Outcome {
	tr := otel.Tracer("provider/Executor")
	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(attribute.Int("cascade.len", len(cascade))),
	)
	defer span.End()

	overall := e.OverallTimeout
	if overall <= 0 {
		overall = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	out := Outcome{}
	for i, entry := range cascade {
		if ctx.Err() != nil {
			// Overall deadline spent; whatever remains of the cascade is moot.
			out.Attempts = append(out.Attempts, Attempt{
				Index: i, Provider: entry.Provider, Model: entry.Model, Effort: entry.Effort,
				ErrorKind: KindTimeout,
			})
			attemptsTotal.WithLabelValues(entry.Provider, entry.Model, KindTimeout).Inc()
			break
		}

		client, ok := e.Clients.Get(entry.Provider)
		if !ok {
			out.Attempts = append(out.Attempts, Attempt{
				Index: i, Provider: entry.Provider, Model: entry.Model, Effort: entry.Effort,
				ErrorKind: KindHTTP,
			})
			attemptsTotal.WithLabelValues(entry.Provider, entry.Model, "unconfigured").Inc()
			log.Warn().
				Str("provider", entry.Provider).
				Str("model", entry.Model).
				Msg("cascade entry references unconfigured provider")
			continue
		}

		attemptReq := req
		attemptReq.Model = entry.Model
		attemptReq.Effort = entry.Effort

		suggestions, res, kind := e.attempt(ctx, client, attemptReq)
		if kind == "" {
			out.Attempts = append(out.Attempts, Attempt{
				Index: i, Provider: entry.Provider, Model: entry.Model, Effort: entry.Effort,
			})
			attemptsTotal.WithLabelValues(entry.Provider, entry.Model, "success").Inc()
			out.Success = true
			out.Suggestions = suggestions
			out.Provider = entry.Provider
			out.Model = entry.Model
			out.Effort = entry.Effort
			out.InputTokens = res.InputTokens
			out.OutputTokens = res.OutputTokens
			return out
		}

		out.Attempts = append(out.Attempts, Attempt{
			Index: i, Provider: entry.Provider, Model: entry.Model, Effort: entry.Effort,
			ErrorKind: kind,
		})
		attemptsTotal.WithLabelValues(entry.Provider, entry.Model, kind).Inc()
		log.Warn().
			Int("attempt", i).
			Str("provider", entry.Provider).
			Str("model", entry.Model).
			Str("error_kind", kind).
			Msg("generation attempt failed; cascading")
	}

	cascadeExhausted.Inc()
	return out
}

// attempt performs one bounded provider call and validates its output shape.
// It returns the parsed suggestions on success, or a redacted error kind.
func (e *Executor) attempt(ctx context.Context, client Client, req Request) ([]string, *Result, string) {
	attemptTimeout := e.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = 25 * time.Second
	}
	// Never let one attempt consume more than what remains of the overall
	// budget.
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < attemptTimeout {
			attemptTimeout = rem
		}
	}
	actx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	res, err := client.Generate(actx, req)
	if err != nil {
		return nil, nil, ErrorKind(err)
	}
	suggestions := ParseSuggestions(res.Text)
	if len(suggestions) == 0 {
		return nil, nil, KindMalformed
	}
	return suggestions, res, ""
}
