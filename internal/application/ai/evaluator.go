package ai

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	domai "github.com/bryanwahyu/paperscore/internal/domain/ai"
	"github.com/bryanwahyu/paperscore/internal/domain/review"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
	"github.com/bryanwahyu/paperscore/internal/telemetry"
)

const agentMaxTokens = 3000

// ProgressFunc is called after each agent resolves.
type ProgressFunc func(done, total int)

// Evaluator runs the agent set concurrently. One agent failing never aborts
// the others: it is replaced by a neutral result.
type Evaluator struct {
	Client  domai.Client
	Logger  *zap.Logger
	Metrics *telemetry.Metrics
	// Timeout bounds each agent call. Zero means no per-agent limit.
	Timeout time.Duration
}

func NewEvaluator(client domai.Client, logger *zap.Logger, metrics *telemetry.Metrics, timeout time.Duration) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{Client: client, Logger: logger, Metrics: metrics, Timeout: timeout}
}

// Evaluate waits for every agent and returns one result per agent in the
// order of agents.
func (e *Evaluator) Evaluate(ctx context.Context, agents []Agent, in AgentInput, progress ProgressFunc) []review.AgentResult {
	results := make([]review.AgentResult, len(agents))

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	for i, a := range agents {
		g.Go(func() error {
			res := e.runAgent(ctx, a, in)
			results[i] = res
			e.Metrics.ObserveAgent(a.ID, res.Degraded())

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(agents))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Evaluator) runAgent(ctx context.Context, a Agent, in AgentInput) (res review.AgentResult) {
	log := e.Logger.With(zap.String("agent_id", a.ID))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("agent panicked", zap.Any("panic", r))
			res = review.NeutralResult(a.ID, a.Name, a.Weight, panicError{r})
		}
	}()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	comp, err := e.Client.Complete(ctx, domai.Request{
		Class:     a.Class,
		System:    a.System,
		User:      a.Build(in),
		MaxTokens: agentMaxTokens,
		JSON:      true,
	})
	parsed := parseCompletion(comp, err, agentSchema,
		func(r prompt.AgentResponse) review.AgentResult { return toAgentResult(a, r) },
		review.AgentResult{})
	if parsed.IsDegraded() {
		log.Warn("agent degraded to neutral score", zap.Error(parsed.Err()), zap.Duration("took", time.Since(start)))
		return review.NeutralResult(a.ID, a.Name, a.Weight, parsed.Err())
	}

	out := parsed.Value()
	log.Info("agent finished", zap.Int("score", out.Score), zap.Int("issues", len(out.Issues)),
		zap.Duration("took", time.Since(start)))
	return out
}
