package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tally/internal/answers"
	"github.com/JaimeStill/tally/internal/explorations"
	"github.com/JaimeStill/tally/pkg/lifecycle"
)

const passRetryBase = 100 * time.Millisecond

// PassResult summarizes one aggregation pass.
type PassResult struct {
	ID           uuid.UUID `json:"id"`
	Explorations int       `json:"explorations"`
	Outputs      int       `json:"outputs"`
	Events       int       `json:"events"`
	Failed       []string  `json:"failed,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Duration     string    `json:"duration"`
}

// Aggregator derives calculation outputs from the answer log and folds visit
// events into exploration stats. Each exploration is published independently:
// a failed exploration keeps its previous outputs and is retried on the next pass.
type Aggregator struct {
	log          *answers.Log
	source       explorations.Source
	store        Store
	calcs        *Calculations
	interactions *Interactions
	cfg          Config
	metrics      *metrics
	logger       *slog.Logger
	trigger      chan struct{}

	running sync.Mutex

	mu   sync.RWMutex
	last *PassResult
}

func newAggregator(
	log *answers.Log,
	source explorations.Source,
	store Store,
	calcs *Calculations,
	interactions *Interactions,
	cfg Config,
	m *metrics,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		log:          log,
		source:       source,
		store:        store,
		calcs:        calcs,
		interactions: interactions,
		cfg:          cfg,
		metrics:      m,
		logger:       logger.With("worker", "aggregator"),
		trigger:      make(chan struct{}, 1),
	}
}

// Start runs passes on the configured interval and on Trigger until the
// coordinator shuts down.
func (a *Aggregator) Start(lc *lifecycle.Coordinator) error {
	interval := a.cfg.IntervalDuration()
	a.logger.Info("starting aggregation scheduler", "interval", interval)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.schedule(lc.Context(), interval)
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-done
		a.logger.Info("aggregation scheduler stopped")
	})

	return nil
}

func (a *Aggregator) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-a.trigger:
		}

		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("aggregation pass failed", "error", err)
		}
	}
}

// Trigger requests a pass from the scheduler without waiting for it.
// It returns false when a request is already pending.
func (a *Aggregator) Trigger() bool {
	select {
	case a.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Last returns the result of the most recent completed pass, or nil.
func (a *Aggregator) Last() *PassResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return nil
	}
	r := *a.last
	return &r
}

// Run performs one full pass over every known exploration. Passes within one
// process never overlap.
func (a *Aggregator) Run(ctx context.Context) (*PassResult, error) {
	a.running.Lock()
	defer a.running.Unlock()

	ids, err := a.source.IDs(ctx)
	if err != nil {
		a.metrics.passes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list explorations: %w", err)
	}

	result := &PassResult{
		ID:           uuid.New(),
		Explorations: len(ids),
		StartedAt:    time.Now().UTC(),
	}
	logger := a.logger.With("pass_id", result.ID)
	logger.Info("aggregation pass started", "explorations", len(ids))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(a.cfg.Concurrency)

	for _, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			outputs, events, err := a.aggregateWithRetry(ctx, result.ID, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
				a.metrics.expFailures.Inc()
				logger.Error("exploration aggregation failed", "exp_id", id, "error", err)
				return nil
			}
			result.Outputs += outputs
			result.Events += events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.metrics.passes.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("aggregation pass %s: %w", result.ID, err)
	}

	slices.Sort(result.Failed)
	elapsed := time.Since(result.StartedAt)
	result.Duration = elapsed.String()

	outcome := "success"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	a.metrics.passes.WithLabelValues(outcome).Inc()
	a.metrics.passDuration.Observe(elapsed.Seconds())

	a.mu.Lock()
	a.last = result
	a.mu.Unlock()

	logger.Info("aggregation pass complete",
		"outputs", result.Outputs,
		"events", result.Events,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	r := *result
	return &r, nil
}

func (a *Aggregator) aggregateWithRetry(ctx context.Context, passID uuid.UUID, expID string) (int, int, error) {
	var outputs, events int

	backoff := retry.WithMaxRetries(uint64(a.cfg.MaxPassAttempts-1), retry.NewFibonacci(passRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		outputs, events, err = a.aggregateExploration(ctx, passID, expID)
		if errors.Is(err, ErrConflict) {
			a.logger.Warn("exploration aggregation conflicted", "exp_id", expID, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	return outputs, events, err
}

func (a *Aggregator) aggregateExploration(ctx context.Context, passID uuid.UUID, expID string) (int, int, error) {
	exp, err := a.source.Get(ctx, expID)
	if err != nil {
		return 0, 0, err
	}

	outputs, err := a.publishOutputs(ctx, passID, exp)
	if err != nil {
		return 0, 0, err
	}

	events, err := a.countEvents(ctx, expID)
	if err != nil {
		return outputs, 0, err
	}
	return outputs, events, nil
}

// publishOutputs recomputes every calculation of every answered state of exp
// and replaces the stored outputs in one write.
func (a *Aggregator) publishOutputs(ctx context.Context, passID uuid.UUID, exp *explorations.Exploration) (int, error) {
	triples, err := a.log.Triples(ctx, exp.ID)
	if err != nil {
		return 0, fmt.Errorf("list answer logs: %w", err)
	}

	var order []string
	byState := make(map[string][]*answers.StateAnswers)
	for _, t := range triples {
		sa, err := a.log.ReadAll(ctx, t)
		if err != nil {
			return 0, err
		}
		if sa == nil {
			continue
		}
		if _, seen := byState[t.StateName]; !seen {
			order = append(order, t.StateName)
		}
		byState[t.StateName] = append(byState[t.StateName], sa)
	}

	now := time.Now().UTC()
	outputs := make([]CalculationOutput, 0)

	for _, stateName := range order {
		logs := byState[stateName]

		interactionID, err := exp.InteractionID(stateName)
		if err != nil || interactionID == "" {
			interactionID = logs[len(logs)-1].InteractionID
		}

		calcIDs := append([]string{TopAnswersByCategorization}, a.interactions.CalculationIDs(interactionID)...)
		slices.Sort(calcIDs)
		calcIDs = slices.Compact(calcIDs)

		for _, id := range calcIDs {
			calc, err := a.calcs.Get(id)
			if err != nil {
				return 0, err
			}

			out, err := calc.Calculate(logs)
			if err != nil {
				return 0, fmt.Errorf("calculate %s for %s/%s: %w", id, exp.ID, stateName, err)
			}

			data, err := json.Marshal(out)
			if err != nil {
				return 0, fmt.Errorf("encode %s output: %w", id, err)
			}

			outputs = append(outputs, CalculationOutput{
				ExpID:         exp.ID,
				StateName:     stateName,
				CalculationID: id,
				Output:        data,
				PassID:        passID,
				UpdatedAt:     now,
			})
		}
	}

	if len(outputs) == 0 {
		return 0, nil
	}
	if err := a.store.PutOutputs(ctx, outputs); err != nil {
		return 0, err
	}
	a.metrics.outputs.Add(float64(len(outputs)))
	return len(outputs), nil
}

// countEvents folds new visit events of every version of expID into the stored
// stats, advancing each version's checkpoint so no event is counted twice.
func (a *Aggregator) countEvents(ctx context.Context, expID string) (int, error) {
	versions, err := a.store.EventVersions(ctx, expID)
	if err != nil {
		return 0, fmt.Errorf("list event versions: %w", err)
	}

	total := 0
	for _, version := range versions {
		for {
			st, err := a.store.GetStats(ctx, expID, version)
			if err != nil {
				return total, err
			}
			if st == nil {
				st = newExplorationStats(expID, version)
			}

			events, err := a.store.EventsAfter(ctx, expID, version, st.Checkpoint, a.cfg.EventBatch)
			if err != nil {
				return total, fmt.Errorf("read events: %w", err)
			}
			if len(events) == 0 {
				break
			}

			checkpoint := st.Checkpoint
			for _, e := range events {
				st.apply(e)
			}
			st.LastUpdated = time.Now().UTC()

			if err := a.store.SaveStats(ctx, st, checkpoint); err != nil {
				return total, err
			}
			total += len(events)

			if len(events) < a.cfg.EventBatch {
				break
			}
		}
	}
	return total, nil
}
