// Package orchestrator runs collection across registered sources. Each
// source runs on its own goroutine under a wall-clock budget so a slow
// or failing source never blocks its siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grantscout/discovery/internal/adapters"
	"github.com/grantscout/discovery/internal/dedup"
	"github.com/grantscout/discovery/internal/grants"
	"github.com/grantscout/discovery/internal/metrics"
	"github.com/grantscout/discovery/internal/normalize"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrRunInProgress rejects a trigger while another run is active.
	ErrRunInProgress = errors.New("collection run already in progress")
	// ErrUnknownSource rejects a trigger naming an unregistered source.
	ErrUnknownSource = errors.New("unknown source")
)

// Config bounds a collection run.
type Config struct {
	// SourceTimeout is the wall-clock budget per source.
	SourceTimeout time.Duration
	// MinInterval skips sources collected more recently than this
	// unless the run is forced.
	MinInterval time.Duration
	// Topic receives run and grant events. Empty disables publishing.
	Topic string
}

// Orchestrator triggers and tracks collection runs.
type Orchestrator struct {
	registry  *adapters.Registry
	resolver  *dedup.Resolver
	runs      grants.RunStore
	publisher grants.Publisher
	clock     grants.Clock
	ids       grants.IDGenerator
	cfg       Config
	logger    *zap.Logger

	mu     sync.Mutex
	active string // run ID, empty when idle
}

// New constructs an Orchestrator. Publisher may be nil.
func New(
	registry *adapters.Registry,
	resolver *dedup.Resolver,
	runs grants.RunStore,
	publisher grants.Publisher,
	clock grants.Clock,
	ids grants.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		registry:  registry,
		resolver:  resolver,
		runs:      runs,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// TriggerRun starts a collection run over the named sources (all
// registered sources when empty) and returns its ID immediately.
// Collection continues on background goroutines.
func (o *Orchestrator) TriggerRun(ctx context.Context, sources []string, force bool) (string, error) {
	if len(sources) == 0 {
		sources = o.registry.Names()
	}
	if len(sources) == 0 {
		return "", fmt.Errorf("no sources registered")
	}
	selected := make([]grants.SourceAdapter, 0, len(sources))
	for _, name := range sources {
		adapter, ok := o.registry.Get(name)
		if !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		selected = append(selected, adapter)
	}

	runID, err := o.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	o.mu.Lock()
	if o.active != "" {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}
	o.active = runID
	o.mu.Unlock()

	run := grants.CollectionRun{
		ID:           runID,
		Status:       grants.RunStatusRunning,
		ForceRefresh: force,
		Started:      o.clock.Now(),
		Stats:        make(map[string]grants.SourceStats, len(selected)),
	}
	for _, adapter := range selected {
		run.Sources = append(run.Sources, adapter.Name())
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		o.mu.Lock()
		o.active = ""
		o.mu.Unlock()
		return "", fmt.Errorf("create run: %w", err)
	}

	lastRuns := map[string]time.Time{}
	if !force && o.cfg.MinInterval > 0 {
		lastRuns, err = o.runs.LastRunBySource(ctx)
		if err != nil {
			o.logger.Warn("last-run lookup failed, collecting all sources", zap.Error(err))
			lastRuns = map[string]time.Time{}
		}
	}

	// The trigger request may finish long before collection does, so
	// the background work must not inherit its cancellation.
	go o.execute(context.WithoutCancel(ctx), run, selected, lastRuns)

	return runID, nil
}

// RunStatus reports the persisted state of a run.
func (o *Orchestrator) RunStatus(ctx context.Context, runID string) (grants.CollectionRun, error) {
	run, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		return grants.CollectionRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListSources reports each registered source with its last completion
// and the earliest time an unforced run will collect it again.
func (o *Orchestrator) ListSources(ctx context.Context) ([]grants.SourceInfo, error) {
	lastRuns, err := o.runs.LastRunBySource(ctx)
	if err != nil {
		return nil, fmt.Errorf("last run by source: %w", err)
	}
	names := o.registry.Names()
	out := make([]grants.SourceInfo, 0, len(names))
	for _, name := range names {
		info := grants.SourceInfo{Name: name}
		if ts, ok := lastRuns[name]; ok {
			t := ts
			info.LastRun = &t
			if o.cfg.MinInterval > 0 {
				next := t.Add(o.cfg.MinInterval)
				info.NextScheduled = &next
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	run grants.CollectionRun,
	selected []grants.SourceAdapter,
	lastRuns map[string]time.Time,
) {
	started := o.clock.Now()
	metrics.SetActiveSources(len(selected))
	defer metrics.SetActiveSources(0)

	var (
		statsMu sync.Mutex
		wg      sync.WaitGroup
	)
	stats := make(map[string]grants.SourceStats, len(selected))

	for _, adapter := range selected {
		if last, ok := lastRuns[adapter.Name()]; ok && !run.ForceRefresh &&
			o.clock.Now().Sub(last) < o.cfg.MinInterval {
			stats[adapter.Name()] = grants.SourceStats{Status: grants.SourceStatusSkipped}
			o.logger.Info("source skipped, collected recently",
				zap.String("run_id", run.ID),
				zap.String("source", adapter.Name()),
				zap.Time("last_run", last),
			)
			continue
		}

		wg.Add(1)
		go func(adapter grants.SourceAdapter) {
			defer wg.Done()
			s := o.collectSource(ctx, run.ID, adapter)
			statsMu.Lock()
			stats[adapter.Name()] = s
			statsMu.Unlock()
		}(adapter)
	}
	wg.Wait()

	status := grants.RunStatusCompleted
	for _, s := range stats {
		if s.Status == grants.SourceStatusErrored || s.Status == grants.SourceStatusTimedOut || s.Errored > 0 {
			status = grants.RunStatusCompletedWithErrors
			break
		}
	}

	finished := o.clock.Now()
	run.Status = status
	run.Finished = &finished
	run.Stats = stats
	if err := o.runs.FinalizeRun(ctx, run); err != nil {
		o.logger.Error("finalize run failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	o.mu.Lock()
	o.active = ""
	o.mu.Unlock()

	metrics.ObserveRun(string(status), finished.Sub(started))
	o.publish(ctx, "run.finished", map[string]any{
		"run_id":      run.ID,
		"status":      status,
		"started_at":  run.Started.Format(time.RFC3339),
		"finished_at": finished.Format(time.RFC3339),
		"sources":     summarize(stats),
	})
	o.logger.Info("collection run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(status)),
		zap.Duration("duration", finished.Sub(started)),
	)
}

// collectSource runs one adapter to completion under its budget and
// pushes every candidate through normalization and upsert resolution.
func (o *Orchestrator) collectSource(ctx context.Context, runID string, adapter grants.SourceAdapter) (s grants.SourceStats) {
	source := adapter.Name()
	logger := o.logger.With(zap.String("run_id", runID), zap.String("source", source))
	started := o.clock.Now()
	defer func() {
		metrics.ObserveSourceDuration(source, o.clock.Now().Sub(started))
	}()
	defer func() {
		if r := recover(); r != nil {
			s.Status = grants.SourceStatusErrored
			s.Errors = append(s.Errors, fmt.Sprintf("panic: %v", r))
			logger.Error("source adapter panicked", zap.Any("panic", r))
		}
	}()

	srcCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	defer cancel()

	candidates, err := adapter.Produce(srcCtx)
	if err != nil {
		if errors.Is(srcCtx.Err(), context.DeadlineExceeded) {
			s.Status = grants.SourceStatusTimedOut
			s.Errors = append(s.Errors, "source budget exceeded")
			logger.Warn("source timed out", zap.Duration("budget", o.cfg.SourceTimeout))
			return s
		}
		s.Status = grants.SourceStatusErrored
		s.Errors = append(s.Errors, err.Error())
		logger.Error("source produce failed", zap.Error(err))
		return s
	}

	s.Found = len(candidates)
	for _, raw := range candidates {
		grant, err := normalize.Normalize(raw)
		if err != nil {
			var reject *normalize.RejectError
			if errors.As(err, &reject) {
				s.Rejected++
				metrics.ObserveCandidate(source, "rejected")
				logger.Warn("candidate rejected", zap.String("reason", string(reject.Reason)))
				continue
			}
			s.Errored++
			s.Errors = append(s.Errors, err.Error())
			continue
		}

		outcome, stored, err := o.resolver.Resolve(srcCtx, grant)
		if err != nil {
			s.Errored++
			s.Errors = append(s.Errors, err.Error())
			logger.Error("upsert failed", zap.String("fingerprint", grant.Fingerprint), zap.Error(err))
			continue
		}
		metrics.ObserveUpsert(source, string(outcome))
		switch outcome {
		case grants.OutcomeAdded:
			s.Added++
		case grants.OutcomeUpdated:
			s.Updated++
		case grants.OutcomeUnchanged:
			s.Unchanged++
		}
		if outcome != grants.OutcomeUnchanged {
			o.publish(srcCtx, "grant.upserted", map[string]any{
				"run_id":   runID,
				"source":   source,
				"grant_id": stored.ID,
				"outcome":  outcome,
				"title":    stored.Title,
			})
		}
	}

	s.Status = grants.SourceStatusSucceeded
	logger.Info("source collected",
		zap.Int("found", s.Found),
		zap.Int("added", s.Added),
		zap.Int("updated", s.Updated),
		zap.Int("unchanged", s.Unchanged),
		zap.Int("rejected", s.Rejected),
		zap.Int("errored", s.Errored),
	)
	return s
}

func (o *Orchestrator) publish(ctx context.Context, event string, payload map[string]any) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	payload["event"] = event
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

func summarize(stats map[string]grants.SourceStats) map[string]any {
	out := make(map[string]any, len(stats))
	for name, s := range stats {
		out[name] = map[string]any{
			"status":    s.Status,
			"found":     s.Found,
			"added":     s.Added,
			"updated":   s.Updated,
			"unchanged": s.Unchanged,
			"rejected":  s.Rejected,
			"errored":   s.Errored,
		}
	}
	return out
}
