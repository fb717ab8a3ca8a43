package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reviewguard/reviewguard/pkg/logger"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned when a batch trigger arrives while a run
// is executing
var ErrRunInProgress = errors.New("analysis run already in progress")

// OrchestratorState is the batch state machine position
type OrchestratorState string

const (
	StateIdle    OrchestratorState = "idle"
	StateRunning OrchestratorState = "running"
)

// EventPublisher is notified when an analysis run completes
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, summary *BatchSummary) error
}

// Orchestrator drives a full analysis pass: classifier inference per
// review on a worker pool, one behavioral pass over the whole snapshot,
// fusion per review, then an atomic verdict commit.
type Orchestrator struct {
	repo       DetectionRepository
	classifier *Classifier
	analyzer   *Analyzer
	publisher  EventPublisher // nil disables events
	workers    int

	mu          sync.Mutex
	state       OrchestratorState
	lastSummary *BatchSummary
}

// NewOrchestrator creates a batch orchestrator
func NewOrchestrator(repo DetectionRepository, classifier *Classifier, analyzer *Analyzer, publisher EventPublisher, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		repo:       repo,
		classifier: classifier,
		analyzer:   analyzer,
		publisher:  publisher,
		workers:    workers,
		state:      StateIdle,
	}
}

// State returns the current state and the last completed run's summary
func (o *Orchestrator) State() (OrchestratorState, *BatchSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state, o.lastSummary
}

// Run executes one analysis pass over a snapshot of the corpus. The mode
// is an explicit parameter: full runs reconsider every review,
// incremental runs only reviews without a final verdict. Submissions
// arriving after the snapshot query are not part of this run.
//
// Verdicts only escalate. A review already final-fake keeps that label
// even when every layer is quiet on the re-derivation, so repeated runs
// on an unchanged corpus are idempotent and never downgrade.
func (o *Orchestrator) Run(ctx context.Context, mode BatchMode) (*BatchSummary, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.state = StateRunning
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.state = StateIdle
		o.mu.Unlock()
	}()

	started := time.Now()

	snapshot, err := o.snapshot(ctx, mode)
	if err != nil {
		analysisRunsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, err
	}

	logger.WithContext(ctx).Info("analysis run started",
		zap.String("mode", string(mode)),
		zap.Int("snapshot_size", len(snapshot)),
		zap.Bool("classifier_degraded", o.classifier.Degraded()),
	)

	// Classifier inference is independent per review; spread it over the
	// pool and wait for every result before the behavioral pass, which
	// reads classifier verdicts for repeat-offender detection.
	o.classify(snapshot)

	behavior := o.analyzer.Analyze(snapshot)

	for _, review := range snapshot {
		bv := behavior[review.ID]
		review.BehaviorFlags = bv.Flags
		review.SuspiciousScore = bv.SuspiciousScore

		mlVerdict := review.IsFakeML != nil && *review.IsFakeML
		fused := Fuse(review.IsFakeRuleBased, mlVerdict, bv.IsFakeBehavioral)

		final := fused.IsFakeFinal || (review.IsFakeFinal != nil && *review.IsFakeFinal)
		review.IsFakeFinal = &final
		review.LabelSource = LabelSourceBatchFusion

		if mlVerdict {
			fakeVerdictsTotal.WithLabelValues(ProvenanceClassifier).Inc()
		}
		if bv.IsFakeBehavioral {
			fakeVerdictsTotal.WithLabelValues(ProvenanceBehavioral).Inc()
		}
	}

	if err := o.repo.CommitBatchVerdicts(ctx, snapshot); err != nil {
		analysisRunsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("commit batch verdicts: %w", err)
	}

	summary := Summarize(mode, snapshot)
	summary.StartedAt = started
	summary.Duration = time.Since(started).String()

	o.mu.Lock()
	o.lastSummary = summary
	o.mu.Unlock()

	analysisRunsTotal.WithLabelValues(string(mode), "completed").Inc()
	analysisDuration.Observe(time.Since(started).Seconds())

	logger.WithContext(ctx).Info("analysis run completed",
		zap.String("mode", string(mode)),
		zap.Int("total_analyzed", summary.TotalAnalyzed),
		zap.Int("fake_count", summary.FakeCount),
		zap.String("duration", summary.Duration),
	)

	if o.publisher != nil {
		if err := o.publisher.PublishAnalysisCompleted(ctx, summary); err != nil {
			logger.WithContext(ctx).Warn("failed to publish analysis event", zap.Error(err))
		}
	}

	return summary, nil
}

func (o *Orchestrator) snapshot(ctx context.Context, mode BatchMode) ([]*Review, error) {
	switch mode {
	case BatchModeFull:
		return o.repo.SnapshotReviews(ctx)
	case BatchModeIncremental:
		return o.repo.SnapshotUnlabeledReviews(ctx)
	default:
		return nil, fmt.Errorf("unknown batch mode %q", mode)
	}
}

// classify runs the classifier over the snapshot on a fixed worker pool.
// Each review is owned by exactly one worker, so no locking is needed on
// the verdict fields.
func (o *Orchestrator) classify(snapshot []*Review) {
	jobs := make(chan *Review)
	var wg sync.WaitGroup

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for review := range jobs {
				prediction := o.classifier.Predict(review.NormalizedText)
				isFake := prediction.IsFake
				review.IsFakeML = &isFake
				review.MLConfidence = prediction.Confidence
			}
		}()
	}

	for _, review := range snapshot {
		jobs <- review
	}
	close(jobs)
	wg.Wait()
}
