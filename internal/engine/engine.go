// Package engine drives a feature run through the pipeline: a single-threaded
// step scheduler routes the current phase to a step, applies the step's state
// delta, persists, and loops until the run completes, blocks, or fails.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hollowbranch/stagehand/internal/audit"
	"github.com/hollowbranch/stagehand/internal/budget"
	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/config"
	"github.com/hollowbranch/stagehand/internal/ledger"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/specdoc"
	"github.com/hollowbranch/stagehand/internal/state"
	"github.com/hollowbranch/stagehand/internal/validate"
)

// ValidationRunner executes the whole-project validation workflow. It exists
// as a seam so tests can script build and test outcomes.
type ValidationRunner func(ctx context.Context, repoRoot string, featureID string) (validate.Report, error)

// Options configures an engine. Planner, Executor, and Reviewer are required;
// everything else defaults.
type Options struct {
	Planner  collab.Planner
	Executor collab.Executor
	Reviewer collab.Reviewer
	Logger   *zap.Logger
	Auditor  *audit.Logger
	Stdout   io.Writer
	Stderr   io.Writer
	Now      func() time.Time
	Validate ValidationRunner
}

// Engine owns one repository's pipeline runs.
type Engine struct {
	repoRoot string
	cfg      config.Config
	planner  collab.Planner
	executor collab.Executor
	reviewer collab.Reviewer
	logger   *zap.Logger
	auditor  *audit.Logger
	stdout   io.Writer
	stderr   io.Writer
	now      func() time.Time
	validate ValidationRunner
}

// Result reports where a run stopped.
type Result struct {
	State   state.State
	Steps   int
	Blocked bool
	Reason  string
}

// New builds an engine for the repository.
func New(repoRoot string, cfg config.Config, opts Options) (*Engine, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return nil, errors.New("repo root is required")
	}
	if opts.Planner == nil || opts.Executor == nil || opts.Reviewer == nil {
		return nil, errors.New("planner, executor, and reviewer collaborators are required")
	}

	e := &Engine{
		repoRoot: repoRoot,
		cfg:      cfg,
		planner:  opts.Planner,
		executor: opts.Executor,
		reviewer: opts.Reviewer,
		logger:   opts.Logger,
		auditor:  opts.Auditor,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		now:      opts.Now,
		validate: opts.Validate,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.stdout == nil {
		e.stdout = io.Discard
	}
	if e.stderr == nil {
		e.stderr = io.Discard
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.validate == nil {
		e.validate = e.runProjectValidation
	}
	return e, nil
}

// runProjectValidation is the default validation runner backed by the
// profile-driven workflow.
func (e *Engine) runProjectValidation(ctx context.Context, repoRoot string, featureID string) (validate.Report, error) {
	workflow := validate.NewWorkflow(repoRoot, featureID)
	workflow.Warn = e.warn
	return workflow.Run(ctx)
}

// Run drives the feature until it completes, blocks on external input, or
// fails. A persisted run for the same feature resumes where it stopped.
func (e *Engine) Run(ctx context.Context, featureID string, request string) (Result, error) {
	if strings.TrimSpace(featureID) == "" {
		return Result{}, errors.New("feature id is required")
	}

	current, err := e.loadOrCreate(featureID, request)
	if err != nil {
		return Result{}, err
	}
	if err := specdoc.EnsureFeatureDir(e.repoRoot, featureID); err != nil {
		return Result{}, fmt.Errorf("prepare feature directory: %w", err)
	}

	e.auditRunStart(featureID, request)
	e.logger.Info("run starting",
		zap.String("feature", featureID),
		zap.String("phase", current.Phase.String()))

	maxDepth := e.cfg.Engine.MaxRecursionDepth
	if maxDepth <= 0 {
		maxDepth = config.Defaults().Engine.MaxRecursionDepth
	}

	result := Result{State: current}
	for {
		if current.Phase == phase.Done {
			e.auditRunFinish(current, "done")
			result.State = current
			return result, nil
		}
		if current.Phase == phase.Failed {
			e.auditRunFinish(current, "failed")
			result.State = current
			return result, fmt.Errorf("run for feature %s is in phase %s", featureID, phase.Failed)
		}
		if current.Phase == phase.NeedsUserDecision {
			resolved, ok := e.resolveDecisions(current)
			if !ok {
				reason := describeOpenDecisions(current.DecisionPoints)
				e.auditRunFinish(current, "blocked")
				result.State = current
				result.Blocked = true
				result.Reason = reason
				return result, nil
			}
			current = state.Apply(current, resolved)
			if err := state.Save(e.repoRoot, current); err != nil {
				return result, fmt.Errorf("save state: %w", err)
			}
			continue
		}

		if current.RecursionDepth >= maxDepth {
			return e.finishFatal(current, result, "scheduler",
				fmt.Errorf("recursion depth ceiling reached (%d steps)", maxDepth))
		}

		step, err := e.route(current)
		if err != nil {
			return e.finishFatal(current, result, "router", err)
		}
		if err := phase.ValidateEntry(step.name, current.Phase, step.entry); err != nil {
			return e.finishFatal(current, result, step.name, err)
		}

		e.logger.Debug("step entered",
			zap.String("step", step.name),
			zap.String("phase", current.Phase.String()),
			zap.Int("depth", current.RecursionDepth))

		outcome := step.run(ctx, current)
		result.Steps++

		switch outcome.Kind {
		case KindDelta:
			if err := validateHops(current.Phase, outcome); err != nil {
				return e.finishFatal(current, result, step.name, err)
			}
			e.auditHops(current, step.name, outcome)
			outcome.Delta.RecursionDepth = current.RecursionDepth + 1
			current = state.Apply(current, outcome.Delta)
			if err := state.Save(e.repoRoot, current); err != nil {
				return result, fmt.Errorf("save state: %w", err)
			}

		case KindBlocked:
			if err := state.Save(e.repoRoot, current); err != nil {
				return result, fmt.Errorf("save state: %w", err)
			}
			e.emitf("%s: %s", step.name, outcome.Reason)
			e.auditRunFinish(current, "blocked")
			result.State = current
			result.Blocked = true
			result.Reason = outcome.Reason
			return result, nil

		case KindFatal:
			return e.finishFatal(current, result, step.name, outcome.Err)

		default:
			return e.finishFatal(current, result, step.name,
				fmt.Errorf("step returned unknown outcome kind %d", outcome.Kind))
		}
	}
}

// loadOrCreate resumes the persisted run when it belongs to the feature,
// otherwise starts a fresh one with the configured stage ceilings.
func (e *Engine) loadOrCreate(featureID string, request string) (state.State, error) {
	stored, found, err := state.Load(e.repoRoot)
	if err != nil {
		return state.State{}, fmt.Errorf("load state: %w", err)
	}
	if found && stored.FeatureID == featureID {
		return stored, nil
	}

	fresh := state.New(featureID, request)
	if e.cfg.Retry.StageMax > 0 {
		for stage, stageBudget := range fresh.RetryBudget {
			stageBudget.Max = e.cfg.Retry.StageMax
			fresh.RetryBudget[stage] = stageBudget
		}
	}
	return fresh, nil
}

// finishFatal books a structural failure, persists the FAILED state, and
// reports the partial progress alongside the error.
func (e *Engine) finishFatal(current state.State, result Result, step string, failure error) (Result, error) {
	delta := budget.HandleStructural(current, step, failure, e.now())
	failed := state.Apply(current, delta)
	if saveErr := state.Save(e.repoRoot, failed); saveErr != nil {
		e.warn(fmt.Sprintf("save failed state: %v", saveErr))
	}
	e.logger.Error("structural failure",
		zap.String("step", step),
		zap.String("phase", current.Phase.String()),
		zap.Error(failure))
	e.auditRunFinish(failed, "failed")
	result.State = failed
	return result, fmt.Errorf("step %s: %w", step, failure)
}

// validateHops checks every phase edge a step claims to have transited.
// Landing on a recovery phase is always permitted: escalation forces
// NEEDS_USER_DECISION and structural failures force FAILED from any phase.
func validateHops(from phase.Phase, outcome Outcome) error {
	current := from
	for _, hop := range outcome.Via {
		if err := phase.ValidateTransition(current, hop); err != nil {
			return err
		}
		current = hop
	}
	landing := outcome.Delta.Phase
	if landing == "" || landing == current {
		return nil
	}
	if landing == phase.Failed || landing == phase.NeedsUserDecision {
		return nil
	}
	return phase.ValidateTransition(current, landing)
}

// auditHops records every phase edge of an applied outcome.
func (e *Engine) auditHops(current state.State, step string, outcome Outcome) {
	from := current.Phase
	for _, hop := range outcome.Via {
		e.auditPhaseTransition(current.FeatureID, from, hop, step)
		from = hop
	}
	landing := outcome.Delta.Phase
	if landing != "" && landing != from {
		e.auditPhaseTransition(current.FeatureID, from, landing, step)
	}
}

func (e *Engine) auditPhaseTransition(feature string, from phase.Phase, to phase.Phase, step string) {
	e.emitf("phase %s -> %s (%s)", from, to, step)
	e.logger.Info("phase transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("step", step))
	if e.auditor != nil {
		if err := e.auditor.LogPhaseTransition(feature, from.String(), to.String()); err != nil {
			e.warn(fmt.Sprintf("audit phase transition: %v", err))
		}
	}
}

// recoverable books a failure against the owning stage budget. Escalation to
// a decision point is audited here so every step shares one escalation path.
func (e *Engine) recoverable(current state.State, step string, failure error, taskID string) Outcome {
	bo, err := budget.HandleRecoverable(current, step, failure, taskID, e.now())
	if err != nil {
		return Fatal(err)
	}
	e.warn(fmt.Sprintf("%s: %v", step, failure))
	e.logger.Warn("recoverable failure",
		zap.String("step", step),
		zap.String("stage", string(bo.Stage)),
		zap.Int("attempt", bo.Attempt),
		zap.Error(failure))
	if bo.Escalated {
		e.auditEscalation(current.FeatureID, bo, current.Phase)
	}
	return Advance(bo.Delta)
}

// auditEscalation records a budget exhaustion and the decision point it opened.
func (e *Engine) auditEscalation(feature string, bo budget.Outcome, at phase.Phase) {
	e.emitf("budget exhausted for %s stage after %d attempts", bo.Stage, bo.Attempt)
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogBudgetEscalate(feature, string(bo.Stage), bo.Attempt); err != nil {
		e.warn(fmt.Sprintf("audit budget escalate: %v", err))
	}
	for _, decision := range bo.Delta.DecisionPoints {
		if err := e.auditor.LogDecisionOpen(feature, decision.ID, at.String()); err != nil {
			e.warn(fmt.Sprintf("audit decision open: %v", err))
		}
	}
}

func (e *Engine) auditCollabInvoke(feature string, role string, step string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogCollabInvoke(feature, role, step); err != nil {
		e.warn(fmt.Sprintf("audit collab invoke: %v", err))
	}
}

func (e *Engine) auditCollabOutcome(feature string, role string, step string, status string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogCollabOutcome(feature, role, step, status); err != nil {
		e.warn(fmt.Sprintf("audit collab outcome: %v", err))
	}
}

func (e *Engine) auditTaskDispatch(feature string, taskID string, role string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogTaskDispatch(feature, taskID, role); err != nil {
		e.warn(fmt.Sprintf("audit task dispatch: %v", err))
	}
}

func (e *Engine) auditTaskTransition(feature string, taskID string, from string, to string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogTaskTransition(feature, taskID, from, to); err != nil {
		e.warn(fmt.Sprintf("audit task transition: %v", err))
	}
}

// loadDocuments reads the requested feature documents, skipping absent ones.
func (e *Engine) loadDocuments(featureID string, kinds ...specdoc.Kind) map[specdoc.Kind]string {
	docs := make(map[specdoc.Kind]string, len(kinds))
	for _, kind := range kinds {
		content, err := specdoc.Read(e.repoRoot, featureID, kind)
		if err != nil {
			continue
		}
		docs[kind] = content
	}
	return docs
}

// writeDocument persists a feature document, downgrading failures to warnings
// so a document write never kills a run the state store survived.
func (e *Engine) writeDocument(featureID string, kind specdoc.Kind, content string) {
	if content == "" {
		return
	}
	if err := specdoc.Write(e.repoRoot, featureID, kind, content); err != nil {
		e.warn(fmt.Sprintf("write %s document: %v", kind, err))
	}
}

func (e *Engine) auditRunStart(feature string, request string) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogRunStart(feature, request); err != nil {
		e.warn(fmt.Sprintf("audit run start: %v", err))
	}
}

func (e *Engine) auditRunFinish(current state.State, status string) {
	e.logger.Info("run finished",
		zap.String("feature", current.FeatureID),
		zap.String("phase", current.Phase.String()),
		zap.String("status", status))
	if e.auditor == nil {
		return
	}
	if err := e.auditor.LogRunFinish(current.FeatureID, current.Phase.String(), status); err != nil {
		e.warn(fmt.Sprintf("audit run finish: %v", err))
	}
}

// resolveDecisions converts a fully resolved decision set into the recovery
// transition the operator chose. It reports false while any decision point
// remains open.
func (e *Engine) resolveDecisions(current state.State) (state.Delta, bool) {
	open := ledger.OpenDecisions(current.DecisionPoints)
	if len(open) > 0 {
		return state.Delta{}, false
	}
	latest, ok := latestResolvedDecision(current.DecisionPoints)
	if !ok {
		return state.Delta{}, false
	}

	target, reset := recoveryTarget(latest)
	delta := state.Delta{
		Phase: target,
		Messages: []state.Message{{
			Step:    "scheduler",
			Role:    "operator",
			Content: fmt.Sprintf("decision %s resolved as %q, resuming at %s", latest.ID, latest.Resolution, target),
			At:      e.now().UTC(),
		}},
	}
	if reset {
		delta.RetryBudget = map[phase.Stage]state.BudgetDelta{
			latest.Stage: {Current: state.IntPtr(0)},
		}
	}
	return delta, true
}

// latestResolvedDecision returns the most recently created resolved decision.
func latestResolvedDecision(decisions []ledger.DecisionPoint) (ledger.DecisionPoint, bool) {
	var latest ledger.DecisionPoint
	found := false
	for _, decision := range decisions {
		if decision.Status != ledger.DecisionResolved {
			continue
		}
		if !found || decision.CreatedAt.After(latest.CreatedAt) {
			latest = decision
			found = true
		}
	}
	return latest, found
}

// recoveryTarget maps a resolved decision to the phase the run resumes at and
// whether the stage budget resets.
func recoveryTarget(decision ledger.DecisionPoint) (phase.Phase, bool) {
	choice := strings.TrimSpace(strings.ToLower(decision.Resolution))
	switch choice {
	case budget.OptionAbort:
		return phase.Failed, false
	case budget.OptionSkipStep:
		switch decision.Stage {
		case phase.StageSpec:
			return phase.SpecApproved, true
		case phase.StageCode:
			return phase.Validating, true
		default:
			// Validation cannot be skipped without defeating the DONE gate.
			return phase.Failed, false
		}
	default:
		// continue-with-manual-fix and retry-different-approach both return
		// to the stage's working phase with a fresh budget.
		switch decision.Stage {
		case phase.StageSpec:
			return phase.SpecDraft, true
		case phase.StageCode:
			return phase.Executing, true
		default:
			return phase.Validating, true
		}
	}
}

// describeOpenDecisions summarizes what the operator must resolve.
func describeOpenDecisions(decisions []ledger.DecisionPoint) string {
	open := ledger.OpenDecisions(decisions)
	if len(open) == 0 {
		return "awaiting operator decision"
	}
	parts := make([]string, 0, len(open))
	for _, decision := range open {
		parts = append(parts, decision.Description)
	}
	return fmt.Sprintf("awaiting operator decision: %s", strings.Join(parts, "; "))
}

func (e *Engine) emitf(format string, args ...any) {
	fmt.Fprintf(e.stdout, format+"\n", args...)
}

func (e *Engine) warn(message string) {
	if message == "" {
		return
	}
	fmt.Fprintf(e.stderr, "Warning: %s\n", message)
}

// message builds a pipeline message stamped with the engine clock.
func (e *Engine) message(step string, role string, content string) state.Message {
	return state.Message{Step: step, Role: role, Content: content, At: e.now().UTC()}
}
