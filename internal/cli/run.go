package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hollowbranch/stagehand/internal/audit"
	"github.com/hollowbranch/stagehand/internal/collab"
	"github.com/hollowbranch/stagehand/internal/engine"
	"github.com/hollowbranch/stagehand/internal/logging"
	"github.com/hollowbranch/stagehand/internal/phase"
	"github.com/hollowbranch/stagehand/internal/report"
	"github.com/hollowbranch/stagehand/internal/runlock"
	"github.com/hollowbranch/stagehand/internal/specdoc"
)

// answerSettleDelay gives the editor time to finish writing the answers file
// before the run resumes.
const answerSettleDelay = 250 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Drive a feature request through the pipeline",
	Long: `Run starts or resumes a pipeline for one feature. A free-form request
starts a new run, "#name# request" names the feature explicitly, and "RUN <id>"
resumes a persisted run. The command exits cleanly when the run blocks on open
questions or an operator decision and prints the partial progress either way.`,
	Example: `  stagehand run "#checkout# add a checkout flow with saved carts"
  stagehand run implement rate limiting for the public API
  stagehand run "RUN checkout" --await-answers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, args)
	},
}

func init() {
	runCmd.Flags().String("feature", "", "feature id (default: derived from the request)")
	runCmd.Flags().Int("max-parallel", 0, "cap on concurrently dispatched tasks")
	runCmd.Flags().Int("max-depth", 0, "scheduler recursion ceiling")
	runCmd.Flags().Bool("await-answers", false, "block on open questions and resume when clarifications.md changes")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	repoRoot, err := resolveRepoRoot(cmd)
	if err != nil {
		return err
	}
	request := strings.TrimSpace(strings.Join(args, " "))

	featureID, _ := cmd.Flags().GetString("feature")
	featureID = specdoc.Slugify(featureID)
	if featureID == "" {
		if id, ok := specdoc.ParseRunRequest(request); ok {
			featureID = id
		} else if request != "" {
			featureID, _ = specdoc.ParseFeatureRequest(request)
		}
	}
	if featureID == "" {
		return errors.New("a feature request or --feature id is required")
	}

	cfg, err := loadConfig(cmd, repoRoot)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetInt("max-parallel"); v > 0 {
		cfg.Concurrency.MaxParallelTasks = v
	}
	if v, _ := cmd.Flags().GetInt("max-depth"); v > 0 {
		cfg.Engine.MaxRecursionDepth = v
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	lock, err := runlock.Acquire(repoRoot, featureID)
	if err != nil {
		if errors.Is(err, runlock.ErrLockHeld) {
			if info, ok, readErr := runlock.Read(repoRoot); readErr == nil && ok {
				return fmt.Errorf("another run holds the lock (pid %d, feature %q)", info.PID, info.Feature)
			}
		}
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: release run lock: %v\n", releaseErr)
		}
	}()

	auditor, err := audit.NewLogger(repoRoot, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	roles, err := collab.LoadRoles(repoRoot)
	if err != nil {
		return err
	}
	if cli := strings.TrimSpace(cfg.Workers.CLI); cli != "" {
		if collab.IsValidCLI(cli) {
			roles.DefaultCLI = cli
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: ignoring unknown workers.cli %q\n", cli)
		}
	}
	suite := collab.NewCLI(repoRoot, roles)
	suite.Timeout = cfg.Workers.Timeout()
	suite.Warn = func(message string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", message)
	}

	eng, err := engine.New(repoRoot, cfg, engine.Options{
		Planner:  suite,
		Executor: suite,
		Reviewer: suite,
		Logger:   logger,
		Auditor:  auditor,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awaitAnswers, _ := cmd.Flags().GetBool("await-answers")
	started := time.Now()
	result, runErr := eng.Run(ctx, featureID, request)
	for runErr == nil && result.Blocked && awaitAnswers && result.State.Phase == phase.QuestionsPending {
		if waitErr := waitForAnswers(ctx, repoRoot, featureID, cmd.OutOrStdout()); waitErr != nil {
			runErr = waitErr
			break
		}
		time.Sleep(answerSettleDelay)
		result, runErr = eng.Run(ctx, featureID, request)
	}
	elapsed := time.Since(started)

	outcome := report.OutcomeDone
	reason := ""
	switch {
	case runErr != nil:
		outcome = report.OutcomeFailed
		reason = runErr.Error()
	case result.Blocked:
		outcome = report.OutcomeBlocked
		reason = result.Reason
	}
	if result.State.FeatureID != "" {
		summary := report.Build(repoRoot, result.State, outcome, reason, elapsed)
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
	}
	return runErr
}

// waitForAnswers blocks until the feature's clarifications document is
// created or rewritten, or the context ends.
func waitForAnswers(ctx context.Context, repoRoot string, featureID string, out io.Writer) error {
	dir := specdoc.FeatureDir(repoRoot, featureID)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch feature directory: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := specdoc.Filename(specdoc.KindClarifications)
	fmt.Fprintf(out, "waiting for answers in %s\n", filepath.Join(dir, target))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("answer watcher closed")
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			return nil
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return errors.New("answer watcher closed")
			}
			return fmt.Errorf("watch feature directory: %w", watchErr)
		}
	}
}
