package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/osvaldoandrade/gradeq/internal/aggregator"
	"github.com/osvaldoandrade/gradeq/internal/collab"
	"github.com/osvaldoandrade/gradeq/internal/orchestrator"
	"github.com/osvaldoandrade/gradeq/internal/probe"
	"github.com/osvaldoandrade/gradeq/internal/providers"
	"github.com/osvaldoandrade/gradeq/internal/ratelimit"
	"github.com/osvaldoandrade/gradeq/internal/runner"
	"github.com/osvaldoandrade/gradeq/pkg/app"
	"github.com/osvaldoandrade/gradeq/pkg/config"
	"github.com/osvaldoandrade/gradeq/pkg/domain"
	"github.com/osvaldoandrade/gradeq/pkg/persistence"

	_ "github.com/osvaldoandrade/gradeq/pkg/persistence/memory"
	_ "github.com/osvaldoandrade/gradeq/pkg/persistence/redis"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// rosterEntry is one student repository in the class roster file.
type rosterEntry struct {
	ID      string `yaml:"id"`
	Student string `yaml:"student"`
	Repo    string `yaml:"repo"`
}

type rosterFile struct {
	RunID        string        `yaml:"runId"`
	Requirements string        `yaml:"requirements"` // path to the assignment requirements document
	Submissions  []rosterEntry `yaml:"submissions"`
}

func loadRoster(path string) (*rosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r rosterFile
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(r.Submissions) == 0 {
		return nil, errors.New("roster has no submissions")
	}
	for i := range r.Submissions {
		if strings.TrimSpace(r.Submissions[i].Repo) == "" {
			return nil, fmt.Errorf("roster entry %d has no repo", i)
		}
		if strings.TrimSpace(r.Submissions[i].ID) == "" {
			r.Submissions[i].ID = uuid.NewString()
		}
	}
	if strings.TrimSpace(r.RunID) == "" {
		r.RunID = uuid.NewString()
	}
	return &r, nil
}

func buildStore(cfg *config.Config) (persistence.Plugin, error) {
	pc := persistence.ProviderConfig{Type: cfg.ResultStore}
	if cfg.ResultStore == "redis" {
		raw, err := json.Marshal(map[string]string{"addr": cfg.RedisAddr, "password": cfg.RedisPassword})
		if err != nil {
			return nil, err
		}
		pc.Config = raw
	}
	return persistence.NewPersistence(pc)
}

func main() {
	cfgPath := getenv("GRADEQ_CONFIG_PATH", "")
	ui := newUI()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	root := &cobra.Command{
		Use:   "gradeq",
		Short: "gradeQ CLI",
		Long:  "gradeQ grades batches of student web applications by cloning, building, starting and probing each one.",
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Path to gradeQ config file")

	root.AddCommand(runCmd(&cfgPath, ui))
	root.AddCommand(summaryCmd(&cfgPath, ui))
	root.AddCommand(serveCmd(&cfgPath, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func runCmd(cfgPath *string, ui *ui) *cobra.Command {
	var (
		rosterPath string
		reqPath    string
		runID      string
		reportDir  string
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Grade a roster of student repositories",
		Example: "gradeq run --roster class.yaml --requirements assignment.md",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigOptional(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := app.NewLogger(cfg)

			interactive := term.IsTerminal(int(os.Stdout.Fd()))

			var spin *spinner.Spinner
			if interactive {
				spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond)
				spin.Suffix = " Preparing run..."
				spin.Start()
			}

			roster, err := loadRoster(rosterPath)
			if err != nil {
				stopSpinner(spin)
				return err
			}
			if runID != "" {
				roster.RunID = runID
			}
			if reqPath != "" {
				roster.Requirements = reqPath
			}

			exp := domain.Expectations{}
			if roster.Requirements != "" {
				doc, err := os.ReadFile(roster.Requirements)
				if err != nil {
					stopSpinner(spin)
					return fmt.Errorf("requirements document: %w", err)
				}
				exp, err = collab.NewRequirementsParser().Parse(string(doc))
				if err != nil {
					stopSpinner(spin)
					return fmt.Errorf("parse requirements: %w", err)
				}
			}

			store, err := buildStore(cfg)
			if err != nil {
				stopSpinner(spin)
				return err
			}
			defer store.Close()

			subs := make([]*domain.Submission, 0, len(roster.Submissions))
			for _, e := range roster.Submissions {
				subs = append(subs, &domain.Submission{
					ID:        e.ID,
					Student:   e.Student,
					RepoURL:   e.Repo,
					Status:    domain.StatusPending,
					CreatedAt: time.Now().UTC(),
				})
			}

			cloner := collab.NewGitCloner(logger)
			builder := collab.NewNPMBuilder(logger, cfg.BasePort)
			chain := probe.DefaultChain(cfg.PrimaryEngine, *cfg.FallbackEnabled, logger)
			agg := aggregator.New()

			var orch *orchestrator.Orchestrator
			sink := func(e domain.ProgressEvent) { orch.Publish(e) }
			run := runner.New(runner.Config{
				WorkspaceDir: cfg.WorkspaceDir,
				CloneTimeout: time.Duration(cfg.CloneTimeoutSec) * time.Second,
				BuildTimeout: time.Duration(cfg.BuildTimeoutSec) * time.Second,
				StartTimeout: time.Duration(cfg.StartTimeoutSec) * time.Second,
				TestTimeout:  time.Duration(cfg.TestTimeoutSec) * time.Second,
			}, cloner, builder, chain, sink, logger)
			orch = orchestrator.New(orchestrator.Config{
				MaxConcurrent:    cfg.MaxConcurrent,
				DynamicSizing:    cfg.DynamicSizing,
				MinBatchSize:     cfg.MinBatchSize,
				MaxBatchSize:     cfg.MaxBatchSize,
				MemHighWatermark: cfg.MemHighWatermark,
				WorkspaceDir:     cfg.WorkspaceDir,
				StartBucket:      ratelimit.Bucket{RatePerSec: cfg.StartRatePerSec, Burst: 1},
			}, run, agg, nil, logger)

			stopSpinner(spin)
			fmt.Printf("%s run %s: %d submissions, engine %s\n",
				ui.title("gradeQ"), roster.RunID, len(subs), cfg.PrimaryEngine)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var bar *progressbar.ProgressBar
			if interactive {
				bar = progressbar.NewOptions(len(subs),
					progressbar.OptionSetDescription("Grading submissions"),
					progressbar.OptionSetWidth(18),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			done := make(map[string]bool, len(subs))
			for e := range orch.Process(ctx, subs, exp) {
				terminal := e.Status == "failed" ||
					(e.Stage == domain.StageProbe && e.Status == "completed")
				if terminal && !done[e.SubmissionID] {
					done[e.SubmissionID] = true
					if bar != nil {
						_ = bar.Add(1)
					}
				}
			}
			if ctx.Err() != nil {
				fmt.Println(ui.warn("[WARN]"), "run interrupted, partial results follow")
			}

			saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer saveCancel()
			repo := store.Results()
			for _, res := range agg.Results() {
				if err := repo.SaveResult(saveCtx, roster.RunID, res); err != nil {
					logger.Warn("persist result failed", "submission", res.SubmissionID, "err", err)
				}
			}
			if err := repo.SaveState(saveCtx, roster.RunID, orch.State()); err != nil {
				logger.Warn("persist run state failed", "err", err)
			}

			printRun(ui, agg)

			if reportDir != "" {
				ref, err := writeReport(saveCtx, reportDir, roster.RunID, agg)
				if err != nil {
					return err
				}
				fmt.Println(ui.info("[INFO]"), "report written to", ref)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rosterPath, "roster", "", "Roster YAML file (required)")
	cmd.Flags().StringVar(&reqPath, "requirements", "", "Assignment requirements document (overrides roster)")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (defaults to roster or a new UUID)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory to write the JSON run report into")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func summaryCmd(cfgPath *string, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "summary <run-id>",
		Short:   "Print the stored summary of a past run",
		Args:    cobra.ExactArgs(1),
		Example: "gradeq summary 6f1c0c1e",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigOptional(*cfgPath)
			if err != nil {
				return err
			}
			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var spin *spinner.Spinner
			if term.IsTerminal(int(os.Stdout.Fd())) {
				spin = spinner.New(spinner.CharSets[14], 120*time.Millisecond)
				spin.Suffix = " Fetching results..."
				spin.Start()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			results, err := store.Results().ListResults(ctx, args[0])
			stopSpinner(spin)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				return fmt.Errorf("no results stored for run %s", args[0])
			}

			agg := aggregator.New()
			for _, r := range results {
				if err := agg.Put(r); err != nil {
					return err
				}
			}
			printRun(ui, agg)
			return nil
		},
	}
	return cmd
}

func serveCmd(cfgPath *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the report API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigOptional(*cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			application, err := app.NewApplication(cfg)
			if err != nil {
				return err
			}
			app.SetupMappings(application)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           application.Engine,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()
			fmt.Println(ui.info("[INFO]"), "report API listening on", srv.Addr)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
			_ = application.Close()
			if application.TracingShutdown != nil {
				_ = application.TracingShutdown(shutCtx)
			}
			return nil
		},
	}
}

func printRun(ui *ui, agg *aggregator.Aggregator) {
	results := agg.Results()
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	fmt.Println()
	for _, r := range results {
		label := statusLabel(ui, r)
		name := r.Student
		if name == "" {
			name = r.SubmissionID
		}
		line := fmt.Sprintf("%s %-28s score %3d", label, name, r.Score)
		if r.Strategy != "" {
			line += ui.dim(fmt.Sprintf("  via %s", r.Strategy))
		}
		fmt.Println(line)
		if r.Cause != "" {
			fmt.Println("    ", ui.dim(r.Cause))
		}
	}

	sum := agg.Summary()
	fmt.Println()
	fmt.Printf("%s %d graded | %s %d  %s %d  %s %d | mean score %.1f\n",
		ui.title("Summary:"), sum.Total,
		ui.ok("succeeded"), sum.ByStatus[domain.StatusSucceeded],
		ui.warn("degraded"), sum.ByStatus[domain.StatusDegraded],
		ui.err("failed"), sum.ByStatus[domain.StatusFailed],
		sum.MeanScore,
	)
}

func statusLabel(ui *ui, r *domain.FunctionalResult) string {
	switch r.TerminalStatus() {
	case domain.StatusSucceeded:
		return ui.ok("[PASS]")
	case domain.StatusDegraded:
		return ui.warn("[WARN]")
	default:
		return ui.err("[FAIL]")
	}
}

func writeReport(ctx context.Context, dir, runID string, agg *aggregator.Aggregator) (string, error) {
	report := struct {
		RunID   string                     `json:"runId"`
		Summary domain.RunSummary          `json:"summary"`
		Results []*domain.FunctionalResult `json:"results"`
	}{RunID: runID, Summary: agg.Summary(), Results: agg.Results()}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return providers.NewLocalArtifactStore(dir).Put(ctx, runID+".json", data)
}

func stopSpinner(s *spinner.Spinner) {
	if s != nil {
		s.Stop()
	}
}
