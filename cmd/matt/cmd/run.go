package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run [project]",
	Short: "Run the full pipeline for a project",
	Long: `Run analysis, test generation, script generation and execution for a
project, then write the test report.

The project argument is an id or a name; names are matched fuzzily
against existing projects. With --path a new project is created when no
match exists.

Examples:
  # Run against an existing project by name
  matt run checkout-service

  # Create a project for a local source tree and run it
  matt run checkout-service --path ./services/checkout`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

var (
	runPath   string
	runOutput string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runPath, "path", "",
		"Source path; creates the project when it does not exist")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "",
		"Report file (default: <report.dir>/<project>.<report.format>)")
}

func runPipeline(_ *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, stopping...")
		cancel()
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	project, err := resolveProject(ctx, a, args[0])
	if err != nil {
		return err
	}

	logger.Info("running pipeline", "project_id", project.ID, "name", project.Name)
	start := time.Now()
	result, err := a.orch.RunPipeline(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	report, err := a.orch.GetReport(ctx, project.ID)
	if err != nil {
		return err
	}

	out := runOutput
	if out == "" {
		out = filepath.Join(cfg.Report.Dir,
			fmt.Sprintf("%s.%s", project.Name, cfg.Report.Format))
	}
	if err := report.WriteFile(out); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	printRunSummary(result, report.Stats, out, time.Since(start))
	return nil
}

// resolveProject finds a project by id or fuzzy name match, creating it
// when --path names a source tree and nothing matches.
func resolveProject(ctx context.Context, a *app, arg string) (*core.Project, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return a.orch.GetProject(ctx, core.ProjectID(id))
	}

	projects, err := a.orch.ListProjects(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	if matches := fuzzy.Find(arg, names); len(matches) > 0 {
		p := projects[matches[0].Index]
		if len(matches) > 1 && matches[1].Score == matches[0].Score {
			return nil, fmt.Errorf("project name %q is ambiguous (%s, %s)",
				arg, matches[0].Str, matches[1].Str)
		}
		return p, nil
	}

	if runPath == "" {
		return nil, fmt.Errorf("no project matches %q; pass --path to create one", arg)
	}
	return a.orch.CreateProject(ctx, arg, core.SourceDescriptor{
		Type: "path",
		Path: runPath,
	})
}

func printRunSummary(result *workflow.StageResult, stats core.Stats, reportPath string, elapsed time.Duration) {
	fmt.Printf("Pipeline finished in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  state:    %s\n", result.State)
	fmt.Printf("  tests:    %d total, %d passed, %d failed, %d pending\n",
		stats.Total, stats.Passed, stats.Failed, stats.Pending)
	fmt.Printf("  success:  %d%%\n", stats.SuccessRate)
	fmt.Printf("  report:   %s\n", reportPath)
}
