package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"paperslides/internal/catalog"
	"paperslides/internal/dataset"
	"paperslides/internal/manifest"
	"paperslides/internal/training"
)

var (
	finetuneSkipPreflight bool
	finetuneCommand       string
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Build the JSONL finetuning dataset from papers and decks",
	Long: `Pairs every processed paper with its most recent slide deck and writes
one {"text": ...} record per pair to the training directory.`,
	Args: cobra.NoArgs,
	RunE: runDataset,
}

var finetuneCmd = &cobra.Command{
	Use:   "finetune",
	Short: "Prepare and launch finetuning runs",
}

var finetunePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Write the training plan and run preflight checks",
	Args:  cobra.NoArgs,
	RunE:  runFinetunePlan,
}

var finetuneRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the external trainer for the current plan",
	Long: `Writes the training plan, checks the dataset and the Python requirements
manifest, then runs training.command with {plan} replaced by the plan path.
The trainer's output is streamed to the training log.`,
	Args: cobra.NoArgs,
	RunE: runFinetuneRun,
}

func init() {
	finetuneRunCmd.Flags().BoolVar(&finetuneSkipPreflight, "skip-preflight", false, "Launch without preflight checks")
	finetuneRunCmd.Flags().StringVar(&finetuneCommand, "command", "", "Trainer command (default: training.command)")

	finetuneCmd.AddCommand(finetunePlanCmd)
	finetuneCmd.AddCommand(finetuneRunCmd)
}

func datasetPath() string {
	name := cfg.Training.DatasetFile
	if name == "" {
		name = dataset.DefaultFile
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Paths.TrainingDir(), name)
}

func runDataset(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	b := dataset.NewBuilder(cfg.Paths.ProcessedDir(), cfg.Paths.SlidesDir(), datasetPath())
	report, err := b.Build(ctx)
	if report != nil {
		heading(out, "Finetuning dataset")
		field(out, "Output", report.Output)
		field(out, "Examples", report.Examples)
		for _, u := range report.Unpaired {
			warn(out, "no deck for %s", u)
		}
		for _, f := range report.Failed {
			failure(out, "%s", f)
		}
	}
	if errors.Is(err, dataset.ErrNoProcessedPapers) {
		warn(out, "No processed papers in %s; run `paperslides extract` first", cfg.Paths.ProcessedDir())
		return nil
	}
	return err
}

// loadManifest reads paths.requirements, falling back to the embedded
// manifest when the file does not exist.
func loadManifest() (*manifest.Manifest, string, error) {
	path := cfg.Paths.Requirements
	if path == "" {
		return manifest.Default(), "", nil
	}
	m, err := manifest.ParseFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Default(), "", nil
	}
	if err != nil {
		return nil, path, err
	}
	return m, path, nil
}

func writePlan(cmd *cobra.Command) (*training.Plan, string, error) {
	plan := training.NewPlan(cfg)
	path := training.PlanPath(cfg)
	if err := training.WritePlan(plan, path); err != nil {
		return nil, "", err
	}
	success(cmd.OutOrStdout(), "Plan written to %s", path)
	return plan, path, nil
}

func preflight(cmd *cobra.Command, plan *training.Plan) error {
	m, _, err := loadManifest()
	if err != nil {
		return err
	}
	if err := training.Preflight(plan, m); err != nil {
		failure(cmd.OutOrStdout(), "Preflight failed")
		return err
	}
	success(cmd.OutOrStdout(), "Preflight passed")
	return nil
}

func runFinetunePlan(cmd *cobra.Command, args []string) error {
	plan, _, err := writePlan(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	field(out, "Base model", plan.Recipe.BaseModel)
	field(out, "Dataset", plan.Dataset)
	field(out, "Output", plan.Recipe.OutputDir)
	return preflight(cmd, plan)
}

func runFinetuneRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	plan, planPath, err := writePlan(cmd)
	if err != nil {
		return err
	}
	if !finetuneSkipPreflight {
		if err := preflight(cmd, plan); err != nil {
			return err
		}
	}
	command := orDefault(finetuneCommand, cfg.Training.Command)

	return withCatalog(func(store *catalog.Store) error {
		l := &training.Launcher{}
		if store != nil {
			l.Recorder = store
		}
		res, err := l.Launch(ctx, planPath, command)
		if res != nil {
			field(out, "Command", strings.Join(res.Args, " "))
			field(out, "Exit code", res.ExitCode)
			field(out, "Duration", res.Duration.Round(time.Millisecond))
			if err != nil && len(res.Tail) > 0 {
				box(out, res.Tail...)
			}
		}
		if err != nil {
			return fmt.Errorf("trainer failed: %w", err)
		}
		success(out, "Training finished")
		return nil
	})
}
