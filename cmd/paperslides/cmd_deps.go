package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paperslides/internal/manifest"
	"paperslides/internal/training"
)

var (
	depsWrite    bool
	depsFinetune bool
	pyName       string
	pyVersion    string
	pyOutput     string
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Inspect the Python requirements manifest",
	Long: `Works on the pinned Python requirements manifest used by the finetuning
trainer. Without a file argument paths.requirements is used, or the built-in
manifest when that file does not exist.`,
}

var depsCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate syntax, duplicates and required pins",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDepsCheck,
}

var depsFmtCmd = &cobra.Command{
	Use:   "fmt [file]",
	Short: "Print the manifest in canonical form",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDepsFmt,
}

var depsPyProjectCmd = &cobra.Command{
	Use:   "pyproject [file]",
	Short: "Render the manifest as pyproject.toml",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDepsPyProject,
}

func init() {
	depsCheckCmd.Flags().BoolVar(&depsFinetune, "finetune", false, "Also require the finetuning packages")
	depsFmtCmd.Flags().BoolVarP(&depsWrite, "write", "w", false, "Rewrite the file in place")
	depsPyProjectCmd.Flags().StringVar(&pyName, "name", "paperslides-finetune", "Project name")
	depsPyProjectCmd.Flags().StringVar(&pyVersion, "version", "0.1.0", "Project version")
	depsPyProjectCmd.Flags().StringVarP(&pyOutput, "output", "o", "", "Write to this file instead of stdout")

	depsCmd.AddCommand(depsCheckCmd)
	depsCmd.AddCommand(depsFmtCmd)
	depsCmd.AddCommand(depsPyProjectCmd)
}

// manifestArg loads the manifest named by args, or the configured one.
func manifestArg(args []string) (*manifest.Manifest, string, error) {
	if len(args) == 1 {
		m, err := manifest.ParseFile(args[0])
		return m, args[0], err
	}
	return loadManifest()
}

func sourceName(path string) string {
	if path == "" {
		return "built-in manifest"
	}
	return path
}

func runDepsCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	m, path, err := manifestArg(args)
	if err != nil {
		return err
	}
	opts := manifest.DefaultValidateOptions()
	if depsFinetune {
		opts.RequiredPackages = training.FinetunePackages
	}
	issues := m.Validate(opts)
	if len(issues) == 0 {
		success(out, "%s: %d requirements, no issues", sourceName(path), len(m.Requirements()))
		return nil
	}
	for _, is := range issues {
		failure(out, "%s", is)
	}
	return fmt.Errorf("%s: %d issues", sourceName(path), len(issues))
}

func runDepsFmt(cmd *cobra.Command, args []string) error {
	m, path, err := manifestArg(args)
	if err != nil {
		return err
	}
	formatted := m.Format()
	if depsWrite {
		if path == "" {
			return fmt.Errorf("--write needs a manifest file")
		}
		if err := formatted.WriteFile(path); err != nil {
			return err
		}
		success(cmd.OutOrStdout(), "Formatted %s", path)
		return nil
	}
	_, err = formatted.WriteTo(cmd.OutOrStdout())
	return err
}

func runDepsPyProject(cmd *cobra.Command, args []string) error {
	m, _, err := manifestArg(args)
	if err != nil {
		return err
	}
	data, err := m.PyProject(pyName, pyVersion)
	if err != nil {
		return err
	}
	if pyOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(pyOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", pyOutput, err)
	}
	success(cmd.OutOrStdout(), "Wrote %s", pyOutput)
	return nil
}
