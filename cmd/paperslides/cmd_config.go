package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"paperslides/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <config> [key...]",
	Short: "Print a config document or a nested value",
	Long: `Reads one YAML document of the config directory by file stem and walks the
given keys, e.g.

  paperslides config get model_config temperature
  paperslides config get llm generation top_p`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConfigGet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
}

// redacted hides the API key.
func redacted(c *config.Config) config.Config {
	out := *c
	if out.LLM.HasAPIKey() {
		out.LLM.APIKey = "***"
	}
	return out
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c := redacted(cfg)
	data, err := yaml.Marshal(&c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	mgr, err := config.NewManager(configDir)
	if err != nil {
		return err
	}
	v, err := mgr.GetNested(args[0], args[1:]...)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return fmt.Errorf("%w (available: %v)", err, mgr.Names())
		}
		return err
	}
	if m, ok := v.(map[string]any); ok {
		data, err := yaml.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}
