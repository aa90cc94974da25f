// Package training prepares QLoRA finetuning runs: it writes the run plan
// consumed by the Python trainer, checks that the dataset and the Python
// environment manifest are usable, and launches the trainer process.
package training

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"paperslides/internal/config"
	"paperslides/internal/dataset"
	"paperslides/internal/logging"
	"paperslides/internal/manifest"
)

// FinetunePackages must be declared by the Python manifest for the trainer
// to start.
var FinetunePackages = []string{"torch", "transformers", "datasets", "peft", "trl", "bitsandbytes", "accelerate"}

// Plan is the run description handed to the trainer.
type Plan struct {
	CreatedAt time.Time             `yaml:"created_at"`
	Dataset   string                `yaml:"dataset_path"`
	Recipe    config.TrainingConfig `yaml:"recipe"`
}

// NewPlan builds the plan for cfg. The dataset path is resolved inside the
// training data directory.
func NewPlan(cfg *config.Config) *Plan {
	recipe := cfg.Training
	ds := recipe.DatasetFile
	if ds == "" {
		ds = dataset.DefaultFile
	}
	if !filepath.IsAbs(ds) {
		ds = filepath.Join(cfg.Paths.TrainingDir(), ds)
	}
	return &Plan{CreatedAt: time.Now().UTC().Truncate(time.Second), Dataset: ds, Recipe: recipe}
}

// PlanPath is where cfg's plan is written.
func PlanPath(cfg *config.Config) string {
	name := cfg.Training.PlanFile
	if name == "" {
		name = "training_plan.yaml"
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.Paths.TrainingDir(), name)
}

// WritePlan saves p as YAML.
func WritePlan(p *Plan, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	logging.Training("Wrote training plan to %s", path)
	return nil
}

// LoadPlan reads a plan written by WritePlan.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	return &p, nil
}

// Preflight checks everything the trainer needs before it is started: a
// valid recipe, a readable dataset and a manifest declaring the finetuning
// packages and the required pins. m may be nil to use the embedded manifest.
func Preflight(p *Plan, m *manifest.Manifest) error {
	var errs []error
	if err := p.Recipe.Validate(); err != nil {
		errs = append(errs, err)
	}

	if n, err := dataset.Validate(p.Dataset); err != nil {
		errs = append(errs, fmt.Errorf("dataset %s: %w", p.Dataset, err))
	} else {
		logging.Training("Dataset %s has %d examples", filepath.Base(p.Dataset), n)
	}

	if m == nil {
		m = manifest.Default()
	}
	opts := manifest.DefaultValidateOptions()
	opts.RequiredPackages = FinetunePackages
	if err := m.Validate(opts).Err(); err != nil {
		errs = append(errs, fmt.Errorf("requirements manifest: %w", err))
	}

	return errors.Join(errs...)
}
