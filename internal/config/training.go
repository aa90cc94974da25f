package config

import (
	"errors"
	"fmt"
)

// TrainingConfig describes a QLoRA finetuning run. The run itself is
// executed by an external trainer; paperslides prepares the plan.
type TrainingConfig struct {
	BaseModel   string `yaml:"base_model"`
	DatasetFile string `yaml:"dataset_file"` // inside Paths.TrainingDir()
	OutputDir   string `yaml:"output_dir"`
	PlanFile    string `yaml:"plan_file"` // inside Paths.TrainingDir()
	Command     string `yaml:"command"`   // {plan} is replaced with the plan path

	Epochs               int     `yaml:"num_train_epochs"`
	BatchSize            int     `yaml:"batch_size"`
	GradientAccumulation int     `yaml:"gradient_accumulation_steps"`
	Optimizer            string  `yaml:"optim"`
	SaveSteps            int     `yaml:"save_steps"`
	LoggingSteps         int     `yaml:"logging_steps"`
	LearningRate         float64 `yaml:"learning_rate"`
	WeightDecay          float64 `yaml:"weight_decay"`
	FP16                 bool    `yaml:"fp16"`
	BF16                 bool    `yaml:"bf16"`
	MaxGradNorm          float64 `yaml:"max_grad_norm"`
	MaxSteps             int     `yaml:"max_steps"`
	WarmupRatio          float64 `yaml:"warmup_ratio"`
	GroupByLength        bool    `yaml:"group_by_length"`
	LRScheduler          string  `yaml:"lr_scheduler_type"`
	MaxSeqLength         int     `yaml:"max_seq_length"`
	Packing              bool    `yaml:"packing"`
	TextField            string  `yaml:"dataset_text_field"`

	LoRA         LoRAConfig         `yaml:"lora"`
	Quantization QuantizationConfig `yaml:"quantization"`
}

// LoRAConfig holds adapter parameters.
type LoRAConfig struct {
	R        int     `yaml:"r"`
	Alpha    int     `yaml:"alpha"`
	Dropout  float64 `yaml:"dropout"`
	Bias     string  `yaml:"bias"`
	TaskType string  `yaml:"task_type"`
}

// QuantizationConfig holds 4-bit loading parameters.
type QuantizationConfig struct {
	LoadIn4Bit   bool   `yaml:"load_in_4bit"`
	QuantType    string `yaml:"quant_type"`
	ComputeDType string `yaml:"compute_dtype"`
	DoubleQuant  bool   `yaml:"double_quant"`
}

// DefaultTrainingConfig returns the gemma-2b QLoRA recipe.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		BaseModel:            "google/gemma-2b-it",
		DatasetFile:          "training_data.jsonl",
		OutputDir:            "results/finetuned_adapter",
		PlanFile:             "training_plan.yaml",
		Command:              "python finetune.py --plan {plan}",
		Epochs:               1,
		BatchSize:            1,
		GradientAccumulation: 4,
		Optimizer:            "paged_adamw_32bit",
		SaveSteps:            25,
		LoggingSteps:         5,
		LearningRate:         2e-4,
		WeightDecay:          0.001,
		BF16:                 true,
		MaxGradNorm:          0.3,
		MaxSteps:             -1,
		WarmupRatio:          0.03,
		GroupByLength:        true,
		LRScheduler:          "constant",
		MaxSeqLength:         2048,
		TextField:            "text",
		LoRA: LoRAConfig{
			R:        64,
			Alpha:    16,
			Dropout:  0.1,
			Bias:     "none",
			TaskType: "CAUSAL_LM",
		},
		Quantization: QuantizationConfig{
			LoadIn4Bit:   true,
			QuantType:    "nf4",
			ComputeDType: "bfloat16",
		},
	}
}

// Validate checks the training recipe.
func (t TrainingConfig) Validate() error {
	var errs []error
	if t.BaseModel == "" {
		errs = append(errs, errors.New("training.base_model is required"))
	}
	if t.Epochs <= 0 {
		errs = append(errs, errors.New("training.num_train_epochs must be positive"))
	}
	if t.BatchSize <= 0 || t.GradientAccumulation <= 0 {
		errs = append(errs, errors.New("training.batch_size and gradient_accumulation_steps must be positive"))
	}
	if t.LearningRate <= 0 {
		errs = append(errs, errors.New("training.learning_rate must be positive"))
	}
	if t.FP16 && t.BF16 {
		errs = append(errs, errors.New("training.fp16 and training.bf16 are mutually exclusive"))
	}
	if t.LoRA.R <= 0 || t.LoRA.Alpha <= 0 {
		errs = append(errs, errors.New("training.lora.r and training.lora.alpha must be positive"))
	}
	if t.LoRA.Dropout < 0 || t.LoRA.Dropout >= 1 {
		errs = append(errs, fmt.Errorf("training.lora.dropout must be within [0, 1), got %v", t.LoRA.Dropout))
	}
	if t.MaxSeqLength <= 0 {
		errs = append(errs, errors.New("training.max_seq_length must be positive"))
	}
	return errors.Join(errs...)
}
