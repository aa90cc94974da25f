package training

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"mvdan.cc/sh/v3/shell"

	"paperslides/internal/logging"
)

// PlanPlaceholder in the trainer command is replaced with the plan path.
const PlanPlaceholder = "{plan}"

// tailLines is how much trainer output a Result keeps.
const tailLines = 50

// RunRecorder stores run lifecycles, typically in the catalog.
type RunRecorder interface {
	StartRun(ctx context.Context, kind, detail string) (string, error)
	FinishRun(ctx context.Context, id, status, detail string) error
}

// Result describes a finished trainer process.
type Result struct {
	Args       []string
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Tail       []string // last lines of combined output
	Killed     bool
}

// Launcher runs the external trainer.
type Launcher struct {
	Dir      string // working directory, empty for the current one
	Recorder RunRecorder
}

// Command splits command with shell word rules, expanding environment
// variables, and substitutes the plan path.
func Command(command, planPath string) ([]string, error) {
	fields, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trainer command: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New("trainer command is empty")
	}
	for i, f := range fields {
		fields[i] = strings.ReplaceAll(f, PlanPlaceholder, planPath)
	}
	return fields, nil
}

// Launch runs command for the plan at planPath, streaming its output to
// the training log. A non-zero exit is returned as an error together with
// the result.
func (l *Launcher) Launch(ctx context.Context, planPath, command string) (*Result, error) {
	args, err := Command(command, planPath)
	if err != nil {
		return nil, err
	}
	timer := logging.StartTimer(logging.CategoryTraining, "trainer "+args[0])
	defer timer.Stop()

	runID := ""
	if l.Recorder != nil {
		if runID, err = l.Recorder.StartRun(ctx, "finetune", strings.Join(args, " ")); err != nil {
			logging.Get(logging.CategoryTraining).Warn("Failed to record run start: %v", err)
		}
	}

	result := &Result{Args: args, ExitCode: -1}
	runErr := l.run(ctx, result)

	if l.Recorder != nil && runID != "" {
		status, detail := "succeeded", fmt.Sprintf("exit=%d duration=%s", result.ExitCode, result.Duration)
		if runErr != nil {
			status, detail = "failed", runErr.Error()
		}
		// the run context may already be cancelled
		if err := l.Recorder.FinishRun(context.WithoutCancel(ctx), runID, status, detail); err != nil {
			logging.Get(logging.CategoryTraining).Warn("Failed to record run end: %v", err)
		}
	}
	return result, runErr
}

func (l *Launcher) run(ctx context.Context, result *Result) error {
	cmd := exec.CommandContext(ctx, result.Args[0], result.Args[1:]...)
	cmd.Dir = l.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to capture stderr: %w", err)
	}

	logging.Training("Starting trainer: %s", strings.Join(result.Args, " "))
	result.StartedAt = time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start trainer: %w", err)
	}

	tail := &tailBuffer{max: tailLines}
	var wg sync.WaitGroup
	wg.Add(2)
	go stream(&wg, stdout, tail, false)
	go stream(&wg, stderr, tail, true)
	wg.Wait()

	err = cmd.Wait()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Tail = tail.lines()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
		logging.Training("Trainer finished in %s", result.Duration.Round(time.Second))
		return nil
	case ctx.Err() != nil:
		result.Killed = true
		return fmt.Errorf("trainer stopped: %w", ctx.Err())
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		logging.Get(logging.CategoryTraining).Error("Trainer exited with code %d", result.ExitCode)
		return fmt.Errorf("trainer exited with code %d", result.ExitCode)
	default:
		return fmt.Errorf("trainer failed: %w", err)
	}
}

func stream(wg *sync.WaitGroup, r io.Reader, tail *tailBuffer, isErr bool) {
	defer wg.Done()
	log := logging.Get(logging.CategoryTraining)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		tail.add(line)
		if isErr {
			log.Warn("[trainer] %s", line)
		} else {
			log.Info("[trainer] %s", line)
		}
	}
}

// tailBuffer keeps the last max lines written by both output streams.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
