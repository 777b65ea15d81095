package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datamind-ai/datamind/internal/metrics"
	"github.com/datamind-ai/datamind/policy"
	"github.com/datamind-ai/datamind/types"
)

// PythonConfig configures the Python sandbox.
type PythonConfig struct {
	// Bin is the interpreter binary, "python3" by default.
	Bin string `yaml:"bin" json:"bin"`
	// Timeout is the wall-clock ceiling per execution.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CPUSeconds is the RLIMIT_CPU ceiling applied inside the worker.
	CPUSeconds int `yaml:"cpu_seconds" json:"cpu_seconds"`
	// MemoryMB is the RLIMIT_AS ceiling applied inside the worker.
	MemoryMB int `yaml:"memory_mb" json:"memory_mb"`
}

// DefaultPythonConfig returns the stock limits.
func DefaultPythonConfig() PythonConfig {
	return PythonConfig{
		Bin:        "python3",
		Timeout:    30 * time.Second,
		CPUSeconds: 10,
		MemoryMB:   512,
	}
}

// PythonExecutor validates and runs Python code in a resource-limited
// subprocess. Safe for concurrent use; each call spawns its own worker.
type PythonExecutor struct {
	cfg       PythonConfig
	limiter   *rate.Limiter
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewPythonExecutor creates a Python sandbox executor. limiter guards
// process-wide subprocess churn and may be shared with other
// executors; collector may be nil.
func NewPythonExecutor(cfg PythonConfig, limiter *rate.Limiter, collector *metrics.Collector, logger *zap.Logger) *PythonExecutor {
	if cfg.Bin == "" {
		cfg.Bin = DefaultPythonConfig().Bin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPythonConfig().Timeout
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(10), 10)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PythonExecutor{
		cfg:       cfg,
		limiter:   limiter,
		collector: collector,
		logger:    logger.With(zap.String("component", "python_sandbox")),
	}
}

// harnessInput is the JSON payload handed to the embedded harness.
type harnessInput struct {
	Code        string                    `json:"code"`
	Datasets    map[string]*types.Dataset `json:"datasets"`
	DatasetName string                    `json:"dataset_name,omitempty"`
	Persist     bool                      `json:"persist"`
	CPUSeconds  int                       `json:"cpu_seconds"`
	MemoryBytes int64                     `json:"memory_bytes"`
}

// harnessOutput mirrors the JSON document the harness writes.
type harnessOutput struct {
	Success  bool                      `json:"success"`
	Stdout   string                    `json:"stdout"`
	Stderr   string                    `json:"stderr"`
	Result   any                       `json:"result"`
	Datasets map[string]*types.Dataset `json:"datasets"`
	Charts   []types.Chart             `json:"charts"`
	Error    *string                   `json:"error"`
}

// Execute runs code under the security policy and resource limits.
// Failures are returned as data in the outcome, never as an error; the
// error return is reserved for caller mistakes (nil request context).
func (e *PythonExecutor) Execute(ctx context.Context, req ExecRequest) *SandboxOutcome {
	start := time.Now()
	outcome := e.execute(ctx, req)
	outcome.Duration = time.Since(start)
	outcome.Backend = "python"
	if e.collector != nil {
		e.collector.ObserveSandbox("python", "subprocess", outcome.Success, outcome.Duration)
	}
	return outcome
}

func (e *PythonExecutor) execute(ctx context.Context, req ExecRequest) *SandboxOutcome {
	// Static policy gate: on violation, no subprocess is ever spawned.
	if err := policy.ValidatePython(req.Code); err != nil {
		if e.collector != nil {
			e.collector.IncPolicyViolation("python")
		}
		e.logger.Info("code rejected by policy",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return failedOutcome("python", err.Error())
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return failedOutcome("python", fmt.Sprintf("execution cancelled before start: %v", err))
	}

	input := harnessInput{
		Code:        req.Code,
		Datasets:    req.Datasets,
		DatasetName: req.DatasetName,
		Persist:     req.PersistDataset,
		CPUSeconds:  e.cfg.CPUSeconds,
		MemoryBytes: int64(e.cfg.MemoryMB) * 1024 * 1024,
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return failedOutcome("python", fmt.Sprintf("failed to encode sandbox payload: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// -I isolates the interpreter from user site-packages and env vars.
	cmd := exec.CommandContext(ctx, e.cfg.Bin, "-I", "-c", pyHarness)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{"MPLBACKEND=Agg", "PYTHONHASHSEED=0"}

	runErr := cmd.Run()

	e.logger.Debug("python execution finished",
		zap.String("session_id", req.SessionID),
		zap.Bool("process_error", runErr != nil))

	if runErr != nil {
		return e.classifyFailure(ctx, runErr, stderr.String())
	}

	var out harnessOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return failedOutcome("python", fmt.Sprintf("sandbox produced unreadable output: %v", err))
	}

	outcome := &SandboxOutcome{
		Success: out.Success,
		Stdout:  out.Stdout,
		Stderr:  out.Stderr,
	}
	if out.Error != nil {
		outcome.Error = *out.Error
	}
	if out.Success {
		outcome.Result = out.Result
		outcome.Charts = out.Charts
		if len(out.Datasets) > 0 {
			outcome.Datasets = out.Datasets
		}
	}
	return outcome
}

// classifyFailure separates resource-limit kills and timeouts from
// plain process failures so the caller can tell them apart.
func (e *PythonExecutor) classifyFailure(ctx context.Context, runErr error, stderr string) *SandboxOutcome {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return failedOutcome("python",
			fmt.Sprintf("execution exceeded the %s wall-clock limit and was terminated", e.cfg.Timeout))
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			switch status.Signal() {
			case syscall.SIGXCPU:
				return failedOutcome("python",
					fmt.Sprintf("execution exceeded the %ds CPU-time limit and was terminated", e.cfg.CPUSeconds))
			case syscall.SIGKILL:
				return failedOutcome("python",
					fmt.Sprintf("execution was killed, most likely for exceeding the %dMB memory limit", e.cfg.MemoryMB))
			}
		}
	}

	msg := "sandbox process failed: " + runErr.Error()
	if stderr != "" {
		msg += "\n" + stderr
	}
	return failedOutcome("python", msg)
}
