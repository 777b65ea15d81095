package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/datamind-ai/datamind/types"
)

// RBackend is one R runtime the hybrid executor can route to.
type RBackend interface {
	// Name identifies the backend in logs and aggregated errors.
	Name() string
	// Available probes whether the backend can execute right now.
	Available() error
	// Execute runs already-validated code. An error return means the
	// backend itself failed and the router should fall through; user
	// code failures come back inside the outcome.
	Execute(ctx context.Context, req ExecRequest) (*SandboxOutcome, error)
}

// RConfig configures the R runtimes.
type RConfig struct {
	// ScriptBin is the native interpreter binary, "Rscript" by default.
	ScriptBin string `yaml:"script_bin" json:"script_bin"`
	// Timeout is the wall-clock ceiling per execution.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CPUSeconds is the CPU-time ceiling applied via setTimeLimit.
	CPUSeconds int `yaml:"cpu_seconds" json:"cpu_seconds"`
	// MemoryMB is the address-space ceiling applied via ulimit.
	MemoryMB int `yaml:"memory_mb" json:"memory_mb"`
	// WebREnabled turns the lightweight webR backend on.
	WebREnabled bool `yaml:"webr_enabled" json:"webr_enabled"`
	// WebRRunner is the Node.js entry script of the webR bundle.
	WebRRunner string `yaml:"webr_runner" json:"webr_runner"`
	// ProbeTTL bounds how long availability probe results are cached.
	ProbeTTL time.Duration `yaml:"probe_ttl" json:"probe_ttl"`
}

// DefaultRConfig returns the stock limits with webR disabled.
func DefaultRConfig() RConfig {
	return RConfig{
		ScriptBin:  "Rscript",
		Timeout:    60 * time.Second,
		CPUSeconds: 30,
		MemoryMB:   1024,
		ProbeTTL:   5 * time.Minute,
	}
}

// nativeRBackend executes through an Rscript subprocess with the same
// capture discipline as the Python sandbox.
type nativeRBackend struct {
	cfg    RConfig
	logger *zap.Logger
}

// NewNativeRBackend creates the native Rscript backend.
func NewNativeRBackend(cfg RConfig, logger *zap.Logger) RBackend {
	if cfg.ScriptBin == "" {
		cfg.ScriptBin = DefaultRConfig().ScriptBin
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRConfig().Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &nativeRBackend{cfg: cfg, logger: logger.With(zap.String("component", "r_native"))}
}

func (b *nativeRBackend) Name() string { return "native_r" }

func (b *nativeRBackend) Available() error {
	if _, err := exec.LookPath(b.cfg.ScriptBin); err != nil {
		return fmt.Errorf("%s not installed: %w", b.cfg.ScriptBin, err)
	}
	return nil
}

func (b *nativeRBackend) Execute(ctx context.Context, req ExecRequest) (*SandboxOutcome, error) {
	payload, err := json.Marshal(harnessInput{
		Code:        req.Code,
		Datasets:    req.Datasets,
		DatasetName: req.DatasetName,
		Persist:     req.PersistDataset,
		CPUSeconds:  b.cfg.CPUSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sandbox payload: %w", err)
	}

	dir, err := os.MkdirTemp("", "datamind-r-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	script := filepath.Join(dir, "harness.R")
	if err := os.WriteFile(script, []byte(rHarness), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write harness: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	// The address-space ceiling has to be in place before R starts, so
	// the process is launched through the shell's ulimit.
	shellCmd := fmt.Sprintf("ulimit -v %d; exec %s --vanilla %s",
		b.cfg.MemoryMB*1024, b.cfg.ScriptBin, script)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", shellCmd)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failedOutcome(b.Name(),
				fmt.Sprintf("execution exceeded the %s wall-clock limit and was terminated", b.cfg.Timeout)), nil
		}
		return nil, fmt.Errorf("Rscript failed: %w: %s", err, firstLine(stderr.String()))
	}

	return decodeROutcome(b.Name(), stdout.Bytes())
}

// webRBackend executes through a Node.js webR bundle: a lightweight
// WebAssembly R runtime that needs no system R installation but has no
// access to Bioconductor packages.
type webRBackend struct {
	cfg    RConfig
	logger *zap.Logger
}

// NewWebRBackend creates the lightweight webR backend.
func NewWebRBackend(cfg RConfig, logger *zap.Logger) RBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &webRBackend{cfg: cfg, logger: logger.With(zap.String("component", "r_webr"))}
}

func (b *webRBackend) Name() string { return "webr" }

func (b *webRBackend) Available() error {
	if !b.cfg.WebREnabled {
		return errors.New("webr backend not enabled")
	}
	if b.cfg.WebRRunner == "" {
		return errors.New("webr runner script not configured")
	}
	if _, err := os.Stat(b.cfg.WebRRunner); err != nil {
		return fmt.Errorf("webr runner script missing: %w", err)
	}
	if _, err := exec.LookPath("node"); err != nil {
		return fmt.Errorf("node not installed: %w", err)
	}
	return nil
}

func (b *webRBackend) Execute(ctx context.Context, req ExecRequest) (*SandboxOutcome, error) {
	payload, err := json.Marshal(harnessInput{
		Code:        req.Code,
		Datasets:    req.Datasets,
		DatasetName: req.DatasetName,
		Persist:     req.PersistDataset,
		CPUSeconds:  b.cfg.CPUSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sandbox payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "node", b.cfg.WebRRunner)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failedOutcome(b.Name(),
				fmt.Sprintf("execution exceeded the %s wall-clock limit and was terminated", b.cfg.Timeout)), nil
		}
		return nil, fmt.Errorf("webr runner failed: %w: %s", err, firstLine(stderr.String()))
	}

	return decodeROutcome(b.Name(), stdout.Bytes())
}

// decodeROutcome parses the harness JSON shared by both R backends.
func decodeROutcome(backend string, data []byte) (*SandboxOutcome, error) {
	var out harnessOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("backend produced unreadable output: %w", err)
	}
	outcome := &SandboxOutcome{
		Success: out.Success,
		Stdout:  out.Stdout,
		Stderr:  out.Stderr,
		Backend: backend,
	}
	if out.Error != nil {
		outcome.Error = *out.Error
	}
	if out.Success {
		outcome.Result = out.Result
		outcome.Charts = out.Charts
		if len(out.Datasets) > 0 {
			outcome.Datasets = make(map[string]*types.Dataset, len(out.Datasets))
			for name, ds := range out.Datasets {
				outcome.Datasets[name] = ds
			}
		}
	}
	return outcome, nil
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
