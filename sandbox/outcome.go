package sandbox

import (
	"time"

	"github.com/datamind-ai/datamind/types"
)

// ExecRequest describes one sandbox execution call.
type ExecRequest struct {
	// Code is the untrusted source to run.
	Code string
	// SessionID identifies the owning session, for logging/correlation.
	SessionID string
	// Datasets is the session's full dataset mapping, passed by value
	// into the sandbox. The executor never mutates it.
	Datasets map[string]*types.Dataset
	// DatasetName, when set, binds that dataset to the `df` variable
	// inside the execution namespace.
	DatasetName string
	// PersistDataset requests that in-place mutations of the bound
	// `df` be returned so the caller can overwrite the session's copy.
	// Without it the bound dataset is left untouched no matter what
	// the code does to `df`. Derived frames published via `output_df`
	// are an independent output channel and ignore this flag.
	PersistDataset bool
}

// SandboxOutcome is the complete result of one execution call. Either
// the whole outcome is valid, or Success is false and Datasets is empty
// — a failed call never reports partial dataset mutations.
type SandboxOutcome struct {
	Success bool `json:"success"`
	// Stdout/Stderr are the streams captured from the user code.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	// Result is the scalar/structured `result` variable, if the code
	// set one.
	Result any `json:"result,omitempty"`
	// Datasets holds tabular outputs keyed by dataset name: derived
	// frames the code published via `output_df`, plus the bound
	// dataset itself when in-place persistence was requested.
	Datasets map[string]*types.Dataset `json:"datasets,omitempty"`
	// Charts are figure objects captured during execution.
	Charts []types.Chart `json:"charts,omitempty"`
	// Artifacts are files the code wrote into session-scoped storage.
	Artifacts []types.Artifact `json:"artifacts,omitempty"`
	// Error carries the failure reason or traceback when Success is
	// false.
	Error string `json:"error,omitempty"`
	// Backend names the runtime that produced the outcome.
	Backend string `json:"backend,omitempty"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// failedOutcome builds a failed outcome with no side effects attached.
func failedOutcome(backend, reason string) *SandboxOutcome {
	return &SandboxOutcome{Success: false, Error: reason, Backend: backend}
}
