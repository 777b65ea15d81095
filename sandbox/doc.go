// Package sandbox executes untrusted, model-generated code under the
// static security policy and OS resource limits.
//
// PythonExecutor drives a python3 subprocess through an embedded
// harness; HybridRExecutor routes R code between a lightweight webR
// runtime and a native Rscript subprocess with automatic fallback.
// Every execution call validates the code exactly once before any
// backend runs, and failures come back as data (a SandboxOutcome with
// Success=false), never as a panic or a partially-applied mutation.
package sandbox
