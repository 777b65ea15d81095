// Package types defines the shared value types of the execution core:
// tabular datasets, skill results, chart payloads, the agent event
// contract, and the unified structured error.
//
// Everything in this package is plain data. Components communicate by
// exchanging these values; no type here performs I/O.
package types
