// Package policy provides static security validation for model-generated
// Python and R code. Validation is a pure function over source text: it
// performs no I/O, touches no process state, and always runs before any
// execution side effect.
//
// Both validators allow-list imports/packages and ban dangerous calls,
// reporting the first violation found with its 1-based line number. The
// allow-lists are fixed, process-wide configuration; they are not
// user-configurable at runtime.
package policy
