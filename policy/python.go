package policy

import (
	"regexp"
	"strings"
)

// pythonAllowedImports is the fixed allow-list of root modules model
// code may import: the numeric/scientific stack plus a few safe stdlib
// modules. Everything else, including os/sys/subprocess, is rejected.
var pythonAllowedImports = map[string]bool{
	"numpy":       true,
	"pandas":      true,
	"scipy":       true,
	"sklearn":     true,
	"statsmodels": true,
	"matplotlib":  true,
	"seaborn":     true,
	"math":        true,
	"statistics":  true,
	"random":      true,
	"datetime":    true,
	"re":          true,
	"collections": true,
	"itertools":   true,
	"functools":   true,
	"json":        true,
	"string":      true,
	"decimal":     true,
	"fractions":   true,
}

// pythonBannedCalls are names rejected wherever they appear as bare
// identifiers. The import gate already blocks os/subprocess; this set
// closes the reflective escape hatches. Matching names rather than
// call sites also catches aliasing (`f = eval`) and parenthesized
// callees (`(eval)(x)`), which an AST would resolve to the same call.
var pythonBannedCalls = map[string]bool{
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"open":       true,
	"input":      true,
	"__import__": true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
	"exit":       true,
	"quit":       true,
	"breakpoint": true,
	"help":       true,
	"memoryview": true,
}

var (
	pyImportRe     = regexp.MustCompile(`^\s*import\s+(.+)$`)
	pyFromImportRe = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\b`)
	pyNameRe       = regexp.MustCompile(`(?:^|[^\w.])(\w+)`)
)

// ValidatePython statically checks Python source against the security
// policy: only allow-listed root modules may be imported, relative
// imports are always rejected, and banned names are rejected wherever
// they appear as bare identifiers. Backslash continuations are joined
// into logical lines first, so a statement split across physical lines
// is seen whole. The first violation found wins.
func ValidatePython(code string) error {
	stripped := stripPythonLiterals(code)

	for _, ll := range logicalLines(stripped) {
		line, lineNo := ll.text, ll.line

		if m := pyFromImportRe.FindStringSubmatch(line); m != nil {
			module := m[1]
			if strings.HasPrefix(module, ".") {
				return &Violation{Construct: "from " + module, Line: lineNo, Reason: "relative imports are not allowed"}
			}
			root := rootModule(module)
			if !pythonAllowedImports[root] {
				return &Violation{Construct: root, Line: lineNo, Reason: "import not in allow-list"}
			}
			continue
		}

		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				module := strings.TrimSpace(part)
				// "import numpy as np" -> "numpy"
				if idx := strings.Index(module, " as "); idx >= 0 {
					module = module[:idx]
				}
				module = strings.TrimSpace(module)
				if module == "" {
					continue
				}
				root := rootModule(module)
				if !pythonAllowedImports[root] {
					return &Violation{Construct: root, Line: lineNo, Reason: "import not in allow-list"}
				}
			}
			continue
		}

		for _, m := range pyNameRe.FindAllStringSubmatch(line, -1) {
			if pythonBannedCalls[m[1]] {
				return &Violation{Construct: m[1], Line: lineNo, Reason: "banned call"}
			}
		}
	}
	return nil
}

// logicalLine is one logical source line after continuation joining,
// tagged with its first physical line number.
type logicalLine struct {
	text string
	line int
}

// logicalLines joins backslash-continued physical lines, the way the
// interpreter does before parsing. Literals are already blanked, so a
// trailing backslash here is always a continuation.
func logicalLines(stripped string) []logicalLine {
	physical := strings.Split(stripped, "\n")
	out := make([]logicalLine, 0, len(physical))
	for i := 0; i < len(physical); i++ {
		start := i
		text := physical[i]
		for strings.HasSuffix(text, `\`) && i+1 < len(physical) {
			text = text[:len(text)-1] + " " + physical[i+1]
			i++
		}
		out = append(out, logicalLine{text: text, line: start + 1})
	}
	return out
}

func rootModule(module string) string {
	if idx := strings.Index(module, "."); idx >= 0 {
		return module[:idx]
	}
	return module
}

// stripPythonLiterals blanks out string literals and comments while
// preserving line structure, so the line scan never matches inside a
// string ("eval" as data is not a call) and line numbers stay accurate.
func stripPythonLiterals(code string) string {
	var out strings.Builder
	out.Grow(len(code))

	const (
		stateCode = iota
		stateComment
		stateString
	)
	state := stateCode
	var quote string // `'`, `"`, `'''`, or `"""` while in stateString

	i := 0
	for i < len(code) {
		c := code[i]

		switch state {
		case stateCode:
			switch {
			case c == '#':
				state = stateComment
				out.WriteByte(' ')
				i++
			case c == '\'' || c == '"':
				if i+2 < len(code) && code[i+1] == c && code[i+2] == c {
					quote = string([]byte{c, c, c})
					i += 3
				} else {
					quote = string(c)
					i++
				}
				state = stateString
				out.WriteByte(' ')
			default:
				out.WriteByte(c)
				i++
			}
		case stateComment:
			if c == '\n' {
				state = stateCode
				out.WriteByte('\n')
			} else {
				out.WriteByte(' ')
			}
			i++
		case stateString:
			switch {
			case c == '\\' && i+1 < len(code):
				out.WriteString("  ")
				i += 2
			case strings.HasPrefix(code[i:], quote):
				state = stateCode
				out.WriteString(strings.Repeat(" ", len(quote)))
				i += len(quote)
			case c == '\n':
				if len(quote) == 1 {
					// Unterminated single-quoted string; recover at EOL.
					state = stateCode
				}
				out.WriteByte('\n')
				i++
			default:
				out.WriteByte(' ')
				i++
			}
		}
	}
	return out.String()
}
