package policy

import (
	"regexp"
	"strings"
)

// rAllowedPackages is the fixed allow-list of R packages: base R, the
// tidyverse, and common statistics/bioinformatics packages.
var rAllowedPackages = map[string]bool{
	// base
	"base": true, "stats": true, "utils": true, "methods": true,
	"graphics": true, "grDevices": true, "datasets": true, "grid": true,
	// tidyverse
	"dplyr": true, "tidyr": true, "ggplot2": true, "readr": true,
	"purrr": true, "tibble": true, "stringr": true, "forcats": true,
	"lubridate": true, "tidyverse": true, "broom": true,
	// stats
	"data.table": true, "MASS": true, "car": true, "survival": true,
	"lme4": true, "nlme": true, "emmeans": true, "multcomp": true,
	"nortest": true, "coin": true, "effsize": true, "pwr": true,
	// bioinformatics (Bioconductor)
	"DESeq2": true, "edgeR": true, "limma": true, "Biobase": true,
	"BiocGenerics": true, "GenomicRanges": true, "SummarizedExperiment": true,
	"clusterProfiler": true, "AnnotationDbi": true, "org.Hs.eg.db": true,
	"ComplexHeatmap": true, "pheatmap": true,
}

// rBiocPackages is the subset of the allow-list that only exists in a
// full Bioconductor installation. Referencing any of these forces the
// hybrid executor onto native R; the lightweight runtime cannot load
// them.
var rBiocPackages = map[string]bool{
	"DESeq2": true, "edgeR": true, "limma": true, "Biobase": true,
	"BiocGenerics": true, "GenomicRanges": true, "SummarizedExperiment": true,
	"clusterProfiler": true, "AnnotationDbi": true, "org.Hs.eg.db": true,
	"ComplexHeatmap": true,
}

// rBannedRe matches banned function names as bare identifiers, not
// call sites: `(system)("ls")` and `f <- system` are as dangerous as
// `system("ls")` and an AST resolves all three to the same name.
// String literals are blanked before this scan runs.
var (
	rBannedRe  = regexp.MustCompile(`(?:^|[^\w.])(system2?|shell(?:\.exec)?|source|eval|parse|Sys\.setenv|Sys\.unsetenv|setwd|unlink|file\.remove|file\.rename|download\.file|url|install\.packages|remove\.packages|dyn\.load|library\.dynam|\.Internal|\.Call|\.C|\.Fortran)(?:[^\w.]|$)`)
	rLibraryRe = regexp.MustCompile(`\b(?:library|require|requireNamespace|loadNamespace)\s*\(\s*["']?([A-Za-z][A-Za-z0-9._]*)["']?`)
)

// ValidateR statically checks R source against the security policy.
// Inline comments are stripped first; then each line is scanned for
// banned names (word-boundary matched, with string literals blanked)
// and for library/require calls naming packages outside the
// allow-list. The first violation wins.
func ValidateR(code string) error {
	lines := strings.Split(code, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := stripRComment(raw)

		if m := rBannedRe.FindStringSubmatch(blankRStrings(line)); m != nil {
			return &Violation{Construct: m[1], Line: lineNo, Reason: "banned call"}
		}

		for _, m := range rLibraryRe.FindAllStringSubmatch(line, -1) {
			pkg := m[1]
			if !rAllowedPackages[pkg] {
				return &Violation{Construct: pkg, Line: lineNo, Reason: "package not in allow-list"}
			}
		}
	}
	return nil
}

// RPackages extracts every package referenced via library/require calls
// or the pkg::fn namespace operator. Used by backend routing.
func RPackages(code string) []string {
	seen := make(map[string]bool)
	var packages []string
	add := func(pkg string) {
		if pkg != "" && !seen[pkg] {
			seen[pkg] = true
			packages = append(packages, pkg)
		}
	}

	nsRe := regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9._]*)::`)
	for _, raw := range strings.Split(code, "\n") {
		line := stripRComment(raw)
		for _, m := range rLibraryRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
		for _, m := range nsRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}
	return packages
}

// IsBiocPackage reports whether pkg belongs to the Bioconductor set.
func IsBiocPackage(pkg string) bool {
	return rBiocPackages[pkg]
}

// blankRStrings replaces quoted string contents (and the quotes) with
// spaces so the banned-name scan never matches inside a literal.
// Offsets are preserved; library extraction runs on the unblanked line
// because package names may be quoted.
func blankRStrings(line string) string {
	out := []byte(line)
	inSingle, inDouble := false, false
	for i := 0; i < len(out); i++ {
		switch out[i] {
		case '\\':
			if inSingle || inDouble {
				out[i] = ' '
				if i+1 < len(out) {
					out[i+1] = ' '
					i++
				}
			}
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
			out[i] = ' '
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
			out[i] = ' '
		default:
			if inSingle || inDouble {
				out[i] = ' '
			}
		}
	}
	return string(out)
}

// stripRComment removes the trailing comment from one line of R code,
// respecting single and double quoted strings.
func stripRComment(line string) string {
	inSingle, inDouble := false, false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inSingle || inDouble {
				i++
			}
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		case '#':
			if !inSingle && !inDouble {
				return line[:i]
			}
		}
	}
	return line
}
