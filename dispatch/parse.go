// Package dispatch turns argv into a validated subcommand invocation:
// top-level flag/path/subcommand extraction, per-command positional
// argument matching, and build-reference resolution, per spec.md §4.6.
package dispatch

import "strings"

// Invocation is the result of a successful top-level parse.
type Invocation struct {
	Help    bool
	Version bool
	RepoPath string // "." unless the first positional looks like a path
	Command  string // "" if no subcommand was given (e.g. bare --help)
	Args     []string
}

// looksLikePath reports whether tok should be treated as a repository
// path rather than a subcommand name: it starts with "." or contains a
// "/".
func looksLikePath(tok string) bool {
	return strings.HasPrefix(tok, ".") || strings.Contains(tok, "/")
}

// Parse extracts --help/-h and --version/-v (recognized anywhere before
// the first positional), an optional leading repository path, the
// subcommand name, and its verbatim remaining arguments. Parsing stops
// collecting options at the first positional token.
func Parse(argv []string) Invocation {
	var inv Invocation
	inv.RepoPath = "."

	i := 0
	for ; i < len(argv); i++ {
		switch argv[i] {
		case "--help", "-h":
			inv.Help = true
			continue
		case "--version", "-v":
			inv.Version = true
			continue
		}
		break
	}

	if i >= len(argv) {
		return inv
	}

	if looksLikePath(argv[i]) {
		inv.RepoPath = argv[i]
		i++
	}

	if i >= len(argv) {
		return inv
	}

	inv.Command = argv[i]
	i++
	inv.Args = append([]string{}, argv[i:]...)
	return inv
}
