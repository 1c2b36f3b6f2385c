package logger

import "github.com/mattn/go-isatty"

// isTerminal reports whether fd is attached to an interactive terminal, so
// the text handler knows when color output is safe.
func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
