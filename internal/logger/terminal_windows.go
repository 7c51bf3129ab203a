//go:build windows

package logger

// isTerminal always reports false on Windows; console output stays uncolored.
func isTerminal(uintptr) bool { return false }
