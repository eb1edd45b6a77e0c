// Package logging builds the action's logger.
package logging

import (
	"io"
	"strconv"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w. debugFlag is the raw value of the
// runner debug environment variable; any truthy numeric string ("1",
// "2", ...) raises verbosity to debug level.
func New(w io.Writer, debugFlag string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "report-diffs",
	})
	if DebugEnabled(debugFlag) {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// DebugEnabled interprets the debug environment flag.
func DebugEnabled(debugFlag string) bool {
	n, err := strconv.Atoi(debugFlag)
	return err == nil && n > 0
}
