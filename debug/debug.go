// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - Cold-path diagnostic logging
//
// Purpose:
//   - Logs lifecycle transitions, configuration and failures without fmt.
//   - One line per call, written directly to stderr.
//
// ⚠️ Never invoke in hot loops - use only in start/stop paths and failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import "tradecore/utils"

// DropError logs prefix and err. A nil err logs the bare prefix, which is
// handy for tagged warnings.
//
//go:nosplit
//go:inline
func DropError(prefix string, err error) {
	if err != nil {
		utils.PrintWarning(prefix + ": " + err.Error() + "\n")
		return
	}
	utils.PrintWarning(prefix + "\n")
}

// DropMessage logs a tagged informational line.
//
//go:nosplit
//go:inline
func DropMessage(prefix, message string) {
	utils.PrintWarning(prefix + ": " + message + "\n")
}
