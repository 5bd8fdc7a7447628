package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// useJSON reports whether output should be machine-readable: forced
// by --json, or implied by a non-interactive stdout.
func useJSON() bool {
	if jsonOutput {
		return true
	}
	fd := os.Stdout.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func emitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderError prints a failed command's error. Structured errors carry
// a code and often a suggestion; plain errors (usage mistakes, flag
// parse failures) print as a single line.
func renderError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var ce *dircerrors.CoreError
	if !dircerrors.As(err, &ce) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	if useJSON() {
		if data, jerr := dircerrors.FormatJSON(err); jerr == nil {
			fmt.Fprintln(w, string(data))
			return
		}
	}
	fmt.Fprint(w, dircerrors.FormatForCLI(err))
}
