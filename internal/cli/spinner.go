package cli

import (
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// runSpinner wraps briandowns/spinner for the non-TUI progress path: a
// single terminal spinner showing the workflow name while it runs, left
// with a colored final message.
type runSpinner struct {
	s *spinner.Spinner
}

func newRunSpinner(w io.Writer, suffix string) *runSpinner {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	return &runSpinner{s: s}
}

func (r *runSpinner) start() { r.s.Start() }

func (r *runSpinner) succeed(msg string) {
	r.s.FinalMSG = color.GreenString("%s %s\n", successIcon, msg)
	r.s.Stop()
}

func (r *runSpinner) fail(msg string) {
	r.s.FinalMSG = color.RedString("%s %s\n", errorIcon, msg)
	r.s.Stop()
}
