package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// progress shows an animated spinner on a terminal and plain lines
// elsewhere.
type progress struct {
	spinner *spinner.Spinner
	message string
	writer  io.Writer
}

func newProgress(w io.Writer, message string) *progress {
	p := &progress{message: message, writer: w}
	if isTerminal(w) {
		p.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		p.spinner.Suffix = " " + message
		_ = p.spinner.Color("blue", "bold")
	}
	return p
}

func (p *progress) Start() {
	if p.spinner != nil {
		p.spinner.Start()
		return
	}
	fmt.Fprintf(p.writer, "⏳ %s...\n", p.message)
}

func (p *progress) Stop() {
	if p.spinner != nil {
		p.spinner.Stop()
	}
}

func (p *progress) Success(message string) {
	p.Stop()
	fmt.Fprintf(p.writer, "%s %s\n", color.GreenString("✓"), message)
}

func (p *progress) Fail(message string) {
	p.Stop()
	fmt.Fprintf(p.writer, "%s %s\n", color.RedString("✗"), message)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
