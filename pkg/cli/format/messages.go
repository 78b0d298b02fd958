package format

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/types"
)

// Printer writes the labelled operator messages. Successes and info go to
// Out; warnings and errors go to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer
}

// NewPrinter returns a Printer on stdout and stderr.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr}
}

// Success prints a [SUCCESS] line.
func (p *Printer) Success(format string, a ...interface{}) {
	fmt.Fprintf(p.Out, "%s %s\n", SuccessColor.Sprint("[SUCCESS]"), fmt.Sprintf(format, a...))
}

// Info prints an [INFO] line.
func (p *Printer) Info(format string, a ...interface{}) {
	fmt.Fprintf(p.Out, "%s %s\n", InfoColor.Sprint("[INFO]"), fmt.Sprintf(format, a...))
}

// Warning prints a [WARNING] line.
func (p *Printer) Warning(format string, a ...interface{}) {
	fmt.Fprintf(p.Err, "%s %s\n", WarningColor.Sprint("[WARNING]"), fmt.Sprintf(format, a...))
}

// Error prints an [ERROR] line.
func (p *Printer) Error(format string, a ...interface{}) {
	fmt.Fprintf(p.Err, "%s %s\n", ErrorColor.Sprint("[ERROR]"), fmt.Sprintf(format, a...))
}

// Check prints one checklist line.
func (p *Printer) Check(ok bool, name, detail string) {
	if detail != "" {
		fmt.Fprintf(p.Out, "  %s %s %s\n", StatusSymbol(ok), name, Dim("(%s)", detail))
		return
	}
	fmt.Fprintf(p.Out, "  %s %s\n", StatusSymbol(ok), name)
}

// Failure prints err as an [ERROR] line, followed by a hint when err is a
// preflight or configuration failure.
func (p *Printer) Failure(err error) {
	var pe *launcher.PreflightError
	switch {
	case errors.As(err, &pe):
		p.Error("%v", pe.Err)
		p.hint(pe.Remediation)
	case types.IsValidationError(err):
		p.Error("invalid configuration: %v", err)
		p.hint("check hoist.yaml and any HOIST_* environment overrides")
	default:
		p.Error("%v", err)
	}
}

func (p *Printer) hint(text string) {
	fmt.Fprintf(p.Err, "        %s %s\n", HighlightColor.Sprint("hint:"), text)
}
