package provision

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotInteractive is returned when a confirmation is needed but nobody can
// answer it.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal; re-run with --skip-confirmations")

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(question string) (bool, error)
}

// PromptConfirmer asks on a terminal. Anything other than y or yes is no.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer

	// IsTerminal reports whether In is interactive.
	IsTerminal func() bool
}

// NewPromptConfirmer returns a confirmer bound to the process stdin/stdout.
func NewPromptConfirmer() *PromptConfirmer {
	return &PromptConfirmer{
		In:  os.Stdin,
		Out: os.Stdout,
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Confirm implements Confirmer.
func (p *PromptConfirmer) Confirm(question string) (bool, error) {
	if p.IsTerminal != nil && !p.IsTerminal() {
		return false, ErrNotInteractive
	}
	fmt.Fprintf(p.Out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// AutoConfirmer answers every question with Answer.
type AutoConfirmer struct {
	Answer bool
}

// Confirm implements Confirmer.
func (a AutoConfirmer) Confirm(string) (bool, error) { return a.Answer, nil }
