package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes log entries to stderr, or to a custom writer.
type ConsoleOutput struct {
	mu     sync.Mutex
	writer io.Writer
}

// ConsoleOutputOption is a function that configures a ConsoleOutput.
type ConsoleOutputOption func(*ConsoleOutput)

// WithCustomWriter configures the ConsoleOutput to use a custom writer.
func WithCustomWriter(writer io.Writer) ConsoleOutputOption {
	return func(o *ConsoleOutput) {
		o.writer = writer
	}
}

// NewConsoleOutput creates a new ConsoleOutput. Logs go to stderr so that
// stdout stays reserved for command output.
func NewConsoleOutput(options ...ConsoleOutputOption) *ConsoleOutput {
	o := &ConsoleOutput{writer: os.Stderr}
	for _, option := range options {
		option(o)
	}
	return o
}

// Write writes the log entry to the console.
func (o *ConsoleOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.writer.Write(formatted)
	return err
}

// Close implements Output.
func (o *ConsoleOutput) Close() error {
	return nil
}

// NullOutput discards everything.
type NullOutput struct{}

// NewNullOutput creates a new NullOutput.
func NewNullOutput() *NullOutput {
	return &NullOutput{}
}

func (o *NullOutput) Write(_ *Entry, _ []byte) error { return nil }
func (o *NullOutput) Close() error                   { return nil }
