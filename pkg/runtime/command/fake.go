package command

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Call records one invocation seen by FakeRunner.
type Call struct {
	Name  string
	Args  []string
	Stdin string
}

// Line returns the invocation as a single space-joined string.
func (c Call) Line() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Response is a canned result for FakeRunner.
type Response struct {
	Stdout string
	Err    error
}

// FakeRunner is an in-memory Runner for tests. Responses are keyed by the
// binary name; Installed lists binaries LookPath resolves.
type FakeRunner struct {
	mu        sync.Mutex
	Installed map[string]bool
	Responses map[string]Response
	Calls     []Call
}

// NewFakeRunner returns a FakeRunner with the given binaries installed.
func NewFakeRunner(installed ...string) *FakeRunner {
	f := &FakeRunner{
		Installed: make(map[string]bool),
		Responses: make(map[string]Response),
	}
	for _, name := range installed {
		f.Installed[name] = true
	}
	return f
}

// LookPath implements Runner.
func (f *FakeRunner) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Installed[name] {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return "/usr/bin/" + name, nil
}

// Output implements Runner.
func (f *FakeRunner) Output(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	in := ""
	if stdin != nil {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		in = string(b)
	}
	resp, err := f.record(name, args, in)
	if err != nil {
		return nil, err
	}
	return []byte(resp.Stdout), resp.Err
}

func (f *FakeRunner) record(name string, args []string, stdin string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, Call{Name: name, Args: append([]string{}, args...), Stdin: stdin})
	if !f.Installed[name] {
		return Response{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f.Responses[name], nil
}

// CallsTo returns the recorded invocations of name.
func (f *FakeRunner) CallsTo(name string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
