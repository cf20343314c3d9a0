package routing

import (
	"context"
	"io"
	"sync"

	"github.com/ghe-utils/reposync/internal/appliance"
)

// fakeRunner records remote invocations and delegates to a handler.
type fakeRunner struct {
	mu      sync.Mutex
	calls   [][]string
	stdins  []string
	handler func(target appliance.Target, stdin string, cmdline ...string) ([]byte, error)
}

func (f *fakeRunner) Run(ctx context.Context, target appliance.Target, stdin io.Reader, cmdline ...string) ([]byte, error) {
	var input []byte
	if stdin != nil {
		input, _ = io.ReadAll(stdin)
	}

	f.mu.Lock()
	f.calls = append(f.calls, cmdline)
	f.stdins = append(f.stdins, string(input))
	f.mu.Unlock()

	if f.handler == nil {
		return nil, nil
	}
	return f.handler(target, string(input), cmdline...)
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
