// Package mock provides an in-memory test double for [errstore.Sink].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use.
//
// Typical usage:
//
//	sink := &mock.Sink{}
//	sink.WriteErr = errors.New("disk full")
//
//	// inject sink into the system under test …
//
//	if got := sink.CallCount("Write"); got != 1 {
//	    t.Errorf("expected 1 Write call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/errtable/pkg/errstore"
	"github.com/MrWong99/errtable/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Sink is a configurable test double for [errstore.Sink] and
// [errstore.Pinger].
type Sink struct {
	mu    sync.Mutex
	calls []Call

	// written holds every record passed to a successful Write, by run id.
	written map[string][]types.ErrorRecord

	// NameValue is returned by [Sink.Name]. Default: "mock".
	NameValue string

	// WriteErr is returned by [Sink.Write] when non-nil. Records are not
	// kept when it is set.
	WriteErr error

	// PingErr is returned by [Sink.Ping] when non-nil.
	PingErr error

	// CloseErr is returned by [Sink.Close] when non-nil.
	CloseErr error
}

// Compile-time interface checks.
var (
	_ errstore.Sink   = (*Sink)(nil)
	_ errstore.Pinger = (*Sink)(nil)
)

// Calls returns a copy of all recorded method invocations.
func (m *Sink) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Sink) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Records returns a copy of the records written for runID.
func (m *Sink) Records(runID string) []types.ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ErrorRecord, len(m.written[runID]))
	copy(out, m.written[runID])
	return out
}

// Reset clears all recorded calls and records without altering response
// configuration.
func (m *Sink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.written = nil
}

// Name implements [errstore.Sink].
func (m *Sink) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// Write implements [errstore.Sink].
func (m *Sink) Write(_ context.Context, run errstore.Run, records []types.ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Write", Args: []any{run, len(records)}})
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.written == nil {
		m.written = make(map[string][]types.ErrorRecord)
	}
	m.written[run.ID] = append(m.written[run.ID], records...)
	return nil
}

// Ping implements [errstore.Pinger].
func (m *Sink) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Ping"})
	return m.PingErr
}

// Close implements [errstore.Sink].
func (m *Sink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close"})
	return m.CloseErr
}
