// Package lifecycle implements the shared provider state machine.
//
// Every pluggable provider in workyard (filesystems, sandboxed executors)
// moves through the same states:
//
//	pending → initializing → ready → starting → running
//	       → stopping → stopped → destroying → destroyed
//
// with an absorbing error state per failed transition. The machine
// deduplicates concurrent callers of the same transition: while an init is
// in flight, every additional Init call waits on the same attempt and
// observes the same outcome, and the underlying routine runs exactly once.
package lifecycle

import (
	"context"
	"errors"
	"sync"
)

// State is the current position of a provider in its lifecycle.
type State string

const (
	StatePending      State = "pending"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateStopped      State = "stopped"
	StateDestroying   State = "destroying"
	StateDestroyed    State = "destroyed"
	StateError        State = "error"
)

// ErrInvalidTransition reports a transition attempted from a state that
// cannot legally enter it, e.g. Start on a provider that was never
// initialized. Check with errors.Is.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

type transition string

const (
	transitionInit    transition = "init"
	transitionStart   transition = "start"
	transitionStop    transition = "stop"
	transitionDestroy transition = "destroy"
)

// attempt is the in-flight handle for one transition. Waiters block on done
// and then read err; the owner closes done exactly once after recording the
// outcome.
type attempt struct {
	done chan struct{}
	err  error
}

func (a *attempt) wait() error {
	<-a.done
	return a.err
}

// Machine tracks provider state and serializes transitions. The zero value
// is not usable; construct with New.
type Machine struct {
	mu       sync.Mutex
	state    State
	inflight map[transition]*attempt
}

// New returns a machine in the pending state.
func New() *Machine {
	return &Machine{
		state:    StatePending,
		inflight: make(map[transition]*attempt),
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Init runs fn once, moving pending→initializing→ready. Calling Init when
// the machine is already ready (or beyond, up to stopped) is a no-op.
// Init after Destroy is permitted and re-runs the full setup path. If an
// init is already in flight the caller joins it and receives the same
// outcome. On failure the state becomes error, fn's error propagates to
// every waiter, and the in-flight handle is cleared so a retry can start a
// fresh attempt.
func (m *Machine) Init(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	switch m.state {
	case StateReady, StateStarting, StateRunning, StateStopping, StateStopped:
		m.mu.Unlock()
		return nil
	}
	if a, ok := m.inflight[transitionInit]; ok {
		m.mu.Unlock()
		return a.wait()
	}
	a := &attempt{done: make(chan struct{})}
	m.inflight[transitionInit] = a
	m.state = StateInitializing
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateError
	} else {
		m.state = StateReady
	}
	delete(m.inflight, transitionInit)
	m.mu.Unlock()

	a.err = err
	close(a.done)
	return err
}

// Start runs fn once, moving ready→starting→running. Start on a running
// machine is a no-op; Start from stopped re-runs fn (restart). Starting a
// machine that was never initialized is an ErrInvalidTransition.
func (m *Machine) Start(ctx context.Context, fn func(context.Context) error) error {
	return m.run(ctx, transitionStart, fn, func(s State) (bool, error) {
		switch s {
		case StateRunning:
			return true, nil
		case StateReady, StateStopped:
			return false, nil
		default:
			return false, invalidTransition("start", s)
		}
	}, StateStarting, StateRunning)
}

// Stop runs fn once, moving running→stopping→stopped. Stop when not
// running is a no-op.
func (m *Machine) Stop(ctx context.Context, fn func(context.Context) error) error {
	return m.run(ctx, transitionStop, fn, func(s State) (bool, error) {
		if s != StateRunning {
			return true, nil
		}
		return false, nil
	}, StateStopping, StateStopped)
}

// Destroy runs fn once, moving to destroying→destroyed. A destroy that
// finds an init in flight first waits for it to finish, ignoring its
// outcome, so teardown never races a half-finished setup. Destroy on a
// destroyed machine is a no-op.
func (m *Machine) Destroy(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	a, initInFlight := m.inflight[transitionInit]
	m.mu.Unlock()
	if initInFlight {
		a.wait() // outcome intentionally ignored
	}

	return m.run(ctx, transitionDestroy, fn, func(s State) (bool, error) {
		if s == StateDestroyed {
			return true, nil
		}
		return false, nil
	}, StateDestroying, StateDestroyed)
}

// run is the shared transition body: check the no-op/validity gate, join an
// in-flight attempt if one exists, otherwise own a new attempt, run fn, and
// publish the outcome. The in-flight handle is cleared on both success and
// failure.
func (m *Machine) run(ctx context.Context, t transition, fn func(context.Context) error, gate func(State) (noop bool, err error), pending, success State) error {
	m.mu.Lock()
	if a, ok := m.inflight[t]; ok {
		m.mu.Unlock()
		return a.wait()
	}
	noop, gateErr := gate(m.state)
	if gateErr != nil {
		m.mu.Unlock()
		return gateErr
	}
	if noop {
		m.mu.Unlock()
		return nil
	}
	a := &attempt{done: make(chan struct{})}
	m.inflight[t] = a
	m.state = pending
	m.mu.Unlock()

	err := fn(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateError
	} else {
		m.state = success
	}
	delete(m.inflight, t)
	m.mu.Unlock()

	a.err = err
	close(a.done)
	return err
}

func invalidTransition(op string, from State) error {
	return &transitionError{op: op, from: from}
}

type transitionError struct {
	op   string
	from State
}

func (e *transitionError) Error() string {
	return "cannot " + e.op + " provider in state " + string(e.from)
}

func (e *transitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
