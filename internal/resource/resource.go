// Package resource runs asynchronous fetches whose stale completions are dropped.
//
// Every start takes a new generation number. A completion is applied only if
// its generation is still the latest one, so a slow response for old inputs can
// never overwrite the result of a fetch started later. Superseded requests are
// not aborted; their results are discarded.
package resource

import (
	"context"
	"sync"

	"github.com/pv/sensor-panel/internal/logger"
)

// Status of a resource
type Status int

const (
	Idle Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a consistent snapshot of a resource
type State[T any] struct {
	Status     Status
	Value      T
	HasValue   bool // Value holds a completed result (may be stale while Loading)
	Err        error
	Generation uint64 // generation of the latest started fetch
	Revision   uint64 // incremented on every transition
}

// FetchFunc performs one fetch for the given inputs
type FetchFunc[I comparable, T any] func(ctx context.Context, in I) (T, error)

// ChangeFunc is called after every state transition, outside the lock
type ChangeFunc[T any] func(State[T])

// Resource holds the latest result of FetchFunc for the most recently requested inputs
type Resource[I comparable, T any] struct {
	name  string
	fetch FetchFunc[I, T]

	mu        sync.Mutex
	inputs    I
	hasInputs bool
	state     State[T]
	onChange  ChangeFunc[T]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle resource. name is used in log messages only.
func New[I comparable, T any](name string, fetch FetchFunc[I, T]) *Resource[I, T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Resource[I, T]{
		name:   name,
		fetch:  fetch,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnChange sets the state transition callback
func (r *Resource[I, T]) OnChange(cb ChangeFunc[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = cb
}

// Load requests the result for in. If in equals the current inputs nothing
// is restarted; otherwise a new fetch starts from scratch and the previous
// value is dropped. Returns the generation serving in.
func (r *Resource[I, T]) Load(in I) uint64 {
	r.mu.Lock()
	if r.hasInputs && r.inputs == in {
		gen := r.state.Generation
		r.mu.Unlock()
		return gen
	}
	r.inputs = in
	r.hasInputs = true
	var zero T
	r.state.Value = zero
	r.state.HasValue = false
	return r.startLocked()
}

// Restart re-runs the fetch for the current inputs. The previous value stays
// visible until the new result replaces it entirely. No-op without inputs.
func (r *Resource[I, T]) Restart() uint64 {
	r.mu.Lock()
	if !r.hasInputs {
		r.mu.Unlock()
		return 0
	}
	return r.startLocked()
}

// Clear forgets the inputs and supersedes any fetch in flight
func (r *Resource[I, T]) Clear() {
	r.mu.Lock()
	var zeroIn I
	r.inputs = zeroIn
	r.hasInputs = false
	r.state = State[T]{Status: Idle, Generation: r.state.Generation + 1, Revision: r.state.Revision + 1}
	st, cb := r.state, r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb(st)
	}
}

// startLocked must be called with mu held; it unlocks mu
func (r *Resource[I, T]) startLocked() uint64 {
	r.state.Generation++
	r.state.Revision++
	r.state.Status = Loading
	r.state.Err = nil
	gen, in := r.state.Generation, r.inputs
	st, cb := r.state, r.onChange

	r.wg.Add(1)
	r.mu.Unlock()

	if cb != nil {
		cb(st)
	}

	go func() {
		defer r.wg.Done()
		value, err := r.fetch(r.ctx, in)
		r.complete(gen, value, err)
	}()
	return gen
}

func (r *Resource[I, T]) complete(gen uint64, value T, err error) {
	r.mu.Lock()
	if gen != r.state.Generation {
		latest := r.state.Generation
		r.mu.Unlock()
		logger.Debug("Superseded fetch result dropped", "resource", r.name, "generation", gen, "latest", latest)
		return
	}

	r.state.Revision++
	if err != nil {
		r.state.Status = Failed
		r.state.Err = err
		var zero T
		r.state.Value = zero
		r.state.HasValue = false
	} else {
		r.state.Status = Ready
		r.state.Err = nil
		r.state.Value = value
		r.state.HasValue = true
	}
	st, cb := r.state, r.onChange
	r.mu.Unlock()

	if err != nil {
		logger.Debug("Fetch failed", "resource", r.name, "generation", gen, "error", err)
	}
	if cb != nil {
		cb(st)
	}
}

// State returns the current state
func (r *Resource[I, T]) State() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Inputs returns the current inputs
func (r *Resource[I, T]) Inputs() (I, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inputs, r.hasInputs
}

// Wait blocks until every started fetch has returned
func (r *Resource[I, T]) Wait() {
	r.wg.Wait()
}

// Cancel aborts fetches in flight without waiting for them
func (r *Resource[I, T]) Cancel() {
	r.cancel()
}

// Close cancels the context passed to fetches and waits for them
func (r *Resource[I, T]) Close() {
	r.cancel()
	r.wg.Wait()
}
