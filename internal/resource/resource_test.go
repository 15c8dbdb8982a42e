package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// gatedFetch блокирует каждую выборку до явного release
type gatedFetch struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	calls int
}

func newGatedFetch() *gatedFetch {
	return &gatedFetch{gates: make(map[string]chan struct{})}
}

func (g *gatedFetch) gate(in string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[in]
	if !ok {
		ch = make(chan struct{})
		g.gates[in] = ch
	}
	return ch
}

func (g *gatedFetch) release(in string) {
	close(g.gate(in))
}

func (g *gatedFetch) fetch(ctx context.Context, in string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	<-g.gate(in)
	if in == "bad" {
		return "", errors.New("backend down")
	}
	return "result-" + in, nil
}

func waitStatus[T any](t *testing.T, r *Resource[string, T], want Status) State[T] {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st := r.State()
		if st.Status == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for status %s, got %s", want, r.State().Status)
	return State[T]{}
}

func TestLoadReady(t *testing.T) {
	g := newGatedFetch()
	r := New("test", g.fetch)
	defer r.Close()

	if st := r.State(); st.Status != Idle {
		t.Fatalf("expected idle, got %s", st.Status)
	}

	gen := r.Load("a")
	if st := r.State(); st.Status != Loading || st.Generation != gen {
		t.Errorf("expected loading gen %d, got %+v", gen, st)
	}

	g.release("a")
	st := waitStatus(t, r, Ready)
	if st.Value != "result-a" || !st.HasValue {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestLoadSameInputsDoesNotRestart(t *testing.T) {
	g := newGatedFetch()
	g.release("a")
	r := New("test", g.fetch)
	defer r.Close()

	gen1 := r.Load("a")
	r.Wait()
	gen2 := r.Load("a")

	if gen1 != gen2 {
		t.Errorf("generation changed for equal inputs: %d -> %d", gen1, gen2)
	}
	if g.calls != 1 {
		t.Errorf("expected 1 fetch, got %d", g.calls)
	}
}

// B стартовала позже A, A завершилась позже B: показан результат B
func TestSupersessionOutOfOrder(t *testing.T) {
	g := newGatedFetch()
	r := New("test", g.fetch)
	defer r.Close()

	r.Load("a")
	genB := r.Load("b")

	g.release("b")
	waitStatus(t, r, Ready)

	g.release("a")
	r.Wait()

	st := r.State()
	if st.Value != "result-b" {
		t.Errorf("stale result applied: %q", st.Value)
	}
	if st.Generation != genB {
		t.Errorf("generation = %d, want %d", st.Generation, genB)
	}
}

func TestSupersededFailureIgnored(t *testing.T) {
	g := newGatedFetch()
	r := New("test", g.fetch)
	defer r.Close()

	r.Load("bad")
	r.Load("a")
	g.release("a")
	waitStatus(t, r, Ready)
	g.release("bad")
	r.Wait()

	if st := r.State(); st.Status != Ready || st.Err != nil {
		t.Errorf("superseded failure applied: %+v", st)
	}
}

func TestFailure(t *testing.T) {
	g := newGatedFetch()
	g.release("bad")
	r := New("test", g.fetch)
	defer r.Close()

	r.Load("bad")
	r.Wait()

	st := r.State()
	if st.Status != Failed || st.Err == nil || st.HasValue {
		t.Errorf("expected failed state, got %+v", st)
	}
}

func TestRestartKeepsValueUntilReplaced(t *testing.T) {
	var mu sync.Mutex
	version := 1
	gate := make(chan struct{}, 1)
	gate <- struct{}{}

	r := New("test", func(ctx context.Context, in string) (int, error) {
		<-gate
		mu.Lock()
		defer mu.Unlock()
		return version, nil
	})
	defer r.Close()

	r.Load("p")
	r.Wait()

	mu.Lock()
	version = 2
	mu.Unlock()

	gen := r.Restart()
	st := r.State()
	if st.Status != Loading || !st.HasValue || st.Value != 1 {
		t.Errorf("expected stale value 1 while loading, got %+v", st)
	}

	gate <- struct{}{}
	r.Wait()
	st = r.State()
	if st.Value != 2 || st.Generation != gen {
		t.Errorf("expected value 2 gen %d, got %+v", gen, st)
	}
}

func TestRestartIdempotent(t *testing.T) {
	r := New("test", func(ctx context.Context, in string) ([]string, error) {
		return []string{"d1", "d2"}, nil
	})
	defer r.Close()

	r.Load("p")
	r.Wait()
	first := r.State().Value

	r.Restart()
	r.Wait()
	second := r.State().Value

	if len(first) != len(second) {
		t.Fatalf("restart changed result: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("restart changed result: %v vs %v", first, second)
		}
	}
}

func TestRestartWithoutInputs(t *testing.T) {
	r := New("test", func(ctx context.Context, in string) (string, error) {
		t.Error("fetch must not run without inputs")
		return "", nil
	})
	defer r.Close()

	if gen := r.Restart(); gen != 0 {
		t.Errorf("Restart() = %d, want 0", gen)
	}
}

func TestLoadNewInputsDropsValue(t *testing.T) {
	g := newGatedFetch()
	g.release("a")
	r := New("test", g.fetch)
	defer r.Close()

	r.Load("a")
	r.Wait()
	r.Load("b")

	if st := r.State(); st.HasValue {
		t.Errorf("value of old inputs must not be visible: %+v", st)
	}
	g.release("b")
	r.Wait()
}

func TestClearSupersedes(t *testing.T) {
	g := newGatedFetch()
	r := New("test", g.fetch)
	defer r.Close()

	r.Load("a")
	r.Clear()
	g.release("a")
	r.Wait()

	st := r.State()
	if st.Status != Idle || st.HasValue {
		t.Errorf("expected idle after clear, got %+v", st)
	}
	if _, ok := r.Inputs(); ok {
		t.Error("inputs should be cleared")
	}
}

func TestOnChange(t *testing.T) {
	var mu sync.Mutex
	var statuses []Status

	r := New("test", func(ctx context.Context, in string) (string, error) {
		return in, nil
	})
	defer r.Close()
	r.OnChange(func(st State[string]) {
		mu.Lock()
		statuses = append(statuses, st.Status)
		mu.Unlock()
	})

	r.Load("x")
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 2 || statuses[0] != Loading || statuses[1] != Ready {
		t.Errorf("unexpected transitions: %v", statuses)
	}
}

func TestCloseCancelsContext(t *testing.T) {
	started := make(chan struct{})
	r := New("test", func(ctx context.Context, in string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	r.Load("x")
	<-started
	r.Close()

	if st := r.State(); st.Status != Failed || !errors.Is(st.Err, context.Canceled) {
		t.Errorf("expected cancelled failure, got %+v", st)
	}
}

func TestCancelDoesNotWait(t *testing.T) {
	started := make(chan struct{})
	unblock := make(chan struct{})
	r := New("test", func(ctx context.Context, in string) (string, error) {
		close(started)
		<-ctx.Done()
		<-unblock
		return "", ctx.Err()
	})

	r.Load("x")
	<-started
	r.Cancel() // вернулся сразу, выборка ещё держится на unblock

	close(unblock)
	r.Wait()
	if st := r.State(); st.Status != Failed || !errors.Is(st.Err, context.Canceled) {
		t.Errorf("expected cancelled failure, got %+v", st)
	}
}
