package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDependencyHappensBefore(t *testing.T) {
	s := New(4)
	defer s.Detach()

	var shared int64
	a := NewTask(Worker, nil, func() { atomic.StoreInt64(&shared, 42) }, nil)
	var observed int64
	b := NewTask(Worker, []*Task{a}, func() { observed = atomic.LoadInt64(&shared) }, nil)

	s.Submit(a)
	s.Submit(b)

	if !WaitAll(context.Background(), []*Task{a, b}, 2*time.Second) {
		t.Fatal("WaitAll timed out")
	}
	if observed != 42 {
		t.Errorf("b observed %d, want 42", observed)
	}
}

func TestCancellationFanOut(t *testing.T) {
	s := New(4)
	defer s.Detach()

	var ranA, ranB, ranC int32
	a := NewTask(Worker, nil, func() { atomic.AddInt32(&ranA, 1) }, nil)
	b := NewTask(Worker, []*Task{a}, func() { atomic.AddInt32(&ranB, 1) }, nil)
	c := NewTask(Worker, []*Task{b}, func() { atomic.AddInt32(&ranC, 1) }, nil)

	s.Cancel(a) // cancel before any thread picks it up

	s.Submit(a)
	s.Submit(b)
	s.Submit(c)

	if !WaitAll(context.Background(), []*Task{a, b, c}, 2*time.Second) {
		t.Fatal("WaitAll timed out")
	}
	for _, tk := range []*Task{a, b, c} {
		if tk.Status() != Canceled {
			t.Errorf("task status = %v, want Canceled", tk.Status())
		}
	}
	if ranA+ranB+ranC != 0 {
		t.Errorf("ran counts = %d %d %d, want all zero", ranA, ranB, ranC)
	}
}

func TestWaitAllTimeout(t *testing.T) {
	s := New(1)
	defer s.Detach()

	block := make(chan struct{})
	a := NewTask(Worker, nil, func() { <-block }, nil)
	s.Submit(a)

	if WaitAll(context.Background(), []*Task{a}, 50*time.Millisecond) {
		t.Fatal("expected WaitAll to time out")
	}
	close(block)
	if !WaitAll(context.Background(), []*Task{a}, 2*time.Second) {
		t.Fatal("expected eventual completion")
	}
}

func TestMonotonicStatusTransitions(t *testing.T) {
	s := New(2)
	defer s.Detach()

	a := NewTask(Main, nil, func() {}, nil)
	if got := a.Status(); got != Pending {
		t.Fatalf("initial status = %v, want Pending", got)
	}
	s.Submit(a)
	if !WaitAll(context.Background(), []*Task{a}, time.Second) {
		t.Fatal("task never completed")
	}
	if got := a.Status(); got != Complete {
		t.Fatalf("final status = %v, want Complete", got)
	}
}
