// Package scheduler implements a classed, dependency-gated cooperative
// task scheduler: a fixed pool of worker goroutines pulls from per-class
// sharded queues, runs a task only once every dependency has completed,
// and cancels a task transitively the moment any dependency is canceled.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ThreadClass is the class of worker a Task must run on, mirroring the
// source's EThread enum.
type ThreadClass int

const (
	Main ThreadClass = iota
	Worker
	Renderer
	FileIO
	Network
	numClasses
)

// Status is a Task's lifecycle state. Transitions are monotonic:
// Pending->InProgress->Complete, Pending->Canceled, InProgress->Canceled.
type Status int32

const (
	Pending Status = iota
	InProgress
	Complete
	Canceled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case InProgress:
		return "InProgress"
	case Complete:
		return "Complete"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a final state the task will never leave.
func (s Status) Terminal() bool { return s == Complete || s == Canceled }

// Task is a unit of scheduled work. Construct with NewTask.
type Task struct {
	class   ThreadClass
	deps    []*Task
	status  atomic.Int32
	run     func()
	cancel  func()
	ranOnce sync.Once
}

// NewTask creates a task of the given class, runnable once every entry of
// deps is Complete. run and cancel are each invoked at most once.
func NewTask(class ThreadClass, deps []*Task, run func(), cancel func()) *Task {
	t := &Task{class: class, deps: append([]*Task(nil), deps...), run: run, cancel: cancel}
	t.status.Store(int32(Pending))
	return t
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status { return Status(t.status.Load()) }

// Class returns the task's thread class.
func (t *Task) Class() ThreadClass { return t.class }

// runOnce executes the run closure exactly once, regardless of how many
// times it is called — guards against a scheduler bug double-dispatching.
func (t *Task) runOnce() {
	t.ranOnce.Do(func() {
		if t.run != nil {
			t.run()
		}
	})
}

func (t *Task) cancelOnce() {
	t.ranOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
	})
}

// Scheduler owns the per-class sharded queues and the worker goroutine
// pool. Zero value is not usable; construct with New.
type Scheduler struct {
	shardsPerClass int
	queues         [numClasses][]*shard
	looping        atomic.Bool
	wg             sync.WaitGroup
	nextShard      atomic.Int64

	sleepStep     time.Duration
	maxSleepOnIdle time.Duration
}

type shard struct {
	mu    sync.Mutex
	tasks []*Task
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithIdleSleep overrides the cooperative idle-sleep bounds (defaults
// 4ns and 10µs per §4.3).
func WithIdleSleep(step, max time.Duration) Option {
	return func(s *Scheduler) { s.sleepStep, s.maxSleepOnIdle = step, max }
}

// WithShardsPerClass overrides the per-class shard count (default 2, must
// be >= 2 per §4.3).
func WithShardsPerClass(n int) Option {
	return func(s *Scheduler) { s.shardsPerClass = n }
}

// New constructs a Scheduler with numWorkers goroutines, each servicing
// every thread class (classMask emulated as "all classes" for simplicity —
// callers needing dedicated FileIO/Network pools should construct
// additional Schedulers, mirroring the source's per-thread class mask by
// giving each pool a distinct Scheduler instance instead of a bitmask).
func New(numWorkers int, opts ...Option) *Scheduler {
	s := &Scheduler{
		shardsPerClass: 2,
		sleepStep:      4 * time.Nanosecond,
		maxSleepOnIdle: 10 * time.Microsecond,
	}
	for _, o := range opts {
		o(s)
	}
	for c := ThreadClass(0); c < numClasses; c++ {
		shards := make([]*shard, s.shardsPerClass)
		for i := range shards {
			shards[i] = &shard{}
		}
		s.queues[c] = shards
	}
	s.looping.Store(true)
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.workerLoop()
	}
	return s
}

// Submit enqueues t on its class's shard chosen round-robin, spreading
// contention the way the source spreads work across its N queues.
func (s *Scheduler) Submit(t *Task) {
	shards := s.queues[t.class]
	idx := int(s.nextShard.Add(1)-1) % len(shards)
	if idx < 0 {
		idx += len(shards)
	}
	sh := shards[idx]
	sh.mu.Lock()
	sh.tasks = append(sh.tasks, t)
	sh.mu.Unlock()
}

func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	sleep := s.sleepStep
	for s.looping.Load() {
		ranAny := false
		for c := ThreadClass(0); c < numClasses; c++ {
			if s.processOne(c) {
				ranAny = true
			}
		}
		if ranAny {
			sleep = s.sleepStep
			continue
		}
		time.Sleep(sleep)
		sleep *= 2
		if sleep > s.maxSleepOnIdle {
			sleep = s.maxSleepOnIdle
		}
	}
}

// processOne scans one pass over class c's shards and runs at most one
// task, returning whether work happened (run or cancel).
func (s *Scheduler) processOne(c ThreadClass) bool {
	for _, sh := range s.queues[c] {
		if !sh.mu.TryLock() {
			continue
		}
		var picked *Task
		idx := -1
		for i, task := range sh.tasks {
			ready := true
			cancel := task.Status() == Canceled
			for _, dep := range task.deps {
				st := dep.Status()
				if st != Complete {
					ready = false
				}
				if st == Canceled {
					cancel = true
				}
			}
			if cancel {
				sh.tasks = append(sh.tasks[:i], sh.tasks[i+1:]...)
				sh.mu.Unlock()
				task.status.Store(int32(Canceled))
				task.cancelOnce()
				return true
			}
			if ready {
				picked = task
				idx = i
				break
			}
		}
		if picked == nil {
			sh.mu.Unlock()
			continue
		}
		sh.tasks = append(sh.tasks[:idx], sh.tasks[idx+1:]...)
		sh.mu.Unlock()

		if picked.status.CompareAndSwap(int32(Pending), int32(InProgress)) {
			picked.runOnce()
			picked.status.CompareAndSwap(int32(InProgress), int32(Complete))
		} else {
			picked.status.Store(int32(Canceled))
			picked.cancelOnce()
		}
		return true
	}
	return false
}

// Cancel requests cancellation of t. If t is Pending it transitions
// atomically to Canceled and its cancel closure runs on the next poll
// that observes it (or immediately if already dequeued). Cancellation of
// an InProgress task is advisory only.
func (s *Scheduler) Cancel(t *Task) {
	t.status.CompareAndSwap(int32(Pending), int32(Canceled))
}

// WaitAll spins with Gosched on each task's status until every task
// reaches a terminal state or timeout elapses. Returns true iff every
// task reached a terminal state within timeout.
func WaitAll(ctx context.Context, tasks []*Task, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for _, t := range tasks {
		for i := 0; !t.Status().Terminal(); i++ {
			if ctx.Err() != nil {
				return false
			}
			if i > 2000 {
				i = 0
				if time.Now().After(deadline) {
					return false
				}
			}
			runtime.Gosched()
		}
	}
	return true
}

// Detach stops the worker pool and joins every goroutine. Safe to call
// once; subsequent calls are no-ops.
func (s *Scheduler) Detach() {
	s.looping.Store(false)
	s.wg.Wait()
}
