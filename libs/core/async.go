package core

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Executor runs tasks off the calling goroutine
type Executor interface {
	Execute(task func()) error
}

// TimerExecutor can also schedule a task after a delay. Notification
// timeouts require one.
type TimerExecutor interface {
	Executor
	AfterFunc(d time.Duration, task func()) (stop func() bool)
}

// PoolExecutor runs at most size tasks at a time
type PoolExecutor struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPoolExecutor creates an executor bounded to size concurrent tasks
func NewPoolExecutor(size int) *PoolExecutor {
	if size < 1 {
		size = 1
	}
	return &PoolExecutor{sem: semaphore.NewWeighted(int64(size))}
}

func (p *PoolExecutor) Execute(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return illegalState("executor is shut down")
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		task()
	}()
	return nil
}

func (p *PoolExecutor) AfterFunc(d time.Duration, task func()) func() bool {
	return time.AfterFunc(d, task).Stop
}

// Shutdown rejects new tasks and waits for running ones
func (p *PoolExecutor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// directExecutor runs tasks on the calling goroutine and cannot schedule timers
type directExecutor struct{}

func (directExecutor) Execute(task func()) error {
	task()
	return nil
}

// NewExecutor builds the executor described by cfg
func NewExecutor(cfg ExecutorConfig) Executor {
	switch strings.ToUpper(cfg.Type) {
	case "NONE":
		return directExecutor{}
	case "SINGLE_THREAD":
		return NewPoolExecutor(1)
	}
	return NewPoolExecutor(cfg.ThreadPoolSize)
}

// NotificationMode tells how asynchronous observers are scheduled
type NotificationMode string

const (
	// Serial notifies observers one after another on a single task
	Serial NotificationMode = "SERIAL"
	// Parallel notifies every observer on its own task
	Parallel NotificationMode = "PARALLEL"
)

// Keys recognized in NotificationOptions
const (
	OptionTimeout  = "TIMEOUT"
	OptionMode     = "MODE"
	OptionExecutor = "EXECUTOR"
)

// NotificationOptions customizes an asynchronous notification. TIMEOUT is
// a whole number of milliseconds or a time.Duration, MODE a NotificationMode,
// EXECUTOR an Executor.
type NotificationOptions map[string]any

type notificationSettings struct {
	timeout  time.Duration
	mode     NotificationMode
	executor Executor
}

func (c *Container) notificationSettings(opts NotificationOptions) (notificationSettings, error) {
	s := notificationSettings{
		timeout:  c.config.Events.DefaultTimeout,
		mode:     NotificationMode(strings.ToUpper(c.config.Events.DefaultMode)),
		executor: c.executor,
	}
	if s.mode == "" {
		s.mode = Serial
	}
	for key, value := range opts {
		switch strings.ToUpper(key) {
		case OptionTimeout:
			d, err := parseTimeout(value)
			if err != nil {
				return s, err
			}
			s.timeout = d
		case OptionMode:
			mode, err := parseMode(value)
			if err != nil {
				return s, err
			}
			s.mode = mode
		case OptionExecutor:
			exec, ok := value.(Executor)
			if !ok || exec == nil {
				return s, illegalArgument("%s must be an Executor, got %T", OptionExecutor, value)
			}
			s.executor = exec
		}
	}
	if s.timeout > 0 {
		if _, ok := s.executor.(TimerExecutor); !ok {
			return s, fmt.Errorf("%w: executor %T cannot schedule notification timeouts", ErrUnsupportedOperation, s.executor)
		}
	}
	return s, nil
}

// parseTimeout accepts whole milliseconds as any integer, an integral float,
// a numeric string or a time.Duration
func parseTimeout(value any) (time.Duration, error) {
	var ms int64
	switch v := value.(type) {
	case time.Duration:
		if v < 0 {
			return 0, illegalArgument("%s must not be negative: %s", OptionTimeout, v)
		}
		return v, nil
	case int:
		ms = int64(v)
	case int8:
		ms = int64(v)
	case int16:
		ms = int64(v)
	case int32:
		ms = int64(v)
	case int64:
		ms = v
	case uint:
		ms = int64(v)
	case uint8:
		ms = int64(v)
	case uint16:
		ms = int64(v)
	case uint32:
		ms = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			return 0, illegalArgument("%s is too large: %d", OptionTimeout, v)
		}
		ms = int64(v)
	case float32:
		return parseTimeout(float64(v))
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, illegalArgument("%s must be a whole number of milliseconds: %v", OptionTimeout, v)
		}
		ms = int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, illegalArgument("%s must be a whole number of milliseconds: %q", OptionTimeout, v)
		}
		ms = n
	default:
		return 0, illegalArgument("unsupported %s value %v of type %T", OptionTimeout, value, value)
	}
	if ms < 0 {
		return 0, illegalArgument("%s must not be negative: %d", OptionTimeout, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseMode(value any) (NotificationMode, error) {
	var s string
	switch v := value.(type) {
	case NotificationMode:
		s = string(v)
	case string:
		s = v
	default:
		return "", illegalArgument("unsupported %s value %v of type %T", OptionMode, value, value)
	}
	switch mode := NotificationMode(strings.ToUpper(s)); mode {
	case Serial, Parallel:
		return mode, nil
	}
	return "", illegalArgument("unknown notification mode %q", s)
}

// Future is the result of an asynchronous notification. It completes once,
// either with the event or with an error.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	value     any
	err       error
	callbacks []func(any, error)
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func completedFuture(value any, err error) *Future {
	f := newFuture()
	f.complete(value, err)
	return f
}

// complete settles the future; later calls are ignored
func (f *Future) complete(value any, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.value, f.err = value, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(value, err)
	}
	return true
}

// Done is closed when the future completes
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future completes or ctx ends
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the failure of a completed future, nil otherwise
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// WhenComplete runs fn when the future completes, immediately if it already has
func (f *Future) WhenComplete(fn func(value any, err error)) *Future {
	f.mu.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return f
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
	return f
}

// Then returns a future completed with fn applied to a successful result
func (f *Future) Then(fn func(value any) (any, error)) *Future {
	next := newFuture()
	f.WhenComplete(func(value any, err error) {
		if err != nil {
			next.complete(nil, err)
			return
		}
		next.complete(fn(value))
	})
	return next
}

// Exceptionally returns a future that recovers a failure with fn
func (f *Future) Exceptionally(fn func(err error) any) *Future {
	next := newFuture()
	f.WhenComplete(func(value any, err error) {
		if err != nil {
			next.complete(fn(err), nil)
			return
		}
		next.complete(value, nil)
	})
	return next
}
