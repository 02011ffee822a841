/*
Package leftright implements a split-copy (left-right) concurrency primitive.
Two copies of the same data structure are kept: readers use the front one
without any locking while a single writer mutates the back one. Publishing
swaps the copies, waits for readers of the previous front to leave it and
brings it up to date by replaying the operations applied since the last
publish.
*/
package leftright

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lrmpt/lrmpt/pkg/core/oplog"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Absorber is a data structure that can be kept in two copies by Core.
type Absorber[T any] interface {
	// Absorb applies op. On failure the structure must stay unchanged.
	Absorb(op oplog.Operation) error
	// Commit makes all absorbed operations durable. Only committed copies
	// are exposed to readers.
	Commit() error
	// SyncWith makes the structure equal to the given committed copy.
	SyncWith(other T) error
}

// WritePolicy defines what Write does when another writer is active.
type WritePolicy int

const (
	// Block waits until the current writer is done or the context is
	// cancelled.
	Block WritePolicy = iota
	// FailFast returns ErrWriterBusy immediately.
	FailFast
)

// ParseWritePolicy parses policy name, an empty name is Block.
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return Block, nil
	case "failfast", "fail-fast":
		return FailFast, nil
	default:
		return Block, fmt.Errorf("unknown write policy %q", s)
	}
}

// String implements fmt.Stringer.
func (p WritePolicy) String() string {
	if p == FailFast {
		return "failfast"
	}
	return "block"
}

var (
	// ErrWriterBusy is returned when write access can't be obtained
	// without waiting.
	ErrWriterBusy = errors.New("another writer is active")
	// ErrHandleClosed is returned on attempt to use a closed handle.
	ErrHandleClosed = errors.New("handle is closed")
)

const (
	// drainSpins is the number of scheduler yields before the writer
	// starts sleeping while waiting for readers.
	drainSpins = 64
	// maxDrainBackoff is the longest single sleep while waiting for readers.
	maxDrainBackoff = time.Millisecond
)

// Core keeps two copies of T and coordinates readers and the writer.
type Core[T Absorber[T]] struct {
	copies [2]T
	front  atomic.Uint32

	log    *zap.Logger
	policy WritePolicy
	sem    *semaphore.Weighted

	readersLock sync.Mutex
	readers     map[*readerSlot]struct{}

	// Fields below are owned by the writer holding sem.
	ops oplog.Log
	// stale is set after a swap until the previous front copy catches up.
	stale bool
	// resync makes catch up use SyncWith instead of replay.
	resync bool
	// waitFor contains epochs of readers inside the previous front copy.
	waitFor map[*readerSlot]uint64
}

type readerSlot struct {
	// epoch is odd while the reader is inside a guard.
	epoch atomic.Uint64
}

type options struct {
	log    *zap.Logger
	policy WritePolicy
}

// Option is a Core configuration option.
type Option func(*options)

// WithLogger sets the logger to use, zap.NewNop() is used by default.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithWritePolicy sets the policy of Write, Block is the default.
func WithWritePolicy(p WritePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// New creates a Core from two equal committed copies of the data.
func New[T Absorber[T]](left, right T, opts ...Option) *Core[T] {
	o := options{log: zap.NewNop(), policy: Block}
	for _, opt := range opts {
		opt(&o)
	}
	return &Core[T]{
		copies:  [2]T{left, right},
		log:     o.log,
		policy:  o.policy,
		sem:     semaphore.NewWeighted(1),
		readers: make(map[*readerSlot]struct{}),
		waitFor: make(map[*readerSlot]uint64),
	}
}

// Readers returns the number of registered read handles.
func (c *Core[T]) Readers() int {
	c.readersLock.Lock()
	defer c.readersLock.Unlock()
	return len(c.readers)
}

func (c *Core[T]) register() *readerSlot {
	s := new(readerSlot)
	c.readersLock.Lock()
	c.readers[s] = struct{}{}
	c.readersLock.Unlock()
	registeredReaders.Inc()
	return s
}

func (c *Core[T]) unregister(s *readerSlot) {
	c.readersLock.Lock()
	delete(c.readers, s)
	c.readersLock.Unlock()
	registeredReaders.Dec()
}

func (c *Core[T]) frontCopy() T {
	return c.copies[c.front.Load()]
}

func (c *Core[T]) backCopy() T {
	return c.copies[1-c.front.Load()]
}

// Write returns a handle for exclusive write access. With Block policy it
// waits for the current writer, with FailFast policy ErrWriterBusy is
// returned instead. With both policies ctx bounds the wait for readers
// left over by an interrupted publish.
func (c *Core[T]) Write(ctx context.Context) (*WriteHandle[T], error) {
	if c.policy == FailFast {
		if !c.sem.TryAcquire(1) {
			return nil, ErrWriterBusy
		}
	} else if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return c.begin(ctx)
}

// TryWrite returns a handle for exclusive write access or ErrWriterBusy
// if there is an active writer. It never waits: ErrWriterBusy is also
// returned while readers still use the copy left over by an interrupted
// publish.
func (c *Core[T]) TryWrite() (*WriteHandle[T], error) {
	if !c.sem.TryAcquire(1) {
		return nil, ErrWriterBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := c.begin(ctx)
	if errors.Is(err, context.Canceled) {
		return nil, ErrWriterBusy
	}
	return w, err
}

// begin finishes an interrupted publish if there is any, the back copy
// can't be changed before that.
func (c *Core[T]) begin(ctx context.Context) (*WriteHandle[T], error) {
	if c.stale {
		if _, err := c.catchUp(ctx); err != nil {
			c.sem.Release(1)
			return nil, err
		}
	}
	return &WriteHandle[T]{core: c}, nil
}

// swap makes the back copy the front one and remembers readers that may
// still use the previous front.
func (c *Core[T]) swap() {
	c.front.Store(1 - c.front.Load())
	c.stale = true

	c.readersLock.Lock()
	for s := range c.readers {
		if e := s.epoch.Load(); e%2 == 1 {
			c.waitFor[s] = e
		}
	}
	c.readersLock.Unlock()
}

// drain waits until every reader remembered by swap leaves its guard.
func (c *Core[T]) drain(ctx context.Context) error {
	var (
		spins   int
		backoff = time.Microsecond
		timer   *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		for s, e := range c.waitFor {
			if s.epoch.Load() != e {
				delete(c.waitFor, s)
			}
		}
		if len(c.waitFor) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if spins < drainSpins {
			spins++
			runtime.Gosched()
			continue
		}
		if timer == nil {
			timer = time.NewTimer(backoff)
		} else {
			timer.Reset(backoff)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxDrainBackoff)
	}
}

// catchUp waits for readers of the stale copy and brings it up to date
// with the front one. It returns the time spent waiting for readers.
func (c *Core[T]) catchUp(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.drain(ctx); err != nil {
		return time.Since(start), fmt.Errorf("waiting for %d readers: %w", len(c.waitFor), err)
	}
	drained := time.Since(start)

	var (
		stale = c.backCopy()
		front = c.frontCopy()
		ops   = c.ops.Ops()
	)
	if !c.resync {
		for i := range ops {
			if err := stale.Absorb(ops[i]); err != nil {
				c.log.Error("failed to replay operation, resynchronizing copies",
					zap.Int("index", i), zap.Object("op", ops[i]), zap.Error(err))
				c.resync = true
				break
			}
		}
		if !c.resync {
			if err := stale.Commit(); err != nil {
				c.log.Error("failed to commit replayed operations, resynchronizing copies",
					zap.Int("ops", len(ops)), zap.Error(err))
				c.resync = true
			}
		}
	}
	if c.resync {
		resyncs.Inc()
		if err := stale.SyncWith(front); err != nil {
			return drained, fmt.Errorf("failed to resynchronize stale copy: %w", err)
		}
		c.resync = false
	} else {
		replayedOps.Add(float64(len(ops)))
	}
	c.ops.Clear()
	c.stale = false
	updatePendingOpsMetric(0)
	return drained, nil
}

// ReadHandle is a registered reader. A handle must not be used by multiple
// goroutines at once, use Clone to get a handle for another goroutine.
type ReadHandle[T Absorber[T]] struct {
	core   *Core[T]
	slot   *readerSlot
	closed bool
	depth  int
	cur    uint32
}

// ReadGuard pins a copy of the data for the duration of a read. The copy
// it exposes is not modified until the guard is released.
type ReadGuard[T Absorber[T]] struct {
	h        *ReadHandle[T]
	data     T
	released bool
}

// Reader registers a new read handle.
func (c *Core[T]) Reader() *ReadHandle[T] {
	return &ReadHandle[T]{core: c, slot: c.register()}
}

// Clone registers a new read handle for the same Core.
func (h *ReadHandle[T]) Clone() *ReadHandle[T] {
	return h.core.Reader()
}

// Close unregisters the handle. Active guards stay valid until released.
func (h *ReadHandle[T]) Close() {
	if h.closed {
		return
	}
	h.closed = true
	h.core.unregister(h.slot)
}

// Enter pins the current front copy. It never waits. Nested guards of the
// same handle share the copy pinned by the outermost one.
func (h *ReadHandle[T]) Enter() (*ReadGuard[T], error) {
	if h.closed {
		return nil, ErrHandleClosed
	}
	if h.depth == 0 {
		h.slot.epoch.Add(1)
		h.cur = h.core.front.Load()
	}
	h.depth++
	return &ReadGuard[T]{h: h, data: h.core.copies[h.cur]}, nil
}

// Copy returns the pinned copy.
func (g *ReadGuard[T]) Copy() T {
	return g.data
}

// Release unpins the copy. It's safe to call it multiple times.
func (g *ReadGuard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.h.depth--
	if g.h.depth == 0 {
		g.h.slot.epoch.Add(1)
	}
}

// WriteHandle is an exclusive write access to the back copy. It must be
// finished with either Publish or Abort.
type WriteHandle[T Absorber[T]] struct {
	core *Core[T]
	done bool
}

// Append applies op to the back copy and logs it for replay. A failed op
// leaves both the copy and the log unchanged.
func (w *WriteHandle[T]) Append(op oplog.Operation) error {
	if w.done {
		return ErrHandleClosed
	}
	if err := w.core.backCopy().Absorb(op); err != nil {
		return err
	}
	w.core.ops.Append(op)
	updatePendingOpsMetric(w.core.ops.Len())
	return nil
}

// Back returns the back copy with all appended operations applied. It
// must not be used after the handle is finished.
func (w *WriteHandle[T]) Back() T {
	return w.core.backCopy()
}

// Pending returns the number of appended operations.
func (w *WriteHandle[T]) Pending() int {
	return w.core.ops.Len()
}

// Done reports whether the handle is finished.
func (w *WriteHandle[T]) Done() bool {
	return w.done
}

// Publish commits the back copy and makes it visible to readers. Then it
// waits for readers of the previous copy and replays appended operations
// on it. If ctx is done while waiting for readers, the new copy stays
// published and the rest is finished by the next writer. The handle is
// finished after Publish unless committing the back copy fails.
func (w *WriteHandle[T]) Publish(ctx context.Context) error {
	if w.done {
		return ErrHandleClosed
	}
	var (
		c     = w.core
		start = time.Now()
		n     = c.ops.Len()
	)
	if n == 0 {
		w.finish()
		return nil
	}
	if err := c.backCopy().Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	c.log.Debug("publishing", zap.Array("ops", &c.ops))
	c.swap()
	w.done = true
	defer c.sem.Release(1)

	drained, err := c.catchUp(ctx)
	if err != nil {
		c.log.Warn("published copy is not drained yet", zap.Int("ops", n), zap.Error(err))
		return err
	}
	updatePublishMetrics(start, drained)
	c.log.Debug("published",
		zap.Int("ops", n),
		zap.Duration("drain", drained),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Abort drops all appended operations by resynchronizing the back copy
// with the front one.
func (w *WriteHandle[T]) Abort() error {
	if w.done {
		return ErrHandleClosed
	}
	defer w.finish()
	c := w.core
	if c.ops.Len() == 0 {
		return nil
	}
	c.ops.Clear()
	updatePendingOpsMetric(0)
	if err := c.backCopy().SyncWith(c.frontCopy()); err != nil {
		c.stale = true
		c.resync = true
		return fmt.Errorf("failed to drop pending operations: %w", err)
	}
	return nil
}

func (w *WriteHandle[T]) finish() {
	w.done = true
	w.core.sem.Release(1)
}
