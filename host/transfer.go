package host

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/softuac/host/hal"
	"github.com/ardnew/softuac/pkg"
)

// Queue depths.
const (
	// controlQueueDepth bounds pending asynchronous control transfers.
	controlQueueDepth = 100

	// isoQueueDepth bounds pending transfers per isochronous endpoint.
	isoQueueDepth = 64
)

// Transfer represents a USB transfer request.
type Transfer struct {
	// Device address
	Address uint8

	// Endpoint address (0x00-0x0F for OUT, 0x80-0x8F for IN)
	Endpoint uint8

	// Transfer type
	Type hal.TransferType

	// Frame is the bus frame an isochronous transfer is scheduled for.
	Frame uint64

	// Data buffer (for all transfers)
	Data []byte

	// Setup packet (for control transfers only)
	Setup *hal.SetupPacket

	// Callback when transfer completes. It runs on a transfer manager
	// goroutine and must not block.
	Callback func(*Transfer, int, error)

	// Context for cancellation
	Context context.Context

	// Completed is the time the transfer finished.
	Completed time.Time

	// Internal state
	id        uint64
	completed int32
	result    int
	err       error
}

// IsComplete returns true if the transfer has completed.
func (t *Transfer) IsComplete() bool {
	return atomic.LoadInt32(&t.completed) != 0
}

// Result returns the transfer result.
func (t *Transfer) Result() (int, error) {
	return t.result, t.err
}

// reset clears completion state so a transfer object can be resubmitted.
func (t *Transfer) reset() {
	atomic.StoreInt32(&t.completed, 0)
	t.result = 0
	t.err = nil
	t.Completed = time.Time{}
}

type isoKey struct {
	address  uint8
	endpoint uint8
}

// TransferManager executes asynchronous transfers. Control transfers are
// spread over a worker pool. Isochronous transfers get one ordered queue per
// endpoint, so completions on an endpoint arrive in submission order.
type TransferManager struct {
	hal hal.HostHAL

	// Pending transfers (by ID)
	pending   map[uint64]*Transfer
	pendingMu sync.RWMutex

	// Next transfer ID
	nextID uint64

	// Worker pool
	workers int
	jobs    chan *Transfer

	// Isochronous queues
	iso map[isoKey]chan *Transfer

	// State
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTransferManager creates a new transfer manager.
func NewTransferManager(h hal.HostHAL, workers int) *TransferManager {
	if workers < 1 {
		workers = 1
	}
	return &TransferManager{
		hal:     h,
		pending: make(map[uint64]*Transfer),
		workers: workers,
		jobs:    make(chan *Transfer, controlQueueDepth),
		iso:     make(map[isoKey]chan *Transfer),
	}
}

// Start starts the transfer manager.
func (tm *TransferManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.running {
		return pkg.ErrAlreadyRunning
	}

	tm.ctx, tm.cancel = context.WithCancel(ctx)
	tm.running = true

	for i := 0; i < tm.workers; i++ {
		tm.wg.Add(1)
		go tm.worker(i)
	}

	return nil
}

// Stop stops the transfer manager. Transfers still queued complete with
// pkg.ErrCancelled.
func (tm *TransferManager) Stop() error {
	tm.mu.Lock()
	if !tm.running {
		tm.mu.Unlock()
		return nil
	}
	tm.running = false
	tm.cancel()
	tm.mu.Unlock()

	tm.wg.Wait()

	// No goroutine reads the queues anymore; flush what is left.
	tm.flush(tm.jobs)
	tm.mu.Lock()
	queues := tm.iso
	tm.iso = make(map[isoKey]chan *Transfer)
	tm.mu.Unlock()
	for _, q := range queues {
		tm.flush(q)
	}

	return nil
}

func (tm *TransferManager) flush(q chan *Transfer) {
	for {
		select {
		case t := <-q:
			tm.finish(t, 0, pkg.ErrCancelled)
		default:
			return
		}
	}
}

// IsRunning reports whether the manager accepts transfers.
func (tm *TransferManager) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// Submit submits a transfer for execution and returns its ID. A full queue
// fails fast with pkg.ErrBusy.
func (tm *TransferManager) Submit(t *Transfer) (uint64, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if !tm.running {
		return 0, pkg.ErrNotRunning
	}

	var q chan *Transfer
	switch t.Type {
	case hal.TransferControl:
		if t.Setup == nil {
			return 0, pkg.ErrInvalidParameter
		}
		q = tm.jobs

	case hal.TransferIsochronous:
		key := isoKey{address: t.Address, endpoint: t.Endpoint}
		q = tm.iso[key]
		if q == nil {
			q = make(chan *Transfer, isoQueueDepth)
			tm.iso[key] = q
			tm.wg.Add(1)
			go tm.isoWorker(key, q)
		}

	default:
		return 0, pkg.ErrNotSupported
	}

	t.reset()
	t.id = atomic.AddUint64(&tm.nextID, 1)

	tm.pendingMu.Lock()
	tm.pending[t.id] = t
	tm.pendingMu.Unlock()

	select {
	case q <- t:
		return t.id, nil
	default:
		tm.pendingMu.Lock()
		delete(tm.pending, t.id)
		tm.pendingMu.Unlock()
		return 0, pkg.ErrBusy
	}
}

// Cancel cancels a pending transfer. Its callback runs with
// pkg.ErrCancelled unless it already completed.
func (tm *TransferManager) Cancel(id uint64) error {
	tm.pendingMu.RLock()
	t, ok := tm.pending[id]
	tm.pendingMu.RUnlock()

	if !ok {
		return nil
	}

	tm.finish(t, 0, pkg.ErrCancelled)
	return nil
}

// worker processes control transfers.
func (tm *TransferManager) worker(id int) {
	defer tm.wg.Done()
	pkg.LogDebug(pkg.ComponentTransfer, "transfer worker started", "id", id)

	for {
		select {
		case <-tm.ctx.Done():
			pkg.LogDebug(pkg.ComponentTransfer, "transfer worker stopped", "id", id)
			return
		case t := <-tm.jobs:
			tm.executeTransfer(t)
		}
	}
}

// isoWorker services one isochronous endpoint in submission order.
func (tm *TransferManager) isoWorker(key isoKey, q chan *Transfer) {
	defer tm.wg.Done()
	pkg.LogDebug(pkg.ComponentTransfer, "isochronous queue started",
		"address", key.address,
		"endpoint", key.endpoint)

	for {
		select {
		case <-tm.ctx.Done():
			return
		case t := <-q:
			tm.executeTransfer(t)
		}
	}
}

// executeTransfer executes a single transfer.
func (tm *TransferManager) executeTransfer(t *Transfer) {
	if t.IsComplete() {
		return
	}

	ctx := t.Context
	if ctx == nil {
		ctx = tm.ctx
	}
	if err := ctx.Err(); err != nil {
		tm.finish(t, 0, err)
		return
	}

	var n int
	var err error

	switch t.Type {
	case hal.TransferControl:
		n, err = tm.hal.ControlTransfer(ctx, hal.DeviceAddress(t.Address), t.Setup, t.Data)

	case hal.TransferIsochronous:
		n, err = tm.hal.IsochronousTransfer(ctx, hal.DeviceAddress(t.Address), t.Endpoint, t.Frame, t.Data)

	default:
		err = pkg.ErrInvalidParameter
	}

	tm.finish(t, n, err)
}

// finish completes a transfer exactly once and invokes its callback.
func (tm *TransferManager) finish(t *Transfer, n int, err error) {
	if !atomic.CompareAndSwapInt32(&t.completed, 0, 1) {
		return
	}
	t.result = n
	t.err = err
	t.Completed = time.Now()

	tm.pendingMu.Lock()
	delete(tm.pending, t.id)
	tm.pendingMu.Unlock()

	if err != nil {
		pkg.LogDebug(pkg.ComponentTransfer, "transfer failed",
			"type", t.Type,
			"address", t.Address,
			"endpoint", t.Endpoint,
			"status", pkg.StatusOf(err))
	}

	if t.Callback != nil {
		t.Callback(t, n, err)
	}
}

// PendingCount returns the number of pending transfers.
func (tm *TransferManager) PendingCount() int {
	tm.pendingMu.RLock()
	defer tm.pendingMu.RUnlock()
	return len(tm.pending)
}

// WaitAll waits for all pending transfers to complete.
func (tm *TransferManager) WaitAll(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for tm.PendingCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
