// Package orchestrator implements the SyncOrchestrator, the heart of the
// system (spec §4.5): local document CRUD, debounced/periodic/event-driven
// scheduling of the pull/push/apply/resolve state machine, and the
// invariants connecting them.
//
// Exclusivity is implemented as a non-blocking try-acquire of a single
// permit (spec §9), here an atomic.Bool CAS rather than a channel
// semaphore or a single run-loop goroutine: local CRUD must never contend
// for that permit (spec §9), so CRUD operations talk to the store and
// tracker directly and concurrently, while pull/push/sync gate on the CAS
// before doing any work.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kestrel-sync/docsync/changetracker"
	"github.com/kestrel-sync/docsync/contract"
	"github.com/kestrel-sync/docsync/events"
	"github.com/kestrel-sync/docsync/pkg/metrics"
	"github.com/kestrel-sync/docsync/resolver"
	"github.com/kestrel-sync/docsync/syncmodel"
)

// Orchestrator is the synchronization engine. T is the document payload
// type; serialization to/from the wire is the Transport's concern, not the
// orchestrator's (spec §9).
type Orchestrator[T any] struct {
	store     contract.Store[T]
	transport contract.Transport[T]
	resolver  resolver.Resolver[T]
	tracker   *changetracker.Tracker[T]
	bus       *events.Bus
	logger    *slog.Logger
	metrics   *metrics.SyncMetrics
	retry     *metrics.RetryMetrics
	cfg       Config
	now       func() syncmodel.Timestamp
	newID     func() syncmodel.DocumentID

	started   atomic.Bool
	isOnline  atomic.Bool
	isSyncing atomic.Bool

	pullTs atomic.Int64
	pushTs atomic.Int64

	// liveBatchSize overrides cfg.BatchSize when non-zero, allowing the
	// ConfigMap watcher to retune batch size without a restart.
	liveBatchSize atomic.Int32

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	stopCh         chan struct{}
	syncIntervalCh chan time.Duration
	wg             sync.WaitGroup

	unsubscribeRemote func()
}

// Options carries the collaborators New needs beyond Config.
type Options[T any] struct {
	Store     contract.Store[T]
	Transport contract.Transport[T]
	Resolver  resolver.Resolver[T]     // defaults to resolver.NewLWW[T]() if nil
	Bus       *events.Bus              // defaults to events.New(logger) if nil
	Logger    *slog.Logger             // defaults to slog.Default()
	Metrics   *metrics.SyncMetrics     // optional
	Retry     *metrics.RetryMetrics    // optional
	Now       func() syncmodel.Timestamp // defaults to wall-clock millis
	NewID     func() syncmodel.DocumentID // defaults to a random UUID
}

// New constructs a stopped Orchestrator. Call Start to bring it up.
func New[T any](cfg Config, opts Options[T]) *Orchestrator[T] {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sync_orchestrator")

	res := opts.Resolver
	if res == nil {
		res = resolver.NewLWW[T]()
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.New(logger)
	}
	now := opts.Now
	if now == nil {
		now = wallClockMillis
	}
	newID := opts.NewID
	if newID == nil {
		newID = randomID
	}

	o := &Orchestrator[T]{
		store:     opts.Store,
		transport: opts.Transport,
		resolver:  res,
		tracker:   changetracker.New[T](now),
		bus:       bus,
		logger:    logger,
		metrics:   opts.Metrics,
		retry:     opts.Retry,
		cfg:       cfg.withDefaults(),
		now:       now,
		newID:     newID,
		stopCh:    make(chan struct{}),
		syncIntervalCh: make(chan time.Duration, 1),
	}
	return o
}

func wallClockMillis() syncmodel.Timestamp {
	return syncmodel.Timestamp(time.Now().UnixMilli())
}

func randomID() syncmodel.DocumentID {
	return syncmodel.DocumentID(uuid.NewString())
}

// Bus exposes the event bus so callers can subscribe before or after Start.
func (o *Orchestrator[T]) Bus() *events.Bus { return o.bus }

// Tracker exposes the change tracker, primarily for tests.
func (o *Orchestrator[T]) Tracker() *changetracker.Tracker[T] { return o.tracker }

// Start brings the orchestrator up (spec §4.5.2). It is idempotent: calling
// Start on an already-started orchestrator is a no-op.
func (o *Orchestrator[T]) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return nil
	}

	pullTs, err := o.store.GetLastSyncTimestamp(ctx)
	if err != nil {
		o.logger.Warn("failed to load last sync timestamp, resetting to 0", "error", err)
		pullTs = 0
	}
	o.pullTs.Store(int64(pullTs))
	o.pushTs.Store(int64(pullTs))

	o.probeOnline(ctx)

	if o.cfg.SyncInterval > 0 {
		o.wg.Add(1)
		go o.runTicker(o.syncIntervalCh, o.cfg.SyncInterval, o.periodicSyncTick)
	}

	o.wg.Add(1)
	go o.runTicker(nil, o.cfg.OnlineProbeInterval, o.onlineProbeTick)

	if unsub, ok := o.transport.OnRemoteChange(o.handleRemoteChange); ok {
		o.unsubscribeRemote = unsub
	}

	if o.isOnline.Load() {
		o.Sync(ctx)
	}

	o.logger.Info("sync orchestrator started")
	return nil
}

// Stop tears down all timers and tickers and, if configured, closes the
// store. In-flight transport calls run to completion; Stop does not cancel
// them (spec §5).
func (o *Orchestrator[T]) Stop(ctx context.Context) error {
	if !o.started.CompareAndSwap(true, false) {
		return nil
	}

	close(o.stopCh)
	o.wg.Wait()
	o.stopCh = make(chan struct{})
	o.syncIntervalCh = make(chan time.Duration, 1)

	o.debounceMu.Lock()
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
	o.debounceMu.Unlock()

	if o.unsubscribeRemote != nil {
		o.unsubscribeRemote()
		o.unsubscribeRemote = nil
	}

	if o.cfg.CloseStoreOnStop {
		if err := o.store.Close(ctx); err != nil {
			o.logger.Warn("error closing store during stop", "error", err)
			return fmt.Errorf("closing store: %w", err)
		}
	}

	o.logger.Info("sync orchestrator stopped")
	return nil
}

// runTicker drives fn at interval until stopCh closes. When reset is
// non-nil, a duration sent on it swaps the ticker's period in place, used
// by UpdateTuning to retune the periodic sync ticker without a restart.
func (o *Orchestrator[T]) runTicker(reset <-chan time.Duration, interval time.Duration, fn func()) {
	defer o.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case d, ok := <-reset:
			if !ok {
				reset = nil
				continue
			}
			ticker.Reset(d)
		case <-o.stopCh:
			return
		}
	}
}

// UpdateTuning applies a live configuration update (spec'd for the
// Kubernetes ConfigMap watcher): batch size takes effect on the next Push,
// and a non-zero sync interval reopens the periodic ticker in place. Zero
// fields in update are left unchanged.
func (o *Orchestrator[T]) UpdateTuning(update TuningUpdate) {
	if update.BatchSize > 0 {
		o.liveBatchSize.Store(int32(update.BatchSize))
	}
	if update.SyncInterval > 0 {
		select {
		case o.syncIntervalCh <- update.SyncInterval:
		default:
		}
	}
}

// TuningUpdate is the live-tunable subset of Config.
type TuningUpdate struct {
	SyncInterval time.Duration
	BatchSize    int
}

func (o *Orchestrator[T]) effectiveBatchSize() int {
	if n := o.liveBatchSize.Load(); n > 0 {
		return int(n)
	}
	return o.cfg.BatchSize
}

func (o *Orchestrator[T]) periodicSyncTick() {
	o.Sync(context.Background())
}

// GetSyncState returns the recomputed-on-demand snapshot from spec §3.
func (o *Orchestrator[T]) GetSyncState() syncmodel.SyncState {
	return syncmodel.SyncState{
		LastPullTs:     syncmodel.Timestamp(o.pullTs.Load()),
		LastPushTs:     syncmodel.Timestamp(o.pushTs.Load()),
		PendingChanges: o.tracker.GetPendingChangeCount(),
		IsOnline:       o.isOnline.Load(),
		IsSyncing:      o.isSyncing.Load(),
	}
}

func (o *Orchestrator[T]) emitStateChanged() {
	state := o.GetSyncState()
	o.metrics.SetPendingChanges(state.PendingChanges)
	o.bus.Emit(events.StateChanged, StateChangedPayload{State: state})
}
