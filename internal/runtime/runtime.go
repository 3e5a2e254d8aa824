// Package runtime hosts the program: it serializes requests per account,
// stamps them with one clock reading, and commits each one atomically.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Klingon-tech/pumpbox/config"
	"github.com/Klingon-tech/pumpbox/internal/clock"
	"github.com/Klingon-tech/pumpbox/internal/dispatch"
	"github.com/Klingon-tech/pumpbox/internal/events"
	klog "github.com/Klingon-tech/pumpbox/internal/log"
	"github.com/Klingon-tech/pumpbox/internal/metrics"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/tx"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// DefaultMaxInFlight bounds concurrently executing requests.
const DefaultMaxInFlight = 256

// Receipt is returned for every committed request.
type Receipt struct {
	TxHash      types.Hash    `json:"tx_hash"`
	Kind        string        `json:"kind"`
	Record      types.Address `json:"record"`
	Mint        types.Address `json:"mint"`
	Phase       types.Phase   `json:"phase"`
	TokensIn    uint64        `json:"tokens_in,omitempty"`
	TokensOut   uint64        `json:"tokens_out,omitempty"`
	BaseIn      uint64        `json:"base_in,omitempty"`
	BaseOut     uint64        `json:"base_out,omitempty"`
	Fee         uint64        `json:"fee,omitempty"`
	Price       uint64        `json:"price,omitempty"`
	PriceScaled uint64        `json:"price_scaled,omitempty"` // Price times curve.PriceScale.
	At          int64         `json:"at"`
}

// Options configures a Runtime. Zero values select defaults.
type Options struct {
	Clock       clock.Clock
	Bus         *events.Bus
	Metrics     *metrics.Metrics
	MaxInFlight int64
}

// Runtime executes program transactions against a state store.
type Runtime struct {
	cfg        *config.ProgramConfig
	store      *state.Store
	dispatcher *dispatch.Dispatcher
	clock      clock.Clock
	bus        *events.Bus
	metrics    *metrics.Metrics
	locks      *lockTable
	inflight   *semaphore.Weighted
	logger     zerolog.Logger
}

// New creates a runtime over an initialized store.
func New(cfg *config.ProgramConfig, store *state.Store, opts Options) *Runtime {
	if opts.Clock == nil {
		opts.Clock = clock.NewMonotonic(clock.NewSystem())
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	return &Runtime{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatch.New(cfg),
		clock:      opts.Clock,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		locks:      newLockTable(),
		inflight:   semaphore.NewWeighted(opts.MaxInFlight),
		logger:     klog.WithComponent("runtime"),
	}
}

// Config returns the program rules.
func (r *Runtime) Config() *config.ProgramConfig { return r.cfg }

// Store returns the state store.
func (r *Runtime) Store() *state.Store { return r.store }

// Bus returns the event bus committed requests are published on.
func (r *Runtime) Bus() *events.Bus { return r.bus }

// Dispatcher returns the instruction dispatcher.
func (r *Runtime) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// Submit decodes a wire-encoded transaction and processes it.
func (r *Runtime) Submit(ctx context.Context, raw []byte) (*Receipt, error) {
	t, err := tx.Unmarshal(raw)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ObserveRequest("unknown", state.ErrMalformedRequest, 0)
		}
		return nil, fmt.Errorf("%w: %v", state.ErrMalformedRequest, err)
	}
	return r.Process(ctx, t)
}

// Process executes t. Requests with disjoint lock sets run in parallel;
// overlapping ones run one after another. Either every effect of t is
// committed or none is.
func (r *Runtime) Process(ctx context.Context, t *tx.Transaction) (*Receipt, error) {
	start := time.Now()
	kind := "unknown"
	if p, err := r.dispatcher.Decode(t); err == nil {
		kind = p.Kind().String()
	}

	rcpt, err := r.process(ctx, t)
	if r.metrics != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		r.metrics.ObserveRequest(kind, err, time.Since(start))
	}
	if err != nil {
		ev := r.logger.Debug()
		if state.Classify(err) == state.ClassUnknown {
			ev = r.logger.Warn()
		}
		ev.Err(err).Str("kind", kind).Msg("Request rejected")
		return nil, err
	}
	return rcpt, nil
}

func (r *Runtime) process(ctx context.Context, t *tx.Transaction) (*Receipt, error) {
	if err := r.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.inflight.Release(1)

	waitStart := time.Now()
	unlock, err := r.locks.acquire(ctx, r.dispatcher.LockSet(t))
	if err != nil {
		return nil, err
	}
	defer unlock()
	if r.metrics != nil {
		r.metrics.ObserveLockWait(time.Since(waitStart))
	}

	// One clock reading per request; every deadline check compares to it.
	now := r.clock.Unix()

	cs := r.store.Begin()
	res, err := r.dispatcher.Dispatch(cs, t, now)
	if err != nil {
		return nil, err
	}
	if err := cs.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.bus.Publish(res.Event(now))

	rcpt := newReceipt(res, now)
	r.logger.Info().
		Str("tx", rcpt.TxHash.String()).
		Str("kind", rcpt.Kind).
		Str("record", rcpt.Record.String()).
		Str("phase", rcpt.Phase.String()).
		Msg("Request committed")
	return rcpt, nil
}

func newReceipt(res *dispatch.Result, at int64) *Receipt {
	rcpt := &Receipt{
		TxHash: res.TxHash,
		Kind:   res.Kind.String(),
		Record: res.Record.Address,
		Mint:   res.Record.Mint,
		Phase:  res.Record.Phase,
		At:     at,
	}
	if tr := res.Trade; tr != nil {
		rcpt.TokensIn, rcpt.TokensOut = tr.TokensIn, tr.TokensOut
		rcpt.BaseIn, rcpt.BaseOut = tr.BaseIn, tr.BaseOut
		rcpt.Fee, rcpt.Price = tr.Fee, tr.PriceAfter
		rcpt.PriceScaled = tr.PriceAfterScaled
	}
	return rcpt
}
