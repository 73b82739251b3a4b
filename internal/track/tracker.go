package track

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/model"
	"github.com/rickgao/pump-tracker/internal/registry"
)

// graduationPct is the bonding-curve fill at which a token moves to Raydium
// and tracking ends.
const graduationPct = 99.5

// Config holds the tracking parameters.
type Config struct {
	SolReservesFull float64       // Bonding curve SOL capacity
	WhaleThreshold  float64       // Whale trade cutoff in SOL
	AgeOffset       time.Duration // Subtracted from token age before phase checks
	BufferWindow    time.Duration // Rolling buffer retention, bounds replays
}

// RowWriter flushes one tick's batch of metric rows.
type RowWriter interface {
	Flush(ctx context.Context, rows []model.MetricRow)
}

// Replayer returns buffered trades for a token in ascending order.
type Replayer interface {
	Replay(token string, from, to time.Time) []model.TradeEvent
}

// Subscriber requests trade subscriptions for newly activated tokens.
type Subscriber interface {
	EnqueueSubscribe(tokens []string)
}

// Stats is the tracker summary exposed on the health surface.
type Stats struct {
	TrackedTokens   int   `json:"tracked_tokens"`
	TradesProcessed int64 `json:"trades_processed"`
}

// entry is one watched token: its registry record plus the open window.
type entry struct {
	meta      model.ActiveToken
	agg       *Aggregator
	interval  time.Duration
	nextFlush time.Time
}

// Tracker owns the watchlist and drives the per-token lifecycle. All state
// is behind one mutex; callers drive it from the trade loop (Apply), the
// refresher (Refresh) and the tick driver (Tick).
type Tracker struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Registry

	store      registry.Store
	writer     RowWriter
	replayer   Replayer
	subscriber Subscriber

	mu        sync.Mutex
	phases    map[int]model.Phase
	phaseIDs  []int // ascending
	watch     map[string]*entry
	processed int64
}

// NewTracker creates a tracker. SetSubscriber must be called before Refresh.
func NewTracker(cfg Config, store registry.Store, writer RowWriter, replayer Replayer, reg *metrics.Registry, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		cfg:      cfg,
		logger:   logger,
		metrics:  reg,
		store:    store,
		writer:   writer,
		replayer: replayer,
		watch:    make(map[string]*entry),
	}
}

// SetSubscriber wires the upstream subscription requester.
func (t *Tracker) SetSubscriber(s Subscriber) {
	t.subscriber = s
}

// LoadPhases reads the phase table. Must succeed before tracking starts.
func (t *Tracker) LoadPhases(ctx context.Context) error {
	phases, err := t.store.LoadPhases(ctx)
	if err != nil {
		return err
	}
	if len(phases) == 0 {
		return fmt.Errorf("phase table is empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = make(map[int]model.Phase, len(phases))
	t.phaseIDs = t.phaseIDs[:0]
	for _, p := range phases {
		t.phases[p.ID] = p
		t.phaseIDs = append(t.phaseIDs, p.ID)
	}
	sort.Ints(t.phaseIDs)

	t.logger.Info("phases loaded", "ids", t.phaseIDs)
	return nil
}

// ActiveTokens returns the current watchlist keys. Used for the bulk
// subscribe on trade stream (re)connect.
func (t *Tracker) ActiveTokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	tokens := make([]string, 0, len(t.watch))
	for token := range t.watch {
		tokens = append(tokens, token)
	}
	return tokens
}

// Stats returns a summary for the health surface.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		TrackedTokens:   len(t.watch),
		TradesProcessed: t.processed,
	}
}

// Apply folds a live trade into its token's open window. Trades for tokens
// outside the watchlist are ignored; they stay available in the rolling
// buffer for a later replay.
func (t *Tracker) Apply(ev model.TradeEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyLocked(ev)
}

func (t *Tracker) applyLocked(ev model.TradeEvent) bool {
	e, ok := t.watch[ev.TokenAddress]
	if !ok {
		return false
	}

	e.agg.Apply(ev, e.meta.CreatorAddress, t.cfg.WhaleThreshold)
	t.processed++
	t.metrics.TradesProcessed.Inc()

	if t.processed%100 == 0 {
		t.logger.Debug("trade progress", "processed", t.processed, "tracked", len(t.watch))
	}
	return true
}

// Refresh reconciles the watchlist against the registry's active set.
// Additions are subscribed and their buffered trades replayed in order;
// removals are dropped locally. A refresh failure leaves the watchlist
// untouched.
func (t *Tracker) Refresh(ctx context.Context, now time.Time) error {
	active, err := t.store.ActiveStreams(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var removed int
	for token := range t.watch {
		if _, ok := active[token]; !ok {
			delete(t.watch, token)
			removed++
		}
	}

	var added []string
	for token, meta := range active {
		if _, ok := t.watch[token]; ok {
			continue
		}
		added = append(added, token)

		phase, ok := t.phases[meta.PhaseID]
		if !ok && len(t.phaseIDs) > 0 {
			phase = t.phases[t.phaseIDs[0]]
			meta.PhaseID = phase.ID
		}
		t.watch[token] = &entry{
			meta:      meta,
			agg:       NewAggregator(),
			interval:  phase.Interval,
			nextFlush: now.Add(phase.Interval),
		}
	}

	if len(added) > 0 {
		if t.subscriber != nil {
			t.subscriber.EnqueueSubscribe(added)
		}

		// Fold trades that arrived before activation. The buffer holds at
		// most BufferWindow of history, and nothing predates creation.
		var replayed int
		for _, token := range added {
			meta := t.watch[token].meta
			from := now.Add(-t.cfg.BufferWindow)
			if meta.CreatedAt.After(from) {
				from = meta.CreatedAt
			}
			for _, ev := range t.replayer.Replay(token, from, now) {
				if t.applyLocked(ev) {
					replayed++
					t.metrics.TradesFromBuffer.Inc()
				}
			}
		}
		if replayed > 0 {
			t.logger.Info("replayed buffered trades for new tokens", "tokens", len(added), "trades", replayed)
		}
		t.logger.Info("watchlist grew", "added", len(added), "total", len(t.watch))
	}
	if removed > 0 {
		t.logger.Info("watchlist shrank", "removed", removed, "total", len(t.watch))
	}

	t.metrics.CoinsTracked.Set(float64(len(t.watch)))
	return nil
}

// Tick runs one lifecycle pass: graduation, then phase promotion, then
// flush, in that order, so terminal tokens never emit a post-terminal row
// and promotions take effect on the following window.
func (t *Tracker) Tick(ctx context.Context, now time.Time) {
	t.mu.Lock()

	var batch []model.MetricRow
	var writes []registryWrite

	for token, e := range t.watch {
		bondingPct := e.agg.LastVSol() / t.cfg.SolReservesFull * 100
		if bondingPct >= graduationPct {
			writes = append(writes, registryWrite{token: token, graduated: true})
			delete(t.watch, token)
			continue
		}

		age := now.Sub(e.meta.CreatedAt) - t.cfg.AgeOffset
		if age < 0 {
			age = 0
		}
		phase, ok := t.phases[e.meta.PhaseID]
		if ok && age > phase.MaxAge {
			nextID := t.nextPhaseID(e.meta.PhaseID)
			if nextID == 0 || nextID >= model.PhaseFinished {
				writes = append(writes, registryWrite{token: token})
				delete(t.watch, token)
				continue
			}
			writes = append(writes, registryWrite{token: token, promoteFrom: e.meta.PhaseID, promoteTo: nextID})
			e.meta.PhaseID = nextID
			e.interval = t.phases[nextID].Interval
			e.nextFlush = now.Add(e.interval)
		}

		if !now.Before(e.nextFlush) {
			if e.agg.TotalVol() > 0 {
				batch = append(batch, e.agg.Row(token, now.UTC(), e.meta.PhaseID, t.cfg.SolReservesFull))
			}
			e.agg = NewAggregator()
			e.nextFlush = now.Add(e.interval)
		}
	}

	t.metrics.CoinsTracked.Set(float64(len(t.watch)))
	t.mu.Unlock()

	if len(batch) > 0 {
		t.writer.Flush(ctx, batch)
	}

	for _, w := range writes {
		if w.promoteTo != 0 {
			if err := t.store.SwitchPhase(ctx, w.token, w.promoteFrom, w.promoteTo); err != nil {
				t.logger.Warn("phase switch failed", "token", w.token, "error", err)
			}
			continue
		}
		if err := t.store.StopTracking(ctx, w.token, w.graduated); err != nil {
			t.logger.Warn("stop tracking failed", "token", w.token, "error", err)
		}
	}
}

// registryWrite is a phase or terminal registry update decided during a
// tick, carried out after the batch flush.
type registryWrite struct {
	token       string
	graduated   bool
	promoteFrom int
	promoteTo   int
}

// nextPhaseID returns the smallest real phase id above current, or 0.
func (t *Tracker) nextPhaseID(current int) int {
	for _, id := range t.phaseIDs {
		if id > current {
			return id
		}
	}
	return 0
}
