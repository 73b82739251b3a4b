package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/rickgao/pump-tracker/internal/model"
)

// maxPerToken caps each token's entry list. 5000 trades over a 3 minute
// window is ~27 trades/second; anything hotter keeps only the tail.
const maxPerToken = 5000

// Rolling is a thread-safe, per-token, time-windowed trade store.
// Appends are chronological per token (arrival order), so replay never
// needs to re-sort.
type Rolling struct {
	mu      sync.Mutex
	byToken map[string][]model.TradeEvent

	// Stats
	totalAppended int64
	totalEvicted  int64
}

// NewRolling creates an empty rolling buffer.
func NewRolling() *Rolling {
	return &Rolling{
		byToken: make(map[string][]model.TradeEvent),
	}
}

// Append adds a trade to its token's sequence, truncating to the newest
// maxPerToken entries on overflow.
func (b *Rolling) Append(t model.TradeEvent) {
	if t.TokenAddress == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := append(b.byToken[t.TokenAddress], t)
	if len(entries) > maxPerToken {
		entries = entries[len(entries)-maxPerToken:]
	}
	b.byToken[t.TokenAddress] = entries
	b.totalAppended++
}

// EvictOlderThan removes all entries received at or before cutoff and drops
// tokens whose sequences become empty. Returns the number of evicted entries.
func (b *Rolling) EvictOlderThan(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for token, entries := range b.byToken {
		// Entries are in arrival order: find the first survivor.
		i := 0
		for i < len(entries) && !entries[i].ReceivedAt.After(cutoff) {
			i++
		}
		if i == 0 {
			continue
		}
		removed += i
		if i == len(entries) {
			delete(b.byToken, token)
			continue
		}
		kept := make([]model.TradeEvent, len(entries)-i)
		copy(kept, entries[i:])
		b.byToken[token] = kept
	}
	b.totalEvicted += int64(removed)
	return removed
}

// Replay returns a snapshot of the token's entries with
// from <= ReceivedAt <= to, in chronological order. The returned slice is a
// copy and stays consistent under concurrent appends.
func (b *Rolling) Replay(token string, from, to time.Time) []model.TradeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.byToken[token]
	if len(entries) == 0 {
		return nil
	}

	var out []model.TradeEvent
	for _, e := range entries {
		if e.ReceivedAt.Before(from) || e.ReceivedAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the total number of buffered trades across all tokens.
func (b *Rolling) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, entries := range b.byToken {
		total += len(entries)
	}
	return total
}

// TokenCount pairs a token address with its buffered trade count.
type TokenCount struct {
	Token string `json:"token"`
	Count int    `json:"count"`
}

// Stats summarizes buffer state for the health surface.
type Stats struct {
	TotalTrades   int          `json:"total_trades_in_buffer"`
	Tokens        int          `json:"tokens_with_buffer"`
	Top           []TokenCount `json:"top_tokens"`
	TotalAppended int64        `json:"-"`
	TotalEvicted  int64        `json:"-"`
}

// Stats returns current buffer statistics including the top-10 tokens by
// buffered trade count.
func (b *Rolling) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Tokens:        len(b.byToken),
		TotalAppended: b.totalAppended,
		TotalEvicted:  b.totalEvicted,
	}
	counts := make([]TokenCount, 0, len(b.byToken))
	for token, entries := range b.byToken {
		s.TotalTrades += len(entries)
		counts = append(counts, TokenCount{Token: token, Count: len(entries)})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Token < counts[j].Token
	})
	if len(counts) > 10 {
		counts = counts[:10]
	}
	s.Top = counts
	return s
}
