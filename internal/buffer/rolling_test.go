package buffer

import (
	"fmt"
	"testing"
	"time"

	"github.com/rickgao/pump-tracker/internal/model"
)

func tradeAt(token string, ts time.Time) model.TradeEvent {
	return model.TradeEvent{
		TokenAddress: token,
		Kind:         model.KindBuy,
		SolAmount:    0.1,
		ReceivedAt:   ts,
	}
}

func TestRolling_AppendAndReplay(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	for i := 0; i < 5; i++ {
		buf.Append(tradeAt("TOK", base.Add(time.Duration(i)*time.Second)))
	}

	got := buf.Replay("TOK", base, base.Add(10*time.Second))
	if len(got) != 5 {
		t.Fatalf("Replay returned %d trades, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ReceivedAt.Before(got[i-1].ReceivedAt) {
			t.Errorf("replay order violated at %d", i)
		}
	}
}

func TestRolling_ReplayRange(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	for i := 0; i < 10; i++ {
		buf.Append(tradeAt("TOK", base.Add(time.Duration(i)*time.Second)))
	}

	// Inclusive on both ends.
	got := buf.Replay("TOK", base.Add(2*time.Second), base.Add(5*time.Second))
	if len(got) != 4 {
		t.Errorf("Replay returned %d trades, want 4", len(got))
	}

	// Empty range [t, t] hits exactly one entry.
	got = buf.Replay("TOK", base.Add(3*time.Second), base.Add(3*time.Second))
	if len(got) != 1 {
		t.Errorf("point replay returned %d trades, want 1", len(got))
	}

	// Range before any entry is a no-op.
	got = buf.Replay("TOK", base.Add(-10*time.Second), base.Add(-5*time.Second))
	if len(got) != 0 {
		t.Errorf("out-of-range replay returned %d trades, want 0", len(got))
	}

	// Unknown token is a no-op.
	if got := buf.Replay("OTHER", base, base.Add(time.Minute)); len(got) != 0 {
		t.Errorf("unknown token replay returned %d trades", len(got))
	}
}

func TestRolling_Eviction(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	// A trade at t, clock advanced 200s with a 180s window: everything gone.
	buf.Append(tradeAt("TOK", base))
	now := base.Add(200 * time.Second)

	removed := buf.EvictOlderThan(now.Add(-180 * time.Second))
	if removed != 1 {
		t.Errorf("evicted %d, want 1", removed)
	}
	if got := buf.Replay("TOK", base, now); len(got) != 0 {
		t.Errorf("Replay after eviction returned %d trades, want 0", len(got))
	}
	if buf.Stats().Tokens != 0 {
		t.Errorf("empty token mapping not dropped")
	}
}

func TestRolling_EvictionKeepsTail(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	for i := 0; i < 10; i++ {
		buf.Append(tradeAt("TOK", base.Add(time.Duration(i)*time.Second)))
	}

	// Cutoff is inclusive: ts <= cutoff goes away.
	removed := buf.EvictOlderThan(base.Add(4 * time.Second))
	if removed != 5 {
		t.Errorf("evicted %d, want 5", removed)
	}
	if got := buf.Len(); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
}

func TestRolling_PerTokenCap(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	for i := 0; i < maxPerToken+100; i++ {
		buf.Append(tradeAt("TOK", base.Add(time.Duration(i)*time.Millisecond)))
	}

	got := buf.Replay("TOK", base, base.Add(time.Hour))
	if len(got) != maxPerToken {
		t.Fatalf("buffered %d trades, want cap %d", len(got), maxPerToken)
	}
	// Tail kept: the first 100 appended must be gone.
	wantFirst := base.Add(100 * time.Millisecond)
	if !got[0].ReceivedAt.Equal(wantFirst) {
		t.Errorf("first entry at %v, want %v", got[0].ReceivedAt, wantFirst)
	}
}

func TestRolling_Stats(t *testing.T) {
	buf := NewRolling()
	base := time.Now()

	for i := 0; i < 15; i++ {
		token := fmt.Sprintf("TOK%02d", i)
		for j := 0; j <= i; j++ {
			buf.Append(tradeAt(token, base))
		}
	}

	s := buf.Stats()
	if s.Tokens != 15 {
		t.Errorf("Tokens = %d, want 15", s.Tokens)
	}
	if s.TotalTrades != 120 {
		t.Errorf("TotalTrades = %d, want 120", s.TotalTrades)
	}
	if len(s.Top) != 10 {
		t.Fatalf("Top has %d entries, want 10", len(s.Top))
	}
	if s.Top[0].Token != "TOK14" || s.Top[0].Count != 15 {
		t.Errorf("Top[0] = %+v, want TOK14/15", s.Top[0])
	}
}
