package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/model"
)

func testManager(uri string) *Manager {
	cfg := DefaultManagerConfig()
	cfg.URI = uri
	cfg.RetryDelay = 50 * time.Millisecond
	cfg.MaxRetryDelay = 200 * time.Millisecond
	return NewManager(cfg, metrics.NewRegistry(prometheus.NewRegistry()), nil)
}

func TestManager_Backoff(t *testing.T) {
	m := testManager("ws://localhost:1")
	m.cfg.RetryDelay = 3 * time.Second
	m.cfg.MaxRetryDelay = 60 * time.Second

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 3 * time.Second},
		{1, 4500 * time.Millisecond},
		{2, 6 * time.Second},
		{10, 18 * time.Second},
		{100, 60 * time.Second}, // clamped
	}

	for _, tt := range tests {
		if got := m.backoff(tt.failures); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestManager_HandleTradeMessage(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		data      string
		wantTrade bool
		wantKind  model.TradeKind
	}{
		{
			name:      "buy",
			data:      `{"txType":"buy","mint":"mint1","traderPublicKey":"trader1","solAmount":0.5,"vSolInBondingCurve":40,"vTokensInBondingCurve":800000000}`,
			wantTrade: true,
			wantKind:  model.KindBuy,
		},
		{
			name:      "sell",
			data:      `{"txType":"sell","mint":"mint1","traderPublicKey":"trader2","solAmount":1.2,"vSolInBondingCurve":38,"vTokensInBondingCurve":820000000}`,
			wantTrade: true,
			wantKind:  model.KindSell,
		},
		{name: "create ignored", data: `{"txType":"create","mint":"mint2"}`},
		{name: "subscription ack ignored", data: `{"message":"Successfully subscribed"}`},
		{name: "invalid json", data: `{"txType":`},
		{name: "missing mint", data: `{"txType":"buy","solAmount":1,"vSolInBondingCurve":40,"vTokensInBondingCurve":800000000}`},
		{name: "zero token reserves", data: `{"txType":"buy","mint":"mint1","solAmount":1,"vSolInBondingCurve":40,"vTokensInBondingCurve":0}`},
		{name: "negative sol amount", data: `{"txType":"buy","mint":"mint1","solAmount":-1,"vSolInBondingCurve":40,"vTokensInBondingCurve":800000000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager("ws://localhost:1")
			m.handleTradeMessage(context.Background(), TimestampedMessage{
				Data:       []byte(tt.data),
				ReceivedAt: now,
			})

			if !tt.wantTrade {
				if len(m.trades) != 0 {
					t.Fatalf("expected no trade, got %d", len(m.trades))
				}
				return
			}

			select {
			case ev := <-m.trades:
				if ev.Kind != tt.wantKind {
					t.Errorf("Kind = %v, want %v", ev.Kind, tt.wantKind)
				}
				if ev.TokenAddress != "mint1" {
					t.Errorf("TokenAddress = %q, want mint1", ev.TokenAddress)
				}
				wantPrice := ev.VSolReserves / ev.VTokReserves
				if ev.Price != wantPrice {
					t.Errorf("Price = %v, want %v", ev.Price, wantPrice)
				}
				if !ev.ReceivedAt.Equal(now) {
					t.Errorf("ReceivedAt = %v, want %v", ev.ReceivedAt, now)
				}
			default:
				t.Fatal("expected a trade on the output channel")
			}
		})
	}
}

func TestManager_HandleTradeMessage_Counters(t *testing.T) {
	m := testManager("ws://localhost:1")
	ctx := context.Background()

	m.handleTradeMessage(ctx, TimestampedMessage{Data: []byte(`not json`), ReceivedAt: time.Now()})
	m.handleTradeMessage(ctx, TimestampedMessage{Data: []byte(`{"txType":"buy","mint":"m","solAmount":1,"vSolInBondingCurve":40,"vTokensInBondingCurve":8e8}`), ReceivedAt: time.Now()})

	if got := testutil.ToFloat64(m.metrics.TradesReceived); got != 2 {
		t.Errorf("trades_received = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.metrics.ParseErrors); got != 1 {
		t.Errorf("parse_errors = %v, want 1", got)
	}
}

func TestManager_EnqueueSubscribe(t *testing.T) {
	m := testManager("ws://localhost:1")

	m.EnqueueSubscribe([]string{"a", "b", "a"})
	m.EnqueueSubscribe([]string{"b", "c"})

	got := m.drainSubscribes(<-m.subscribeCh)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("queued %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("queued[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestManager_Run_DeliversTrades(t *testing.T) {
	trade := `{"txType":"buy","mint":"mintX","traderPublicKey":"t1","solAmount":0.25,"vSolInBondingCurve":31,"vTokensInBondingCurve":900000000}`

	// Both streams connect here. The new-token consumer ignores buy frames,
	// so only the trade loop publishes.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(trade)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := testManager(wsURL(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-m.Trades():
		if ev.TokenAddress != "mintX" {
			t.Errorf("TokenAddress = %q, want mintX", ev.TokenAddress)
		}
		if ev.Kind != model.KindBuy {
			t.Errorf("Kind = %v, want buy", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for trade")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for shutdown")
	}
}

func TestManager_NewTokenQueuesSubscribe(t *testing.T) {
	create := `{"txType":"create","mint":"fresh1","traderPublicKey":"dev1"}`

	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(create)); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	m := testManager(wsURL(server))

	client := NewClient(m.clientConfig(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.consumeNewTokens(ctx, client)

	select {
	case token := <-m.subscribeCh:
		if token != "fresh1" {
			t.Errorf("queued %q, want fresh1", token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe request")
	}

	// Duplicate announcements must not queue twice.
	if m.markEarly("fresh1") {
		t.Error("fresh1 should already be marked subscribed")
	}
}
