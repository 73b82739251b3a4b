package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/model"
)

// ManagerConfig configures the dual-stream manager.
type ManagerConfig struct {
	URI               string
	RetryDelay        time.Duration // Base reconnect delay
	MaxRetryDelay     time.Duration // Reconnect delay cap
	PingInterval      time.Duration
	PingTimeout       time.Duration
	ConnectionTimeout time.Duration
	SubscribeQueue    int // New-token subscribe queue size
	MessageBuffer     int // Per-connection message channel size
	TradeBuffer       int // Parsed trade output channel size
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RetryDelay:        3 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		PingInterval:      20 * time.Second,
		PingTimeout:       10 * time.Second,
		ConnectionTimeout: 30 * time.Second,
		SubscribeQueue:    256,
		MessageBuffer:     10000,
		TradeBuffer:       10000,
	}
}

// Manager owns both venue subscriptions. The trade loop is the only writer
// to the trade socket; the new-token loop runs as its supervised background
// task and communicates through the subscribe queue.
type Manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	metrics *metrics.Registry
	source  TokenSource

	trades      chan model.TradeEvent
	subscribeCh chan string

	mu     sync.Mutex
	early  map[string]struct{}
	status Status

	wg sync.WaitGroup
}

// NewManager creates a new upstream manager.
func NewManager(cfg ManagerConfig, reg *metrics.Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscribeQueue < 1 {
		cfg.SubscribeQueue = 256
	}
	if cfg.TradeBuffer < 1 {
		cfg.TradeBuffer = 10000
	}

	return &Manager{
		cfg:         cfg,
		logger:      logger,
		metrics:     reg,
		trades:      make(chan model.TradeEvent, cfg.TradeBuffer),
		subscribeCh: make(chan string, cfg.SubscribeQueue),
		early:       make(map[string]struct{}),
	}
}

// SetTokenSource sets the provider of the active set used for the bulk
// subscribe on every trade stream (re)connect. Must be called before Run.
func (m *Manager) SetTokenSource(ts TokenSource) {
	m.source = ts
}

// Trades returns the parsed trade output channel.
func (m *Manager) Trades() <-chan model.TradeEvent {
	return m.trades
}

// Run connects both streams and blocks until ctx is cancelled. Each stream
// reconnects independently; a failure on one never tears down the other.
func (m *Manager) Run(ctx context.Context) error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runNewTokenStream(ctx)
	}()

	m.runTradeStream(ctx)

	m.wg.Wait()
	close(m.trades)
	return ctx.Err()
}

// EnqueueSubscribe requests trade subscriptions for tokens that were not
// announced on the new-token stream (registry additions). Already-subscribed
// tokens are skipped.
func (m *Manager) EnqueueSubscribe(tokens []string) {
	for _, token := range tokens {
		if !m.markEarly(token) {
			continue
		}
		select {
		case m.subscribeCh <- token:
		default:
			m.logger.Warn("subscribe queue full, dropping request", "token", token)
		}
	}
}

// Status returns a snapshot of both connection states.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// markEarly records a token as subscribed. Returns false if it already was.
func (m *Manager) markEarly(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.early[token]; ok {
		return false
	}
	m.early[token] = struct{}{}
	return true
}

func (m *Manager) clientConfig() ClientConfig {
	return ClientConfig{
		URI:               m.cfg.URI,
		PingInterval:      m.cfg.PingInterval,
		PingTimeout:       m.cfg.PingTimeout,
		ConnectionTimeout: m.cfg.ConnectionTimeout,
		BufferSize:        m.cfg.MessageBuffer,
	}
}

// backoff returns the reconnect delay for the nth consecutive failure:
// min(base * (1 + 0.5n), max).
func (m *Manager) backoff(failures int) time.Duration {
	d := time.Duration(float64(m.cfg.RetryDelay) * (1 + 0.5*float64(failures)))
	if d > m.cfg.MaxRetryDelay {
		d = m.cfg.MaxRetryDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// -----------------------------------------------------------------------------
// Trade stream
// -----------------------------------------------------------------------------

func (m *Manager) runTradeStream(ctx context.Context) {
	logger := m.logger.With("stream", "trade")
	failures := 0

	for ctx.Err() == nil {
		client := NewClient(m.clientConfig(), logger)
		if err := client.Connect(ctx); err != nil {
			failures++
			m.recordError("trade connect: " + err.Error())
			m.metrics.WSReconnects.Inc()
			logger.Warn("connect failed", "error", err, "attempt", failures)
			if !sleepCtx(ctx, m.backoff(failures)) {
				return
			}
			continue
		}

		if err := m.bulkSubscribe(client); err != nil {
			failures++
			m.recordError("trade subscribe: " + err.Error())
			m.metrics.WSReconnects.Inc()
			logger.Warn("bulk subscribe failed", "error", err)
			client.Close()
			if !sleepCtx(ctx, m.backoff(failures)) {
				return
			}
			continue
		}

		// Successful subscribe resets the failure count.
		failures = 0
		m.setTradeConnected(true)
		m.metrics.WSConnected.Set(1)
		logger.Info("trade stream connected")

		err := m.consumeTrades(ctx, client)
		client.Close()
		m.setTradeConnected(false)
		m.metrics.WSConnected.Set(0)

		if ctx.Err() != nil {
			return
		}

		failures++
		m.metrics.WSReconnects.Inc()
		if err != nil {
			m.recordError("trade stream: " + err.Error())
			logger.Warn("trade stream disconnected", "error", err)
		}
		if !sleepCtx(ctx, m.backoff(failures)) {
			return
		}
	}
}

// bulkSubscribe subscribes to every token in the active set in one frame.
func (m *Manager) bulkSubscribe(client Client) error {
	var keys []string
	if m.source != nil {
		keys = m.source.ActiveTokens()
	}
	for _, token := range keys {
		m.markEarly(token)
	}
	if len(keys) == 0 {
		// Nothing tracked yet; the new-token stream will feed us.
		return m.sendSubscribe(client, nil)
	}
	m.logger.Info("bulk subscribing active tokens", "count", len(keys))
	return m.sendSubscribe(client, keys)
}

// sendSubscribe sends a subscribeTokenTrade frame. A nil key set is a probe
// write confirming the socket is usable.
func (m *Manager) sendSubscribe(client Client, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	data, err := json.Marshal(subscribeCommand{
		Method: methodSubscribeTokenTrade,
		Keys:   keys,
	})
	if err != nil {
		return err
	}
	return client.Send(data)
}

// consumeTrades runs the connected trade loop: drains the subscribe queue,
// parses inbound frames, and publishes trades. Returns on error or shutdown.
func (m *Manager) consumeTrades(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-client.Errors():
			return err

		case token := <-m.subscribeCh:
			keys := m.drainSubscribes(token)
			if err := m.sendSubscribe(client, keys); err != nil {
				return err
			}
			m.logger.Debug("subscribed tokens", "count", len(keys))

		case msg, ok := <-client.Messages():
			if !ok {
				return nil
			}
			m.handleTradeMessage(ctx, msg)
		}
	}
}

// drainSubscribes collects everything queued behind the first token so a
// burst of new tokens becomes a single subscribe frame.
func (m *Manager) drainSubscribes(first string) []string {
	keys := []string{first}
	for {
		select {
		case token := <-m.subscribeCh:
			keys = append(keys, token)
		default:
			return keys
		}
	}
}

// handleTradeMessage parses one inbound frame and publishes the trade.
// Control acks (no txType) are ignored; malformed frames bump a counter.
func (m *Manager) handleTradeMessage(ctx context.Context, msg TimestampedMessage) {
	m.setLastMessage(msg.ReceivedAt)
	m.metrics.TradesReceived.Inc()
	m.metrics.LastTradeTimestamp.Set(float64(msg.ReceivedAt.Unix()))

	var wire tradeWire
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		m.metrics.ParseErrors.Inc()
		return
	}

	var kind model.TradeKind
	switch wire.TxType {
	case "buy":
		kind = model.KindBuy
	case "sell":
		kind = model.KindSell
	default:
		// create events and subscription acks
		return
	}

	if wire.Mint == "" || wire.VTokensInBondingCurve <= 0 || wire.VSolInBondingCurve <= 0 || wire.SolAmount < 0 {
		m.metrics.ParseErrors.Inc()
		return
	}

	ev := model.TradeEvent{
		TokenAddress:  wire.Mint,
		TraderAddress: wire.TraderPublicKey,
		Kind:          kind,
		SolAmount:     wire.SolAmount,
		VSolReserves:  wire.VSolInBondingCurve,
		VTokReserves:  wire.VTokensInBondingCurve,
		Price:         wire.VSolInBondingCurve / wire.VTokensInBondingCurve,
		ReceivedAt:    msg.ReceivedAt,
	}

	select {
	case m.trades <- ev:
	case <-ctx.Done():
	}
}

// -----------------------------------------------------------------------------
// New-token stream
// -----------------------------------------------------------------------------

func (m *Manager) runNewTokenStream(ctx context.Context) {
	logger := m.logger.With("stream", "new_token")
	failures := 0

	for ctx.Err() == nil {
		client := NewClient(m.clientConfig(), logger)
		if err := client.Connect(ctx); err != nil {
			failures++
			logger.Warn("connect failed", "error", err, "attempt", failures)
			if !sleepCtx(ctx, m.backoff(failures)) {
				return
			}
			continue
		}

		data, _ := json.Marshal(subscribeCommand{Method: methodSubscribeNewToken})
		if err := client.Send(data); err != nil {
			failures++
			logger.Warn("subscribe failed", "error", err)
			client.Close()
			if !sleepCtx(ctx, m.backoff(failures)) {
				return
			}
			continue
		}

		failures = 0
		m.setNewTokenConnected(true)
		logger.Info("new-token stream connected")

		err := m.consumeNewTokens(ctx, client)
		client.Close()
		m.setNewTokenConnected(false)

		if ctx.Err() != nil {
			return
		}

		failures++
		if err != nil {
			logger.Warn("new-token stream disconnected", "error", err)
		}
		if !sleepCtx(ctx, m.backoff(failures)) {
			return
		}
	}
}

// consumeNewTokens reads create events and queues subscribe requests for
// the trade loop, so early trades land in the rolling buffer before the
// token is registered.
func (m *Manager) consumeNewTokens(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-client.Errors():
			return err

		case msg, ok := <-client.Messages():
			if !ok {
				return nil
			}

			var wire tradeWire
			if err := json.Unmarshal(msg.Data, &wire); err != nil {
				m.metrics.ParseErrors.Inc()
				continue
			}
			if wire.TxType != "create" || wire.Mint == "" {
				continue
			}
			if !m.markEarly(wire.Mint) {
				continue
			}

			m.logger.Debug("new token announced", "token", wire.Mint)
			select {
			case m.subscribeCh <- wire.Mint:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Status bookkeeping
// -----------------------------------------------------------------------------

func (m *Manager) setTradeConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Trade.Connected = up
	if up {
		m.status.Trade.ConnectedSince = time.Now()
		m.status.LastError = ""
	} else {
		m.status.Trade.ReconnectCount++
	}
}

func (m *Manager) setNewTokenConnected(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.NewToken.Connected = up
	if up {
		m.status.NewToken.ConnectedSince = time.Now()
	} else {
		m.status.NewToken.ReconnectCount++
	}
}

func (m *Manager) setLastMessage(at time.Time) {
	m.mu.Lock()
	m.status.LastMessageAt = at
	m.mu.Unlock()
}

func (m *Manager) recordError(msg string) {
	if len(msg) > 200 {
		msg = msg[:200]
	}
	m.mu.Lock()
	m.status.LastError = msg
	m.mu.Unlock()
}
