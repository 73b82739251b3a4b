package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/pump-tracker/internal/metrics"
	"github.com/rickgao/pump-tracker/internal/model"
)

const insertMetricsSQL = `
	INSERT INTO coin_metrics (
		mint, timestamp, phase_id_at_time,
		price_open, price_high, price_low, price_close, market_cap_close,
		bonding_curve_pct, virtual_sol_reserves, is_koth,
		volume_sol, buy_volume_sol, sell_volume_sol,
		num_buys, num_sells, unique_wallets, num_micro_trades,
		dev_sold_amount, max_single_buy_sol, max_single_sell_sol,
		net_volume_sol, volatility_pct, avg_trade_size_sol,
		whale_buy_volume_sol, whale_sell_volume_sol,
		num_whale_buys, num_whale_sells,
		buy_pressure_ratio, unique_signer_ratio
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
	          $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
`

// Stats summarizes writer activity for the health surface.
type Stats struct {
	RowsSaved int64 `json:"rows_saved"`
	RowsLost  int64 `json:"rows_lost"`
	Flushes   int64 `json:"flushes"`
}

// MetricsWriter writes one tick's batch of metric rows in a single
// database round trip. A failed batch is dropped, not retried; the next
// window carries on.
type MetricsWriter struct {
	db      *pgxpool.Pool
	logger  *slog.Logger
	metrics *metrics.Registry

	mu    sync.Mutex
	stats Stats
}

// NewMetricsWriter creates a metrics writer on the given pool.
func NewMetricsWriter(db *pgxpool.Pool, reg *metrics.Registry, logger *slog.Logger) *MetricsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsWriter{
		db:      db,
		logger:  logger,
		metrics: reg,
	}
}

// Stats returns cumulative writer counters.
func (w *MetricsWriter) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Flush inserts the batch. Implements the tracker's RowWriter.
func (w *MetricsWriter) Flush(ctx context.Context, rows []model.MetricRow) {
	if len(rows) == 0 {
		return
	}

	start := time.Now()
	err := w.batchInsert(ctx, rows)
	w.metrics.FlushDuration.Observe(time.Since(start).Seconds())

	w.mu.Lock()
	w.stats.Flushes++
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("metrics batch insert failed, dropping batch", "error", err, "count", len(rows))
		w.metrics.MetricsLost.Add(float64(len(rows)))
		w.metrics.DBErrors.WithLabelValues("insert").Inc()
		w.mu.Lock()
		w.stats.RowsLost += int64(len(rows))
		w.mu.Unlock()
		return
	}

	w.metrics.MetricsSaved.Add(float64(len(rows)))
	w.mu.Lock()
	w.stats.RowsSaved += int64(len(rows))
	w.mu.Unlock()

	w.logger.Info("saved metrics batch",
		"count", len(rows),
		"duration", time.Since(start),
	)
}

func (w *MetricsWriter) batchInsert(ctx context.Context, rows []model.MetricRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertMetricsSQL,
			r.TokenAddress, r.Timestamp, r.PhaseID,
			r.Open, r.High, r.Low, r.Close, r.MarketCapClose,
			r.BondingCurvePct, r.VSolReserves, r.IsKingOfHill,
			r.TotalVol, r.BuyVol, r.SellVol,
			r.NumBuys, r.NumSells, r.UniqueWallets, r.NumMicroTrades,
			r.DevSoldAmount, r.MaxSingleBuy, r.MaxSingleSell,
			r.NetVolume, r.VolatilityPct, r.AvgTradeSize,
			r.WhaleBuyVol, r.WhaleSellVol,
			r.NumWhaleBuys, r.NumWhaleSells,
			r.BuyPressureRatio, r.UniqueSignerRatio,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
