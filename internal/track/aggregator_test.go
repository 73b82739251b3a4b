package track

import (
	"math"
	"testing"
	"time"

	"github.com/rickgao/pump-tracker/internal/model"
)

func trade(kind model.TradeKind, sol, vSol, vTok float64, trader string) model.TradeEvent {
	return model.TradeEvent{
		TokenAddress:  "T",
		TraderAddress: trader,
		Kind:          kind,
		SolAmount:     sol,
		VSolReserves:  vSol,
		VTokReserves:  vTok,
		Price:         vSol / vTok,
		ReceivedAt:    time.Now(),
	}
}

// priced builds a trade whose derived price is exactly p, with reserves
// small enough to stay far from the graduation threshold.
func priced(kind model.TradeKind, sol, p float64, trader string) model.TradeEvent {
	return trade(kind, sol, p*1e4, 1e4, trader)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAggregator_BuySellWindow(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(priced(model.KindBuy, 0.5, 0.001, "w1"), "", 1.0)
	agg.Apply(priced(model.KindSell, 0.3, 0.002, "w2"), "", 1.0)
	agg.Apply(priced(model.KindBuy, 0.2, 0.0015, "w3"), "", 1.0)

	row := agg.Row("T", time.Now(), 1, 85.0)

	if !almostEqual(row.Open, 0.001) || !almostEqual(row.High, 0.002) ||
		!almostEqual(row.Low, 0.001) || !almostEqual(row.Close, 0.0015) {
		t.Errorf("OHLC = %v/%v/%v/%v", row.Open, row.High, row.Low, row.Close)
	}
	if !almostEqual(row.TotalVol, 1.0) || !almostEqual(row.BuyVol, 0.7) || !almostEqual(row.SellVol, 0.3) {
		t.Errorf("volumes = %v/%v/%v", row.TotalVol, row.BuyVol, row.SellVol)
	}
	if row.NumBuys != 2 || row.NumSells != 1 {
		t.Errorf("counts = %d buys, %d sells", row.NumBuys, row.NumSells)
	}
	if row.UniqueWallets != 3 {
		t.Errorf("UniqueWallets = %d, want 3", row.UniqueWallets)
	}
	if !almostEqual(row.NetVolume, 0.4) {
		t.Errorf("NetVolume = %v, want 0.4", row.NetVolume)
	}
	if !almostEqual(row.BuyPressureRatio, 0.7) {
		t.Errorf("BuyPressureRatio = %v, want 0.7", row.BuyPressureRatio)
	}

	// Window invariants
	if row.Low > row.Open || row.Open > row.High || row.Low > row.Close || row.Close > row.High {
		t.Errorf("price bounds violated: %+v", row)
	}
	if !almostEqual(row.BuyVol+row.SellVol, row.TotalVol) {
		t.Errorf("buy+sell != total: %v + %v != %v", row.BuyVol, row.SellVol, row.TotalVol)
	}
	if row.BuyPressureRatio < 0 || row.BuyPressureRatio > 1 {
		t.Errorf("BuyPressureRatio out of [0,1]: %v", row.BuyPressureRatio)
	}
	if row.UniqueSignerRatio < 0 || row.UniqueSignerRatio > 1 {
		t.Errorf("UniqueSignerRatio out of [0,1]: %v", row.UniqueSignerRatio)
	}
	if row.VolatilityPct < 0 {
		t.Errorf("VolatilityPct negative: %v", row.VolatilityPct)
	}
}

func TestAggregator_WhaleAndDevSell(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(priced(model.KindBuy, 2.0, 0.001, "X"), "C", 1.0)
	agg.Apply(priced(model.KindSell, 1.5, 0.001, "C"), "C", 1.0)

	row := agg.Row("T", time.Now(), 1, 85.0)

	if row.NumWhaleBuys != 1 || !almostEqual(row.WhaleBuyVol, 2.0) {
		t.Errorf("whale buys = %d/%v, want 1/2.0", row.NumWhaleBuys, row.WhaleBuyVol)
	}
	if row.NumWhaleSells != 1 || !almostEqual(row.WhaleSellVol, 1.5) {
		t.Errorf("whale sells = %d/%v, want 1/1.5", row.NumWhaleSells, row.WhaleSellVol)
	}
	if !almostEqual(row.DevSoldAmount, 1.5) {
		t.Errorf("DevSoldAmount = %v, want 1.5", row.DevSoldAmount)
	}
}

func TestAggregator_DevSellRequiresCreatorMatch(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(priced(model.KindSell, 1.0, 0.001, "someone"), "C", 1.0)
	agg.Apply(priced(model.KindSell, 1.0, 0.001, ""), "", 1.0)

	if row := agg.Row("T", time.Now(), 1, 85.0); row.DevSoldAmount != 0 {
		t.Errorf("DevSoldAmount = %v, want 0", row.DevSoldAmount)
	}
}

func TestAggregator_MicroTrades(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(priced(model.KindBuy, 0.009, 0.001, "w1"), "", 1.0)
	agg.Apply(priced(model.KindBuy, 0.01, 0.001, "w2"), "", 1.0)
	agg.Apply(priced(model.KindSell, 0.005, 0.001, "w3"), "", 1.0)

	if row := agg.Row("T", time.Now(), 1, 85.0); row.NumMicroTrades != 2 {
		t.Errorf("NumMicroTrades = %d, want 2", row.NumMicroTrades)
	}
}

func TestAggregator_SingleTradeWindow(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(priced(model.KindBuy, 0.42, 0.003, "w1"), "", 1.0)

	row := agg.Row("T", time.Now(), 1, 85.0)
	if row.Open != row.High || row.High != row.Low || row.Low != row.Close {
		t.Errorf("single trade OHLC not flat: %+v", row)
	}
	if row.VolatilityPct != 0 {
		t.Errorf("VolatilityPct = %v, want 0", row.VolatilityPct)
	}
	if !almostEqual(row.AvgTradeSize, 0.42) {
		t.Errorf("AvgTradeSize = %v, want 0.42", row.AvgTradeSize)
	}
}

func TestAggregator_DerivedFields(t *testing.T) {
	agg := NewAggregator()
	agg.Apply(trade(model.KindBuy, 1.0, 42.5, 1e9, "w1"), "", 1.0)

	row := agg.Row("T", time.Now(), 2, 85.0)
	if !almostEqual(row.BondingCurvePct, 50.0) {
		t.Errorf("BondingCurvePct = %v, want 50", row.BondingCurvePct)
	}
	if !almostEqual(row.VSolReserves, 42.5) {
		t.Errorf("VSolReserves = %v, want 42.5", row.VSolReserves)
	}
	wantMcap := (42.5 / 1e9) * 1e9
	if !almostEqual(row.MarketCapClose, wantMcap) {
		t.Errorf("MarketCapClose = %v, want %v", row.MarketCapClose, wantMcap)
	}
	if row.IsKingOfHill {
		t.Error("IsKingOfHill = true for tiny mcap")
	}
}

func TestAggregator_KingOfHill(t *testing.T) {
	agg := NewAggregator()
	// price 0.000031 => mcap proxy 31000
	agg.Apply(trade(model.KindBuy, 1.0, 31, 1e6, "w1"), "", 1.0)

	if row := agg.Row("T", time.Now(), 1, 85.0); !row.IsKingOfHill {
		t.Errorf("IsKingOfHill = false, mcap = %v", row.MarketCapClose)
	}
}
