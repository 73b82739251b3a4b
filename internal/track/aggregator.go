package track

import (
	"math"
	"time"

	"github.com/rickgao/pump-tracker/internal/model"
)

// mcapSupply is the venue's nominal total supply, used as a market-cap
// proxy because trade events carry no per-token supply.
const mcapSupply = 1_000_000_000

// kingOfHillMcap is the market-cap proxy above which a token is flagged
// as king of the hill.
const kingOfHillMcap = 30_000

// microTradeMax is the SOL amount below which a trade counts as micro.
const microTradeMax = 0.01

// Aggregator accumulates one flush window for one token. Zero total volume
// means the window produces no output row.
type Aggregator struct {
	opened bool
	open   float64
	high   float64
	low    float64
	close_ float64

	totalVol float64
	buyVol   float64
	sellVol  float64

	numBuys     int
	numSells    int
	microTrades int

	maxBuy  float64
	maxSell float64

	traders map[string]struct{}

	lastVSol float64
	lastMcap float64

	whaleBuyVol   float64
	whaleSellVol  float64
	numWhaleBuys  int
	numWhaleSells int

	devSold float64
}

// NewAggregator returns an empty window.
func NewAggregator() *Aggregator {
	return &Aggregator{
		high:    math.Inf(-1),
		low:     math.Inf(1),
		traders: make(map[string]struct{}),
	}
}

// Apply folds one trade into the window. creator is the token's dev wallet
// for dev-sell detection; whaleThreshold is the whale cutoff in SOL.
func (a *Aggregator) Apply(ev model.TradeEvent, creator string, whaleThreshold float64) {
	if !a.opened {
		a.opened = true
		a.open = ev.Price
	}
	a.close_ = ev.Price
	a.high = math.Max(a.high, ev.Price)
	a.low = math.Min(a.low, ev.Price)
	a.totalVol += ev.SolAmount

	switch ev.Kind {
	case model.KindBuy:
		a.numBuys++
		a.buyVol += ev.SolAmount
		a.maxBuy = math.Max(a.maxBuy, ev.SolAmount)
		if ev.SolAmount >= whaleThreshold {
			a.whaleBuyVol += ev.SolAmount
			a.numWhaleBuys++
		}
	case model.KindSell:
		a.numSells++
		a.sellVol += ev.SolAmount
		a.maxSell = math.Max(a.maxSell, ev.SolAmount)
		if ev.SolAmount >= whaleThreshold {
			a.whaleSellVol += ev.SolAmount
			a.numWhaleSells++
		}
		if creator != "" && ev.TraderAddress != "" && ev.TraderAddress == creator {
			a.devSold += ev.SolAmount
		}
	}

	if ev.SolAmount < microTradeMax {
		a.microTrades++
	}
	a.traders[ev.TraderAddress] = struct{}{}
	a.lastVSol = ev.VSolReserves
	a.lastMcap = ev.Price * mcapSupply
}

// TotalVol returns the accumulated SOL volume of the window.
func (a *Aggregator) TotalVol() float64 { return a.totalVol }

// LastVSol returns the virtual SOL reserves after the last folded trade.
func (a *Aggregator) LastVSol() float64 { return a.lastVSol }

// Row derives the output row for the window. Caller must ensure the window
// saw volume; a zero-volume window has no meaningful prices.
func (a *Aggregator) Row(token string, ts time.Time, phaseID int, solReservesFull float64) model.MetricRow {
	totalTrades := a.numBuys + a.numSells

	volatility := 0.0
	if a.opened && a.open > 0 {
		volatility = (a.high - a.low) / a.open * 100
	}
	avgTradeSize := 0.0
	if totalTrades > 0 {
		avgTradeSize = a.totalVol / float64(totalTrades)
	}
	buyPressure := 0.0
	if a.buyVol+a.sellVol > 0 {
		buyPressure = a.buyVol / (a.buyVol + a.sellVol)
	}
	uniqueSigner := 0.0
	if totalTrades > 0 {
		uniqueSigner = float64(len(a.traders)) / float64(totalTrades)
	}

	return model.MetricRow{
		TokenAddress: token,
		Timestamp:    ts,
		PhaseID:      phaseID,

		Open:           a.open,
		High:           a.high,
		Low:            a.low,
		Close:          a.close_,
		MarketCapClose: a.lastMcap,

		BondingCurvePct: a.lastVSol / solReservesFull * 100,
		VSolReserves:    a.lastVSol,
		IsKingOfHill:    a.lastMcap > kingOfHillMcap,

		TotalVol: a.totalVol,
		BuyVol:   a.buyVol,
		SellVol:  a.sellVol,

		NumBuys:        a.numBuys,
		NumSells:       a.numSells,
		UniqueWallets:  len(a.traders),
		NumMicroTrades: a.microTrades,

		DevSoldAmount: a.devSold,
		MaxSingleBuy:  a.maxBuy,
		MaxSingleSell: a.maxSell,

		NetVolume:     a.buyVol - a.sellVol,
		VolatilityPct: volatility,
		AvgTradeSize:  avgTradeSize,

		WhaleBuyVol:   a.whaleBuyVol,
		WhaleSellVol:  a.whaleSellVol,
		NumWhaleBuys:  a.numWhaleBuys,
		NumWhaleSells: a.numWhaleSells,

		BuyPressureRatio:  buyPressure,
		UniqueSignerRatio: uniqueSigner,
	}
}
