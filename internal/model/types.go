package model

import "time"

// -----------------------------------------------------------------------------
// Trade Events
// -----------------------------------------------------------------------------

// TradeKind distinguishes buys from sells.
type TradeKind string

const (
	KindBuy  TradeKind = "buy"
	KindSell TradeKind = "sell"
)

// TradeEvent is a fully-parsed trade from the venue. Events with missing
// mandatory fields or zero token reserves never become a TradeEvent; the
// upstream parser drops them.
type TradeEvent struct {
	TokenAddress  string    // Token mint address
	TraderAddress string    // Wallet that signed the trade
	Kind          TradeKind // buy or sell
	SolAmount     float64   // Trade size in SOL, >= 0
	VSolReserves  float64   // Virtual SOL reserves after the trade, > 0
	VTokReserves  float64   // Virtual token reserves after the trade, > 0
	Price         float64   // VSolReserves / VTokReserves
	ReceivedAt    time.Time // Local receive timestamp
}

// -----------------------------------------------------------------------------
// Registry Types
// -----------------------------------------------------------------------------

// Reserved terminal phase IDs. Real phases are ordered ascending below 99.
const (
	PhaseFinished  = 99
	PhaseGraduated = 100
)

// Phase is one row of ref_coin_phases: the flush cadence and age limit for
// tokens in that phase.
type Phase struct {
	ID       int
	Name     string
	Interval time.Duration // Flush window length
	MaxAge   time.Duration // Token age at which the next phase takes over
}

// ActiveToken is the registry record for a token with is_active = true,
// joined to discovered_coins for creation metadata.
type ActiveToken struct {
	TokenAddress   string
	PhaseID        int
	CreatedAt      time.Time // Token creation (UTC)
	StartedAt      time.Time // Tracking start (UTC), >= CreatedAt
	CreatorAddress string    // Dev wallet, used for rug-pull detection
}

// -----------------------------------------------------------------------------
// Output Rows
// -----------------------------------------------------------------------------

// MetricRow is one flushed aggregation window for one token: the 30-column
// coin_metrics insert.
type MetricRow struct {
	TokenAddress string
	Timestamp    time.Time // Window close (UTC)
	PhaseID      int

	Open           float64
	High           float64
	Low            float64
	Close          float64
	MarketCapClose float64

	BondingCurvePct float64
	VSolReserves    float64
	IsKingOfHill    bool

	TotalVol float64
	BuyVol   float64
	SellVol  float64

	NumBuys        int
	NumSells       int
	UniqueWallets  int
	NumMicroTrades int

	DevSoldAmount float64
	MaxSingleBuy  float64
	MaxSingleSell float64

	NetVolume     float64
	VolatilityPct float64
	AvgTradeSize  float64

	WhaleBuyVol   float64
	WhaleSellVol  float64
	NumWhaleBuys  int
	NumWhaleSells int

	BuyPressureRatio  float64
	UniqueSignerRatio float64
}
