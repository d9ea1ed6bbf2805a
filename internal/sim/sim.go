// Package sim assembles a simulation run and exposes the step
// environment strategies drive. A Simulation owns the clock and wires
// bus, ledger, broker and tracker together; it is a plain value, so
// independent runs can coexist in one process.
package sim

import (
	"time"

	"github.com/rs/zerolog"

	"barsim/internal/account"
	"barsim/internal/broker"
	"barsim/internal/bus"
	"barsim/internal/costs"
	"barsim/internal/data"
	"barsim/internal/errors"
	"barsim/internal/intent"
	"barsim/internal/models"
	"barsim/internal/tracker"
)

// Options configures a simulation run.
type Options struct {
	Source data.Source

	// StartingCash per account kind. Empty means one stock account
	// with DefaultStartingCash.
	StartingCash map[models.AccountKind]float64
	// InitPositions seeds long (positive) or short (negative)
	// quantities before the first bar.
	InitPositions map[string]int64

	Mode     models.MatchingMode
	LookBack int
	LotSize  int64
	// TPlus > 0 forbids closing quantity opened the same day.
	TPlus int

	Costs  *costs.Registry
	Logger zerolog.Logger
}

// DefaultStartingCash funds the stock account when none is configured.
const DefaultStartingCash = 1_000_000

func (o *Options) normalize() error {
	if o.Source == nil {
		return errors.NewConfigError("nil data source", errors.ErrNoMarketData)
	}
	if o.Mode == "" {
		o.Mode = models.MatchCurrentBarClose
	}
	if o.LookBack < 1 {
		o.LookBack = 1
	}
	if o.LotSize <= 0 {
		o.LotSize = 100
	}
	if len(o.StartingCash) == 0 {
		o.StartingCash = map[models.AccountKind]float64{models.AccountStock: DefaultStartingCash}
	}
	if o.Costs == nil {
		o.Costs = costs.DefaultRegistry()
	}
	if len(o.Source.AvailableTimes()) < o.LookBack {
		return errors.NewConfigError("data source shorter than look-back window", errors.ErrNoMarketData)
	}
	return nil
}

// Simulation is the run object: the clock plus every collaborator of
// one replay. It implements the market-view, clock and instrument-kind
// capabilities its collaborators consume.
type Simulation struct {
	bus       *bus.Bus
	source    data.Source
	lookBack  int
	available []time.Time

	calendarDT time.Time
	tradingDT  time.Time

	portfolio *account.Portfolio
	broker    *broker.Broker
	tracker   *tracker.Tracker
	strategy  *strategy
	costs     *costs.Registry
	lotSize   int64
	logger    zerolog.Logger
}

// newSimulation wires a run. forward selects the forward-bar reward
// sampling used by the RL executor.
func newSimulation(opts Options, forward bool) (*Simulation, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	s := &Simulation{
		bus:      bus.New(),
		source:   opts.Source,
		lookBack: opts.LookBack,
		costs:    opts.Costs,
		lotSize:  opts.LotSize,
		logger:   opts.Logger,
	}
	// The first lookBack-1 bars only feed the observation window.
	s.available = opts.Source.AvailableTimes()[opts.LookBack-1:]
	s.calendarDT = s.available[0]
	s.tradingDT = s.available[0]

	decide, err := broker.NewPriceDecider(opts.Mode, s)
	if err != nil {
		return nil, err
	}
	matcher := broker.NewMatcher(decide, opts.Costs, s, s, s.bus, opts.Logger)
	s.broker = broker.New(s.bus, matcher, opts.Mode, opts.Logger)

	initByKind := make(map[models.AccountKind]map[string]int64)
	for orderBookID, quantity := range opts.InitPositions {
		kind := models.AccountKindFor(opts.Source.InstrumentKind(orderBookID))
		if initByKind[kind] == nil {
			initByKind[kind] = make(map[string]int64)
		}
		initByKind[kind][orderBookID] = quantity
	}

	accounts := make(map[models.AccountKind]*account.Account, len(opts.StartingCash))
	for kind, cash := range opts.StartingCash {
		a := account.New(kind, cash, initByKind[kind], opts.TPlus, s, s.broker, opts.Logger)
		a.Register(s.bus)
		accounts[kind] = a
	}
	s.portfolio = account.NewPortfolio(accounts)
	s.portfolio.Register(s.bus)
	s.broker.BindAccounts(s)

	s.tracker = tracker.New(s.portfolio, s, forward)
	s.tracker.Register(s.bus)

	s.strategy = newStrategy(s.broker, opts.Logger)
	s.strategy.register(s.bus)
	return s, nil
}

// CalendarDT returns the wall-clock timestamp of the current bar.
func (s *Simulation) CalendarDT() time.Time { return s.calendarDT }

// TradingDT returns the trading timestamp of the current bar.
func (s *Simulation) TradingDT() time.Time { return s.tradingDT }

// LastPrice implements account.MarketView and broker.PriceView at the
// current trading timestamp.
func (s *Simulation) LastPrice(orderBookID string) float64 {
	return s.source.LastPrice(orderBookID, s.tradingDT)
}

// PrevClose implements account.MarketView.
func (s *Simulation) PrevClose(orderBookID string) float64 {
	return s.source.PrevClose(orderBookID, s.tradingDT)
}

// InstrumentKind implements broker.InstrumentKinds.
func (s *Simulation) InstrumentKind(orderBookID string) models.InstrumentKind {
	return s.source.InstrumentKind(orderBookID)
}

// AccountForInstrument implements broker.AccountResolver.
func (s *Simulation) AccountForInstrument(orderBookID string) *account.Account {
	kind := models.AccountKindFor(s.source.InstrumentKind(orderBookID))
	return s.portfolio.Account(kind)
}

// AvailableTradingTimes returns the replayable timestamps: the source
// calendar minus the initial look-back warmup.
func (s *Simulation) AvailableTradingTimes() []time.Time { return s.available }

// AvailableInstruments returns the source's instrument codes.
func (s *Simulation) AvailableInstruments() []string { return s.source.AvailableInstruments() }

// HistoryWindow returns the look-back observation ending at the
// current trading timestamp.
func (s *Simulation) HistoryWindow() data.Window {
	return s.source.HistoryWindow(s.tradingDT, s.lookBack)
}

// Portfolio returns the run's portfolio.
func (s *Simulation) Portfolio() *account.Portfolio { return s.portfolio }

// Broker returns the run's broker.
func (s *Simulation) Broker() *broker.Broker { return s.broker }

// Tracker returns the run's tracker.
func (s *Simulation) Tracker() *tracker.Tracker { return s.tracker }

// Bus returns the run's event bus, for user-tier subscriptions.
func (s *Simulation) Bus() *bus.Bus { return s.bus }

// Intents returns an order-intent builder bound to the account of the
// given kind, with skip messages routed into the step diagnostics.
func (s *Simulation) Intents(kind models.AccountKind) *intent.Builder {
	return intent.NewBuilder(s.portfolio.Account(kind), s, s.costs, s, s, s.lotSize, s.tracker, s.logger)
}

// updateTime moves the clock. Only executors call this.
func (s *Simulation) updateTime(calendarDT, tradingDT time.Time) {
	s.calendarDT = calendarDT
	s.tradingDT = tradingDT
}

// timeIndex returns the position of the current trading timestamp in
// the replayable calendar.
func (s *Simulation) timeIndex() int {
	for i, dt := range s.available {
		if dt.Equal(s.tradingDT) {
			return i
		}
	}
	return -1
}

// atLastTime reports whether the clock sits on the final timestamp.
func (s *Simulation) atLastTime() bool {
	return s.tradingDT.Equal(s.available[len(s.available)-1])
}
