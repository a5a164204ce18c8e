package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/edge"
	"kalshiEdgeBot/internal/executor"
	"kalshiEdgeBot/internal/ports"
	"kalshiEdgeBot/internal/risk"
	"kalshiEdgeBot/internal/signal"
	"kalshiEdgeBot/internal/sizing"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type stubForecaster struct {
	mu     sync.Mutex
	prob   float64
	inputs []ports.ForecastInput
}

func (s *stubForecaster) Forecast(snapshot *domain.MarketSnapshot, input ports.ForecastInput) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	return s.prob, nil
}

func (s *stubForecaster) seen() []ports.ForecastInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ForecastInput(nil), s.inputs...)
}

type mockExchange struct {
	mu           sync.Mutex
	balance      int64
	markets      []*domain.MarketSnapshot
	placedOrders []*domain.Order
	orderResult  *domain.OrderResult
}

func (m *mockExchange) GetBalance(ctx context.Context) (int64, error) { return m.balance, nil }

func (m *mockExchange) ListMarkets(ctx context.Context, seriesTicker string) ([]*domain.MarketSnapshot, error) {
	return m.markets, nil
}

func (m *mockExchange) GetMarket(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	return nil, ports.ErrMarketNotFound
}

func (m *mockExchange) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placedOrders = append(m.placedOrders, order)
	if m.orderResult != nil {
		return m.orderResult, nil
	}
	return &domain.OrderResult{Status: domain.OrderAccepted, ExchangeOrderID: "ord-1"}, nil
}

func (m *mockExchange) GetSettlement(ctx context.Context, ticker string) (*ports.SettlementResult, error) {
	return &ports.SettlementResult{Ticker: ticker, Settled: false}, nil
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) placed() []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Order(nil), m.placedOrders...)
}

type mockFeed struct {
	spot   float64
	klines []domain.Kline
}

func (m *mockFeed) GetSpotPrice(ctx context.Context, symbol string) (float64, error) {
	return m.spot, nil
}

func (m *mockFeed) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	return m.klines, nil
}

func (m *mockFeed) GetPriceAt(ctx context.Context, symbol string, at time.Time) (float64, error) {
	return m.spot, nil
}

type mockRepo struct {
	mu     sync.Mutex
	trades map[string]*domain.Trade
}

func newMockRepo() *mockRepo {
	return &mockRepo{trades: make(map[string]*domain.Trade)}
}

func (m *mockRepo) InsertTrade(ctx context.Context, trade *domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
	return nil
}

func (m *mockRepo) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return t, nil
}

func (m *mockRepo) FindPending(ctx context.Context) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Trade
	for _, t := range m.trades {
		if t.Result == domain.ResultPending {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trades {
		if t.Ticker == ticker && t.Result == domain.ResultPending {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) MarkSettled(ctx context.Context, id string, result domain.ResultStatus, pnlCents int64, settlement float64, settledAt time.Time) error {
	return nil
}

func (m *mockRepo) ListTrades(ctx context.Context, filter ports.TradeFilter) ([]*domain.Trade, int, error) {
	return nil, 0, nil
}

func (m *mockRepo) DailySummary(ctx context.Context) ([]ports.DailyStat, error) {
	return nil, nil
}

func (m *mockRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trades)
}

type mockLedger struct {
	mu        sync.Mutex
	decisions []*domain.TradeDecision
}

func (m *mockLedger) AppendDecision(ctx context.Context, decision *domain.TradeDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *decision
	m.decisions = append(m.decisions, &copied)
	return nil
}

func (m *mockLedger) AppendSettlement(ctx context.Context, trade *domain.Trade) error { return nil }

func (m *mockLedger) all() []*domain.TradeDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.TradeDecision(nil), m.decisions...)
}

// flatKlines produces a steady close series long enough for the estimator,
// which yields zero momentum and a ranging regime.
func flatKlines(n int, price float64) []domain.Kline {
	klines := make([]domain.Kline, n)
	base := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	for i := range klines {
		klines[i] = domain.Kline{
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			Close:     price,
		}
	}
	return klines
}

type engineFixture struct {
	engine     *Engine
	exchange   *mockExchange
	repo       *mockRepo
	ledger     *mockLedger
	guard      *risk.Guard
	forecaster *stubForecaster
	now        time.Time
}

// newFixture wires the full pipeline around mocks. The stub forecaster
// pins our probability; the market trades at 38 bid / 40 ask so a 0.55
// forecast carries a 0.15 edge on YES.
func newFixture(t *testing.T, ourProb float64, cfg Config) *engineFixture {
	t.Helper()
	logger := &mockLogger{}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	forecaster := &stubForecaster{prob: ourProb}
	estimator, err := signal.New(signal.Config{
		ShortLookback: 1, MediumLookback: 4, LongLookback: 24,
		ShortWeight: 0.5, MediumWeight: 0.3, LongWeight: 0.2,
		VolatileVolThreshold: 0.02, TrendingMomThreshold: 0.3,
	}, forecaster, logger)
	require.NoError(t, err)

	calc, err := edge.New(edge.Config{
		MinEdge:            0.12,
		MaxSnapshotAge:     time.Minute,
		MinMinutesToExpiry: 30,
		MaxMinutesToExpiry: 1440,
		MinStrikeGapPct:    0.001,
		MinPriceCents:      5,
		MaxPriceCents:      95,
	})
	require.NoError(t, err)

	// Kelly at 40 cents and 0.55 suggests 3.75% of bankroll; the 2% cap
	// binds, so a $1000 balance buys 50 contracts for $20.
	sizer, err := sizing.New(sizing.Config{
		KellyFraction:  0.15,
		MaxPositionPct: 0.02,
		MinContracts:   1,
		MaxContracts:   1000,
	})
	require.NoError(t, err)

	guard := risk.NewGuard(risk.GuardConfig{
		BreakerThreshold: 10,
		BreakerCooldown:  6 * time.Hour,
		MaxExposurePct:   0.10,
		MaxOpenPositions: 5,
		LatencySLA:       5 * time.Second,
	}, logger)

	exchange := &mockExchange{
		balance: 100_000,
		markets: []*domain.MarketSnapshot{
			{
				Ticker:      "KXBTCD-26AUG3017-T110000",
				Strike:      110_000,
				YesBidCents: 38,
				YesAskCents: 40,
				ExpiryTime:  now.Add(2 * time.Hour),
				CapturedAt:  now.Add(-2 * time.Second),
			},
		},
	}
	repo := newMockRepo()
	ledger := &mockLedger{}

	exec, err := executor.New(exchange, repo, logger)
	require.NoError(t, err)

	feed := &mockFeed{spot: 112_000, klines: flatKlines(30, 112_000)}

	if cfg.SeriesTicker == "" {
		cfg.SeriesTicker = "KXBTCD"
	}
	if cfg.Underlying == "" {
		cfg.Underlying = "BTCUSDT"
	}
	eng, err := New(cfg, logger, exchange, feed, estimator, calc, sizer, guard, exec, repo, ledger)
	require.NoError(t, err)
	eng.nowFn = func() time.Time { return now }

	return &engineFixture{engine: eng, exchange: exchange, repo: repo, ledger: ledger, guard: guard, forecaster: forecaster, now: now}
}

func TestCycleAcceptsAndPlacesOrder(t *testing.T) {
	f := newFixture(t, 0.55, Config{})

	require.NoError(t, f.engine.RunCycle(context.Background()))

	placed := f.exchange.placed()
	require.Len(t, placed, 1)
	assert.Equal(t, domain.SideYes, placed[0].Side)
	assert.Equal(t, 50, placed[0].Contracts)
	assert.Equal(t, int64(40), placed[0].PriceCents)

	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeAccepted, decisions[0].Outcome)
	assert.InDelta(t, 0.15, decisions[0].Edge, 1e-9)
	assert.Equal(t, int64(2000), decisions[0].CostCents)
	assert.Equal(t, domain.ActionBuy, decisions[0].Action)
	assert.Equal(t, domain.OrderAccepted, decisions[0].OrderStatus)
	assert.InDelta(t, 120, decisions[0].MinutesToExpiry, 1e-9)
	assert.Equal(t, int64(2000), decisions[0].LatencyMS)
	assert.Zero(t, decisions[0].Momentum)
	assert.Zero(t, decisions[0].Volatility)

	assert.Equal(t, 1, f.repo.count())
	exposure, open := f.guard.Exposure()
	assert.Equal(t, int64(2000), exposure)
	assert.Equal(t, 1, open)
	assert.Equal(t, int64(100_000), f.engine.LastBalance())
}

func TestCycleRejectsThinEdge(t *testing.T) {
	// 0.45 against a 40 cent ask leaves a 0.05 edge, under the 0.12 bar.
	f := newFixture(t, 0.45, Config{})

	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Empty(t, f.exchange.placed())
	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeRejected, decisions[0].Outcome)
	assert.Equal(t, domain.ReasonEdgeBelowThreshold, decisions[0].Reason)
	assert.Equal(t, 0, f.repo.count())
}

func TestCycleDryRunSkipsSubmission(t *testing.T) {
	f := newFixture(t, 0.55, Config{DryRun: true})

	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Empty(t, f.exchange.placed())
	assert.Equal(t, 0, f.repo.count())

	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeAccepted, decisions[0].Outcome)
	assert.Equal(t, 50, decisions[0].Contracts)

	// Nothing went on the book, so no exposure reservation survives.
	exposure, open := f.guard.Exposure()
	assert.Zero(t, exposure)
	assert.Zero(t, open)
}

func TestCycleRejectsWhileBreakerActive(t *testing.T) {
	f := newFixture(t, 0.55, Config{})

	// Ten straight losses trip the breaker before the cycle runs.
	for i := 0; i < 10; i++ {
		f.guard.RecordSettlement(context.Background(), &domain.Trade{
			Result:   domain.ResultLost,
			PnLCents: -100,
		}, f.now)
	}
	require.True(t, f.guard.Breaker().Tripped)

	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Empty(t, f.exchange.placed())
	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeRejected, decisions[0].Outcome)
	assert.Equal(t, domain.ReasonCircuitBreaker, decisions[0].Reason)
}

func TestCycleDiscardsExtremePriceWithoutRecord(t *testing.T) {
	f := newFixture(t, 0.99, Config{})
	f.exchange.markets[0].YesBidCents = 96
	f.exchange.markets[0].YesAskCents = 97

	require.NoError(t, f.engine.RunCycle(context.Background()))

	// A discard never reaches the ledger.
	assert.Empty(t, f.exchange.placed())
	assert.Empty(t, f.ledger.all())
}

func TestCycleRecordsExchangeRejectionVerbatim(t *testing.T) {
	f := newFixture(t, 0.55, Config{})
	f.exchange.orderResult = &domain.OrderResult{
		Status:       domain.OrderRejected,
		RejectReason: "order cost exceeds available balance (insufficient_balance)",
	}

	require.NoError(t, f.engine.RunCycle(context.Background()))

	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeRejected, decisions[0].Outcome)
	assert.Equal(t, "order cost exceeds available balance (insufficient_balance)", decisions[0].Reason)
	assert.Equal(t, domain.OrderRejected, decisions[0].OrderStatus)
	assert.Equal(t, 0, f.repo.count())

	// The rejected order's reservation is given back.
	exposure, open := f.guard.Exposure()
	assert.Zero(t, exposure)
	assert.Zero(t, open)
}

func TestCycleSkipsTickerWithOpenPosition(t *testing.T) {
	f := newFixture(t, 0.55, Config{})
	require.NoError(t, f.repo.InsertTrade(context.Background(), &domain.Trade{
		ID:     "existing",
		Ticker: "KXBTCD-26AUG3017-T110000",
		Result: domain.ResultPending,
	}))

	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Empty(t, f.exchange.placed())
	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.ReasonOrderOutstanding, decisions[0].Reason)

	exposure, _ := f.guard.Exposure()
	assert.Zero(t, exposure)
}

func TestCycleReleasesReservationOnStaleDecision(t *testing.T) {
	f := newFixture(t, 0.55, Config{})
	// Six seconds of snapshot age breaches the 5s submission budget.
	f.exchange.markets[0].CapturedAt = f.now.Add(-6 * time.Second)

	require.NoError(t, f.engine.RunCycle(context.Background()))

	assert.Empty(t, f.exchange.placed())
	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, domain.OutcomeRejected, decisions[0].Outcome)
	assert.Equal(t, domain.ReasonStaleDecision, decisions[0].Reason)
	assert.Equal(t, int64(6000), decisions[0].LatencyMS)

	exposure, open := f.guard.Exposure()
	assert.Zero(t, exposure)
	assert.Zero(t, open)
}

func TestCycleThreadsSentimentBias(t *testing.T) {
	f := newFixture(t, 0.55, Config{Sentiment: 0.25})

	require.NoError(t, f.engine.RunCycle(context.Background()))

	inputs := f.forecaster.seen()
	require.Len(t, inputs, 1)
	assert.Equal(t, 0.25, inputs[0].Sentiment)

	decisions := f.ledger.all()
	require.Len(t, decisions, 1)
	assert.Equal(t, 0.25, decisions[0].Sentiment)
}
