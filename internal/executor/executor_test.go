package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockExchange struct {
	mu      sync.Mutex
	result  *domain.OrderResult
	err     error
	block   chan struct{} // When set, PlaceOrder waits until closed
	placed  int
}

func (m *mockExchange) GetBalance(ctx context.Context) (int64, error) { return 0, nil }
func (m *mockExchange) ListMarkets(ctx context.Context, seriesTicker string) ([]*domain.MarketSnapshot, error) {
	return nil, nil
}
func (m *mockExchange) GetMarket(ctx context.Context, ticker string) (*domain.MarketSnapshot, error) {
	return nil, nil
}
func (m *mockExchange) GetSettlement(ctx context.Context, ticker string) (*ports.SettlementResult, error) {
	return nil, nil
}
func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.OrderResult, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.placed++
	m.mu.Unlock()
	return m.result, m.err
}

func (m *mockExchange) placedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placed
}

type mockRepo struct {
	open *domain.Trade
	err  error
}

func (m *mockRepo) InsertTrade(ctx context.Context, trade *domain.Trade) error { return nil }
func (m *mockRepo) FindByID(ctx context.Context, id string) (*domain.Trade, error) {
	return nil, ports.ErrNotFound
}
func (m *mockRepo) FindPending(ctx context.Context) ([]*domain.Trade, error) { return nil, nil }
func (m *mockRepo) FindOpenByTicker(ctx context.Context, ticker string) (*domain.Trade, error) {
	return m.open, m.err
}
func (m *mockRepo) MarkSettled(ctx context.Context, id string, result domain.ResultStatus, pnlCents int64, settlement float64, settledAt time.Time) error {
	return nil
}
func (m *mockRepo) ListTrades(ctx context.Context, filter ports.TradeFilter) ([]*domain.Trade, int, error) {
	return nil, 0, nil
}
func (m *mockRepo) DailySummary(ctx context.Context) ([]ports.DailyStat, error) { return nil, nil }

func testOrder() *domain.Order {
	return &domain.Order{
		DecisionID: "dec-1",
		Ticker:     "KXBTCD-26AUG3017-T110000",
		Side:       domain.SideYes,
		Contracts:  50,
		PriceCents: 40,
	}
}

func TestSubmitSuccess(t *testing.T) {
	exchange := &mockExchange{result: &domain.OrderResult{Status: domain.OrderAccepted, ExchangeOrderID: "ord-1"}}
	ex, err := New(exchange, &mockRepo{}, &mockLogger{})
	require.NoError(t, err)

	result, err := ex.Submit(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderAccepted, result.Status)
	assert.Equal(t, 1, exchange.placedCount())
}

func TestSubmitPreservesExchangeRejection(t *testing.T) {
	exchange := &mockExchange{result: &domain.OrderResult{
		Status:       domain.OrderRejected,
		RejectReason: "insufficient_balance",
	}}
	ex, err := New(exchange, &mockRepo{}, &mockLogger{})
	require.NoError(t, err)

	result, err := ex.Submit(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, result.Status)
	assert.Equal(t, "insufficient_balance", result.RejectReason)
	// One attempt only; rejections are never retried.
	assert.Equal(t, 1, exchange.placedCount())
}

func TestSubmitRefusesConcurrentTicker(t *testing.T) {
	block := make(chan struct{})
	exchange := &mockExchange{
		result: &domain.OrderResult{Status: domain.OrderAccepted},
		block:  block,
	}
	ex, err := New(exchange, &mockRepo{}, &mockLogger{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = ex.Submit(context.Background(), testOrder())
	}()

	// Wait for the first submission to claim the ticker.
	require.Eventually(t, func() bool {
		_, err := ex.Submit(context.Background(), testOrder())
		return errors.Is(err, ErrOrderOutstanding)
	}, time.Second, 5*time.Millisecond)

	close(block)
	wg.Wait()
	assert.Equal(t, 1, exchange.placedCount())
}

func TestSubmitRefusesOpenPosition(t *testing.T) {
	exchange := &mockExchange{result: &domain.OrderResult{Status: domain.OrderAccepted}}
	repo := &mockRepo{open: &domain.Trade{ID: "t-1", Result: domain.ResultPending}}
	ex, err := New(exchange, repo, &mockLogger{})
	require.NoError(t, err)

	_, err = ex.Submit(context.Background(), testOrder())
	assert.True(t, errors.Is(err, ErrOrderOutstanding))
	assert.Zero(t, exchange.placedCount())
}

func TestSubmitHaltsOnAuthFailure(t *testing.T) {
	exchange := &mockExchange{err: ports.ErrAuthenticationFailed}
	ex, err := New(exchange, &mockRepo{}, &mockLogger{})
	require.NoError(t, err)

	_, err = ex.Submit(context.Background(), testOrder())
	require.Error(t, err)
	assert.True(t, ex.Halted())

	// Every further submission is refused without touching the exchange.
	_, err = ex.Submit(context.Background(), testOrder())
	assert.True(t, errors.Is(err, ErrSubmissionsHalted))
	assert.Equal(t, 1, exchange.placedCount())

	// Credential rotation lifts the halt.
	ex.Resume()
	exchange.err = nil
	exchange.result = &domain.OrderResult{Status: domain.OrderAccepted}
	_, err = ex.Submit(context.Background(), testOrder())
	assert.NoError(t, err)
}

func TestSubmitTransientErrorDoesNotHalt(t *testing.T) {
	exchange := &mockExchange{err: ports.ErrTimeout}
	ex, err := New(exchange, &mockRepo{}, &mockLogger{})
	require.NoError(t, err)

	_, err = ex.Submit(context.Background(), testOrder())
	require.Error(t, err)
	assert.False(t, ex.Halted())
}
