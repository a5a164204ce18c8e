package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kalshiEdgeBot/internal/domain"
	"kalshiEdgeBot/internal/ports"
)

// Record types written to the ledger file.
const (
	RecordDecision   = "decision"
	RecordSettlement = "settlement"
)

// Record is one JSONL line of the audit log. Decision and settlement
// records share the shape; unused fields stay empty.
type Record struct {
	Type            string  `json:"type"`
	ID              string  `json:"id"`
	Ticker          string  `json:"ticker"`
	Side            string  `json:"side,omitempty"`
	Action          string  `json:"action,omitempty"`
	Outcome         string  `json:"outcome,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	OurProb         float64 `json:"our_prob,omitempty"`
	MarketProb      float64 `json:"market_prob,omitempty"`
	Edge            float64 `json:"edge,omitempty"`
	MinEdge         float64 `json:"min_edge,omitempty"`
	PriceCents      int64   `json:"price_cents,omitempty"`
	Contracts       int     `json:"contracts,omitempty"`
	CostCents       int64   `json:"cost_cents,omitempty"`
	BalanceCents    int64   `json:"balance_cents,omitempty"`
	Regime          string  `json:"regime,omitempty"`
	Momentum        float64 `json:"momentum,omitempty"`
	Volatility      float64 `json:"volatility,omitempty"`
	Sentiment       float64 `json:"sentiment,omitempty"`
	MinutesToExpiry float64 `json:"minutes_to_expiry,omitempty"`
	LatencyMS       int64   `json:"latency_ms,omitempty"`
	OrderStatus     string  `json:"order_status,omitempty"`
	Result          string  `json:"result_status,omitempty"`
	PnLCents        int64   `json:"pnl_cents,omitempty"`
	Settlement      float64 `json:"settlement_value,omitempty"`
	Timestamp       string  `json:"timestamp"`
}

// Ledger is the append-only JSONL audit log. It is the source of truth
// for every decision the engine took; corrections are appended, existing
// lines are never touched.
type Ledger struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	logger ports.Logger
}

// Open opens (or creates) the ledger file for appending.
func Open(path string, logger ports.Logger) (*Ledger, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for the ledger")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory '%s': %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at '%s': %w", path, err)
	}
	return &Ledger{file: f, path: path, logger: logger}, nil
}

// Close closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// AppendDecision writes one decision record.
func (l *Ledger) AppendDecision(ctx context.Context, d *domain.TradeDecision) error {
	rec := Record{
		Type:            RecordDecision,
		ID:              d.ID,
		Ticker:          d.Ticker,
		Side:            string(d.Side),
		Action:          d.Action,
		Outcome:         string(d.Outcome),
		Reason:          d.Reason,
		OurProb:         d.OurProb,
		MarketProb:      d.MarketProb,
		Edge:            d.Edge,
		MinEdge:         d.MinEdge,
		PriceCents:      d.PriceCents,
		Contracts:       d.Contracts,
		CostCents:       d.CostCents,
		BalanceCents:    d.BalanceCents,
		Regime:          string(d.Regime),
		Momentum:        d.Momentum,
		Volatility:      d.Volatility,
		Sentiment:       d.Sentiment,
		MinutesToExpiry: d.MinutesToExpiry,
		LatencyMS:       d.LatencyMS,
		OrderStatus:     string(d.OrderStatus),
		Timestamp:       d.DecidedAt.UTC().Format(time.RFC3339Nano),
	}
	return l.append(ctx, rec)
}

// AppendSettlement writes a settlement correction record for a trade.
func (l *Ledger) AppendSettlement(ctx context.Context, t *domain.Trade) error {
	settledAt := time.Now().UTC()
	if t.SettledAt != nil {
		settledAt = t.SettledAt.UTC()
	}
	rec := Record{
		Type:       RecordSettlement,
		ID:         t.ID,
		Ticker:     t.Ticker,
		Side:       string(t.Side),
		Result:     string(t.Result),
		PnLCents:   t.PnLCents,
		PriceCents: t.PriceCents,
		Contracts:  t.Contracts,
		Settlement: t.Settlement,
		Timestamp:  settledAt.Format(time.RFC3339Nano),
	}
	return l.append(ctx, rec)
}

func (l *Ledger) append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal record: %v", ports.ErrLedgerAppend, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("%w: ledger is closed", ports.ErrLedgerAppend)
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrLedgerAppend, err)
	}
	return nil
}

// ReadAll parses every record in a ledger file, oldest first. Lines that
// fail to parse are counted and skipped, so a torn final line from a
// crash never blocks reading the rest.
func ReadAll(path string) ([]Record, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open ledger at '%s': %w", path, err)
	}
	defer f.Close()

	var records []Record
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Type == "" {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, skipped, fmt.Errorf("failed to scan ledger: %w", err)
	}
	return records, skipped, nil
}
