package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/torqfleet/botfleet/internal/util"
)

const (
	defaultInitializeRetries = 3
	defaultInitializeDelay   = 5 * time.Second
	defaultRatesRetries      = 3
	defaultRatesBackoff      = 500 * time.Millisecond

	// Market-open tick-age thresholds.
	tickAgeFastThreshold = 120 * time.Second
	tickAgeSlowThreshold = 300 * time.Second
	spreadFastMultiple   = 10
)

// TerminalClient is the concrete, transport-backed implementation of
// Broker. It owns symbol prefix/suffix configuration and retry budgets;
// the wire protocol itself lives in Transport.
type TerminalClient struct {
	transport    Transport
	symbolPrefix string
	symbolSuffix string
}

// NewTerminalClient constructs a TerminalClient over transport, with the
// broker-specific symbol envelope from config
// (MT5_SYMBOL_PREFIX/MT5_SYMBOL_SUFFIX).
func NewTerminalClient(transport Transport, symbolPrefix, symbolSuffix string) *TerminalClient {
	return &TerminalClient{
		transport:    transport,
		symbolPrefix: symbolPrefix,
		symbolSuffix: symbolSuffix,
	}
}

var _ Broker = (*TerminalClient)(nil)
var _ SymbolLookup = (*TerminalClient)(nil)

// Initialize connects with bounded retries spaced by a fixed delay.
func (c *TerminalClient) Initialize(ctx context.Context, cfg ConnectConfig) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= defaultInitializeRetries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.transport.Dial(dialCtx)
		cancel()
		if err == nil {
			var ack struct{ OK bool }
			callCtx, cancel2 := context.WithTimeout(ctx, timeout)
			err = c.transport.Call(callCtx, "initialize", cfg, &ack)
			cancel2()
			if err == nil {
				return nil
			}
		}
		lastErr = err
		if attempt < defaultInitializeRetries {
			select {
			case <-time.After(defaultInitializeDelay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrConnection, lastErr)
}

// Connected is a cheap probe; it never reconnects.
func (c *TerminalClient) Connected() bool {
	return c.transport.Connected()
}

// Reconnect closes the transport and redials it, up to retries attempts
// spaced by delay. It does not repeat the "initialize" call that
// Initialize makes after dialing, so the ConnectConfig is not re-sent.
func (c *TerminalClient) Reconnect(ctx context.Context, retries int, delay time.Duration) bool {
	_ = c.transport.Close()

	if retries <= 0 {
		retries = defaultInitializeRetries
	}
	if delay <= 0 {
		delay = defaultInitializeDelay
	}

	for attempt := 1; attempt <= retries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := c.transport.Dial(dialCtx)
		cancel()
		if err == nil {
			return true
		}
		if attempt < retries {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}

// LookupSymbol implements SymbolLookup for a single candidate name.
func (c *TerminalClient) LookupSymbol(name string) (SymbolInfo, bool) {
	var info SymbolInfo
	if err := c.transport.Call(context.Background(), "symbol_info", name, &info); err != nil {
		return SymbolInfo{}, false
	}
	if info.Name == "" {
		return SymbolInfo{}, false
	}
	return info, true
}

// AllSymbols implements SymbolLookup's fallback scan source.
func (c *TerminalClient) AllSymbols() ([]SymbolInfo, error) {
	var all []SymbolInfo
	if err := c.transport.Call(context.Background(), "symbols_get", nil, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// ResolveSymbol implements the ordered search described.
func (c *TerminalClient) ResolveSymbol(ctx context.Context, requested string) (SymbolInfo, error) {
	return ResolveSymbolName(c, requested, c.symbolPrefix, c.symbolSuffix)
}

// SelectSymbol marks resolved visible in the terminal's watchlist.
func (c *TerminalClient) SelectSymbol(ctx context.Context, resolved string) error {
	var ok bool
	if err := c.transport.Call(ctx, "symbol_select", resolved, &ok); err != nil || !ok {
		return fmt.Errorf("%w: %s", ErrSymbolSelect, resolved)
	}
	return nil
}

// tickSnapshot mirrors the subset of a terminal tick MarketOpen needs.
type tickSnapshot struct {
	Bid          float64   `json:"bid"`
	Ask          float64   `json:"ask"`
	Time         time.Time `json:"time"`
	SessionOpen  bool      `json:"session_open"`
	Connected    bool      `json:"connected"`
	TradeAllowed bool      `json:"trade_allowed"`
}

// MarketOpen never returns an error: every failure path resolves to false.
func (c *TerminalClient) MarketOpen(ctx context.Context, requested string) bool {
	if !c.Connected() {
		return false
	}

	info, err := c.ResolveSymbol(ctx, requested)
	if err != nil || !info.Tradable {
		return false
	}

	var tick tickSnapshot
	if err := c.transport.Call(ctx, "symbol_info_tick", info.Name, &tick); err != nil {
		return false
	}
	if !tick.Connected || !tick.TradeAllowed {
		return false
	}
	if tick.Bid == 0 || tick.Ask == 0 {
		return false
	}

	if tick.SessionOpen || info.SessionActive {
		return true
	}

	age := time.Since(tick.Time)
	spread := tick.Ask - tick.Bid
	nominal := info.NominalSpread()
	if nominal > 0 && spread <= nominal*spreadFastMultiple {
		return age <= tickAgeFastThreshold
	}
	return age <= tickAgeSlowThreshold
}

// Rates fetches count bars, retrying transient failures internally.
func (c *TerminalClient) Rates(ctx context.Context, symbol string, timeframe util.Timeframe, count int) ([]Bar, error) {
	type ratesReq struct {
		Symbol    string `json:"symbol"`
		Timeframe int    `json:"timeframe"`
		Count     int    `json:"count"`
	}

	var lastErr error
	for attempt := 1; attempt <= defaultRatesRetries; attempt++ {
		var bars []Bar
		err := c.transport.Call(ctx, "copy_rates", ratesReq{Symbol: symbol, Timeframe: int(timeframe), Count: count}, &bars)
		if err == nil {
			for i := range bars {
				bars[i].Time = bars[i].Time.UTC()
			}
			return bars, nil
		}
		lastErr = err
		if attempt < defaultRatesRetries {
			select {
			case <-time.After(defaultRatesBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("broker: rates %s: %w", symbol, lastErr)
}

// Positions returns a fresh snapshot matching filter.
func (c *TerminalClient) Positions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	var positions []Position
	if err := c.transport.Call(ctx, "positions_get", filter, &positions); err != nil {
		return nil, fmt.Errorf("broker: positions: %w", err)
	}
	return positions, nil
}

// HistoryDeals returns broker deals between from and to.
func (c *TerminalClient) HistoryDeals(ctx context.Context, from, to time.Time) ([]Deal, error) {
	type historyReq struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	}
	var deals []Deal
	if err := c.transport.Call(ctx, "history_deals_get", historyReq{From: from, To: to}, &deals); err != nil {
		return nil, fmt.Errorf("broker: history_deals: %w", err)
	}
	return deals, nil
}

func (c *TerminalClient) submit(ctx context.Context, method string, req any) (OrderResult, error) {
	var result OrderResult
	if err := c.transport.Call(ctx, method, req, &result); err != nil {
		return OrderResult{}, fmt.Errorf("broker: %s: %w", method, err)
	}
	if !result.Done() {
		return result, &OrderSubmitError{Retcode: result.Retcode}
	}
	return result, nil
}

// SubmitMarket places a market order.
func (c *TerminalClient) SubmitMarket(ctx context.Context, req MarketOrderRequest) (OrderResult, error) {
	return c.submit(ctx, "order_send_market", req)
}

// SubmitPending places a pending (resting) order.
func (c *TerminalClient) SubmitPending(ctx context.Context, req PendingOrderRequest) (OrderResult, error) {
	return c.submit(ctx, "order_send_pending", req)
}

// ModifySLTP updates SL/TP for an existing position. Either may be nil to
// leave it unchanged.
func (c *TerminalClient) ModifySLTP(ctx context.Context, ticket int64, sl, tp *float64) error {
	type modifyReq struct {
		Ticket int64    `json:"ticket"`
		SL     *float64 `json:"sl,omitempty"`
		TP     *float64 `json:"tp,omitempty"`
	}
	var result OrderResult
	if err := c.transport.Call(ctx, "order_modify_sltp", modifyReq{Ticket: ticket, SL: sl, TP: tp}, &result); err != nil {
		return fmt.Errorf("broker: modify_sl_tp: %w", err)
	}
	if !result.Done() {
		return &OrderSubmitError{Retcode: result.Retcode}
	}
	return nil
}

// CloseByTicket submits the opposite-direction deal that flattens a
// position. On broker-side failure it returns a zero-value OrderResult
// rather than an error.
func (c *TerminalClient) CloseByTicket(ctx context.Context, req CloseRequest) OrderResult {
	var result OrderResult
	if err := c.transport.Call(ctx, "order_close_by_ticket", req, &result); err != nil {
		return OrderResult{}
	}
	return result
}

// RemovePending cancels a pending order.
func (c *TerminalClient) RemovePending(ctx context.Context, ticket int64) error {
	var result OrderResult
	if err := c.transport.Call(ctx, "order_remove_pending", ticket, &result); err != nil {
		return fmt.Errorf("broker: remove_pending: %w", err)
	}
	if !result.Done() {
		return &OrderSubmitError{Retcode: result.Retcode}
	}
	return nil
}

// AccountInfo returns a snapshot of the connected trading account.
func (c *TerminalClient) AccountInfo(ctx context.Context) (AccountInfo, error) {
	var info AccountInfo
	if err := c.transport.Call(ctx, "account_info", nil, &info); err != nil {
		return AccountInfo{}, fmt.Errorf("broker: account_info: %w", err)
	}
	return info, nil
}
