package ibkr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/signal-bot/internal/broker"
	"github.com/tathienbao/signal-bot/internal/types"
	"golang.org/x/time/rate"
)

// IB API message IDs.
const (
	msgTickPrice         = 1
	msgErrorMessage      = 4
	msgPosition          = 61
	msgPositionEnd       = 62
	msgAccountSummary    = 63
	msgAccountSummaryEnd = 64
)

// Tick types carried by tick price messages.
const (
	tickLast  = 4
	tickClose = 9
)

// Client implements the broker.Gateway interface for IBKR.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// Connection
	conn        net.Conn
	state       atomic.Int32
	stateMu     sync.Mutex
	lastError   error
	connectedAt time.Time

	// Rate limiting
	limiter *rate.Limiter

	// Request IDs
	nextReqID atomic.Int64

	// Pending quote snapshots keyed by ticker ID
	quotesMu sync.Mutex
	quotes   map[int64]*quoteRequest

	// Account data pushed by TWS
	accountMu   sync.RWMutex
	buyingPower decimal.Decimal
	accountSeen bool

	// Positions pushed by TWS
	positionsMu sync.RWMutex
	positions   map[string]*types.Position

	// Shutdown
	done chan struct{}
	wg   sync.WaitGroup
}

type quoteRequest struct {
	symbol string
	mu     sync.Mutex
	quote  types.Quote
	gotAny chan struct{}
	once   sync.Once
}

// NewClient creates a new IBKR client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:       cfg,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond),
		quotes:    make(map[int64]*quoteRequest),
		positions: make(map[string]*types.Position),
		done:      make(chan struct{}),
	}

	c.state.Store(int32(broker.StateDisconnected))
	c.nextReqID.Store(1000)

	return c
}

// Connect establishes connection to TWS/Gateway. Calling it while already
// connected is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.State() == broker.StateConnected {
		return nil
	}

	c.state.Store(int32(broker.StateConnecting))

	c.logger.Info("connecting to IBKR",
		"host", c.cfg.Host,
		"port", c.cfg.Port,
		"client_id", c.cfg.ClientID,
	)

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	dialer := net.Dialer{
		Timeout: c.cfg.ConnectTimeout,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state.Store(int32(broker.StateError))
		c.lastError = fmt.Errorf("dial: %w", err)
		return fmt.Errorf("%w: %v", broker.ErrConnectionTimeout, err)
	}

	c.conn = conn
	c.connectedAt = time.Now()

	if err := c.handshake(); err != nil {
		_ = conn.Close()
		c.state.Store(int32(broker.StateError))
		c.lastError = err
		return fmt.Errorf("handshake: %w", err)
	}

	c.state.Store(int32(broker.StateConnected))

	c.wg.Add(1)
	go c.readLoop()

	// Account and position streams are push-based once requested.
	if err := c.requestAccountSummary(); err != nil {
		c.logger.Warn("failed to request account summary", "err", err)
	}
	if err := c.requestPositions(); err != nil {
		c.logger.Warn("failed to request positions", "err", err)
	}

	c.logger.Info("connected to IBKR",
		"connected_at", c.connectedAt,
	)

	return nil
}

// handshake performs the IB API connection handshake.
func (c *Client) handshake() error {
	// IB API v100+ protocol: "API\0" + supported version range
	handshake := []byte("API\x00")
	versionStr := fmt.Sprintf("v%d..%d", 100, 151)
	handshake = append(handshake, []byte(versionStr)...)
	handshake = append(handshake, 0)

	if _, err := c.conn.Write(handshake); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}

	buf := make([]byte, 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := c.conn.Read(buf)
	_ = c.conn.SetReadDeadline(time.Time{})

	if err != nil {
		return fmt.Errorf("read handshake response: %w", err)
	}

	c.logger.Debug("handshake response", "bytes", n, "data", string(buf[:n]))

	startAPI := c.buildStartAPIMessage(c.cfg.ClientID)
	if _, err := c.conn.Write(startAPI); err != nil {
		return fmt.Errorf("write startAPI: %w", err)
	}

	return nil
}

// buildStartAPIMessage creates the startAPI message.
func (c *Client) buildStartAPIMessage(clientID int) []byte {
	// Message format: size (4 bytes) + message ID + version + clientID
	msg := fmt.Sprintf("71\x002\x00%d\x00", clientID)
	return frameMessage(msg)
}

// frameMessage prepends the 4-byte big-endian size prefix.
func frameMessage(msg string) []byte {
	size := len(msg)
	result := make([]byte, 4+size)
	result[0] = byte(size >> 24)
	result[1] = byte(size >> 16)
	result[2] = byte(size >> 8)
	result[3] = byte(size)
	copy(result[4:], msg)
	return result
}

// readLoop reads messages from the connection.
func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 65536)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, err := c.conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			c.logger.Error("read error", "err", err)
			c.handleDisconnect()
			return
		}

		if n > 0 {
			c.processMessage(buf[:n])
		}
	}
}

// processMessage processes an incoming message.
func (c *Client) processMessage(data []byte) {
	// IB API messages are null-separated fields
	fields := bytes.Split(data, []byte{0})
	if len(fields) < 2 {
		c.logger.Debug("received incomplete message", "size", len(data))
		return
	}

	msgID, err := strconv.Atoi(string(fields[0]))
	if err != nil {
		c.logger.Debug("invalid message ID", "data", string(fields[0]))
		return
	}

	switch msgID {
	case msgTickPrice:
		c.handleTickPrice(fields)
	case msgAccountSummary:
		c.handleAccountSummary(fields)
	case msgPosition:
		c.handlePosition(fields)
	case msgErrorMessage:
		c.handleError(fields)
	default:
		c.logger.Debug("unhandled message type", "msg_id", msgID)
	}
}

// handleTickPrice handles tick price messages for pending quote snapshots.
func (c *Client) handleTickPrice(fields [][]byte) {
	// Format: msgID, version, tickerID, tickType, price, size, attribs
	if len(fields) < 5 {
		return
	}

	tickerID, _ := strconv.ParseInt(string(fields[2]), 10, 64)
	tickType, _ := strconv.Atoi(string(fields[3]))
	price, err := decimal.NewFromString(string(fields[4]))
	if err != nil || !price.IsPositive() {
		return
	}

	c.quotesMu.Lock()
	req, ok := c.quotes[tickerID]
	c.quotesMu.Unlock()
	if !ok {
		return
	}

	req.mu.Lock()
	switch tickType {
	case tickLast:
		req.quote.Last = price
	case tickClose:
		req.quote.Close = price
	default:
		req.mu.Unlock()
		return
	}
	req.quote.Timestamp = time.Now()
	req.mu.Unlock()

	req.once.Do(func() { close(req.gotAny) })
}

// handleAccountSummary handles account summary messages.
func (c *Client) handleAccountSummary(fields [][]byte) {
	// Format: msgID, version, reqID, account, tag, value, currency
	if len(fields) < 7 {
		return
	}

	tag := string(fields[4])
	value, err := decimal.NewFromString(string(fields[5]))
	if err != nil {
		return
	}

	if tag != "BuyingPower" && tag != "NetLiquidation" {
		return
	}

	c.accountMu.Lock()
	// BuyingPower preferred; NetLiquidation fills in for cash accounts
	// that never report it.
	if tag == "BuyingPower" || !c.accountSeen {
		c.buyingPower = value
		c.accountSeen = true
	}
	c.accountMu.Unlock()

	c.logger.Debug("account summary updated", "tag", tag, "value", value)
}

// handlePosition handles position messages.
func (c *Client) handlePosition(fields [][]byte) {
	// Format: msgID, version, account, conId, symbol, secType, expiry, strike, right, multiplier, exchange, currency, localSymbol, tradingClass, position, avgCost
	if len(fields) < 16 {
		return
	}

	symbol := types.NormalizeSymbol(string(fields[4]))
	quantity, err := decimal.NewFromString(string(fields[14]))
	if err != nil {
		return
	}
	avgCost, _ := decimal.NewFromString(string(fields[15]))

	c.positionsMu.Lock()
	if quantity.IsZero() {
		delete(c.positions, symbol)
	} else {
		c.positions[symbol] = &types.Position{
			Symbol:   symbol,
			Quantity: quantity,
			AvgCost:  avgCost,
		}
	}
	c.positionsMu.Unlock()

	c.logger.Debug("position updated", "symbol", symbol, "quantity", quantity, "avg_cost", avgCost)
}

// handleError handles TWS error/info messages.
func (c *Client) handleError(fields [][]byte) {
	// Format: msgID, version, reqID, code, message
	if len(fields) < 5 {
		return
	}
	c.logger.Warn("TWS message",
		"req_id", string(fields[2]),
		"code", string(fields[3]),
		"message", string(fields[4]),
	)
}

// handleDisconnect handles connection loss.
func (c *Client) handleDisconnect() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.State() == broker.StateDisconnected {
		return
	}

	c.state.Store(int32(broker.StateDisconnected))
	c.logger.Warn("disconnected from IBKR")

	if c.cfg.AutoReconnect {
		go c.reconnectLoop()
	}
}

// reconnectLoop attempts to reconnect.
func (c *Client) reconnectLoop() {
	for i := 0; i < c.cfg.MaxReconnectTries; i++ {
		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}

		c.logger.Info("attempting reconnect", "attempt", i+1)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()

		if err == nil {
			c.logger.Info("reconnected successfully")
			return
		}

		c.logger.Warn("reconnect failed", "err", err)
	}

	c.logger.Error("max reconnect attempts reached")
}

// requestAccountSummary subscribes to account summary updates.
func (c *Client) requestAccountSummary() error {
	// REQ_ACCOUNT_SUMMARY = 62
	reqID := c.nextReqID.Add(1)
	msg := fmt.Sprintf("62\x001\x00%d\x00All\x00NetLiquidation,BuyingPower\x00", reqID)
	return c.sendMessage(msg)
}

// requestPositions subscribes to position updates.
func (c *Client) requestPositions() error {
	// REQ_POSITIONS = 61
	msg := "61\x001\x00"
	return c.sendMessage(msg)
}

// sendMessage sends a framed message to TWS/Gateway.
func (c *Client) sendMessage(msg string) error {
	if c.State() != broker.StateConnected {
		return broker.ErrNotConnected
	}

	if err := c.limiter.Wait(context.Background()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	_, err := c.conn.Write(frameMessage(msg))
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.State() == broker.StateDisconnected {
		return nil
	}

	close(c.done)

	if c.conn != nil {
		_ = c.conn.Close()
	}

	c.wg.Wait()
	c.state.Store(int32(broker.StateDisconnected))

	c.logger.Info("disconnected from IBKR")
	return nil
}

// State returns the current connection state.
func (c *Client) State() broker.ConnectionState {
	return broker.ConnectionState(c.state.Load())
}

// IsConnected returns true if connected.
func (c *Client) IsConnected() bool {
	return c.State() == broker.StateConnected
}

// BuyingPower returns the account buying power, waiting for the first
// account summary push if none has arrived yet.
func (c *Client) BuyingPower(ctx context.Context) (decimal.Decimal, error) {
	if !c.IsConnected() {
		return decimal.Zero, broker.ErrNotConnected
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.accountMu.RLock()
		seen := c.accountSeen
		value := c.buyingPower
		c.accountMu.RUnlock()

		if seen {
			return value, nil
		}

		select {
		case <-ctx.Done():
			return decimal.Zero, fmt.Errorf("account data not available: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// PositionFor returns the open position for a symbol, or (nil, nil) when
// the account holds nothing in it.
func (c *Client) PositionFor(ctx context.Context, symbol string) (*types.Position, error) {
	if !c.IsConnected() {
		return nil, broker.ErrNotConnected
	}

	c.positionsMu.RLock()
	defer c.positionsMu.RUnlock()

	pos, ok := c.positions[types.NormalizeSymbol(symbol)]
	if !ok {
		return nil, nil
	}

	// Copy so callers never share the map entry.
	p := *pos
	return &p, nil
}

// Quote requests a market data snapshot and blocks until a last price
// arrives or ctx expires. On expiry it returns whatever ticks were seen;
// the caller decides whether a close-only or empty quote is usable.
func (c *Client) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	if !c.IsConnected() {
		return types.Quote{}, broker.ErrNotConnected
	}

	symbol = types.NormalizeSymbol(symbol)
	tickerID := c.nextReqID.Add(1)

	req := &quoteRequest{
		symbol: symbol,
		quote:  types.Quote{Symbol: symbol},
		gotAny: make(chan struct{}),
	}

	c.quotesMu.Lock()
	c.quotes[tickerID] = req
	c.quotesMu.Unlock()

	defer func() {
		c.quotesMu.Lock()
		delete(c.quotes, tickerID)
		c.quotesMu.Unlock()
		_ = c.cancelMarketData(tickerID)
	}()

	if err := c.requestMarketData(tickerID, symbol); err != nil {
		return types.Quote{}, err
	}

	// Wait for the first tick, then give the last price a moment to
	// follow the close before reporting.
	select {
	case <-req.gotAny:
	case <-ctx.Done():
		return c.snapshotQuote(req), nil
	}

	for {
		req.mu.Lock()
		hasLast := req.quote.Last.IsPositive()
		req.mu.Unlock()
		if hasLast {
			return c.snapshotQuote(req), nil
		}

		select {
		case <-ctx.Done():
			return c.snapshotQuote(req), nil
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *Client) snapshotQuote(req *quoteRequest) types.Quote {
	req.mu.Lock()
	defer req.mu.Unlock()
	return req.quote
}

// requestMarketData sends a snapshot market data request for a stock.
func (c *Client) requestMarketData(tickerID int64, symbol string) error {
	contract := broker.StockContract(symbol)

	// REQ_MKT_DATA = 1, snapshot=1
	msg := fmt.Sprintf("1\x0011\x00%d\x000\x00%s\x00%s\x00\x00\x00\x00\x00%s\x00\x00%s\x00\x00\x00\x001\x000\x00\x00",
		tickerID,
		contract.Symbol,
		contract.SecType,
		contract.Exchange,
		contract.Currency,
	)

	return c.sendMessage(msg)
}

// cancelMarketData cancels a market data request.
func (c *Client) cancelMarketData(tickerID int64) error {
	if !c.IsConnected() {
		return nil
	}
	// CANCEL_MKT_DATA = 2
	msg := fmt.Sprintf("2\x001\x00%d\x00", tickerID)
	return c.sendMessage(msg)
}

// PlaceOrder submits a limit order and returns the broker order ID.
func (c *Client) PlaceOrder(ctx context.Context, order types.OrderInstruction) (string, error) {
	if !c.IsConnected() {
		return "", broker.ErrNotConnected
	}

	orderID := c.nextReqID.Add(1)
	contract := broker.StockContract(order.Symbol)

	msg := c.buildPlaceOrderMessage(orderID, contract, order)
	if err := c.sendMessage(msg); err != nil {
		return "", fmt.Errorf("send order: %w", err)
	}

	c.logger.Info("order submitted",
		"order_id", orderID,
		"client_order_id", order.ClientOrderID,
		"symbol", order.Symbol,
		"side", order.Side,
		"quantity", order.Quantity,
		"limit_price", order.LimitPrice,
		"tif", order.TimeInForce,
		"outside_rth", order.OutsideRTH,
	)

	return strconv.FormatInt(orderID, 10), nil
}

// buildPlaceOrderMessage builds a PLACE_ORDER message for a limit order.
func (c *Client) buildPlaceOrderMessage(orderID int64, contract broker.Contract, order types.OrderInstruction) string {
	outsideRth := "0"
	if order.OutsideRTH {
		outsideRth = "1"
	}

	// PLACE_ORDER = 3; LMT order with tif and outsideRth set
	return fmt.Sprintf("3\x0045\x00%d\x000\x00%s\x00%s\x00\x00\x00\x00\x00%s\x00\x00%s\x00\x00\x00\x00%s\x00%s\x00LMT\x00%s\x00\x00%s\x00\x00\x00\x000\x00%s\x000\x00%s\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00",
		orderID,
		contract.Symbol,
		contract.SecType,
		contract.Exchange,
		contract.Currency,
		order.Side,
		order.Quantity.String(),
		order.LimitPrice.String(),
		order.TimeInForce,
		order.ClientOrderID,
		outsideRth,
	)
}

// Ensure Client implements broker.Gateway
var _ broker.Gateway = (*Client)(nil)
