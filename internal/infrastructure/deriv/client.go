package deriv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/vitos/tick_trader/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"
	DefaultAppID    = "1089"

	maxFrameSize = 1 << 20
	writeTimeout = 10 * time.Second
	mt5Timeout   = 5 * time.Second
)

var ErrAlreadyConnected = errors.New("connection already open")

// Config for a Client. A zero MaxReconnectAttempts means the default of 5;
// DisableReconnect turns automatic reconnection off.
type Config struct {
	Endpoint             string
	AppID                string
	PingInterval         time.Duration
	MaxReconnectAttempts int
	DisableReconnect     bool
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	RequestsPerSecond    float64
	Dialer               *websocket.Dialer
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.AppID == "" {
		c.AppID = DefaultAppID
	}
	if c.DisableReconnect {
		c.MaxReconnectAttempts = 0
	} else if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 2 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = time.Minute
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// URL is the endpoint with the app id query parameter applied.
func (c Config) URL() string {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return c.Endpoint
	}
	q := u.Query()
	q.Set("app_id", c.AppID)
	u.RawQuery = q.Encode()
	return u.String()
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateAuthenticating
	stateConnected
	stateError
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticating:
		return "authenticating"
	case stateConnected:
		return "connected"
	case stateError:
		return "error"
	default:
		return "disconnected"
	}
}

// public collapses the handshake states into the reported status taxonomy.
func (s connState) public() domain.ConnectionStatus {
	switch s {
	case stateConnecting, stateAuthenticating:
		return domain.StatusConnecting
	case stateConnected:
		return domain.StatusConnected
	case stateError:
		return domain.StatusError
	default:
		return domain.StatusDisconnected
	}
}

var allowedTransitions = map[connState]map[connState]bool{
	stateDisconnected:   {stateConnecting: true},
	stateConnecting:     {stateAuthenticating: true, stateDisconnected: true, stateError: true},
	stateAuthenticating: {stateConnected: true, stateDisconnected: true, stateError: true},
	stateConnected:      {stateDisconnected: true, stateError: true},
	stateError:          {stateConnecting: true, stateDisconnected: true},
}

type reply struct {
	raw []byte
	env envelope
	err error
}

type handlerEntry struct {
	id domain.HandlerID
	fn domain.EventHandler
}

// Client is a session against the Deriv websocket API.
//
// Inbound frames are read by a single goroutine per connection and handlers
// run on it in arrival order, so a handler must not block on a Request.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff *backoff.Backoff

	mu              sync.Mutex
	state           connState
	conn            *websocket.Conn
	connID          uint64
	token           string
	session         domain.Session
	stopPing        chan struct{}
	cancelReconnect context.CancelFunc

	writeMu sync.Mutex

	handlersMu  sync.RWMutex
	handlers    map[domain.EventKind][]handlerEntry
	nextHandler atomic.Uint64

	pendingMu sync.Mutex
	pending   map[int64]chan reply
	nextReqID atomic.Int64

	// wait blocks for a reconnect delay; false means the loop was cancelled.
	wait func(ctx context.Context, d time.Duration) bool
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if b := int(cfg.RequestsPerSecond); b > burst {
			burst = b
		}
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: 2,
			Jitter: false,
		},
		session:  domain.Session{Status: domain.StatusDisconnected},
		handlers: make(map[domain.EventKind][]handlerEntry),
		pending:  make(map[int64]chan reply),
		wait:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// --- Events ---

func (c *Client) On(kind domain.EventKind, handler domain.EventHandler) domain.HandlerID {
	id := domain.HandlerID(c.nextHandler.Add(1))
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], handlerEntry{id: id, fn: handler})
	return id
}

func (c *Client) Off(kind domain.EventKind, id domain.HandlerID) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	entries := c.handlers[kind]
	for i, e := range entries {
		if e.id == id {
			c.handlers[kind] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

func (c *Client) emit(ev domain.Event) {
	c.handlersMu.RLock()
	entries := make([]handlerEntry, len(c.handlers[ev.Kind]))
	copy(entries, c.handlers[ev.Kind])
	c.handlersMu.RUnlock()

	for _, e := range entries {
		e.fn(ev)
	}
}

func (c *Client) emitStatus(status domain.ConnectionStatus) {
	c.emit(domain.Event{Kind: domain.EventStatus, Status: status})
}

// --- State machine ---

func (c *Client) Status() domain.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.public()
}

func (c *Client) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.MT5Accounts = append([]domain.MT5Account(nil), c.session.MT5Accounts...)
	return s
}

// setStateLocked applies a transition. It returns false for an illegal move
// and the public status to emit when the reported status changed.
func (c *Client) setStateLocked(to connState) (bool, domain.ConnectionStatus) {
	if c.state == to {
		return true, ""
	}
	if !allowedTransitions[c.state][to] {
		c.logger.Warn("Refusing illegal state transition",
			zap.Stringer("from", c.state), zap.Stringer("to", to))
		return false, ""
	}
	prev := c.state.public()
	c.state = to
	c.session.Status = to.public()
	if to.public() != prev {
		return true, to.public()
	}
	return true, ""
}

func (c *Client) transition(to connState) bool {
	c.mu.Lock()
	ok, status := c.setStateLocked(to)
	c.mu.Unlock()
	if status != "" {
		c.emitStatus(status)
	}
	return ok
}

// --- Connection lifecycle ---

// Connect opens the socket and authorizes with token. Authentication errors
// are terminal for the call; link failures are retried in the background
// while the token is held.
func (c *Client) Connect(ctx context.Context, token string) (*domain.AccountInfo, error) {
	c.mu.Lock()
	switch c.state {
	case stateConnecting, stateAuthenticating, stateConnected:
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.token = token
	c.stopReconnectLocked()
	c.mu.Unlock()

	info, err := c.establish(ctx, token)
	if err != nil && !errors.Is(err, domain.ErrAuthentication) && ctx.Err() == nil {
		c.startReconnect()
	}
	return info, err
}

func (c *Client) establish(ctx context.Context, token string) (*domain.AccountInfo, error) {
	if !c.transition(stateConnecting) {
		return nil, fmt.Errorf("cannot connect while %s", c.Status())
	}

	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL(), nil)
	if err != nil {
		c.transition(stateDisconnected)
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Endpoint, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connID++
	id := c.connID
	c.mu.Unlock()

	go c.readLoop(conn, id)

	if !c.transition(stateAuthenticating) {
		c.teardown(id)
		return nil, domain.ErrConnectionClosed
	}

	info, err := c.authorize(ctx, token)
	if err != nil {
		c.teardown(id)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			c.transition(stateError)
			c.logger.Error("Authorization rejected", zap.String("code", apiErr.Code), zap.String("message", apiErr.Message))
			return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
		}
		c.transition(stateDisconnected)
		return nil, fmt.Errorf("authorize: %w", err)
	}

	c.mu.Lock()
	if c.connID != id {
		c.mu.Unlock()
		return nil, domain.ErrConnectionClosed
	}
	c.session = domain.Session{
		Status:    c.state.public(),
		AccountID: info.LoginID,
		Balance:   info.Balance,
		Currency:  info.Currency,
		IsDemo:    info.IsVirtual,
	}
	ok, status := c.setStateLocked(stateConnected)
	if ok {
		c.startPingLocked()
	}
	c.mu.Unlock()
	if !ok {
		c.teardown(id)
		return nil, domain.ErrConnectionClosed
	}
	if status != "" {
		c.emitStatus(status)
	}

	c.logger.Info("Authorized",
		zap.String("loginid", info.LoginID),
		zap.String("currency", info.Currency),
		zap.Bool("virtual", info.IsVirtual))

	mt5Ctx, cancel := context.WithTimeout(ctx, mt5Timeout)
	defer cancel()
	if accounts, err := c.MT5Accounts(mt5Ctx); err == nil {
		info.MT5Accounts = accounts
	} else {
		c.logger.Debug("MT5 account list unavailable", zap.Error(err))
	}
	c.emit(domain.Event{Kind: domain.EventAccountInfoUpdated, Account: info})

	return info, nil
}

func (c *Client) authorize(ctx context.Context, token string) (*domain.AccountInfo, error) {
	raw, err := c.Request(ctx, map[string]any{"authorize": token})
	if err != nil {
		return nil, err
	}
	return decodeAuthorize(raw)
}

// teardown closes connection id on purpose, so its read loop exit is ignored.
func (c *Client) teardown(id uint64) {
	c.mu.Lock()
	if c.connID != id {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil
	c.connID++
	c.stopPingLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Disconnect closes the session, drops the credential and suppresses
// reconnection.
func (c *Client) Disconnect() {
	c.Send(map[string]any{"forget_all": "ticks"})

	c.mu.Lock()
	c.token = ""
	c.stopReconnectLocked()
	conn := c.conn
	c.conn = nil
	c.connID++
	c.stopPingLocked()
	_, status := c.setStateLocked(stateDisconnected)
	c.session = domain.Session{Status: domain.StatusDisconnected}
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
	c.failPending(domain.ErrConnectionClosed)

	if status != "" {
		c.emitStatus(status)
	}
	c.logger.Info("Disconnected")
}

func (c *Client) readLoop(conn *websocket.Conn, id uint64) {
	defer c.onConnectionLost(conn, id)

	conn.SetReadLimit(maxFrameSize)
	for {
		if c.cfg.PingInterval > 0 {
			conn.SetReadDeadline(time.Now().Add(3 * c.cfg.PingInterval))
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.connID == id
			c.mu.Unlock()
			if current {
				c.logger.Warn("WS read error", zap.Error(err))
			}
			return
		}
		c.dispatch(message)
	}
}

func (c *Client) onConnectionLost(conn *websocket.Conn, id uint64) {
	conn.Close()

	c.mu.Lock()
	if c.connID != id {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.stopPingLocked()
	wasConnected := c.state == stateConnected
	var status domain.ConnectionStatus
	if wasConnected {
		_, status = c.setStateLocked(stateDisconnected)
	}
	token := c.token
	c.mu.Unlock()

	c.failPending(domain.ErrConnectionClosed)

	// A drop during the handshake is reported by establish.
	if !wasConnected {
		return
	}
	c.logger.Warn("Connection lost")
	if status != "" {
		c.emitStatus(status)
	}
	if token != "" {
		c.startReconnect()
	}
}

// --- Reconnection ---

func (c *Client) startReconnect() {
	if c.cfg.DisableReconnect {
		c.logger.Info("Automatic reconnect disabled, staying disconnected")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.token == "" {
		c.mu.Unlock()
		cancel()
		return
	}
	c.stopReconnectLocked()
	c.cancelReconnect = cancel
	c.mu.Unlock()

	go c.reconnectLoop(ctx)
}

func (c *Client) stopReconnectLocked() {
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
}

func (c *Client) reconnectLoop(ctx context.Context) {
	maxAttempts := c.cfg.MaxReconnectAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delay := c.backoff.ForAttempt(float64(attempt - 1))
		c.logger.Info("Scheduling reconnect",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("delay", delay))

		if !c.wait(ctx, delay) {
			return
		}

		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		if token == "" {
			return
		}

		if _, err := c.establish(ctx, token); err != nil {
			if errors.Is(err, domain.ErrAuthentication) {
				c.logger.Error("Reconnect rejected by authorization, giving up", zap.Error(err))
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.logger.Info("Reconnected", zap.Int("attempt", attempt))
		return
	}
	c.logger.Error("Reconnect attempts exhausted, staying disconnected", zap.Int("attempts", maxAttempts))
}

// --- Keepalive ---

func (c *Client) startPingLocked() {
	if c.cfg.PingInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.stopPing = stop

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Send(map[string]any{"ping": 1})
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) stopPingLocked() {
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
}

// --- Outbound ---

func (c *Client) write(payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(payload)
}

// Send writes a frame without waiting for a reply. It is a no-op when the
// socket is not open; callers recover lost sends by resubscribing.
func (c *Client) Send(payload any) {
	if err := c.write(payload); err != nil {
		if errors.Is(err, domain.ErrNotConnected) {
			c.logger.Debug("Dropping frame, socket not open")
			return
		}
		c.logger.Warn("WS write error", zap.Error(err))
	}
}

// Request sends payload tagged with a fresh req_id and waits for the reply
// carrying the same id. An error object on the reply is returned as *APIError.
func (c *Client) Request(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	id := c.nextReqID.Add(1)
	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer c.takePending(id)

	frame := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		frame[k] = v
	}
	frame["req_id"] = id

	if err := c.write(frame); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.env.Error != nil {
			return nil, r.env.Error
		}
		return r.raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) takePending(id int64) chan reply {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	ch, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return ch
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- reply{err: err}
		delete(c.pending, id)
	}
}

// --- Inbound ---

func (c *Client) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("WS unmarshal error", zap.Error(err))
		return
	}

	delivered := false
	if env.ReqID != nil {
		if ch := c.takePending(*env.ReqID); ch != nil {
			ch <- reply{raw: raw, env: env}
			delivered = true
		}
	}

	if env.Error != nil {
		// Correlated errors belong to the requester.
		if delivered {
			return
		}
		if env.Error.IsBenign() {
			c.logger.Warn("Ignoring benign API error",
				zap.String("msg_type", env.MsgType),
				zap.String("message", env.Error.Message))
			return
		}
		var err error = env.Error
		if env.MsgType == "proposal_open_contract" {
			// A failed settlement stream leaves its contract untrackable.
			err = &domain.SettlementError{ContractID: echoContractID(raw), Reason: env.Error.Error()}
		}
		c.emit(domain.Event{Kind: domain.EventError, Err: err, Raw: raw})
		return
	}

	switch env.MsgType {
	case "tick":
		tick, err := decodeTick(raw)
		if err != nil {
			c.logger.Warn("Dropping tick frame", zap.Error(err))
			return
		}
		c.emit(domain.Event{Kind: domain.EventTick, Tick: tick})

	case "authorize":
		c.emit(domain.Event{Kind: domain.EventAuthorize, Raw: raw})

	case "balance":
		b, err := decodeBalance(raw)
		if err != nil {
			c.logger.Warn("Dropping balance frame", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.session.Balance = b.Balance
		if b.Currency != "" {
			c.session.Currency = b.Currency
		}
		c.mu.Unlock()
		c.emit(domain.Event{Kind: domain.EventBalance, Balance: b})
		go c.refreshMT5()

	case "proposal":
		c.emit(domain.Event{Kind: domain.EventProposal, Raw: raw})

	case "buy":
		c.emit(domain.Event{Kind: domain.EventBuy, Raw: raw})

	case "proposal_open_contract":
		update, err := decodeContractUpdate(raw)
		if err != nil {
			c.logger.Warn("Rejecting contract update", zap.Error(err))
			c.emit(domain.Event{Kind: domain.EventError, Err: err, Raw: raw})
			return
		}
		c.emit(domain.Event{Kind: domain.EventContractUpdate, Contract: update})

	case "mt5_login_list":
		accounts, err := decodeMT5List(raw)
		if err != nil {
			c.logger.Warn("Dropping mt5_login_list frame", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.session.MT5Accounts = accounts
		c.mu.Unlock()
		c.emit(domain.Event{Kind: domain.EventMT5Accounts, MT5: accounts})
	}
}

func (c *Client) refreshMT5() {
	ctx, cancel := context.WithTimeout(context.Background(), mt5Timeout)
	defer cancel()
	if _, err := c.MT5Accounts(ctx); err != nil {
		c.logger.Debug("MT5 refresh failed", zap.Error(err))
	}
}

// --- API calls ---

func (c *Client) SubscribeTicks(symbol string) {
	if c.Status() != domain.StatusConnected {
		c.logger.Warn("Not authorized, cannot subscribe to ticks", zap.String("symbol", symbol))
		return
	}
	c.logger.Info("Subscribing to ticks", zap.String("symbol", symbol))
	c.Send(map[string]any{"ticks": symbol, "subscribe": 1})
}

func (c *Client) ForgetAllTicks() {
	c.Send(map[string]any{"forget_all": "ticks"})
}

func (c *Client) SubscribeBalance() {
	c.Send(map[string]any{"balance": 1, "subscribe": 1})
}

// SubscribeContract opens the settlement stream for contractID and waits for
// the first update. Later updates arrive as contract_update events.
func (c *Client) SubscribeContract(ctx context.Context, contractID string) error {
	var id any = contractID
	if n, err := strconv.ParseInt(contractID, 10, 64); err == nil {
		id = n
	}
	if _, err := c.Request(ctx, map[string]any{"proposal_open_contract": 1, "contract_id": id, "subscribe": 1}); err != nil {
		return fmt.Errorf("proposal_open_contract: %w", err)
	}
	return nil
}

func (c *Client) MT5Accounts(ctx context.Context) ([]domain.MT5Account, error) {
	raw, err := c.Request(ctx, map[string]any{"mt5_login_list": 1})
	if err != nil {
		return nil, err
	}
	return decodeMT5List(raw)
}

func (c *Client) Proposal(ctx context.Context, req domain.ProposalRequest) (*domain.Proposal, error) {
	raw, err := c.Request(ctx, map[string]any{
		"proposal":      1,
		"amount":        req.Amount,
		"basis":         req.Basis,
		"contract_type": string(req.ContractType),
		"currency":      req.Currency,
		"duration":      req.Duration,
		"duration_unit": req.DurationUnit,
		"symbol":        req.Symbol,
	})
	if err != nil {
		return nil, fmt.Errorf("proposal: %w", err)
	}
	return decodeProposal(raw)
}

func (c *Client) Buy(ctx context.Context, proposalID string, price float64) (*domain.Contract, error) {
	raw, err := c.Request(ctx, map[string]any{"buy": proposalID, "price": price})
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	return decodeBuy(raw)
}

var _ domain.TradingAPI = (*Client)(nil)
