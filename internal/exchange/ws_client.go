package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"trader-consensus-lab/internal/domain"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSClient streams fills and mid prices from the venue over WebSocket,
// reconnecting with exponential backoff and resubscribing on recovery.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	// fillSubs maps lowercased address to its delivery channel.
	fillSubs   map[string]chan *domain.Fill
	fillSubsMu sync.RWMutex

	// midsCh receives allMids snapshots once subscribed.
	midsCh   chan map[string]float64
	midsMu   sync.Mutex
	midsSubd bool

	// activeSubs stores subscriptions for replay after reconnect.
	activeSubs   map[string]subscription
	activeSubsMu sync.RWMutex

	// pendingAcks maps subscription key to channel waiting for the ack.
	pendingAcks   map[string]chan struct{}
	pendingAcksMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
	reconnects   atomic.Int64
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint:    endpoint,
		config:      cfg,
		fillSubs:    make(map[string]chan *domain.Fill),
		activeSubs:  make(map[string]subscription),
		pendingAcks: make(map[string]chan struct{}),
		done:        make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Reconnects reports how many times the connection was re-established.
func (c *WSClient) Reconnects() int64 {
	return c.reconnects.Load()
}

// SubscribeFills subscribes to one account's fill stream. Fills that
// fail wire validation are dropped.
func (c *WSClient) SubscribeFills(ctx context.Context, address string) (<-chan *domain.Fill, error) {
	address = strings.ToLower(address)
	sub := subscription{Type: channelUserFills, User: address}

	c.fillSubsMu.Lock()
	if _, exists := c.fillSubs[address]; exists {
		c.fillSubsMu.Unlock()
		return nil, fmt.Errorf("already subscribed to fills for %s", address)
	}
	// Buffer absorbs bursts; delivery drops only on shutdown.
	ch := make(chan *domain.Fill, 10000)
	c.fillSubs[address] = ch
	c.fillSubsMu.Unlock()

	if err := c.subscribe(ctx, sub); err != nil {
		c.fillSubsMu.Lock()
		delete(c.fillSubs, address)
		c.fillSubsMu.Unlock()
		return nil, err
	}

	c.activeSubsMu.Lock()
	c.activeSubs[sub.key()] = sub
	c.activeSubsMu.Unlock()

	return ch, nil
}

// SubscribeMids subscribes to the venue-wide mid price stream.
func (c *WSClient) SubscribeMids(ctx context.Context) (<-chan map[string]float64, error) {
	sub := subscription{Type: channelAllMids}

	c.midsMu.Lock()
	if c.midsSubd {
		c.midsMu.Unlock()
		return nil, fmt.Errorf("already subscribed to mids")
	}
	c.midsCh = make(chan map[string]float64, 1000)
	c.midsSubd = true
	c.midsMu.Unlock()

	if err := c.subscribe(ctx, sub); err != nil {
		c.midsMu.Lock()
		c.midsSubd = false
		c.midsCh = nil
		c.midsMu.Unlock()
		return nil, err
	}

	c.activeSubsMu.Lock()
	c.activeSubs[sub.key()] = sub
	c.activeSubsMu.Unlock()

	return c.midsCh, nil
}

// subscribe sends a subscribe frame and waits for the venue ack.
func (c *WSClient) subscribe(ctx context.Context, sub subscription) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	ackCh := make(chan struct{}, 1)
	c.pendingAcksMu.Lock()
	c.pendingAcks[sub.key()] = ackCh
	c.pendingAcksMu.Unlock()

	removePending := func() {
		c.pendingAcksMu.Lock()
		delete(c.pendingAcks, sub.key())
		c.pendingAcksMu.Unlock()
	}

	if err := c.writeSubscribe(sub); err != nil {
		removePending()
		return err
	}

	select {
	case <-ackCh:
		return nil
	case <-time.After(30 * time.Second):
		removePending()
		return fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return fmt.Errorf("client closed")
	case <-ctx.Done():
		removePending()
		return ctx.Err()
	}
}

// writeSubscribe sends the subscribe frame on the current connection.
func (c *WSClient) writeSubscribe(sub subscription) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(subscribeRequest{Method: "subscribe", Subscription: sub}); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the WebSocket connection.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.fillSubsMu.Lock()
	for addr, ch := range c.fillSubs {
		close(ch)
		delete(c.fillSubs, addr)
	}
	c.fillSubsMu.Unlock()

	c.midsMu.Lock()
	if c.midsCh != nil {
		close(c.midsCh)
		c.midsCh = nil
	}
	c.midsMu.Unlock()

	c.pendingAcksMu.Lock()
	for key, ch := range c.pendingAcks {
		close(ch)
		delete(c.pendingAcks, key)
	}
	c.pendingAcksMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from WebSocket and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			// Connection error - attempt reconnect with exponential backoff
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// handleMessage dispatches one incoming frame by channel.
func (c *WSClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return
	}

	switch env.Channel {
	case channelSubscribeAck:
		var ack subscribeAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return
		}
		c.pendingAcksMu.Lock()
		if ch, ok := c.pendingAcks[ack.Subscription.key()]; ok {
			delete(c.pendingAcks, ack.Subscription.key())
			ch <- struct{}{}
		}
		c.pendingAcksMu.Unlock()

	case channelUserFills:
		var data userFillsData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}
		addr := strings.ToLower(data.User)

		c.fillSubsMu.RLock()
		ch := c.fillSubs[addr]
		c.fillSubsMu.RUnlock()
		if ch == nil {
			return
		}

		for _, wf := range data.Fills {
			f, err := toDomainFill(addr, wf)
			if err != nil {
				continue
			}
			select {
			case ch <- f:
			case <-c.done:
				return
			}
		}

	case channelAllMids:
		var data allMidsData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return
		}

		c.midsMu.Lock()
		ch := c.midsCh
		c.midsMu.Unlock()
		if ch == nil {
			return
		}

		select {
		case ch <- data.Mids:
		case <-c.done:
		}
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	c.reconnects.Add(1)
	c.resubscribeAll()
}

// resubscribeAll replays all active subscriptions after reconnect.
// Delivery channels are unchanged; the venue keys streams by
// subscription, not by connection.
func (c *WSClient) resubscribeAll() {
	c.activeSubsMu.RLock()
	subs := make([]subscription, 0, len(c.activeSubs))
	for _, sub := range c.activeSubs {
		subs = append(subs, sub)
	}
	c.activeSubsMu.RUnlock()

	for _, sub := range subs {
		if err := c.writeSubscribe(sub); err != nil {
			// Failed to resubscribe; the next read error triggers
			// another reconnect cycle.
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
