package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	svcmetrics "SignalDesk/internal/service/metrics"
	"SignalDesk/pkg/logger"

	"github.com/gorilla/websocket"
)

const sendBuffer = 32

type outbound struct {
	kind string
	data []byte
}

type client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan outbound
	kick   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[string]struct{}

	// last pushed snapshot, owned by the monitor goroutine
	last []byte
}

func newClient(h *Hub, id string, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(h.ctx)
	return &client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan outbound, sendBuffer),
		kick:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]struct{}),
		last:   []byte("{}"),
	}
}

func (c *client) symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.subs)
}

func (c *client) wake() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// enqueue hands a frame to the write pump. A client whose buffer is full is disconnected.
func (c *client) enqueue(kind string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Error("stream frame encode failed", logger.String("type", kind), logger.Error(err))
		return
	}
	select {
	case c.send <- outbound{kind: kind, data: raw}:
	case <-c.ctx.Done():
	default:
		c.hub.log.Warn("stream client too slow, dropping", logger.String("client_id", c.id))
		svcmetrics.StreamRejected.WithLabelValues("slow_consumer").Inc()
		c.cancel()
	}
}

func (c *client) sendError(reason, msg string) {
	svcmetrics.StreamRejected.WithLabelValues(reason).Inc()
	c.enqueue(models.FrameError, models.ErrorFrame{Type: models.FrameError, Message: msg})
}

func (c *client) readPump() {
	h := c.hub
	c.conn.SetReadLimit(h.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				h.log.Warn("stream read failed", logger.String("client_id", c.id), logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
		c.handle(raw)
	}
}

func (c *client) writePump() {
	h := c.hub
	ping := time.NewTicker(h.pongTimeout * 9 / 10)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				h.log.Debug("stream write failed", logger.String("client_id", c.id), logger.Error(err))
				c.cancel()
				return
			}
			svcmetrics.StreamFrames.WithLabelValues(msg.kind).Inc()
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// monitor pushes a signals frame whenever the snapshot for the current subscription changes.
func (c *client) monitor() {
	ticker := time.NewTicker(c.hub.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
		case <-c.kick:
		}
		c.push()
	}
}

func (c *client) push() {
	syms := c.symbols()
	if len(syms) == 0 {
		return
	}
	data, err := c.hub.source.Snapshot(c.ctx, syms, c.hub.timeframes)
	if err != nil {
		if c.ctx.Err() == nil {
			c.hub.log.Warn("stream snapshot failed", logger.String("client_id", c.id), logger.Error(err))
		}
		return
	}

	raw := []byte("{}")
	if len(data) > 0 {
		if raw, err = json.Marshal(data); err != nil {
			c.hub.log.Error("stream snapshot encode failed", logger.Error(err))
			return
		}
	}
	if bytes.Equal(raw, c.last) {
		return
	}
	c.last = raw

	c.enqueue(models.FrameSignals, c.signalsFrame(data))
}

func (c *client) signalsFrame(data map[string][]models.SignalView) models.SignalsFrame {
	if data == nil {
		data = map[string][]models.SignalView{}
	}
	return models.SignalsFrame{
		Type:      models.FrameSignals,
		Data:      data,
		Timestamp: c.hub.now().UTC().Format(time.RFC3339),
	}
}

func (c *client) handle(raw []byte) {
	if !c.hub.limiter.Allow(c.id) {
		c.sendError("rate_limited", "Rate limit exceeded")
		return
	}

	var req models.StreamRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError("invalid_json", "Invalid JSON format")
		return
	}

	var err error
	switch req.Type {
	case models.FrameSubscribe:
		err = c.subscribe(req.Symbols)
	case models.FrameUnsubscribe:
		err = c.unsubscribe(req.Symbols)
	case models.FrameRequestSignals:
		err = c.requestSignals()
	default:
		err = models.NewValidationError("Unknown message type: %s", req.Type)
	}

	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.sendError("invalid_request", verr.Message)
	} else if err != nil {
		c.hub.log.Error("stream request failed", logger.String("client_id", c.id), logger.String("type", req.Type), logger.Error(err))
		c.sendError("internal", "Error generating signals")
	}
}

func (c *client) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return models.NewValidationError("No symbols provided for subscription")
	}
	if bad := c.hub.invalidSymbols(symbols); len(bad) > 0 {
		return models.NewValidationError("Invalid symbols: %s", strings.Join(bad, ", "))
	}

	c.mu.Lock()
	for _, s := range symbols {
		c.subs[s] = struct{}{}
	}
	c.mu.Unlock()
	c.hub.index(c, symbols)

	c.sendSubscription()
	c.wake()
	c.hub.log.Debug("stream subscribe", logger.String("client_id", c.id), logger.Strings("symbols", symbols))
	return nil
}

// unsubscribe with no symbols only echoes the current subscription.
func (c *client) unsubscribe(symbols []string) error {
	if bad := c.hub.invalidSymbols(symbols); len(bad) > 0 {
		return models.NewValidationError("Invalid symbols: %s", strings.Join(bad, ", "))
	}

	var removed []string
	c.mu.Lock()
	for _, s := range symbols {
		if _, ok := c.subs[s]; ok {
			delete(c.subs, s)
			removed = append(removed, s)
		}
	}
	c.mu.Unlock()
	c.hub.unindex(c, removed)

	c.sendSubscription()
	return nil
}

func (c *client) sendSubscription() {
	c.enqueue(models.FrameSubscriptionUpdate, models.SubscriptionUpdateFrame{
		Type:              models.FrameSubscriptionUpdate,
		SubscribedSymbols: c.symbols(),
	})
}

func (c *client) requestSignals() error {
	syms := c.symbols()
	if len(syms) == 0 {
		return models.NewValidationError("No symbols subscribed")
	}
	data, err := c.hub.source.Snapshot(c.ctx, syms, c.hub.timeframes)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	c.enqueue(models.FrameSignals, c.signalsFrame(data))
	return nil
}
