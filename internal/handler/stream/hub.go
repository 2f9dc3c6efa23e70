package stream

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	svcmetrics "SignalDesk/internal/service/metrics"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// SnapshotSource computes the current signal views for a set of symbols.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbols []string, tfs []models.Timeframe) (map[string][]models.SignalView, error)
}

type Option func(*Hub)

func WithPushInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pushInterval = d
		}
	}
}

func WithTimeframes(tfs []models.Timeframe) Option {
	return func(h *Hub) {
		if len(tfs) > 0 {
			h.timeframes = tfs
		}
	}
}

// WithLimiter replaces the per-connection inbound frame limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(h *Hub) { h.limiter = l }
}

func WithLogger(l *logger.Logger) Option {
	return func(h *Hub) { h.log = l }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithPongTimeout sets how long a silent peer is kept. Pings go out at 9/10 of it.
func WithPongTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pongTimeout = d
		}
	}
}

func WithMaxMessageSize(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

// WithAllowedOrigins restricts the upgrade to the listed origins. "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) { h.origins = origins }
}

// Hub serves GET /ws/signals and keeps the symbol -> clients index.
type Hub struct {
	source         SnapshotSource
	available      []string
	known          map[string]struct{}
	timeframes     []models.Timeframe
	pushInterval   time.Duration
	writeTimeout   time.Duration
	pongTimeout    time.Duration
	maxMessageSize int64
	origins        []string
	limiter        *ratelimit.Limiter
	log            *logger.Logger
	upgrader       websocket.Upgrader
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	clients  map[*client]struct{}
	bySymbol map[string]map[*client]struct{}
}

func NewHub(source SnapshotSource, symbols []string, opts ...Option) *Hub {
	svcmetrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		source:         source,
		available:      append([]string(nil), symbols...),
		known:          make(map[string]struct{}, len(symbols)),
		timeframes:     []models.Timeframe{models.TF15m, models.TF1h, models.TF4h},
		pushInterval:   5 * time.Second,
		writeTimeout:   10 * time.Second,
		pongTimeout:    60 * time.Second,
		maxMessageSize: 4096,
		origins:        []string{"*"},
		limiter:        ratelimit.New(20, 5),
		log:            logger.NewNop(),
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		clients:        make(map[*client]struct{}),
		bySymbol:       make(map[string]map[*client]struct{}),
	}
	for _, s := range symbols {
		h.known[s] = struct{}{}
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}

func (h *Hub) Serve(c echo.Context) error {
	h.ServeHTTP(c.Response(), c.Request())
	return nil
}

// ServeHTTP upgrades the request and blocks in the client's read loop until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("stream upgrade failed", logger.String("remote", r.RemoteAddr), logger.Error(err))
		return
	}

	c := newClient(h, uuid.NewString(), conn)
	h.register(c)
	h.log.Info("stream client connected", logger.String("client_id", c.id), logger.String("remote", r.RemoteAddr))

	go c.writePump()
	go c.monitor()

	c.enqueue(models.FrameAvailableSymbols, models.AvailableSymbolsFrame{
		Type:    models.FrameAvailableSymbols,
		Symbols: h.available,
	})

	c.readPump()

	c.cancel()
	h.unregister(c)
	h.limiter.Forget(c.id)
	h.log.Info("stream client disconnected", logger.String("client_id", c.id))
}

// PublishSignalEvent wakes the monitors of every client subscribed to the event's symbol,
// so fresh signals reach them before the next tick.
func (h *Hub) PublishSignalEvent(_ context.Context, ev models.SignalEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.bySymbol[ev.Signal.Symbol] {
		c.wake()
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.cancel()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bySymbol[symbol])
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	svcmetrics.StreamClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	for _, s := range c.symbols() {
		h.dropLocked(s, c)
	}
	h.mu.Unlock()
	svcmetrics.StreamClients.Dec()
}

func (h *Hub) index(c *client, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range symbols {
		set, ok := h.bySymbol[s]
		if !ok {
			set = make(map[*client]struct{})
			h.bySymbol[s] = set
		}
		set[c] = struct{}{}
	}
}

func (h *Hub) unindex(c *client, symbols []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range symbols {
		h.dropLocked(s, c)
	}
}

func (h *Hub) dropLocked(symbol string, c *client) {
	set, ok := h.bySymbol[symbol]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.bySymbol, symbol)
	}
}

// invalidSymbols returns the requested symbols the hub does not serve, in request order.
func (h *Hub) invalidSymbols(symbols []string) []string {
	var bad []string
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := h.known[s]; !ok {
			bad = append(bad, s)
		}
	}
	return bad
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
