package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/service/ratelimit"

	"github.com/gorilla/websocket"
)

type fakeSource struct {
	mu    sync.Mutex
	views map[string][]models.SignalView
	calls int
	ctxs  []context.Context
}

func (f *fakeSource) Snapshot(ctx context.Context, symbols []string, _ []models.Timeframe) (map[string][]models.SignalView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxs = append(f.ctxs, ctx)
	out := make(map[string][]models.SignalView)
	for _, s := range symbols {
		if v, ok := f.views[s]; ok {
			out[s] = v
		}
	}
	return out, nil
}

func (f *fakeSource) set(symbol string, v []models.SignalView) {
	f.mu.Lock()
	f.views[symbol] = v
	f.mu.Unlock()
}

type frame struct {
	Type              string                         `json:"type"`
	Message           string                         `json:"message"`
	Symbols           []string                       `json:"symbols"`
	SubscribedSymbols []string                       `json:"subscribed_symbols"`
	Data              map[string][]models.SignalView `json:"data"`
	Timestamp         string                         `json:"timestamp"`
}

func view(t models.SignalType, entry float64) []models.SignalView {
	return []models.SignalView{{
		SignalType:          t,
		Confidence:          1,
		AlgorithmsTriggered: []string{"Aligator_Strategy"},
		EntryPrice:          entry,
		StopLoss:            entry * 0.98,
		TakeProfit:          entry * 1.04,
		Timeframe:           models.TF1h,
	}}
}

func newTestHub(t *testing.T, src SnapshotSource, opts ...Option) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(src, []string{"EURUSD", "BTCUSD", "XAUUSD"}, opts...)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	first := readFrame(t, conn)
	if first.Type != models.FrameAvailableSymbols || len(first.Symbols) != 3 {
		t.Fatalf("unexpected greeting: %+v", first)
	}
	return hub, conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return f
}

func writeText(t *testing.T, conn *websocket.Conn, s string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestErrorFramesKeepConnectionOpen(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{}}
	_, conn := newTestHub(t, src, WithPushInterval(time.Hour))

	tests := []struct {
		in   string
		want string
	}{
		{`not json`, "Invalid JSON format"},
		{`{"type":"dance"}`, "Unknown message type: dance"},
		{`{"type":"subscribe"}`, "No symbols provided for subscription"},
		{`{"type":"subscribe","symbols":["EURUSD","FOO","BAR"]}`, "Invalid symbols: FOO, BAR"},
		{`{"type":"request_signals"}`, "No symbols subscribed"},
	}
	for _, tt := range tests {
		writeText(t, conn, tt.in)
		f := readFrame(t, conn)
		if f.Type != models.FrameError || f.Message != tt.want {
			t.Fatalf("%s: got %+v, want error %q", tt.in, f, tt.want)
		}
	}

	writeText(t, conn, `{"type":"subscribe","symbols":["EURUSD"]}`)
	if f := readFrame(t, conn); f.Type != models.FrameSubscriptionUpdate {
		t.Fatalf("connection unusable after errors, got %+v", f)
	}
}

func TestSubscribePushesOnlyOnChange(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{"EURUSD": view(models.SignalBuy, 1.1)}}
	_, conn := newTestHub(t, src, WithPushInterval(20*time.Millisecond))

	writeText(t, conn, `{"type":"subscribe","symbols":["EURUSD","BTCUSD"]}`)
	upd := readFrame(t, conn)
	if upd.Type != models.FrameSubscriptionUpdate {
		t.Fatalf("expected subscription_update, got %+v", upd)
	}
	if strings.Join(upd.SubscribedSymbols, ",") != "BTCUSD,EURUSD" {
		t.Fatalf("subscribed = %v", upd.SubscribedSymbols)
	}

	sig := readFrame(t, conn)
	if sig.Type != models.FrameSignals {
		t.Fatalf("expected signals, got %+v", sig)
	}
	if _, ok := sig.Data["BTCUSD"]; ok {
		t.Fatal("symbols without signals must be omitted")
	}
	if got := sig.Data["EURUSD"]; len(got) != 1 || got[0].SignalType != models.SignalBuy {
		t.Fatalf("EURUSD views = %+v", got)
	}
	if _, err := time.Parse(time.RFC3339, sig.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", sig.Timestamp, err)
	}

	src.set("EURUSD", view(models.SignalSell, 1.2))
	next := readFrame(t, conn)
	if next.Type != models.FrameSignals || next.Data["EURUSD"][0].SignalType != models.SignalSell {
		t.Fatalf("expected changed snapshot, got %+v", next)
	}

	// unchanged snapshots are not pushed again
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected frame %s", raw)
	}
}

func TestUnsubscribeAndRequestSignals(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{
		"EURUSD": view(models.SignalBuy, 1.1),
		"XAUUSD": view(models.SignalSell, 2300),
	}}
	hub, conn := newTestHub(t, src, WithPushInterval(time.Hour))

	writeText(t, conn, `{"type":"subscribe","symbols":["EURUSD","XAUUSD"]}`)
	readFrame(t, conn)
	readFrame(t, conn)
	if hub.SubscriberCount("XAUUSD") != 1 {
		t.Fatalf("XAUUSD subscribers = %d", hub.SubscriberCount("XAUUSD"))
	}

	writeText(t, conn, `{"type":"unsubscribe","symbols":["XAUUSD","NOTASYMBOL"]}`)
	if f := readFrame(t, conn); f.Type != models.FrameError || f.Message != "Invalid symbols: NOTASYMBOL" {
		t.Fatalf("unknown symbol in unsubscribe: got %+v", f)
	}
	if hub.SubscriberCount("XAUUSD") != 1 {
		t.Fatal("rejected unsubscribe must not change the subscription")
	}

	writeText(t, conn, `{"type":"unsubscribe","symbols":["XAUUSD","BTCUSD"]}`)
	upd := readFrame(t, conn)
	if upd.Type != models.FrameSubscriptionUpdate || strings.Join(upd.SubscribedSymbols, ",") != "EURUSD" {
		t.Fatalf("unexpected update %+v", upd)
	}
	if hub.SubscriberCount("XAUUSD") != 0 {
		t.Fatal("XAUUSD still indexed")
	}

	writeText(t, conn, `{"type":"request_signals"}`)
	sig := readFrame(t, conn)
	if sig.Type != models.FrameSignals || len(sig.Data) != 1 || sig.Data["EURUSD"] == nil {
		t.Fatalf("unexpected signals %+v", sig)
	}
}

func TestSignalEventWakesSubscribers(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{"BTCUSD": view(models.SignalBuy, 60000)}}
	hub, conn := newTestHub(t, src, WithPushInterval(time.Hour))

	writeText(t, conn, `{"type":"subscribe","symbols":["BTCUSD"]}`)
	readFrame(t, conn)
	readFrame(t, conn)

	src.set("BTCUSD", view(models.SignalSell, 59000))
	err := hub.PublishSignalEvent(context.Background(), models.SignalEvent{
		Event:  models.EventSignalCreated,
		Signal: models.Signal{Symbol: "BTCUSD"},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := readFrame(t, conn)
	if f.Type != models.FrameSignals || f.Data["BTCUSD"][0].EntryPrice != 59000 {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestRateLimitedFramesRejected(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{}}
	_, conn := newTestHub(t, src, WithPushInterval(time.Hour), WithLimiter(ratelimit.New(1, 0)))

	writeText(t, conn, `{"type":"unsubscribe","symbols":[]}`)
	if f := readFrame(t, conn); f.Type != models.FrameSubscriptionUpdate {
		t.Fatalf("first frame should pass, got %+v", f)
	}
	writeText(t, conn, `{"type":"unsubscribe","symbols":[]}`)
	if f := readFrame(t, conn); f.Type != models.FrameError || f.Message != "Rate limit exceeded" {
		t.Fatalf("expected rate limit error, got %+v", f)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	src := &fakeSource{views: map[string][]models.SignalView{"EURUSD": view(models.SignalBuy, 1.1)}}
	hub, conn := newTestHub(t, src, WithPushInterval(time.Hour))

	writeText(t, conn, `{"type":"subscribe","symbols":["EURUSD"]}`)
	readFrame(t, conn)
	readFrame(t, conn)
	if hub.ClientCount() != 1 {
		t.Fatalf("clients = %d", hub.ClientCount())
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	if hub.SubscriberCount("EURUSD") != 0 {
		t.Fatal("symbol index not cleaned")
	}

	src.mu.Lock()
	ctx := src.ctxs[len(src.ctxs)-1]
	src.mu.Unlock()
	if ctx.Err() == nil {
		t.Fatal("client context not cancelled")
	}
}
