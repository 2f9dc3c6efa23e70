package marketdata

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	xhttp "SignalDesk/pkg/http"
)

type fakeProvider struct {
	mu      sync.Mutex
	errs    []error // consumed one per call; nil entries mean success
	candles []models.Candle
	price   float64
	calls   int
	closed  int
	block   bool
}

func (f *fakeProvider) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeProvider) Candles(ctx context.Context, _ string, _ models.Timeframe, _ int) ([]models.Candle, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.next(); err != nil {
		return nil, err
	}
	return f.candles, nil
}

func (f *fakeProvider) Price(_ context.Context, _ string, _ models.PriceSide) (float64, error) {
	if err := f.next(); err != nil {
		return 0, err
	}
	return f.price, nil
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

type recordedSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

func newTestGateway(p *fakeProvider, opts ...GatewayOption) (*Gateway, *int, *recordedSleeps) {
	opened := 0
	factory := func(context.Context, string) (repository.MarketDataProvider, error) {
		opened++
		return p, nil
	}
	g := NewGateway(factory, append([]GatewayOption{WithRetry(3, 100*time.Millisecond)}, opts...)...)
	rs := &recordedSleeps{}
	g.sleep = rs.sleep
	return g, &opened, rs
}

func candlesAt(hours ...int) []models.Candle {
	out := make([]models.Candle, len(hours))
	for i, h := range hours {
		out[i] = models.Candle{Bucket: time.Unix(int64(h)*3600, 0).UTC(), Symbol: "EURUSD", Open: 1, High: 2, Low: 0.5, Close: float64(h)}
	}
	return out
}

func TestGatewayRetriesTransientAndReconnects(t *testing.T) {
	p := &fakeProvider{
		errs:    []error{ErrProviderUnavailable, ErrProviderUnavailable},
		candles: candlesAt(1, 2, 3),
	}
	g, opened, rs := newTestGateway(p)

	got, err := g.GetCandles(context.Background(), "EURUSD", models.TF1h, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candles", len(got))
	}
	if p.calls != 3 {
		t.Errorf("provider calls = %d, want 3", p.calls)
	}
	if *opened != 3 || p.closed != 2 {
		t.Errorf("connection should be rebuilt after each connectivity error: opened=%d closed=%d", *opened, p.closed)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(rs.waits) != len(want) || rs.waits[0] != want[0] || rs.waits[1] != want[1] {
		t.Errorf("waits = %v, want %v", rs.waits, want)
	}
}

func TestGatewayDropKeepsReplacedProvider(t *testing.T) {
	stale, fresh := &fakeProvider{}, &fakeProvider{}
	g, _, _ := newTestGateway(fresh)
	g.providers[g.cfg.ConnectionID] = fresh

	g.drop(stale)
	if got := g.providers[g.cfg.ConnectionID]; got != repository.MarketDataProvider(fresh) || fresh.closed != 0 {
		t.Fatalf("a stale failure must not close the live provider: cached=%v closed=%d", got, fresh.closed)
	}

	g.drop(fresh)
	if _, ok := g.providers[g.cfg.ConnectionID]; ok || fresh.closed != 1 {
		t.Fatalf("failed provider should be closed and forgotten, closed=%d", fresh.closed)
	}
}

func TestGatewayExhaustedReturnsConnectivityError(t *testing.T) {
	original := &xhttp.StatusError{Code: 503, Body: "busy"}
	p := &fakeProvider{errs: []error{original, original, original}}
	g, opened, _ := newTestGateway(p)

	_, err := g.GetCurrentPrice(context.Background(), "EURUSD", models.PriceAsk)
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if connErr.Attempts != 3 || connErr.Op != "price" {
		t.Errorf("unexpected error fields: %+v", connErr)
	}
	if errors.Unwrap(err) != error(original) {
		t.Errorf("unwrap should give the original error, got %v", errors.Unwrap(err))
	}
	if *opened != 1 {
		t.Errorf("5xx must not drop the connection, opened=%d", *opened)
	}
}

func TestGatewayNonTransientReturnsImmediately(t *testing.T) {
	notFound := &xhttp.StatusError{Code: 404}
	p := &fakeProvider{errs: []error{notFound}}
	g, _, rs := newTestGateway(p)

	_, err := g.GetCandles(context.Background(), "NOPE", models.TF1h, 10)
	if err == nil {
		t.Fatal("expected error")
	}
	var connErr *ConnectivityError
	if errors.As(err, &connErr) {
		t.Fatal("non-transient error must not be reported as connectivity")
	}
	var statusErr *xhttp.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 404 {
		t.Fatalf("got %v", err)
	}
	if p.calls != 1 || len(rs.waits) != 0 {
		t.Errorf("calls=%d waits=%v", p.calls, rs.waits)
	}
}

func TestGatewayPerCallTimeout(t *testing.T) {
	p := &fakeProvider{block: true}
	g, _, _ := newTestGateway(p, WithRetry(1, 0), WithCallTimeout(10*time.Millisecond))

	_, err := g.GetCandles(context.Background(), "EURUSD", models.TF1h, 10)
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectivityError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGatewayCachesResults(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	p := &fakeProvider{candles: candlesAt(1, 2), price: 1.2345}
	g, _, _ := newTestGateway(p, WithCache(mc, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.GetCandles(ctx, "EURUSD", models.TF1h, 2); err != nil {
			t.Fatal(err)
		}
		price, err := g.GetCurrentPrice(ctx, "EURUSD", models.PriceBid)
		if err != nil || price != 1.2345 {
			t.Fatalf("price %v %v", price, err)
		}
	}
	if p.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", p.calls)
	}

	if err := g.Invalidate(ctx, "EURUSD"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.GetCandles(ctx, "EURUSD", models.TF1h, 2); err != nil {
		t.Fatal(err)
	}
	if p.calls != 3 {
		t.Fatalf("invalidate should force a refetch, calls = %d", p.calls)
	}
}

func TestGatewayNormalizesCandles(t *testing.T) {
	p := &fakeProvider{candles: candlesAt(3, 1, 2, 2)}
	g, _, _ := newTestGateway(p)

	got, err := g.GetCandles(context.Background(), "EURUSD", models.TF1h, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected duplicates dropped, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Bucket.After(got[i-1].Bucket) {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
}

func TestGatewayEmptySeries(t *testing.T) {
	g, _, _ := newTestGateway(&fakeProvider{})
	_, err := g.GetCandles(context.Background(), "EURUSD", models.TF1h, 10)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("got %v", err)
	}
}

func TestGatewayInvalidSide(t *testing.T) {
	g, _, _ := newTestGateway(&fakeProvider{price: 1})
	if _, err := g.GetCurrentPrice(context.Background(), "EURUSD", "mid"); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", ErrProviderUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"5xx", &xhttp.StatusError{Code: 502}, true},
		{"4xx", &xhttp.StatusError{Code: 400}, false},
		{"other", errors.New("bad symbol"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}
