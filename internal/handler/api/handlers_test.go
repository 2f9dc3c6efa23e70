package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/scheduler"
	"SignalDesk/internal/service/marketdata"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"

	"github.com/labstack/echo/v4"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h xhttp.Handler, method, target, body string) (int, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

type fakeSignals struct {
	lastReq models.ListSignalsRequest
	byID    map[int64]models.Signal
}

func (f *fakeSignals) List(_ context.Context, req models.ListSignalsRequest) (*usecase.SignalPage, error) {
	f.lastReq = req
	if req.Status == "BOGUS" {
		return nil, models.NewValidationError("invalid status %q", req.Status)
	}
	rows := make([]models.Signal, 0, len(f.byID))
	for _, s := range f.byID {
		rows = append(rows, s)
	}
	return &usecase.SignalPage{Signals: rows, Total: len(rows), Page: req.Page, PageSize: req.PageSize}, nil
}

func (f *fakeSignals) Get(_ context.Context, id int64) (*models.Signal, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, domrepo.ErrSignalNotFound
	}
	return &s, nil
}

type fakeAssessor struct {
	err error
}

func (f fakeAssessor) Assess(_ context.Context, symbol string, tf models.Timeframe) (*usecase.Assessment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &usecase.Assessment{
		Symbol:    symbol,
		Timeframe: tf,
		Votes:     []models.AlgorithmVote{{Algorithm: "MHarris_Strategy", Signal: models.SignalNeutral}},
		Candles:   300,
	}, nil
}

func TestSignalsHandler(t *testing.T) {
	signals := &fakeSignals{byID: map[int64]models.Signal{7: {ID: 7, Symbol: "EURUSD", Status: models.StatusActive}}}
	h := NewSignalsHandler(logger.NewNop(), signals, fakeAssessor{}, []string{"EURUSD", "BTCUSD"})

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"symbols", "/api/v1/symbols", http.StatusOK},
		{"list defaults", "/api/v1/signals", http.StatusOK},
		{"list bad timeframe", "/api/v1/signals?timeframe=2h", http.StatusBadRequest},
		{"list bad status", "/api/v1/signals?status=BOGUS", http.StatusBadRequest},
		{"detail", "/api/v1/signals/7", http.StatusOK},
		{"detail missing", "/api/v1/signals/8", http.StatusNotFound},
		{"detail not a number", "/api/v1/signals/abc", http.StatusBadRequest},
		{"evaluate", "/api/v1/signals/evaluate?symbol=eurusd&timeframe=daily", http.StatusOK},
		{"evaluate unknown symbol", "/api/v1/signals/evaluate?symbol=DOGE", http.StatusNotFound},
		{"evaluate missing symbol", "/api/v1/signals/evaluate", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, env := serve(t, h, http.MethodGet, tt.target, "")
			if env.Status != tt.status {
				t.Fatalf("status = %d, want %d (%s)", env.Status, tt.status, env.Data)
			}
		})
	}

	serve(t, h, http.MethodGet, "/api/v1/signals", "")
	if signals.lastReq.Page != 1 || signals.lastReq.PageSize != 10 {
		t.Fatalf("defaults not applied: %+v", signals.lastReq)
	}

	_, env := serve(t, h, http.MethodGet, "/api/v1/signals/evaluate?symbol=eurusd&timeframe=daily", "")
	var as usecase.Assessment
	if err := json.Unmarshal(env.Data, &as); err != nil {
		t.Fatal(err)
	}
	if as.Symbol != "EURUSD" || as.Timeframe != models.TF1d || len(as.Votes) != 1 {
		t.Fatalf("unexpected assessment %+v", as)
	}
}

func TestEvaluateMapsProviderErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&marketdata.ConnectivityError{Op: "candles", Symbol: "EURUSD", Attempts: 3, Err: marketdata.ErrProviderUnavailable}, http.StatusServiceUnavailable},
		{fmt.Errorf("candles: %w", marketdata.ErrNoData), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewSignalsHandler(logger.NewNop(), &fakeSignals{}, fakeAssessor{err: tt.err}, []string{"EURUSD"})
		_, env := serve(t, h, http.MethodGet, "/api/v1/signals/evaluate?symbol=EURUSD", "")
		if env.Status != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, env.Status, tt.status)
		}
	}
}

type fakeMarket struct {
	candles []models.Candle
}

func (f fakeMarket) GetCandles(_ context.Context, _ string, _ models.Timeframe, lookback int) ([]models.Candle, error) {
	if lookback < len(f.candles) {
		return f.candles[len(f.candles)-lookback:], nil
	}
	return f.candles, nil
}

func (f fakeMarket) GetCurrentPrice(context.Context, string, models.PriceSide) (float64, error) {
	return 1, nil
}

func TestCandlesHandler(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cs := make([]models.Candle, 5)
	for i := range cs {
		cs[i] = models.Candle{Bucket: base.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5}
	}
	h := NewCandlesHandler(logger.NewNop(), usecase.NewCandlesUseCase(fakeMarket{candles: cs}))

	_, env := serve(t, h, http.MethodGet, "/api/v1/candles?symbol=eurusd&timeframe=1h&lookback=3", "")
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d: %s", env.Status, env.Data)
	}
	var res usecase.GetCandlesResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Symbol != "EURUSD" || res.Count != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	_, env = serve(t, h, http.MethodGet, "/api/v1/candles?symbol=EURUSD&lookback=9000", "")
	if env.Status != http.StatusBadRequest {
		t.Fatalf("lookback over cap accepted: %d", env.Status)
	}
}

type fakeRunner struct {
	tf    models.Timeframe
	err   error
	swept int
}

func (f *fakeRunner) GenerateForTimeframe(_ context.Context, tf models.Timeframe) (usecase.GenerationResult, error) {
	f.tf = tf
	return usecase.GenerationResult{Timeframe: tf, Evaluated: 2, Signals: 1}, f.err
}

func (f *fakeRunner) SweepStatuses(context.Context) (usecase.SweepResult, error) {
	f.swept++
	return usecase.SweepResult{Checked: 4, Updated: 1}, f.err
}

func TestJobsHandler(t *testing.T) {
	runner := &fakeRunner{}
	h := NewJobsHandler(logger.NewNop(), runner)

	_, env := serve(t, h, http.MethodPost, "/api/v1/jobs/generate", `{"timeframe":"daily"}`)
	if env.Status != http.StatusOK || runner.tf != models.TF1d {
		t.Fatalf("generate: status %d tf %q", env.Status, runner.tf)
	}

	_, env = serve(t, h, http.MethodPost, "/api/v1/jobs/generate", `{"timeframe":"7m"}`)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("bad timeframe accepted: %d", env.Status)
	}

	_, env = serve(t, h, http.MethodPost, "/api/v1/jobs/sweep", "")
	if env.Status != http.StatusOK || runner.swept != 1 {
		t.Fatalf("sweep: status %d swept %d", env.Status, runner.swept)
	}

	runner.err = scheduler.ErrAlreadyRunning
	_, env = serve(t, h, http.MethodPost, "/api/v1/jobs/sweep", "")
	if env.Status != http.StatusConflict {
		t.Fatalf("overlapping sweep: status %d", env.Status)
	}
}

type fakeQueue struct{ st queue.Stats }

func (f fakeQueue) Stats(context.Context) (queue.Stats, error) { return f.st, nil }

func TestJobsHandlerQueueStats(t *testing.T) {
	code, _ := serve(t, NewJobsHandler(logger.NewNop(), &fakeRunner{}), http.MethodGet, "/api/v1/jobs/queue", "")
	if code != http.StatusNotFound && code != http.StatusMethodNotAllowed {
		t.Fatalf("queue route without a queue: %d", code)
	}

	h := NewJobsHandler(logger.NewNop(), &fakeRunner{}, WithQueueStats(fakeQueue{st: queue.Stats{Pending: 3, Dead: 1}}))
	_, env := serve(t, h, http.MethodGet, "/api/v1/jobs/queue", "")
	var st queue.Stats
	if err := json.Unmarshal(env.Data, &st); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if env.Status != http.StatusOK || st.Pending != 3 || st.Dead != 1 {
		t.Fatalf("stats: status %d %+v", env.Status, st)
	}
}

func TestPositionsHandler(t *testing.T) {
	pm := usecase.NewPositionManager(1, 0.02)
	h := NewPositionsHandler(logger.NewNop(), pm)

	_, env := serve(t, h, http.MethodPost, "/api/v1/positions", `{"symbol":"eurusd","entry_price":1.1,"stop_loss":1.09,"balance":10000}`)
	if env.Status != http.StatusCreated {
		t.Fatalf("open: status %d (%s)", env.Status, env.Data)
	}
	var pos models.Position
	if err := json.Unmarshal(env.Data, &pos); err != nil {
		t.Fatal(err)
	}
	if pos.Symbol != "EURUSD" || pos.PositionSize <= 0 {
		t.Fatalf("unexpected position %+v", pos)
	}

	_, env = serve(t, h, http.MethodPost, "/api/v1/positions", `{"symbol":"BTCUSD","entry_price":60000,"stop_loss":59000,"balance":10000}`)
	if env.Status != http.StatusConflict {
		t.Fatalf("limit not enforced: status %d", env.Status)
	}

	_, env = serve(t, h, http.MethodPost, "/api/v1/positions", `{"symbol":"BTCUSD","entry_price":0,"stop_loss":59000,"balance":10000}`)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("zero entry accepted: status %d", env.Status)
	}

	_, env = serve(t, h, http.MethodGet, "/api/v1/positions/size?balance=10000&entry=100&stop=98", "")
	var size models.PositionSizeResponse
	if err := json.Unmarshal(env.Data, &size); err != nil {
		t.Fatal(err)
	}
	if size.PositionSize != 100 {
		t.Fatalf("position size = %v, want 100", size.PositionSize)
	}

	code, _ := serve(t, h, http.MethodDelete, "/api/v1/positions/EURUSD", "")
	if code != http.StatusNoContent {
		t.Fatalf("close: code %d", code)
	}
	_, env = serve(t, h, http.MethodDelete, "/api/v1/positions/EURUSD", "")
	if env.Status != http.StatusNotFound {
		t.Fatalf("double close: status %d", env.Status)
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	code, env := serve(t, h, http.MethodGet, "/healthz", "")
	if code != http.StatusOK || env.Status != http.StatusOK {
		t.Fatalf("healthy: code %d", code)
	}

	h = NewHealthHandler(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	code, env = serve(t, h, http.MethodGet, "/healthz", "")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("degraded: code %d", code)
	}
	var deps map[string]string
	if err := json.Unmarshal(env.Data, &deps); err != nil {
		t.Fatal(err)
	}
	if deps["postgres"] != "ok" || deps["redis"] != "connection refused" {
		t.Fatalf("unexpected deps %v", deps)
	}
}
