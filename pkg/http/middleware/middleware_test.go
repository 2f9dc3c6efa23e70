package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applogger "SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

func TestRecoverLogsPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(Recover(applogger.NewWriter(&buf)))
	e.GET("/boom", func(echo.Context) error { panic("kaboom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "kaboom") || !strings.Contains(buf.String(), `"route":"/boom"`) {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRequestLoggingLevels(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	e.Use(RequestLogging(applogger.NewWriter(&buf)))
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, `"route":"/items/:id"`) {
		t.Fatalf("unexpected log line: %s", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{AllowOrigins: []string{"https://desk.example"}, AllowMethods: []string{http.MethodGet}}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://desk.example")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://desk.example" {
		t.Fatalf("preflight: code %d headers %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != http.MethodGet {
		t.Fatalf("allow methods: %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin: code %d headers %v", rec.Code, rec.Header())
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{101: "1xx", 204: "2xx", 302: "3xx", 429: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", code, got, want)
		}
	}
}
