package cache

import (
	"testing"
	"time"
)

func TestTTLCache(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewTTLCache[[]string]()
	c.now = func() time.Time { return now }

	c.Set("EURUSD:1h", []string{"BUY"}, 5*time.Second)
	c.Set("forever", []string{"x"}, 0)

	if v, ok := c.Get("EURUSD:1h"); !ok || v[0] != "BUY" {
		t.Fatalf("got %v %v", v, ok)
	}

	now = now.Add(6 * time.Second)
	if _, ok := c.Get("EURUSD:1h"); ok {
		t.Fatal("entry should have expired")
	}
	if _, ok := c.Get("forever"); !ok {
		t.Fatal("zero ttl must not expire")
	}
}
