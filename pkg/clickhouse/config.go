package clickhouse

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ClientConfig describes the connection. Zero values take the defaults of withDefaults.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// UseHTTP selects the HTTP interface (port 8123) over the native protocol.
	UseHTTP bool
	// AsyncInsert lets the server buffer inserts; WaitForAsync makes the insert return
	// only once the buffer is flushed.
	AsyncInsert  bool
	WaitForAsync bool

	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	MaxExecutionTime time.Duration

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.Database == "" {
		c.Database = "default"
	}
	if c.User == "" {
		c.User = "default"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	return c
}

// DSN renders the config in clickhouse-go's URL form.
func (c ClientConfig) DSN() string {
	scheme := "clickhouse"
	if c.UseHTTP {
		scheme = "http"
	}
	q := url.Values{}
	if c.DialTimeout > 0 {
		q.Set("dial_timeout", c.DialTimeout.String())
	}
	if c.ReadTimeout > 0 {
		q.Set("read_timeout", c.ReadTimeout.String())
	}
	if c.MaxExecutionTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(c.MaxExecutionTime.Seconds())))
	}
	if c.AsyncInsert {
		q.Set("async_insert", "1")
		if c.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}

	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
