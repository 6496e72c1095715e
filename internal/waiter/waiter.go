// Package waiter polls a network resource until it becomes reachable.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout        = 40 * time.Second
	DefaultInterval       = 250 * time.Millisecond
	DefaultRequestTimeout = time.Second
)

var ErrTimeout = errors.New("timed out")

type Options struct {
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// Interval is the pause between two probes.
	Interval time.Duration
	// RequestTimeout bounds a single probe.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// HTTP waits until a GET of url answers with a 2xx status.
func HTTP(ctx context.Context, url string, opts Options) error {
	opts = opts.withDefaults()
	client := &http.Client{Timeout: opts.RequestTimeout}

	return poll(ctx, "http-get "+url, opts, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	})
}

// TCP waits until addr accepts a TCP connection.
func TCP(ctx context.Context, addr string, opts Options) error {
	opts = opts.withDefaults()
	dialer := &net.Dialer{Timeout: opts.RequestTimeout}

	return poll(ctx, "tcp "+addr, opts, func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	})
}

func poll(ctx context.Context, resource string, opts Options, probe func(context.Context) error) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	started := time.Now()
	attempts := 0
	for {
		attempts++
		lastErr := probe(ctx)
		if lastErr == nil {
			opts.Logger.Debug("resource is reachable", "resource", resource, "attempts", attempts, "elapsed", time.Since(started))
			return nil
		}

		select {
		case <-ctx.Done():
			if err := parent.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w after %s waiting for %s: %w", ErrTimeout, opts.Timeout, resource, lastErr)
		case <-ticker.C:
		}
	}
}
