package waiter

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{
		Timeout:        time.Second,
		Interval:       10 * time.Millisecond,
		RequestTimeout: 100 * time.Millisecond,
	}
}

func TestHTTPReady(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(http.StatusOK), func(server *httptest.Server) {
		require.NoError(t, HTTP(context.Background(), server.URL, fastOptions()))
	})
}

func TestHTTPBecomesReady(t *testing.T) {
	handler := httphelpers.SequentialHandler(
		httphelpers.HandlerWithStatus(http.StatusServiceUnavailable),
		httphelpers.HandlerWithStatus(http.StatusNotFound),
		httphelpers.HandlerWithStatus(http.StatusNoContent),
	)
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		require.NoError(t, HTTP(context.Background(), server.URL, fastOptions()))
	})
}

func TestHTTPTimeout(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(http.StatusInternalServerError), func(server *httptest.Server) {
		opts := fastOptions()
		opts.Timeout = 100 * time.Millisecond

		err := HTTP(context.Background(), server.URL, opts)
		require.ErrorIs(t, err, ErrTimeout)
		require.ErrorContains(t, err, "unexpected status 500")
	})
}

func TestHTTPNothingListening(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	opts := fastOptions()
	opts.Timeout = 100 * time.Millisecond

	err = HTTP(context.Background(), "http://"+addr, opts)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPCanceled(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(http.StatusBadGateway), func(server *httptest.Server) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		err := HTTP(ctx, server.URL, fastOptions())
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, errors.Is(err, ErrTimeout))
	})
}

func TestTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	require.NoError(t, TCP(context.Background(), l.Addr().String(), fastOptions()))
}

func TestTCPTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	opts := fastOptions()
	opts.Timeout = 100 * time.Millisecond

	require.ErrorIs(t, TCP(context.Background(), addr, opts), ErrTimeout)
}

func TestDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	require.Equal(t, DefaultTimeout, opts.Timeout)
	require.Equal(t, DefaultInterval, opts.Interval)
	require.Equal(t, DefaultRequestTimeout, opts.RequestTimeout)
	require.NotNil(t, opts.Logger)
}
