// Command gohook-e2e starts a GoHook instance the way the e2e suite does and
// keeps it running with a browser attached until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/errgroup"

	"github.com/mycoool/webhook-ui/e2e"
	"github.com/mycoool/webhook-ui/internal/config"
)

var errPageClosed = errors.New("browser page closed")

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	plugins  stringList
	headless bool
	timeout  time.Duration
	reap     bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("gohook-e2e", flag.ContinueOnError)
	fs.Var(&opts.plugins, "plugin", "Plugin package to build and load (repeatable)")
	fs.BoolVar(&opts.headless, "headless", false, "Run the browser headless (also enabled by CI=true)")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Startup timeout (defaults to GOHOOK_E2E_STARTUP_TIMEOUT)")
	fs.BoolVar(&opts.reap, "reap", false, "Kill servers left behind by crashed runs before starting")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) (err error) {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.headless {
		cfg.Headless = true
	}
	if opts.timeout > 0 {
		cfg.StartupTimeout = opts.timeout
	}

	h, err := e2e.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, h.Shutdown())
	}()

	if opts.reap {
		if err := h.ReapStale(); err != nil {
			log.Printf("Failed to reap stale servers: %v", err)
		}
	}

	pluginsDir := ""
	if len(opts.plugins) > 0 {
		if pluginsDir, err = h.NewPluginDir(ctx, opts.plugins...); err != nil {
			return err
		}
		log.Printf("Plugins built into %s", pluginsDir)
	}

	started := time.Now()
	gt, err := h.NewTest(ctx, pluginsDir)
	if err != nil {
		return err
	}
	log.Printf("GoHook running at %s (pid %d, ready in %s)", gt.URL, gt.PID(), time.Since(started).Round(time.Millisecond))

	pageClosed := make(chan struct{})
	gt.Page.OnClose(func(playwright.Page) {
		close(pageClosed)
	})

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the server
	g.Go(func() error {
		select {
		case <-gt.Exited():
			return fmt.Errorf("gohook exited with code %d", gt.ExitCode())
		case <-gCtx.Done():
			return nil
		}
	})

	// Watch the browser
	g.Go(func() error {
		select {
		case <-pageClosed:
			return errPageClosed
		case <-gCtx.Done():
			return nil
		}
	})

	waitErr := g.Wait()
	log.Println("Shutting down...")
	closeErr := gt.Close()

	if errors.Is(waitErr, errPageClosed) {
		waitErr = nil
	}
	return errors.Join(waitErr, closeErr)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
