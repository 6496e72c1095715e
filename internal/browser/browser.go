// Package browser attaches a Playwright driven Chromium page to a running
// GoHook instance.
package browser

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"
)

type Options struct {
	URL      string
	Headless bool
	Width    int
	Height   int
	// Install downloads the Playwright driver and Chromium before launching.
	Install bool
	Logger  *slog.Logger
}

type Session struct {
	pw      *playwright.Playwright
	Browser playwright.Browser
	Page    playwright.Page
}

// LaunchArgs are the Chromium command line flags for a window of the given size.
func LaunchArgs(width, height int) []string {
	return []string{fmt.Sprintf("--window-size=%d,%d", width, height), "--no-sandbox"}
}

// Launch starts Chromium and opens a page navigated to opts.URL. Everything
// started so far is shut down again when a step fails.
func Launch(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("could not install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	s := &Session{pw: pw}

	s.Browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     LaunchArgs(opts.Width, opts.Height),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("could not launch chromium: %w", err), s.Close())
	}

	s.Page, err = s.Browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("could not create page: %w", err), s.Close())
	}

	if _, err := s.Page.Goto(opts.URL); err != nil {
		return nil, errors.Join(fmt.Errorf("could not open %s: %w", opts.URL, err), s.Close())
	}

	opts.Logger.Info("browser attached", "url", opts.URL, "headless", opts.Headless)
	return s, nil
}

// Close closes the browser and stops the Playwright driver.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("could not close browser: %w", err))
		}
		s.Browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("could not stop playwright: %w", err))
		}
		s.pw = nil
	}
	return errors.Join(errs...)
}
