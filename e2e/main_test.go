//go:build e2e

package e2e

import (
	"log"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Re-executed helper binaries must not touch the build directory.
	if os.Getenv(helperEnv) != "" {
		os.Exit(m.Run())
	}

	h, err := Default()
	if err != nil {
		log.Fatalf("Failed to set up harness: %v", err)
	}
	if err := h.ReapStale(); err != nil {
		log.Printf("Failed to reap stale servers: %v", err)
	}

	code := m.Run()

	if err := Shutdown(); err != nil {
		log.Printf("Failed to shut down harness: %v", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}
