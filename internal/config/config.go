package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/go-querystring/query"
)

const (
	DefaultStartupTimeout = 40 * time.Second
	DefaultAppPackage     = "../app.go"
	DefaultBuildDir       = "build"
	DefaultMode           = "prod"

	// BuildCacheOff disables the build cache when used as GOHOOK_E2E_BUILD_CACHE.
	BuildCacheOff = "off"

	WindowWidth  = 1920
	WindowHeight = 1080
)

// passthroughVars are forwarded from the harness environment to the server
// only when they are set.
var passthroughVars = []string{"NODE_ENV", "PUBLIC_URL"}

type Config struct {
	PrebuiltExecutable string
	AppPackage         string
	WorkDir            string
	BuildDir           string
	Mode               string
	StartupTimeout     time.Duration
	DatabaseConnection string
	BuildCache         string
	InstallBrowsers    bool
	Headless           bool
	Passthrough        map[string]string
}

type memoryDSN struct {
	Mode  string `url:"mode"`
	Cache string `url:"cache"`
}

// InMemoryDatabase returns the sqlite connection string of a shared
// in-memory database, so every test instance starts from an empty schema.
func InMemoryDatabase() string {
	v, err := query.Values(memoryDSN{Mode: "memory", Cache: "shared"})
	if err != nil {
		// memoryDSN only holds strings
		panic(err)
	}
	return "file::memory:?" + v.Encode()
}

func Load() (*Config, error) {
	startupTimeout, err := time.ParseDuration(getEnv("GOHOOK_E2E_STARTUP_TIMEOUT", DefaultStartupTimeout.String()))
	if err != nil {
		return nil, fmt.Errorf("GOHOOK_E2E_STARTUP_TIMEOUT: %w", err)
	}

	installBrowsers := false
	if v, ok := os.LookupEnv("GOHOOK_E2E_INSTALL_BROWSERS"); ok && v != "" {
		installBrowsers, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GOHOOK_E2E_INSTALL_BROWSERS: %w", err)
		}
	}

	buildDir := getEnv("GOHOOK_E2E_BUILD_DIR", DefaultBuildDir)

	cfg := &Config{
		PrebuiltExecutable: os.Getenv("GOHOOK_EXE"),
		AppPackage:         getEnv("GOHOOK_E2E_APP", DefaultAppPackage),
		WorkDir:            os.Getenv("GOHOOK_E2E_WORKDIR"),
		BuildDir:           buildDir,
		Mode:               getEnv("GOHOOK_E2E_MODE", DefaultMode),
		StartupTimeout:     startupTimeout,
		DatabaseConnection: getEnv("GOHOOK_E2E_DATABASE", InMemoryDatabase()),
		BuildCache:         getEnv("GOHOOK_E2E_BUILD_CACHE", filepath.Join(buildDir, "buildcache.db")),
		InstallBrowsers:    installBrowsers,
		Headless:           os.Getenv("CI") == "true",
		Passthrough:        make(map[string]string),
	}

	for _, key := range passthroughVars {
		if value, ok := os.LookupEnv(key); ok {
			cfg.Passthrough[key] = value
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.StartupTimeout <= 0 {
		return fmt.Errorf("GOHOOK_E2E_STARTUP_TIMEOUT must be greater than 0")
	}

	if c.BuildDir == "" {
		return fmt.Errorf("GOHOOK_E2E_BUILD_DIR is required")
	}

	if c.PrebuiltExecutable != "" {
		info, err := os.Stat(c.PrebuiltExecutable)
		if err != nil {
			return fmt.Errorf("GOHOOK_EXE: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("GOHOOK_EXE %s is a directory", c.PrebuiltExecutable)
		}
		return nil
	}

	if c.AppPackage == "" {
		return fmt.Errorf("GOHOOK_E2E_APP is required when GOHOOK_EXE is not set")
	}

	return nil
}

// BuildCacheEnabled reports whether built artifacts should be cached.
func (c *Config) BuildCacheEnabled() bool {
	return c.BuildCache != "" && c.BuildCache != BuildCacheOff
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
