package process

import (
	"os"
	"runtime"
	"sort"
	"strconv"
)

const (
	EnvServerPort         = "GOHOOK_SERVER_PORT"
	EnvDatabaseConnection = "GOHOOK_DATABASE_CONNECTION"
	EnvPluginsDir         = "GOHOOK_PLUGINSDIR"
)

// Env is the configuration GoHook reads from its environment.
type Env struct {
	Port               int
	DatabaseConnection string
	PluginsDir         string
	// Extra is appended in key order.
	Extra map[string]string
}

// Environ renders the environment in os/exec form.
func (e Env) Environ() []string {
	env := []string{
		EnvServerPort + "=" + strconv.Itoa(e.Port),
		EnvDatabaseConnection + "=" + e.DatabaseConnection,
		EnvPluginsDir + "=" + e.PluginsDir,
	}

	keys := make([]string, 0, len(e.Extra))
	for k := range e.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+e.Extra[k])
	}

	// Windows processes cannot initialize networking without SystemRoot.
	if runtime.GOOS == "windows" {
		if root, ok := os.LookupEnv("SystemRoot"); ok {
			env = append(env, "SystemRoot="+root)
		}
	}
	return env
}
