package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDefaults(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	s, err := cfg.Settings()
	is.NoErr(err)
	is.Equal(s.BasePort, 12340)
	is.Equal(s.SearchDepth, 16)
	is.Equal(s.NumWorkers, 5)
	is.Equal(s.SettleDelay, 200*time.Millisecond)
	is.Equal(s.ThrottleDelay, 100*time.Millisecond)
	is.Equal(s.CheckpointEvery, 10)
	is.Equal(s.CheckpointPath, "queue")
	is.Equal(s.ResultPath, "res.csv")
	is.Equal(s.RefereeCmd, []string{"./servt"})
	is.Equal(s.HeuristicCmd, []string{"./lookt"})
	is.Equal(s.AgentCmd, []string{"./agent"})
	is.Equal(s.Repetitions, 3)
}

func TestLoadFlags(t *testing.T) {
	is := is.New(t)
	cfg := &Config{}
	err := cfg.Load([]string{
		"--num-workers", "2",
		"--base-port", "20000",
		"--settle-delay", "5ms",
		"--agent-cmd", `./agent -v -h "local host"`,
	})
	is.NoErr(err)
	s, err := cfg.Settings()
	is.NoErr(err)
	is.Equal(s.NumWorkers, 2)
	is.Equal(s.BasePort, 20000)
	is.Equal(s.SettleDelay, 5*time.Millisecond)
	is.Equal(s.AgentCmd, []string{"./agent", "-v", "-h", "local host"})
	// untouched keys keep their defaults
	is.Equal(s.SearchDepth, 16)
}

func TestLoadEnv(t *testing.T) {
	is := is.New(t)
	t.Setenv("TRIALRUNNER_SEARCH_DEPTH", "9")
	cfg := &Config{}
	is.NoErr(cfg.Load(nil))
	s, err := cfg.Settings()
	is.NoErr(err)
	is.Equal(s.SearchDepth, 9)
}

func TestLoadFile(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "trials.yaml")
	is.NoErr(os.WriteFile(path, []byte("num-workers: 7\nresult-path: out.csv\n"), 0o644))

	cfg := &Config{}
	is.NoErr(cfg.Load([]string{"--config", path}))
	s, err := cfg.Settings()
	is.NoErr(err)
	is.Equal(s.NumWorkers, 7)
	is.Equal(s.ResultPath, "out.csv")
}

func TestSettingsValidation(t *testing.T) {
	for _, tc := range []struct {
		key string
		val any
	}{
		{ConfigNumWorkers, 0},
		{ConfigBasePort, 65530},
		{ConfigCheckpointEvery, 0},
		{ConfigSettleDelay, -time.Second},
		{ConfigResultPath, ""},
		{ConfigRefereeCmd, ""},
		{ConfigAgentCmd, `./agent "unterminated`},
	} {
		t.Run(tc.key, func(t *testing.T) {
			is := is.New(t)
			cfg := DefaultConfig()
			cfg.Set(tc.key, tc.val)
			_, err := cfg.Settings()
			is.True(err != nil)
		})
	}
}

func TestAdjustRelativePaths(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	cfg.Set(ConfigAgentCmd, "./bin/agent -v")
	cfg.Set(ConfigHeuristicCmd, "lookt")
	cfg.AdjustRelativePaths("/opt/harness")

	is.Equal(cfg.GetString(ConfigAgentCmd), "/opt/harness/bin/agent -v")
	// bare names are left to PATH lookup
	is.Equal(cfg.GetString(ConfigHeuristicCmd), "lookt")
}
