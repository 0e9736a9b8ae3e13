// Package testhelpers writes stand-in engine binaries for tests. They are
// tiny shell scripts that follow the real engines' command-line contract.
package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/domino14/trialrunner/config"
)

// Engines controls how the fake engines behave.
type Engines struct {
	// GameTime is how long the referee and players stay alive.
	GameTime time.Duration
	// AgentStderr, when set, is written to the agent's stderr.
	AgentStderr string
	// AgentSilent makes the agent exit without printing a result.
	AgentSilent bool
	// MissingAgent points the agent command at a file that does not exist.
	MissingAgent bool
	// RefereeExit is the referee's exit status.
	RefereeExit int
	// AgentExit is the agent's exit status.
	AgentExit int
}

// Fake is a set of installed fake engines.
type Fake struct {
	Dir string
	// Launches records "<role> <args>" lines in start order.
	Launches string
}

// LaunchLog returns the recorded launches, one per line.
func (f *Fake) LaunchLog(t testing.TB) []string {
	t.Helper()
	b, err := os.ReadFile(f.Launches)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}

func writeScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// Install writes the fake engines into a temp dir and points cfg at them.
func Install(t testing.TB, cfg *config.Config, e Engines) *Fake {
	t.Helper()
	dir := t.TempDir()
	f := &Fake{Dir: dir, Launches: filepath.Join(dir, "launches.log")}
	game := seconds(e.GameTime)

	writeScript(t, filepath.Join(dir, "servt"), fmt.Sprintf(`echo "referee $*" >> %q
sleep %s
echo "#$2,$4,$5#"
exit %d
`, f.Launches, game, e.RefereeExit))

	writeScript(t, filepath.Join(dir, "lookt"), fmt.Sprintf(`echo "heuristic $*" >> %q
sleep %s
`, f.Launches, game))

	agent := fmt.Sprintf(`echo "agent $*" >> %q
sleep %s
`, f.Launches, game)
	if e.AgentStderr != "" {
		agent += fmt.Sprintf("echo %q >&2\n", e.AgentStderr)
	}
	if !e.AgentSilent {
		agent += `echo "W,O,1.1,15,$2"` + "\n"
	}
	agent += fmt.Sprintf("exit %d\n", e.AgentExit)
	writeScript(t, filepath.Join(dir, "agent"), agent)

	cfg.Set(config.ConfigRefereeCmd, filepath.Join(dir, "servt"))
	cfg.Set(config.ConfigHeuristicCmd, filepath.Join(dir, "lookt"))
	if e.MissingAgent {
		cfg.Set(config.ConfigAgentCmd, filepath.Join(dir, "no-such-agent"))
	} else {
		cfg.Set(config.ConfigAgentCmd, filepath.Join(dir, "agent"))
	}
	cfg.Set(config.ConfigSettleDelay, 20*time.Millisecond)
	cfg.Set(config.ConfigThrottleDelay, time.Millisecond)
	cfg.Set(config.ConfigKillGrace, time.Second)
	cfg.Set(config.ConfigResultPath, filepath.Join(dir, "res.csv"))
	cfg.Set(config.ConfigCheckpointPath, filepath.Join(dir, "queue"))
	return f
}

// Settings installs fake engines into a fresh default config and freezes it.
func Settings(t testing.TB, e Engines, overrides map[string]any) (*config.Settings, *Fake) {
	t.Helper()
	cfg := config.DefaultConfig()
	f := Install(t, &cfg, e)
	for k, v := range overrides {
		cfg.Set(k, v)
	}
	s, err := cfg.Settings()
	if err != nil {
		t.Fatal(err)
	}
	return s, f
}
