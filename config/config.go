package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigBasePort        = "base-port"
	ConfigSearchDepth     = "search-depth"
	ConfigNumWorkers      = "num-workers"
	ConfigSettleDelay     = "settle-delay"
	ConfigThrottleDelay   = "throttle-delay"
	ConfigCheckpointEvery = "checkpoint-every"
	ConfigCheckpointPath  = "checkpoint-path"
	ConfigResultPath      = "result-path"
	ConfigRefereeCmd      = "referee-cmd"
	ConfigHeuristicCmd    = "heuristic-cmd"
	ConfigAgentCmd        = "agent-cmd"
	ConfigKillGrace       = "kill-grace"
	ConfigRepetitions     = "repetitions"
	ConfigShuffle         = "shuffle"
	ConfigJobsFile        = "jobs-file"
	ConfigLedgerPath      = "ledger-path"
	ConfigNatsURL         = "nats-url"
	ConfigNatsSubject     = "nats-subject"
	ConfigLogLevel        = "log-level"
	ConfigFile            = "config"
	ConfigAnalyze         = "analyze"
	ConfigAttention       = "attention"
)

// PortStride is the number of ports reserved for each worker. A worker
// rotates through PortStride offsets inside its own range.
const PortStride = 10

type Config struct {
	viper.Viper
}

// DefaultConfig returns a config holding only the defaults. Tests use it
// directly; the CLI calls Load on top of it.
func DefaultConfig() Config {
	c := Config{}
	c.Viper = *viper.New()
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	c.SetDefault(ConfigBasePort, 12340)
	c.SetDefault(ConfigSearchDepth, 16)
	c.SetDefault(ConfigNumWorkers, 5)
	c.SetDefault(ConfigSettleDelay, 200*time.Millisecond)
	c.SetDefault(ConfigThrottleDelay, 100*time.Millisecond)
	c.SetDefault(ConfigCheckpointEvery, 10)
	c.SetDefault(ConfigCheckpointPath, "queue")
	c.SetDefault(ConfigResultPath, "res.csv")
	c.SetDefault(ConfigRefereeCmd, "./servt")
	c.SetDefault(ConfigHeuristicCmd, "./lookt")
	c.SetDefault(ConfigAgentCmd, "./agent")
	c.SetDefault(ConfigKillGrace, 5*time.Second)
	c.SetDefault(ConfigRepetitions, 3)
	c.SetDefault(ConfigShuffle, false)
	c.SetDefault(ConfigJobsFile, "")
	c.SetDefault(ConfigLedgerPath, "")
	c.SetDefault(ConfigNatsURL, "")
	c.SetDefault(ConfigNatsSubject, "trialrunner.results")
	c.SetDefault(ConfigLogLevel, "info")
}

// Load parses command-line args, then environment (TRIALRUNNER_*), then an
// optional YAML file named by --config. Flags win over env, env over file.
func (c *Config) Load(args []string) error {
	c.Viper = *viper.New()
	c.setDefaults()

	fs := pflag.NewFlagSet("trialrunner", pflag.ContinueOnError)
	fs.Int(ConfigBasePort, 12340, "first port of worker 0's range")
	fs.Int(ConfigSearchDepth, 16, "search depth passed to the heuristic player")
	fs.Int(ConfigNumWorkers, 5, "number of concurrent workers")
	fs.Duration(ConfigSettleDelay, 200*time.Millisecond, "pause between launching trial processes")
	fs.Duration(ConfigThrottleDelay, 100*time.Millisecond, "pause after each job")
	fs.Int(ConfigCheckpointEvery, 10, "worker 0 writes a queue checkpoint every this many jobs")
	fs.String(ConfigCheckpointPath, "queue", "queue checkpoint file (.json, .yaml or .yml)")
	fs.String(ConfigResultPath, "res.csv", "result store, one line appended per trial")
	fs.String(ConfigRefereeCmd, "./servt", "referee command")
	fs.String(ConfigHeuristicCmd, "./lookt", "heuristic player command")
	fs.String(ConfigAgentCmd, "./agent", "learned agent command")
	fs.Duration(ConfigKillGrace, 5*time.Second, "grace period before killing trial processes on cancel")
	fs.Int(ConfigRepetitions, 3, "how many times to repeat every opening")
	fs.Bool(ConfigShuffle, false, "shuffle the job list before queueing")
	fs.String(ConfigJobsFile, "", "load jobs from this file instead of enumerating them")
	fs.String(ConfigLedgerPath, "", "sqlite trial ledger; empty disables it")
	fs.String(ConfigNatsURL, "", "publish result lines to this NATS server")
	fs.String(ConfigNatsSubject, "trialrunner.results", "NATS subject for result lines")
	fs.String(ConfigLogLevel, "info", "debug, info or disabled")
	fs.String(ConfigFile, "", "optional YAML config file")
	fs.String(ConfigAnalyze, "", "analyze this result file and exit")
	fs.Bool(ConfigAttention, false, "list ledger trials that need attention and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.BindPFlags(fs); err != nil {
		return err
	}

	c.SetEnvPrefix("trialrunner")
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()

	if cfgFile := c.GetString(ConfigFile); cfgFile != "" {
		c.SetConfigFile(cfgFile)
		c.SetConfigType("yaml")
		if err := c.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}
	return nil
}

// AdjustRelativePaths makes relative engine commands resolve against the
// directory holding the executable, unless they exist in the working
// directory already.
func (c *Config) AdjustRelativePaths(basepath string) {
	for _, key := range []string{ConfigRefereeCmd, ConfigHeuristicCmd, ConfigAgentCmd} {
		argv, err := shellquote.Split(c.GetString(key))
		if err != nil || len(argv) == 0 {
			continue
		}
		bin := argv[0]
		if filepath.IsAbs(bin) || !strings.ContainsRune(bin, filepath.Separator) {
			continue
		}
		if _, err := os.Stat(bin); err == nil {
			continue
		}
		argv[0] = filepath.Join(basepath, bin)
		c.Set(key, shellquote.Join(argv...))
	}
}

// Settings is the immutable view of a Config that the scheduler, workers and
// trial runner are built from.
type Settings struct {
	BasePort        int
	SearchDepth     int
	NumWorkers      int
	SettleDelay     time.Duration
	ThrottleDelay   time.Duration
	CheckpointEvery int
	CheckpointPath  string
	ResultPath      string
	KillGrace       time.Duration

	RefereeCmd   []string
	HeuristicCmd []string
	AgentCmd     []string

	Repetitions int
	Shuffle     bool
	JobsFile    string
	LedgerPath  string
	NatsURL     string
	NatsSubject string
}

// Settings validates the config and freezes it.
func (c *Config) Settings() (*Settings, error) {
	s := &Settings{
		BasePort:        c.GetInt(ConfigBasePort),
		SearchDepth:     c.GetInt(ConfigSearchDepth),
		NumWorkers:      c.GetInt(ConfigNumWorkers),
		SettleDelay:     c.GetDuration(ConfigSettleDelay),
		ThrottleDelay:   c.GetDuration(ConfigThrottleDelay),
		CheckpointEvery: c.GetInt(ConfigCheckpointEvery),
		CheckpointPath:  c.GetString(ConfigCheckpointPath),
		ResultPath:      c.GetString(ConfigResultPath),
		KillGrace:       c.GetDuration(ConfigKillGrace),
		Repetitions:     c.GetInt(ConfigRepetitions),
		Shuffle:         c.GetBool(ConfigShuffle),
		JobsFile:        c.GetString(ConfigJobsFile),
		LedgerPath:      c.GetString(ConfigLedgerPath),
		NatsURL:         c.GetString(ConfigNatsURL),
		NatsSubject:     c.GetString(ConfigNatsSubject),
	}
	var err error
	if s.RefereeCmd, err = splitCommand(c, ConfigRefereeCmd); err != nil {
		return nil, err
	}
	if s.HeuristicCmd, err = splitCommand(c, ConfigHeuristicCmd); err != nil {
		return nil, err
	}
	if s.AgentCmd, err = splitCommand(c, ConfigAgentCmd); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func splitCommand(c *Config, key string) ([]string, error) {
	argv, err := shellquote.Split(c.GetString(key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s: empty command", key)
	}
	return argv, nil
}

func (s *Settings) validate() error {
	if s.NumWorkers < 1 {
		return errors.New("num-workers must be at least 1")
	}
	if s.BasePort < 1 {
		return errors.New("base-port must be positive")
	}
	if last := s.BasePort + s.NumWorkers*PortStride - 1; last > 65535 {
		return fmt.Errorf("port range %d-%d does not fit below 65536", s.BasePort, last)
	}
	if s.CheckpointEvery < 1 {
		return errors.New("checkpoint-every must be at least 1")
	}
	if s.SettleDelay < 0 || s.ThrottleDelay < 0 || s.KillGrace < 0 {
		return errors.New("delays must not be negative")
	}
	if s.ResultPath == "" {
		return errors.New("result-path must be set")
	}
	if s.Repetitions < 0 {
		return errors.New("repetitions must not be negative")
	}
	return nil
}
