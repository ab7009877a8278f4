// Package config holds the settings shared by every alpha subcommand.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/operator-framework/alpha-decomposition/pkg/bitset"
	"github.com/operator-framework/alpha-decomposition/pkg/lib/codec"
	"github.com/operator-framework/alpha-decomposition/pkg/oracle"
	"github.com/operator-framework/alpha-decomposition/pkg/scanner"
	"github.com/operator-framework/alpha-decomposition/pkg/search"
)

// Config is loaded from defaults, then an optional YAML file, then flags.
type Config struct {
	// Universe is the number of bit positions the exhaustive search may use.
	Universe int `mapstructure:"universe"`
	// MaxK bounds the k tried when computing α(n).
	MaxK int `mapstructure:"maxK"`
	// ExhaustiveBound is the largest n a scan decides exhaustively.
	ExhaustiveBound int             `mapstructure:"exhaustiveBound"`
	Strategy        search.Strategy `mapstructure:"strategy"`
	Workers         int             `mapstructure:"workers"`
	// OracleUniverse caps the positions of a solver witness.
	OracleUniverse     int           `mapstructure:"oracleUniverse"`
	SolverTimeout      time.Duration `mapstructure:"solverTimeout"`
	CheckpointInterval time.Duration `mapstructure:"checkpointInterval"`
	ProgressInterval   time.Duration `mapstructure:"progressInterval"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Universe:           bitset.MaxBound,
		MaxK:               search.MaxLevelK,
		ExhaustiveBound:    scanner.DefaultExhaustiveBound,
		Strategy:           search.StrategyLevel,
		Workers:            1,
		OracleUniverse:     oracle.MaxUniverse,
		SolverTimeout:      time.Minute,
		CheckpointInterval: 30 * time.Second,
		ProgressInterval:   30 * time.Second,
	}
}

// Load returns the defaults overlaid with the YAML document at path.
// Durations may be written as "30s" or as a number of seconds.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	if len(raw) == 0 {
		return c, nil
	}
	if err := codec.Decode(raw, c); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	return c, nil
}

// AddFlags registers a flag per setting, defaulting to the current values.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Universe, "universe", c.Universe, "number of bit positions the exhaustive search may use")
	fs.IntVar(&c.MaxK, "max-k", c.MaxK, "largest k tried when computing alpha(n)")
	fs.IntVar(&c.ExhaustiveBound, "exhaustive-bound", c.ExhaustiveBound, "largest n a scan decides exhaustively; larger n go to the solver")
	fs.Var(newStrategyValue(&c.Strategy), "strategy", "exhaustive search strategy (level or mask)")
	fs.IntVar(&c.Workers, "workers", c.Workers, "number of concurrent workers")
	fs.IntVar(&c.OracleUniverse, "oracle-universe", c.OracleUniverse, "largest universe handed to the solver")
	fs.DurationVar(&c.SolverTimeout, "timeout", c.SolverTimeout, "time limit per solver call, 0 for none")
	fs.DurationVar(&c.CheckpointInterval, "checkpoint-interval", c.CheckpointInterval, "how often a scan saves its checkpoint")
	fs.DurationVar(&c.ProgressInterval, "progress-interval", c.ProgressInterval, "how often a scan logs progress")
}

// Validate reports the first setting out of range.
func (c *Config) Validate() error {
	switch {
	case c.Universe < 1 || c.Universe > bitset.MaxBound:
		return fmt.Errorf("universe must be between 1 and %d, got %d", bitset.MaxBound, c.Universe)
	case c.MaxK < 1:
		return fmt.Errorf("max-k must be positive, got %d", c.MaxK)
	case c.ExhaustiveBound < 0:
		return fmt.Errorf("exhaustive-bound must not be negative, got %d", c.ExhaustiveBound)
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.OracleUniverse < 1 || c.OracleUniverse > oracle.MaxUniverse:
		return fmt.Errorf("oracle-universe must be between 1 and %d, got %d", oracle.MaxUniverse, c.OracleUniverse)
	case c.SolverTimeout < 0:
		return fmt.Errorf("timeout must not be negative, got %s", c.SolverTimeout)
	}
	return c.Strategy.Validate()
}

// EngineOptions configures a search.Engine from c.
func (c *Config) EngineOptions() []search.Option {
	return []search.Option{
		search.WithUniverse(c.Universe),
		search.WithMaxK(c.MaxK),
		search.WithStrategy(c.Strategy),
		search.WithWorkers(c.Workers),
	}
}

// OracleOptions configures an oracle.Adapter from c.
func (c *Config) OracleOptions() []oracle.Option {
	return []oracle.Option{
		oracle.WithUniverse(c.OracleUniverse),
		oracle.WithTimeout(c.SolverTimeout),
	}
}

// ScannerOptions configures a scanner.Scanner from c. The engine it uses
// decides one n at a time, so scan workers fan out across n instead.
func (c *Config) ScannerOptions() []scanner.Option {
	return []scanner.Option{
		scanner.WithExhaustiveBound(c.ExhaustiveBound),
		scanner.WithWorkers(c.Workers),
		scanner.WithProgressInterval(c.ProgressInterval),
	}
}

type strategyValue struct {
	s *search.Strategy
}

func newStrategyValue(s *search.Strategy) *strategyValue {
	return &strategyValue{s: s}
}

func (v *strategyValue) String() string {
	return string(*v.s)
}

func (v *strategyValue) Set(s string) error {
	strategy := search.Strategy(s)
	if err := strategy.Validate(); err != nil {
		return err
	}
	*v.s = strategy
	return nil
}

func (v *strategyValue) Type() string {
	return "strategy"
}
