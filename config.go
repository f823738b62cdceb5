package wetest

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/wetest/flags"
	"github.com/ethereum-optimism/infra/wetest/registry"
	"github.com/ethereum-optimism/infra/wetest/types"
)

// Config holds the application configuration
type Config struct {
	TestDir          string
	Patterns         []string      // package patterns relative to TestDir
	Enabled          bool          // whether the extension is active for the session
	ConfigFile       string        // explicit options file; empty means discovery in TestDir
	GoBinary         string
	Timeout          time.Duration // per-test timeout, 0 keeps the go test default
	RawJSONOut       string        // file receiving raw go test -json output
	ShowProgress     bool          // Whether to show periodic progress updates during test execution
	ProgressInterval time.Duration // Interval between progress updates when ShowProgress is 'true'
	HealthzAddr      string
	MetricsAddr      string // empty when metrics are disabled
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}
	testDir := ctx.String(flags.TestDir.Name)
	if testDir == "" {
		return nil, errors.New("test directory is required")
	}

	absTestDir, err := filepath.Abs(testDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", testDir, err)
	}

	configFile := ctx.String(flags.Config.Name)
	if configFile != "" {
		if configFile, err = filepath.Abs(configFile); err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for config file: %w", err)
		}
	}

	patterns := ctx.Args().Slice()
	if len(patterns) == 0 {
		patterns = []string{registry.DefaultPattern}
	}

	var metricsAddr string
	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if metricsCfg.Enabled {
		if err := metricsCfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid metrics config: %w", err)
		}
		metricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}

	return &Config{
		TestDir:          absTestDir,
		Patterns:         patterns,
		Enabled:          ctx.Bool(flags.Enabled.Name),
		ConfigFile:       configFile,
		GoBinary:         ctx.String(flags.GoBinary.Name),
		Timeout:          ctx.Duration(flags.Timeout.Name),
		RawJSONOut:       ctx.String(flags.RawJSONOut.Name),
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:      metricsAddr,
		Log:              log,
	}, nil
}

// Snapshot returns the runner and path settings of the effective configuration.
func (c *Config) Snapshot() types.EffectiveConfigSnapshot {
	return types.EffectiveConfigSnapshot{
		Runner: types.RunnerConfigSnapshot{
			GoBinary: c.GoBinary,
			Timeout:  c.Timeout,
			Patterns: c.Patterns,
		},
		Paths: types.PathsConfigSnapshot{
			TestDir:    c.TestDir,
			ConfigFile: c.ConfigFile,
			RawJSONOut: c.RawJSONOut,
		},
	}
}
