// Package cli implements the closecrm command line tool.
//
// Command Structure:
//
//	closecrm
//	├── me                              # Print the user owning the API key
//	├── export <resource>               # Stream every object as JSON lines
//	├── bulk-delete <resource> -f FILE  # Delete the ids listed in FILE
//	├── resources                       # List resource names
//	├── --config, -c                    # YAML config file
//	├── --log-level                     # debug, info, warn, error, disabled
//	└── --metrics-addr                  # Serve /metrics while the command runs
//
// The API key comes from the config file or CLOSE_API_KEY.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/Sternrassler/closecrm-client/pkg/client"
	"github.com/Sternrassler/closecrm-client/pkg/logging"
	"github.com/Sternrassler/closecrm-client/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is the CLI version.
const Version = "1.0.0"

// app holds what a command needs once the root command has set up.
type app struct {
	configFile  string
	logLevel    string
	metricsAddr string

	config *Config
	client *client.Client
	logger zerolog.Logger
	stop   func()
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "closecrm",
		Short: "closecrm: a command line client for the Close CRM API",
		Long: `closecrm talks to the Close CRM API with:
- automatic retry of rate-limited and failed requests
- offset pagination streamed as JSON lines
- bounded-concurrency bulk operations`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error, disabled")
	rootCmd.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(buildMeCommand(a))
	rootCmd.AddCommand(buildExportCommand(a))
	rootCmd.AddCommand(buildBulkDeleteCommand(a))
	rootCmd.AddCommand(buildResourcesCommand(a))

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := BuildCLI()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// setup loads the configuration, configures logging and metrics, and builds the client.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = logging.LogLevel(a.logLevel)
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(string(cfg.Log.Level))
	cfg.Log.Level = level
	cfg.Log.Output = cmd.ErrOrStderr()
	logging.Setup(cfg.Log)
	a.logger = logging.NewLogger(logging.ComponentCLI)

	redisClient, err := cfg.RedisClient()
	if err != nil {
		return err
	}

	c, err := client.New(cfg.ClientConfig(redisClient))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	a.config = cfg
	a.client = c

	ctx, cancel := context.WithCancel(cmd.Context())
	metricsDone := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		go func() {
			defer close(metricsDone)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				a.logger.Error().Err(err).Msg("Metrics server error")
			}
		}()
	} else {
		close(metricsDone)
	}

	a.stop = func() {
		cancel()
		<-metricsDone
		c.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return nil
}

// run wraps a command so the client and metrics server are released even
// when the command fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		return fn(cmd, args)
	}
}

func (a *app) teardown() {
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}
