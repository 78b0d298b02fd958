package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/hoist/internal/config"
	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	noColor     bool
	environment string

	// cfg and logger are set by the root pre-run hook.
	cfg     *config.Config
	logger  log.Logger
	printer = format.NewPrinter()
)

// errReported marks an error whose [ERROR] line was already printed.
var errReported = errors.New("reported")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hoist",
	Short: "hoist - credentialed single-host service bootstrap",
	Long: `hoist stands up a password-protected container service on a single
host: it generates and hashes the admin credential, makes sure the shared
network exists, launches the service with compose or a direct container run,
and verifies the result.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Version:           version.Version,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			printer.Failure(err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hoist.yaml or /etc/hoist/hoist.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&environment, "environment", "e", "", "environment name (overrides config)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if noColor {
		format.EnableColor(false)
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if environment != "" {
		c.Environment.Name = environment
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if verbose {
		c.Log.Level = "debug"
	}

	l, err := log.ApplyConfig(&c.Log, nil)
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	log.SetDefaultLogger(l)

	cfg = c
	logger = l
	return nil
}
