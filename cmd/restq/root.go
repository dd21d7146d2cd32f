package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/manojoshi/restorm/config"
	"github.com/manojoshi/restorm/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	BaseURL string
	Output  string
	Verbose bool

	cfg *config.ClientConfig
}

// NewRootCommand creates the root command for the restq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "restq",
		Short:         "restq - query a PostgREST-style API",
		Long:          "Build filter/select queries from flags and send them to a REST backend.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != outputJSON && opts.Output != outputYAML {
				return fmt.Errorf("invalid --output %q: want %s or %s", opts.Output, outputJSON, outputYAML)
			}
			cfg, err := config.Init()
			if err != nil {
				return err
			}
			if opts.BaseURL != "" {
				cfg.API.BaseURL = opts.BaseURL
			}
			if opts.Verbose {
				cfg.Logging.Level = logger.LogLevelDebug
			}
			opts.cfg = cfg
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "API base URL (overrides RESTORM_BASE_URL)")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", outputJSON, "output format (json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))

	return cmd
}
