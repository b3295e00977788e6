// Package cli implements the payflow command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/infrastructure/config"
	"github.com/payflow/payflow/internal/infrastructure/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// SetVersion sets the build information shown by the version command
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// CLI holds state shared by every command
type CLI struct {
	out io.Writer

	cfg    *config.Config
	logger *zap.Logger

	// flag values
	verbose bool
	backend string
}

// New creates a CLI writing command output to out
func New(out io.Writer) *CLI {
	return &CLI{out: out}
}

// RootCommand builds the command tree
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "payflow",
		Short:        "Edit and persist payment workflow graphs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(c.out)
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&c.backend, "backend", "", "storage backend (memory, file, sqlite, postgres, redis)")

	root.AddCommand(c.newVersionCmd())
	root.AddCommand(c.newServeCmd())
	root.AddCommand(c.newShowCmd())
	root.AddCommand(c.newSeedCmd())
	root.AddCommand(c.newListCmd())
	root.AddCommand(c.newDeleteCmd())
	return root
}

// Execute runs the CLI with args
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *CLI) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.backend != "" {
		cfg.Storage.Backend = c.backend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "payflow %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
