package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/cellbook/internal/config"
	"github.com/stateful/cellbook/internal/log"
)

var (
	fChdir  string
	fConfig string
	fJSON   bool

	cfg *config.Config
)

func Root() *cobra.Command {
	cmd := cobra.Command{
		Use:   "cellbook",
		Short: "Edit and run Jupyter notebooks block by block",
		Long: `cellbook exposes a notebook as a list of blocks: paragraphs, headings,
lists, code cells and more. Blocks can be read, inserted, updated, deleted
and executed from the command line, over MCP or through an HTTP API.

Files ending in .md or .markdown are read and written as markdown; any
other file is a Jupyter notebook.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if fChdir != "" {
				if err := os.Chdir(fChdir); err != nil {
					return errors.Wrap(err, "failed to change directory")
				}
			}

			var err error
			cfg, err = config.Load(fConfig)
			if err != nil {
				return err
			}

			return log.Set(cfg.Log.Enabled, cfg.Log.Path, cfg.Log.Verbose)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			log.Flush()
		},
	}

	pflags := cmd.PersistentFlags()

	pflags.StringVar(&fChdir, "chdir", "", "Switch to a different working directory before executing the command.")
	pflags.StringVar(&fConfig, "config", "", "Path to the configuration file. Defaults to ./"+config.DefaultFileName+" when it exists.")
	pflags.BoolVar(&fJSON, "json", false, "Print results as JSON.")

	cmd.AddCommand(blocksCmd())
	cmd.AddCommand(showCmd())
	cmd.AddCommand(insertCmd())
	cmd.AddCommand(deleteCmd())
	cmd.AddCommand(updateCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(clearCmd())
	cmd.AddCommand(execCmd())
	cmd.AddCommand(catalogCmd())
	cmd.AddCommand(convertCmd())
	cmd.AddCommand(mcpCmd())
	cmd.AddCommand(serveCmd())

	return &cmd
}
