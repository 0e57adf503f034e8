package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/log"
	"github.com/stateful/cellbook/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	var watch bool

	cmd := cobra.Command{
		Use:   "mcp FILE",
		Short: "Serve the block operations of a notebook over MCP on stdio.",
		Long: `Start a Model Context Protocol server on stdin and stdout. Every tool
works on FILE, and tools that change the document save it.

Logs never go to stdout; enable them in the configuration to write them to
stderr or a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			file, closeFile, err := openFileWithKernel(ctx, args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			logger := log.Get()

			if watch {
				go func() {
					if err := file.Watch(ctx, nil); err != nil {
						logger.Warn("stopped watching notebook file", zap.Error(err))
					}
				}()
			}

			return mcpserver.New(file, mcpserver.WithLogger(logger)).ServeStdio()
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the notebook when it changes on disk.")
	setKernelFlags(cmd.Flags())

	return &cmd
}
