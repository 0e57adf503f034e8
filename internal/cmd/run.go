package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/cellbook/internal/log"
	"github.com/stateful/cellbook/pkg/document"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/kernel"
	"github.com/stateful/cellbook/pkg/nbformat"
)

func runCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "run FILE [BLOCK]",
		Short: "Execute one or all jupyter cells and save their outputs.",
		Long: `Execute the jupyter-cell BLOCK, or every jupyter-cell block in document
order when no BLOCK is given. Running all cells stops at the first failure.
Outputs are stored in the notebook and printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			file, closeFile, err := openFileWithKernel(ctx, args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			a := file.Adapter
			var r adapter.Result
			if len(args) == 2 {
				id, err := resolveID(ctx, a, args[1])
				if err != nil {
					return err
				}
				r = a.RunBlock(ctx, id)
			} else {
				r = a.RunAllBlocks(ctx)
			}

			// Cells run before a failure keep their outputs.
			if err := file.Save(); err != nil {
				return errors.WithMessagef(err, "failed to save %s", file.Path)
			}
			if !r.Success {
				return errors.New(r.Error)
			}

			w := cmd.OutOrStdout()
			if fJSON {
				return printJSON(w, r)
			}
			if len(args) == 2 {
				return printOutputs(w, r.Outputs)
			}
			if err := printCellOutputs(w, a.Blocks(ctx)); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.ErrOrStderr(), r.Message)
			return errors.WithStack(err)
		},
	}

	setKernelFlags(cmd.Flags())

	return &cmd
}

func printCellOutputs(w io.Writer, blocks []block.Block) error {
	for _, b := range blocks {
		if b.Type != block.TypeJupyterCell {
			continue
		}
		outputs, err := b.Outputs()
		if err != nil {
			return err
		}
		if err := printOutputs(w, outputs); err != nil {
			return err
		}
	}
	return nil
}

func clearCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "clear FILE",
		Short: "Clear the outputs of all jupyter cells and save the notebook.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			return finish(cmd, file, file.Adapter.ClearAllOutputs(cmd.Context()))
		},
	}

	return &cmd
}

func execCmd() *cobra.Command {
	var (
		noHistory       bool
		silent          bool
		continueOnError bool
	)

	cmd := cobra.Command{
		Use:   "exec CODE",
		Short: "Execute code on a kernel without a notebook.",
		Long:  `Execute CODE on the configured kernel and print its outputs. "-" reads the code from stdin.`,
		Example: `  cellbook exec 'echo hello'
  cat script.sh | cellbook exec -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			code, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			dir, err := os.Getwd()
			if err != nil {
				return errors.WithMessage(err, "failed to get cwd")
			}
			cfg, err := kernelConfig()
			if err != nil {
				return err
			}
			manager, stop, err := newKernelManager(ctx, cfg, dir)
			if err != nil {
				return err
			}
			defer stop()

			doc := document.New(document.WithLogger(log.Get()))
			defer doc.Close()

			a := adapter.New(
				doc.Tree,
				doc.Registry,
				adapter.WithLogger(log.Get()),
				adapter.WithKernelManager(manager),
				adapter.WithExecutionTimeout(cfg.Execution.Timeout),
			)
			defer a.Close()

			r := a.ExecuteCode(ctx, code, &adapter.ExecuteOptions{
				StoreHistory: !noHistory,
				Silent:       silent,
				StopOnError:  !continueOnError,
			})

			// Output written before a failure is printed too.
			w := cmd.OutOrStdout()
			if fJSON {
				err = printJSON(w, r)
			} else {
				err = printTypedOutputs(w, r.Outputs)
			}
			if err != nil {
				return err
			}
			if !r.Success {
				return errors.New(r.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not count the execution in the kernel history.")
	cmd.Flags().BoolVar(&silent, "silent", false, "Ask the kernel to suppress output.")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Do not abort queued executions on error.")
	setKernelFlags(cmd.Flags())

	return &cmd
}

func printTypedOutputs(w io.Writer, typed []kernel.TypedOutput) error {
	for _, t := range typed {
		// Errors become the error of the command.
		if t.Type == kernel.MsgError {
			continue
		}
		out, ok, err := t.Output()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := printOutputs(w, []nbformat.Output{out}); err != nil {
			return err
		}
	}
	return nil
}
