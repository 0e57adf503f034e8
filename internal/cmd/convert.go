package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func convertCmd() *cobra.Command {
	var output string

	cmd := cobra.Command{
		Use:   "convert SRC",
		Short: "Convert a notebook between the ipynb and markdown formats.",
		Long: `Convert SRC into the file given by --output. The formats are picked by
extension: .md and .markdown are markdown, anything else is ipynb. Code
cells become fenced code blocks in markdown and fenced code blocks with a
language become code cells in ipynb.`,
		Example: `  cellbook convert README.md -o README.ipynb
  cellbook convert analysis.ipynb -o analysis.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			if err := file.SaveAs(output); err != nil {
				return errors.WithMessagef(err, "failed to write %s", output)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Converted %s to %s\n", args[0], output)
			return errors.WithStack(err)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file.")
	_ = cmd.MarkFlagRequired("output")

	return &cmd
}
