package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/stateful/cellbook/pkg/document/block"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func blocksCmd() *cobra.Command {
	var format string

	cmd := cobra.Command{
		Use:     "blocks FILE",
		Aliases: []string{"ls"},
		Short:   "List the blocks of a notebook.",
		Long: `List the blocks of a notebook with their index. Other commands address
blocks by this index; block ids are only valid until the file is read again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			blocks := addressable(file.Adapter.Blocks(cmd.Context()))
			w := cmd.OutOrStdout()

			switch format {
			case "brief":
				brief := block.Brief(blocks)
				if fJSON {
					return printJSON(w, brief)
				}
				t := newTable("#", "TYPE", "PREVIEW")
				for i, b := range brief {
					t.Row(strconv.Itoa(i), b.Type, b.Preview)
				}
				_, err := fmt.Fprintln(w, t)
				return errors.WithStack(err)

			case "detailed":
				if fJSON {
					return printJSON(w, blocks)
				}
				return printDetailed(w, blocks)

			default:
				return errors.Errorf("unknown format %q, expected brief or detailed", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "brief", "Output format: brief or detailed.")

	return &cmd
}

func printDetailed(w io.Writer, blocks []block.Block) error {
	for i, b := range blocks {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return errors.WithStack(err)
			}
		}
		header := fmt.Sprintf("[%d] %s", i, b.TypeName())
		if c := b.Collapsible(); c != "" {
			header += " in " + blockRef(blocks, c)
		}
		if _, err := fmt.Fprintf(w, "%s\n%s\n", header, b.Source); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func showCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "show FILE BLOCK",
		Short: "Print the source and outputs of a block.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			id, err := resolveID(cmd.Context(), file.Adapter, args[1])
			if err != nil {
				return err
			}
			b := file.Adapter.BlockByID(cmd.Context(), id)
			if b == nil {
				return errors.Errorf("block %s not found", args[1])
			}

			w := cmd.OutOrStdout()
			if fJSON {
				return printJSON(w, b)
			}

			if _, err := fmt.Fprintln(w, b.Source); err != nil {
				return errors.WithStack(err)
			}

			outputs, err := b.Outputs()
			if err != nil {
				return err
			}
			if len(outputs) == 0 {
				return nil
			}
			if _, err := fmt.Fprintln(w, strings.Repeat("-", 3)); err != nil {
				return errors.WithStack(err)
			}
			return printOutputs(w, outputs)
		},
	}

	return &cmd
}

func catalogCmd() *cobra.Command {
	var category string

	cmd := cobra.Command{
		Use:   "catalog",
		Short: "List the block types that can be inserted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := block.Catalog(block.Category(category))

			w := cmd.OutOrStdout()
			if fJSON {
				return printJSON(w, result)
			}

			t := newTable("TYPE", "CATEGORY", "DESCRIPTION")
			for _, s := range result.Types {
				t.Row(s.Type, string(s.Category), s.Description)
			}
			_, err := fmt.Fprintln(w, t)
			return errors.WithStack(err)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only list types of this category.")

	return &cmd
}
