package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
)

func insertCmd() *cobra.Command {
	var (
		typ         string
		source      string
		after       string
		collapsible string
		props       []string
	)

	cmd := cobra.Command{
		Use:   "insert FILE",
		Short: "Insert a block and save the notebook.",
		Long: `Insert a block of the given type. The source "-" reads it from stdin.

Markdown sources of paragraph, heading, quote and list blocks may expand
into several blocks; the indexes of all inserted blocks are printed.`,
		Example: `  cellbook insert notes.ipynb --type heading --source "Results" --meta level=2
  cellbook insert notes.ipynb --type jupyter-cell --source "print(1)" --after TOP
  cellbook insert notes.ipynb --type paragraph --source "After the third block" --after 2
  echo "ls -la" | cellbook insert notes.md --type jupyter-cell --source - --meta language=sh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, source)
			if err != nil {
				return err
			}
			meta, err := parseMeta(props)
			if err != nil {
				return err
			}

			b := block.Block{Type: block.ParseType(typ), Source: block.Source(src)}
			if b.Type == block.TypeUnknown {
				b.RawType = typ
			}
			for k, v := range meta {
				b.SetMeta(k, v)
			}

			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			if collapsible != "" {
				id, err := resolveID(cmd.Context(), file.Adapter, collapsible)
				if err != nil {
					return err
				}
				b.SetMeta("collapsible", id)
			}
			target := after
			if target != adapter.Top && target != adapter.Bottom {
				if target, err = resolveID(cmd.Context(), file.Adapter, after); err != nil {
					return err
				}
			}

			return finish(cmd, file, file.Adapter.InsertBlock(cmd.Context(), b, target))
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "Block type, see the catalog command.")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Block content, - reads stdin.")
	cmd.Flags().StringVar(&after, "after", adapter.Bottom, "Block to insert after, "+adapter.Top+" or "+adapter.Bottom+".")
	cmd.Flags().StringVar(&collapsible, "collapsible", "", "Collapsible block to insert into.")
	cmd.Flags().StringArrayVarP(&props, "meta", "m", nil, "Block property as key=value, may be repeated.")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("source")

	return &cmd
}

func deleteCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:     "delete FILE BLOCK...",
		Aliases: []string{"rm"},
		Short:   "Delete blocks and save the notebook.",
		Long:    "Delete blocks. Nothing is deleted when any of them does not exist.",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			ids, err := resolveIDs(cmd.Context(), file.Adapter, args[1:])
			if err != nil {
				return err
			}
			return finish(cmd, file, file.Adapter.DeleteBlocks(cmd.Context(), ids))
		},
	}

	return &cmd
}

func updateCmd() *cobra.Command {
	var (
		typ    string
		source string
		props  []string
	)

	cmd := cobra.Command{
		Use:   "update FILE BLOCK",
		Short: "Update the type, source or properties of a block and save the notebook.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				patch adapter.Patch
				err   error
			)

			flags := cmd.Flags()
			if flags.Changed("type") {
				patch.Type = &typ
			}
			if flags.Changed("source") {
				src, err := readSource(cmd, source)
				if err != nil {
					return err
				}
				patch.Source = &src
			}
			patch.Metadata, err = parseMeta(props)
			if err != nil {
				return err
			}

			file, err := openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			id, err := resolveID(cmd.Context(), file.Adapter, args[1])
			if err != nil {
				return err
			}
			return finish(cmd, file, file.Adapter.PatchBlock(cmd.Context(), id, patch))
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "New block type.")
	cmd.Flags().StringVarP(&source, "source", "s", "", "New content, - reads stdin.")
	cmd.Flags().StringArrayVarP(&props, "meta", "m", nil, "Property as key=value merged into the current ones, may be repeated.")

	return &cmd
}
