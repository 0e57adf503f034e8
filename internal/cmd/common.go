package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/stateful/cellbook/internal/config"
	"github.com/stateful/cellbook/internal/log"
	"github.com/stateful/cellbook/internal/notebookfile"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
	"github.com/stateful/cellbook/pkg/kernel"
	"github.com/stateful/cellbook/pkg/kernel/jupyter"
	"github.com/stateful/cellbook/pkg/kernel/shell"
	"github.com/stateful/cellbook/pkg/nbformat"
)

const kernelShutdownTimeout = 5 * time.Second

func getConfig() *config.Config {
	if cfg == nil {
		return config.Default()
	}
	return cfg
}

// newKernelManager returns the kernel manager configured in cfg with one
// kernel running. dir is the working directory of shell kernels unless
// the configuration names one. The returned function stops the kernels
// started here.
func newKernelManager(ctx context.Context, cfg *config.Config, dir string) (kernel.Manager, func(), error) {
	logger := log.Get()

	switch cfg.Kernel.Type {
	case config.KernelJupyter:
		client, err := jupyter.NewClient(cfg.Kernel.URL, cfg.Kernel.Token, jupyter.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := client.RefreshRunning(ctx); err != nil {
			return nil, nil, errors.WithMessage(err, "failed to list kernels")
		}
		if len(client.Running()) > 0 {
			return client, func() {}, nil
		}

		model, err := client.Start(ctx, cfg.Kernel.Name)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "failed to start kernel")
		}
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), kernelShutdownTimeout)
			defer cancel()
			if err := client.Shutdown(ctx, model.ID); err != nil {
				logger.Warn("failed to shut down kernel", zap.String("id", model.ID), zap.Error(err))
			}
		}
		return client, cleanup, nil

	default:
		if cfg.Kernel.Dir != "" {
			dir = cfg.Kernel.Dir
		}
		opts := []shell.Option{shell.WithLogger(logger), shell.WithDir(dir)}
		if cfg.Kernel.Shell != "" {
			opts = append(opts, shell.WithName(cfg.Kernel.Shell))
		}
		m := shell.NewManager(opts...)
		model, err := m.Start(ctx)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "failed to start kernel")
		}
		cleanup := func() {
			if err := m.Shutdown(model.ID); err != nil {
				logger.Warn("failed to shut down kernel", zap.String("id", model.ID), zap.Error(err))
			}
		}
		return m, cleanup, nil
	}
}

// openFile opens path without a kernel.
func openFile(ctx context.Context, path string) (*notebookfile.File, error) {
	return notebookfile.Open(ctx, path, notebookfile.WithLogger(log.Get()))
}

// openFileWithKernel opens path with a kernel attached. The returned
// function closes the file and stops the kernel.
func openFileWithKernel(ctx context.Context, path string) (*notebookfile.File, func(), error) {
	cfg, err := kernelConfig()
	if err != nil {
		return nil, nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	manager, stop, err := newKernelManager(ctx, cfg, filepath.Dir(abs))
	if err != nil {
		return nil, nil, err
	}

	file, err := notebookfile.Open(
		ctx,
		path,
		notebookfile.WithLogger(log.Get()),
		notebookfile.WithAdapterOptions(
			adapter.WithKernelManager(manager),
			adapter.WithExecutionTimeout(cfg.Execution.Timeout),
		),
	)
	if err != nil {
		stop()
		return nil, nil, err
	}

	return file, func() {
		if err := file.Close(); err != nil {
			log.Get().Warn("failed to close notebook file", zap.Error(err))
		}
		stop()
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(v))
}

// addressable returns the blocks the command line addresses by index.
// The empty paragraphs that separate imported cells are left out so that
// indexes survive a save and reload of the file.
func addressable(blocks []block.Block) []block.Block {
	result := make([]block.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == block.TypeParagraph && b.Source == "" {
			continue
		}
		result = append(result, b)
	}
	return result
}

// resolveID maps a block index, as printed by the blocks command, to the
// id of the block. Anything that is not a number is taken as an id.
func resolveID(ctx context.Context, a *adapter.Adapter, ref string) (string, error) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, nil
	}
	blocks := addressable(a.Blocks(ctx))
	if n < 0 || n >= len(blocks) {
		return "", errors.Errorf("block index %d out of range, document has %d blocks", n, len(blocks))
	}
	return blocks[n].ID, nil
}

func resolveIDs(ctx context.Context, a *adapter.Adapter, refs []string) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		id, err := resolveID(ctx, a, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// blockRef returns the index of the block id, or id itself when it is
// not addressable.
func blockRef(blocks []block.Block, id string) string {
	for i, b := range blocks {
		if b.ID == id {
			return strconv.Itoa(i)
		}
	}
	return id
}

// finish saves file when r succeeded and prints the indexes of the blocks
// r names, or its message. A failed result becomes the error of the
// command.
func finish(cmd *cobra.Command, file *notebookfile.File, r adapter.Result) error {
	if !r.Success {
		return errors.New(r.Error)
	}
	if err := file.Save(); err != nil {
		return errors.WithMessagef(err, "failed to save %s", file.Path)
	}

	w := cmd.OutOrStdout()
	if fJSON {
		return printJSON(w, r)
	}

	ids := r.BlockIDs
	if len(ids) == 0 && r.BlockID != "" {
		ids = []string{r.BlockID}
	}
	if len(ids) == 0 {
		if r.Message == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, r.Message)
		return errors.WithStack(err)
	}

	blocks := addressable(file.Adapter.Blocks(cmd.Context()))
	for _, id := range ids {
		if _, err := fmt.Fprintln(w, blockRef(blocks, id)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

func printOutputs(w io.Writer, outputs []nbformat.Output) error {
	for _, o := range outputs {
		text := o.PlainText()
		if text == "" {
			continue
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		if _, err := io.WriteString(w, text); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// readSource returns s, or the content of stdin when s is "-".
func readSource(cmd *cobra.Command, s string) (string, error) {
	if s != "-" {
		return s, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "", errors.New("no input piped to stdin")
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", errors.Wrap(err, "failed to read stdin")
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// parseMeta parses key=value pairs. Values are decoded as YAML scalars so
// that level=2 is a number and hidden=true a boolean.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	result := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("invalid property %q, expected key=value", pair)
		}
		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
			return nil, errors.Wrapf(err, "invalid value of %s", key)
		}
		if value == nil {
			value = raw
		}
		result[key] = value
	}
	return result, nil
}
