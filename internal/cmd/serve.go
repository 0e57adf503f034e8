package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stateful/cellbook/internal/api"
	"github.com/stateful/cellbook/internal/events"
	"github.com/stateful/cellbook/internal/log"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := cobra.Command{
		Use:   "serve FILE",
		Short: "Serve the block operations of a notebook over HTTP.",
		Long: `Start an HTTP API for FILE. Changes are streamed to clients of GET /events
as Server-Sent Events. When server.token is configured every request must
carry it as a bearer token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			logger := log.Get()

			if addr == "" {
				addr = cfg.Server.Address
			}

			file, closeFile, err := openFileWithKernel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer closeFile()

			broker := events.NewBroker()

			srv := &http.Server{
				Addr: addr,
				Handler: api.NewRouter(
					file,
					api.WithLogger(logger),
					api.WithToken(cfg.Server.Token),
					api.WithBroker(broker),
				),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				logger.Info("started listening", zap.String("addr", addr), zap.String("file", file.Path))
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", file.Path, addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "failed to serve")
				}
				return nil
			})

			if watch {
				g.Go(func() error {
					return file.Watch(ctx, func() {
						broker.Publish(events.Event{
							Type: events.TypeNotebookReloaded,
							Data: map[string]string{"path": file.Path},
						})
					})
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				// Ends the event streams so that Shutdown does not wait for them.
				broker.Close()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()

				logger.Info("shutting down server")
				return errors.WithStack(srv.Shutdown(shutdownCtx))
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "address", "", "Address to listen on. Defaults to server.address of the configuration.")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the notebook when it changes on disk.")
	setKernelFlags(cmd.Flags())

	return &cmd
}
