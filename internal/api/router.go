// Package api serves the block operations of a notebook file over HTTP.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/events"
	"github.com/stateful/cellbook/internal/notebookfile"
)

type Option func(*options)

type options struct {
	logger *zap.Logger
	token  string
	broker *events.Broker
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithBroker publishes changes to broker and serves it at GET /events.
func WithBroker(broker *events.Broker) Option {
	return func(o *options) {
		o.broker = broker
	}
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(file *notebookfile.File, opts ...Option) chi.Router {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	h := NewHandler(file, o.logger, o.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LogMiddleware(o.logger))
	r.Use(AuthMiddleware(o.token))

	r.Get("/notebook", h.GetNotebook)

	r.Get("/blocks", h.ListBlocks)
	r.Post("/blocks", h.InsertBlock)
	r.Delete("/blocks", h.DeleteBlocks)
	r.Get("/blocks/{id}", h.GetBlock)
	r.Put("/blocks/{id}", h.UpdateBlock)
	r.Post("/blocks/{id}/run", h.RunBlock)

	r.Post("/run", h.RunAllBlocks)
	r.Post("/outputs/clear", h.ClearAllOutputs)
	r.Get("/catalog", h.Catalog)
	r.Post("/execute", h.ExecuteCode)

	if o.broker != nil {
		r.Get("/events", o.broker.ServeHTTP)
	}

	return r
}
