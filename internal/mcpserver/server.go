// Package mcpserver exposes the block operations of a notebook file as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/stateful/cellbook/internal/notebookfile"
	"github.com/stateful/cellbook/internal/version"
	"github.com/stateful/cellbook/pkg/document/adapter"
	"github.com/stateful/cellbook/pkg/document/block"
)

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server wraps the MCP server with the block tools of one notebook file.
type Server struct {
	mcp    *server.MCPServer
	file   *notebookfile.File
	logger *zap.Logger
}

// New creates an MCP server with all block tools registered. Tools that
// change the document save the file afterwards.
func New(file *notebookfile.File, opts ...Option) *Server {
	s := &Server{file: file, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"cellbook",
		version.BuildVersion,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("read_all_blocks",
		mcp.WithDescription("Read all blocks of the document. Each block carries the block_id to use in other tools. "+
			"The brief format returns a short preview per block, the detailed format the full source, metadata and formatting."),
		mcp.WithString("format",
			mcp.Description("Response format"),
			mcp.Enum("brief", "detailed"),
			mcp.DefaultString("brief"),
		),
	), s.readAllBlocks)

	s.mcp.AddTool(mcp.NewTool("read_block",
		mcp.WithDescription("Read one block with its full source and metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("block_id of the block")),
	), s.readBlock)

	s.mcp.AddTool(mcp.NewTool("insert_block",
		mcp.WithDescription("Insert a block. Use list_available_blocks for the supported types and their properties. "+
			"Markdown sources of paragraph, heading, quote and list blocks may expand into several blocks."),
		mcp.WithString("type", mcp.Required(), mcp.Description("Block type, e.g. paragraph, heading, jupyter-cell")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Content of the block")),
		mcp.WithString("after",
			mcp.Description("block_id to insert after, TOP or BOTTOM"),
			mcp.DefaultString(adapter.Bottom),
		),
		mcp.WithString("collapsible", mcp.Description("block_id of a collapsible to insert into")),
		mcp.WithObject("properties", mcp.Description("Type specific properties such as level or language")),
	), s.insertBlock)

	s.mcp.AddTool(mcp.NewTool("delete_blocks",
		mcp.WithDescription("Delete blocks by id. Nothing is deleted when any id does not exist."),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("block_ids to delete"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	), s.deleteBlocks)

	s.mcp.AddTool(mcp.NewTool("update_block",
		mcp.WithDescription("Update the type, source or properties of a block. At least one of them must be given. "+
			"A block keeps its id unless its type changes."),
		mcp.WithString("id", mcp.Required(), mcp.Description("block_id of the block")),
		mcp.WithString("type", mcp.Description("New block type")),
		mcp.WithString("source", mcp.Description("New content")),
		mcp.WithObject("properties", mcp.Description("Properties merged into the current ones")),
	), s.updateBlock)

	s.mcp.AddTool(mcp.NewTool("run_block",
		mcp.WithDescription("Execute a jupyter-cell block on the running kernel and store its outputs."),
		mcp.WithString("id", mcp.Required(), mcp.Description("block_id of the jupyter-cell")),
	), s.runBlock)

	s.mcp.AddTool(mcp.NewTool("run_all_blocks",
		mcp.WithDescription("Execute all jupyter-cell blocks in document order."),
	), s.runAllBlocks)

	s.mcp.AddTool(mcp.NewTool("clear_all_outputs",
		mcp.WithDescription("Clear the outputs of all jupyter-cell blocks."),
	), s.clearAllOutputs)

	s.mcp.AddTool(mcp.NewTool("list_available_blocks",
		mcp.WithDescription("List the block types that can be inserted, with their properties and an example."),
		mcp.WithString("category", mcp.Description("Optional category filter")),
	), s.listAvailableBlocks)

	s.mcp.AddTool(mcp.NewTool("execute_code",
		mcp.WithDescription("Execute code on the running kernel without changing the document."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Code to execute")),
		mcp.WithBoolean("store_history", mcp.Description("Count the execution in the kernel history"), mcp.DefaultBool(true)),
		mcp.WithBoolean("silent", mcp.Description("Suppress output"), mcp.DefaultBool(false)),
		mcp.WithBoolean("stop_on_error", mcp.Description("Abort queued executions on error"), mcp.DefaultBool(true)),
	), s.executeCode)

	return s
}

// ServeStdio serves the tools on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// result renders an adapter result. Successful results of mutating
// tools are saved to the file first.
func (s *Server) result(r adapter.Result, save bool) (*mcp.CallToolResult, error) {
	if !r.Success {
		return mcp.NewToolResultError(r.Error), nil
	}
	if save {
		if err := s.file.Save(); err != nil {
			s.logger.Error("failed to save notebook file", zap.String("path", s.file.Path), zap.Error(err))
			return mcp.NewToolResultError("failed to save " + s.file.Path + ": " + err.Error()), nil
		}
	}
	return jsonResult(r)
}

func (s *Server) readAllBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a := s.file.Adapter
	var blocks any
	switch format := req.GetString("format", "brief"); format {
	case "brief":
		blocks = a.BriefBlocks(ctx)
	case "detailed":
		blocks = a.Blocks(ctx)
	default:
		return mcp.NewToolResultError("unknown format: " + format), nil
	}
	return jsonResult(struct {
		Success    bool `json:"success"`
		Blocks     any  `json:"blocks"`
		BlockCount int  `json:"blockCount"`
	}{true, blocks, a.BlockCount(ctx)})
}

func (s *Server) readBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := s.file.Adapter.BlockByID(ctx, id)
	if b == nil {
		return mcp.NewToolResultError("Block " + id + " not found"), nil
	}
	return jsonResult(b)
}

func (s *Server) insertBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	b := block.Block{Type: block.ParseType(typ), Source: block.Source(source)}
	if b.Type == block.TypeUnknown {
		b.RawType = typ
	}
	for k, v := range properties(req) {
		b.SetMeta(k, v)
	}
	if collapsible := req.GetString("collapsible", ""); collapsible != "" {
		b.SetMeta("collapsible", collapsible)
	}

	r := s.file.Adapter.InsertBlock(ctx, b, req.GetString("after", adapter.Bottom))
	return s.result(r, true)
}

func (s *Server) deleteBlocks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, ok := stringSlice(req.GetArguments()["ids"])
	if !ok || len(ids) == 0 {
		return mcp.NewToolResultError("ids must be a non-empty array of block ids"), nil
	}
	return s.result(s.file.Adapter.DeleteBlocks(ctx, ids), true)
}

func (s *Server) updateBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var patch adapter.Patch
	args := req.GetArguments()
	if v, ok := args["type"].(string); ok {
		patch.Type = &v
	}
	if v, ok := args["source"].(string); ok {
		patch.Source = &v
	}
	patch.Metadata = properties(req)

	return s.result(s.file.Adapter.PatchBlock(ctx, id, patch), true)
}

func (s *Server) runBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.result(s.file.Adapter.RunBlock(ctx, id), true)
}

func (s *Server) runAllBlocks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result(s.file.Adapter.RunAllBlocks(ctx), true)
}

func (s *Server) clearAllOutputs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result(s.file.Adapter.ClearAllOutputs(ctx), true)
}

func (s *Server) listAvailableBlocks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := block.Category(req.GetString("category", ""))
	return jsonResult(s.file.Adapter.ListAvailableBlocks(category))
}

func (s *Server) executeCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := adapter.ExecuteOptions{
		StoreHistory: req.GetBool("store_history", true),
		Silent:       req.GetBool("silent", false),
		StopOnError:  req.GetBool("stop_on_error", true),
	}
	r := s.file.Adapter.ExecuteCode(ctx, code, &opts)
	if !r.Success {
		return mcp.NewToolResultError(r.Error), nil
	}
	return jsonResult(r)
}

func properties(req mcp.CallToolRequest) map[string]any {
	props, _ := req.GetArguments()["properties"].(map[string]any)
	return props
}

func stringSlice(v any) ([]string, bool) {
	switch v := v.(type) {
	case []string:
		return v, true
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	}
	return nil, false
}
