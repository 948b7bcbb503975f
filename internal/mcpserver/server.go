// Package mcpserver exposes the resticd API as Model Context Protocol
// tools over stdio, so an assistant can inspect and trigger backup jobs.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/resticd/internal/apiclient"
	"github.com/flemzord/resticd/internal/gateway"
	"github.com/flemzord/resticd/internal/jobs"
)

const defaultRunsLimit = 10

// API is the subset of the HTTP API the tools use, implemented by
// *apiclient.Client.
type API interface {
	Jobs(ctx context.Context) ([]string, error)
	Job(ctx context.Context, name string) (*gateway.JobResponse, error)
	Queue(ctx context.Context, name string) error
	Runs(ctx context.Context, job string, n int) ([]*jobs.Run, error)
}

var _ API = (*apiclient.Client)(nil)

// New builds an MCP server with the job tools registered.
func New(api API, version string) *server.MCPServer {
	s := server.NewMCPServer("resticd", version, server.WithToolCapabilities(false))
	t := &tools{api: api}

	s.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List the names of the configured backup jobs."),
	), t.listJobs)

	s.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Show one backup job definition. Credentials are masked."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name")),
	), t.getJob)

	s.AddTool(mcp.NewTool("queue_job",
		mcp.WithDescription("Queue a backup job to run now."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name")),
	), t.queueJob)

	s.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent runs, newest first, with per-step outcomes."),
		mcp.WithString("name", mcp.Description("Job name. Omit for every job.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10).")),
	), t.listRuns)

	return s
}

// Serve runs the server on the given streams until ctx is done or in
// reaches EOF.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

type tools struct {
	api API
}

func (t *tools) listJobs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := t.api.Jobs(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(names)
}

func (t *tools) getJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := t.api.Job(ctx, name)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(job)
}

func (t *tools) queueJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := t.api.Queue(ctx, name); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("job %q queued", name)), nil
}

func (t *tools) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultRunsLimit)
	if limit <= 0 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}
	runs, err := t.api.Runs(ctx, req.GetString("name", ""), limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(runs)
}

// toolError turns API failures into tool-level errors the model can read.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apiclient.ErrNotFound):
		return mcp.NewToolResultError("job not found")
	case errors.Is(err, apiclient.ErrUnavailable):
		return mcp.NewToolResultError("resticd is not accepting jobs right now: " + err.Error())
	case errors.Is(err, apiclient.ErrUnauthorized):
		return mcp.NewToolResultError("resticd rejected the API token")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
