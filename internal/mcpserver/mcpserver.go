// Package mcpserver exposes the facade as Model Context Protocol tools so an
// assistant can inspect and drive supervised processes.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loykin/pmdeck/internal/facade"
)

const serverName = "pmdeck"

type IDArgs struct {
	ID string `json:"id" jsonschema:"the numeric process id (from list_processes)"`
}

type LogsArgs struct {
	ID    string `json:"id" jsonschema:"the numeric process id"`
	Lines int    `json:"lines,omitempty" jsonschema:"trailing lines per stream; 0 returns everything retained"`
}

type AddArgs struct {
	Name      string `json:"name" jsonschema:"unique display name"`
	Script    string `json:"script" jsonschema:"executable or shell command line"`
	Cwd       string `json:"cwd,omitempty" jsonschema:"working directory; empty uses the supervisor's own"`
	Args      string `json:"args,omitempty" jsonschema:"argument string appended to script"`
	Instances int    `json:"instances,omitempty" jsonschema:"number of OS processes to run (default 1)"`
	AutoStart bool   `json:"autoStart,omitempty" jsonschema:"start immediately and whenever the supervisor boots"`
}

type UpdateArgs struct {
	ID        string  `json:"id" jsonschema:"the numeric process id"`
	Name      *string `json:"name,omitempty" jsonschema:"new name"`
	Script    *string `json:"script,omitempty" jsonschema:"new script"`
	Cwd       *string `json:"cwd,omitempty" jsonschema:"new working directory"`
	Args      *string `json:"args,omitempty" jsonschema:"new argument string"`
	Instances *int    `json:"instances,omitempty" jsonschema:"new instance count"`
	AutoStart *bool   `json:"autoStart,omitempty" jsonschema:"new autostart flag"`
	Restart   *bool   `json:"restart,omitempty" jsonschema:"force (true) or suppress (false) a restart of a running process; omitted follows the server policy"`
}

type NoArgs struct{}

// New builds an MCP server with one tool per facade operation.
func New(svc *facade.Service, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	register(server, svc)
	return server
}

// Run serves svc over stdin/stdout until ctx is cancelled or the peer hangs up.
func Run(ctx context.Context, svc *facade.Service, version string) error {
	return New(svc, version).Run(ctx, &mcp.StdioTransport{})
}

func register(server *mcp.Server, svc *facade.Service) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_processes",
		Description: "List every registered process with its status, resource usage, uptime and configuration.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(svc.ListProcesses(ctx), false)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_metrics",
		Description: "Summary counts of running, errored and stopped processes plus total CPU and memory.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(svc.GetMetrics(ctx), false)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_logs",
		Description: "Recent stdout and stderr lines of one process.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args LogsArgs) (*mcp.CallToolResult, any, error) {
		logs, err := svc.GetLogs(ctx, args.ID, args.Lines)
		if err != nil {
			return errResult(err), nil, nil
		}
		return jsonResult(logs, false)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_version",
		Description: "Supervisor version and whether the process shell is available.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(svc.Version(ctx), false)
	})

	byID := map[string]struct {
		desc string
		fn   func(context.Context, string) facade.OperationResult
	}{
		"start_process":   {"Start a process. Starting a running process is a no-op.", svc.StartProcess},
		"stop_process":    {"Stop a process gracefully, killing it after the stop timeout.", svc.StopProcess},
		"restart_process": {"Stop then start a process.", svc.RestartProcess},
	}
	for name, op := range byID {
		mcp.AddTool(server, &mcp.Tool{Name: name, Description: op.desc},
			func(ctx context.Context, _ *mcp.CallToolRequest, args IDArgs) (*mcp.CallToolResult, any, error) {
				return opResult(op.fn(ctx, args.ID))
			})
	}

	bulk := map[string]struct {
		desc string
		fn   func(context.Context) facade.OperationResult
	}{
		"start_all":   {"Start every registered process.", svc.StartAllProcesses},
		"stop_all":    {"Stop every registered process.", svc.StopAllProcesses},
		"restart_all": {"Restart every registered process.", svc.RestartAllProcesses},
	}
	for name, op := range bulk {
		mcp.AddTool(server, &mcp.Tool{Name: name, Description: op.desc},
			func(ctx context.Context, _ *mcp.CallToolRequest, _ NoArgs) (*mcp.CallToolResult, any, error) {
				return opResult(op.fn(ctx))
			})
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_process",
		Description: "Register a new process. With autoStart it is started right away.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args AddArgs) (*mcp.CallToolResult, any, error) {
		return opResult(svc.AddProcess(ctx, facade.ProcessConfig{
			Name:      args.Name,
			Script:    args.Script,
			Cwd:       args.Cwd,
			Args:      args.Args,
			Instances: args.Instances,
			AutoStart: args.AutoStart,
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_process",
		Description: "Change fields of a registered process. Omitted fields keep their value.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args UpdateArgs) (*mcp.CallToolResult, any, error) {
		patch := facade.ProcessPatch{
			Name:      args.Name,
			Script:    args.Script,
			Cwd:       args.Cwd,
			Args:      args.Args,
			Instances: args.Instances,
			AutoStart: args.AutoStart,
		}
		return opResult(svc.UpdateProcess(ctx, args.ID, patch, args.Restart))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_process",
		Description: "Stop a process if needed and remove it with its logs.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args IDArgs) (*mcp.CallToolResult, any, error) {
		return opResult(svc.DeleteProcess(ctx, args.ID))
	})
}

func opResult(r facade.OperationResult) (*mcp.CallToolResult, any, error) {
	return jsonResult(r, !r.Success)
}

func jsonResult(v any, isErr bool) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling response: %w", err)
	}
	return &mcp.CallToolResult{
		IsError: isErr,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
