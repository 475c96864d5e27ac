// Package mcpserver exposes the control plane's operator surface as MCP
// tools over stdio (spec.md §6), grounded on the teacher's mcp_server.go
// tool-registration style but swapping its StreamableHTTP transport for
// stdio, since every tool call here is a local operator action rather
// than a remote multi-client service.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
)

// Backend is the subset of *coordinator.Coordinator the tool handlers
// drive. Declared as an interface so tests can fake it without standing
// up a real Coordinator.
type Backend interface {
	StartInstance(instanceID string) error
	StopInstance(instanceID string) error
	StartQSO(instanceID, targetCall, targetGrid string) error
	HaltTx(instanceID string, autoOnly bool) error
	SetFrequency(index int, hz uint64) error
	SetMode(index int, mode slicestore.Mode) error
	ReplyToStation(instanceID, fromCall, message string) error
	EmergencyStop()
	GetStatus(instanceID string) (coordinator.InstanceStatus, error)
	ListInstances() []string
}

// Server wraps the MCP tool registry and stdio transport.
type Server struct {
	backend Backend
	mcp     *server.MCPServer
}

// New registers every tool spec.md §6 lists against backend.
func New(backend Backend) *Server {
	s := &Server{
		backend: backend,
		mcp: server.NewMCPServer(
			"wsjtxmcpd",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// Serve blocks, dispatching tool calls read from stdin until the
// transport closes or ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("start_instance",
			mcp.WithDescription("Spawn or respawn the decoder-app child process for an already-mapped instance, without disturbing its CAT listener or any in-flight QSO."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
		),
		s.handleStartInstance,
	)

	s.mcp.AddTool(
		mcp.NewTool("stop_instance",
			mcp.WithDescription("Stop the decoder-app child process for an instance, leaving its CAT listener and slice state intact."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
		),
		s.handleStopInstance,
	)

	s.mcp.AddTool(
		mcp.NewTool("execute_qso",
			mcp.WithDescription("Begin an autonomous contact attempt on an instance against a target callsign: sends CQ, waits for a reply, exchanges signal reports, and confirms, all without further operator input."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
			mcp.WithString("target_call", mcp.Required(), mcp.Description("Callsign to work, e.g. DL1XYZ")),
			mcp.WithString("target_grid", mcp.Description("Maidenhead locator the station reported in its CQ, if known, e.g. JO62")),
		),
		s.handleExecuteQSO,
	)

	s.mcp.AddTool(
		mcp.NewTool("halt_tx",
			mcp.WithDescription("Immediately stop the decoder app from transmitting on an instance, bypassing any in-progress QSO sequencing."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
			mcp.WithBoolean("auto_only", mcp.Description("If true, only halt automatic (sequencer-driven) transmissions, leaving a manually keyed transmission running")),
		),
		s.handleHaltTx,
	)

	s.mcp.AddTool(
		mcp.NewTool("set_frequency",
			mcp.WithDescription("Set a slice's dial frequency, in Hz."),
			mcp.WithNumber("slice_index", mcp.Required(), mcp.Description("Slice index, 0-based")),
			mcp.WithNumber("frequency_hz", mcp.Required(), mcp.Description("Dial frequency in Hz")),
		),
		s.handleSetFrequency,
	)

	s.mcp.AddTool(
		mcp.NewTool("set_mode",
			mcp.WithDescription("Set a slice's operating mode, e.g. USB, LSB, DIGU, DIGL."),
			mcp.WithNumber("slice_index", mcp.Required(), mcp.Description("Slice index, 0-based")),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name, e.g. DIGU")),
		),
		s.handleSetMode,
	)

	s.mcp.AddTool(
		mcp.NewTool("reply_to_station",
			mcp.WithDescription("Send a one-off reply to a station heard on an instance, without starting a full autonomous QSO."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
			mcp.WithString("from_call", mcp.Required(), mcp.Description("Callsign of the heard station")),
			mcp.WithString("message", mcp.Required(), mcp.Description("Message text to send")),
		),
		s.handleReplyToStation,
	)

	s.mcp.AddTool(
		mcp.NewTool("emergency_stop",
			mcp.WithDescription("Clear transmit on every known slice immediately. Best-effort and safe to call repeatedly."),
		),
		s.handleEmergencyStop,
	)

	s.mcp.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Get the current slice, QSO, and process status for one instance."),
			mcp.WithString("instance_id", mcp.Required(), mcp.Description("Instance id, e.g. Slice-A")),
		),
		s.handleGetStatus,
	)

	s.mcp.AddTool(
		mcp.NewTool("list_instances",
			mcp.WithDescription("List every instance id currently tracked by the coordinator."),
		),
		s.handleListInstances,
	)
}

func (s *Server) handleStartInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.StartInstance(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s started", id)), nil
}

func (s *Server) handleStopInstance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.StopInstance(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s stopped", id)), nil
}

func (s *Server) handleExecuteQSO(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target_call")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	grid := req.GetString("target_grid", "")
	if err := s.backend.StartQSO(id, target, grid); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("QSO started on %s against %s", id, target)), nil
}

func (s *Server) handleHaltTx(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	autoOnly := req.GetBool("auto_only", false)
	if err := s.backend.HaltTx(id, autoOnly); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s halted", id)), nil
}

func (s *Server) handleSetFrequency(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("slice_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hz, err := req.RequireFloat("frequency_hz")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.SetFrequency(index, uint64(hz)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("slice %d tuned to %d Hz", index, uint64(hz))), nil
}

func (s *Server) handleSetMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireInt("slice_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	mode, err := req.RequireString("mode")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.SetMode(index, slicestore.Mode(mode)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("slice %d mode set to %s", index, mode)), nil
}

func (s *Server) handleReplyToStation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := req.RequireString("from_call")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.backend.ReplyToStation(id, from, message); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("reply sent on %s to %s", id, from)), nil
}

func (s *Server) handleEmergencyStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.backend.EmergencyStop()
	return mcp.NewToolResultText("all slices cleared to receive"), nil
}

func (s *Server) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("instance_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.backend.GetStatus(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	body, err := json.Marshal(status)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (s *Server) handleListInstances(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(s.backend.ListInstances())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
