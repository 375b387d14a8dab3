// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes scenesync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/scenesync/internal/apperr"
	"github.com/starford/scenesync/internal/coordinator"
	"github.com/starford/scenesync/internal/models"
	"github.com/starford/scenesync/internal/sceneservice"
)

const formatURI = "scenesync://scene-format"

// Server wraps the MCP server with scenesync tools.
type Server struct {
	mcp    *server.MCPServer
	scenes *sceneservice.Service
	coord  *coordinator.Coordinator
}

// New creates a new MCP server with all scenesync tools registered.
func New(scenes *sceneservice.Service, coord *coordinator.Coordinator) *Server {
	s := &Server{scenes: scenes, coord: coord}

	s.mcp = server.NewMCPServer(
		"scenesync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_scenes",
		mcp.WithDescription("List the scenes of a workspace, most recently updated first."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Number of scenes to skip")),
	), s.listScenes)

	s.mcp.AddTool(mcp.NewTool("read_scene",
		mcp.WithDescription("Read the JSON document of a scene together with its checksum."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Scene id")),
	), s.readScene)

	s.mcp.AddTool(mcp.NewTool("create_scene",
		mcp.WithDescription("Create a new scene. Content MUST follow the scene document format; "+
			"read it first via get_scene_format or the "+formatURI+" resource."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Scene title")),
		mcp.WithString("content", mcp.Description("Scene JSON document (empty for a blank canvas)")),
		mcp.WithBoolean("collaborative", mcp.Description("Bind the scene to a new live room")),
	), s.createScene)

	s.mcp.AddTool(mcp.NewTool("save_scene",
		mcp.WithDescription("Replace the JSON document of an existing scene."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Scene id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Scene JSON document")),
		mcp.WithString("if_match", mcp.Description("Checksum returned by read_scene")),
	), s.saveScene)

	s.mcp.AddTool(mcp.NewTool("open_scene",
		mcp.WithDescription("Show a scene in the live view. Collaborative scenes join their room."),
		mcp.WithString("workspace", mcp.Required(), mcp.Description("Workspace id")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Scene id")),
		mcp.WithString("room_key", mcp.Description("Room key overriding the stored one")),
	), s.openScene)

	s.mcp.AddTool(mcp.NewTool("current_scene",
		mcp.WithDescription("Describe the scene shown in the live view, if any."),
	), s.currentScene)

	s.mcp.AddTool(mcp.NewTool("get_scene_format",
		mcp.WithDescription("Returns the scene document format. "+
			"Call this before creating or saving scenes."),
	), s.getSceneFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Scene Document Format",
			mcp.WithResourceDescription("JSON format that all scene documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func sceneArgs(req mcp.CallToolRequest) (models.DocumentRef, error) {
	ws, err := req.RequireString("workspace")
	if err != nil {
		return models.DocumentRef{}, err
	}
	id, err := req.RequireString("id")
	if err != nil {
		return models.DocumentRef{}, err
	}
	return models.DocumentRef{WorkspaceID: ws, DocumentID: id}, nil
}

func toolError(ref models.DocumentRef, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listScenes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := req.RequireString("workspace")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, total, err := s.scenes.ListScenes(ctx, ws, req.GetInt("limit", 50), req.GetInt("offset", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if items == nil {
		items = []sceneservice.SceneListItem{}
	}
	return jsonResult(map[string]any{"scenes": items, "total": total}), nil
}

func (s *Server) readScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := sceneArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, checksum, err := s.scenes.GetContent(ctx, ref)
	if err != nil {
		return toolError(ref, err), nil
	}
	return jsonResult(map[string]any{"checksum": checksum, "content": json.RawMessage(data)}), nil
}

func (s *Server) createScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ws, err := req.RequireString("workspace")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.scenes.CreateScene(ctx, sceneservice.CreateInput{
		WorkspaceID:   ws,
		Title:         title,
		Collaborative: req.GetBool("collaborative", false),
		Content:       []byte(req.GetString("content", "")),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", rec.Ref())), nil
}

func (s *Server) saveScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := sceneArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, _, err := s.scenes.SaveContent(ctx, ref, []byte(content), req.GetString("if_match", ""))
	if errors.Is(err, apperr.ErrConflict) {
		return mcp.NewToolResultError("scene changed since it was read; read it again"), nil
	}
	if err != nil {
		return toolError(ref, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s checksum=%s", ref, rec.Checksum)), nil
}

func (s *Server) openScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := sceneArgs(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.coord.LoadDocument(ctx, ref, coordinator.LoadOptions{RoomKeyOverride: req.GetString("room_key", "")})

	cur := s.coord.Current()
	if cur == nil || cur.SceneID != ref.DocumentID {
		if s.coord.Loading() {
			return mcp.NewToolResultText(fmt.Sprintf("queued: %s", ref)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("could not open %s", ref)), nil
	}
	return s.currentScene(ctx, req)
}

func (s *Server) currentScene(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cur := s.coord.Current()
	if cur == nil {
		return mcp.NewToolResultText("no scene displayed"), nil
	}
	return jsonResult(map[string]any{"scene": cur, "binding": s.coord.Binding()}), nil
}

func (s *Server) getSceneFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SceneFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     SceneFormatContract,
		},
	}, nil
}
