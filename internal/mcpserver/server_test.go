package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/scenesync/internal/coordinator"
	"github.com/starford/scenesync/internal/sceneservice"
	"github.com/starford/scenesync/internal/testutil"
	"github.com/starford/scenesync/internal/view"
)

func testServer(t *testing.T) (*Server, *sceneservice.Service) {
	t.Helper()
	svc := testutil.TestService(t)
	coord := coordinator.New(sceneservice.NewLocalGateway(svc), nil, testutil.Logger())
	coord.AttachView(view.New(nil))
	t.Cleanup(coord.Wait)
	return New(svc, coord), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_scenes":
		result, err = srv.listScenes(ctx, req)
	case "read_scene":
		result, err = srv.readScene(ctx, req)
	case "create_scene":
		result, err = srv.createScene(ctx, req)
	case "save_scene":
		result, err = srv.saveScene(ctx, req)
	case "open_scene":
		result, err = srv.openScene(ctx, req)
	case "current_scene":
		result, err = srv.currentScene(ctx, req)
	case "get_scene_format":
		result, err = srv.getSceneFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadScene(t *testing.T) {
	srv, svc := testServer(t)

	content := string(testutil.Encode(t, testutil.Content("r1")))
	r := callTool(t, srv, "create_scene", map[string]any{
		"workspace": "ws",
		"title":     "Board",
		"content":   content,
	})
	if r.IsError || !strings.HasPrefix(resultText(r), "created: ws/") {
		t.Fatalf("create result = %q", resultText(r))
	}

	items, _, _ := svc.ListScenes(context.Background(), "ws", 10, 0)
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}

	r = callTool(t, srv, "read_scene", map[string]any{"workspace": "ws", "id": items[0].ID})
	var got struct {
		Checksum string          `json:"checksum"`
		Content  json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("read result = %q: %v", resultText(r), err)
	}
	if got.Checksum == "" || !strings.Contains(string(got.Content), `"r1"`) {
		t.Errorf("read = %+v", got)
	}
}

func TestCreateSceneMalformed(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_scene", map[string]any{
		"workspace": "ws",
		"title":     "Bad",
		"content":   `{"type":"note"}`,
	})
	if !r.IsError {
		t.Error("expected error for malformed content")
	}
}

func TestSaveScene(t *testing.T) {
	srv, svc := testServer(t)
	rec := testutil.CreateScene(t, svc, sceneservice.CreateInput{WorkspaceID: "ws", Title: "Board"})
	content := string(testutil.Encode(t, testutil.Content("r1", "r2")))

	r := callTool(t, srv, "save_scene", map[string]any{
		"workspace": "ws", "id": rec.ID, "content": content, "if_match": "stale",
	})
	if !r.IsError || !strings.Contains(resultText(r), "read it again") {
		t.Errorf("stale save = %q", resultText(r))
	}

	r = callTool(t, srv, "save_scene", map[string]any{
		"workspace": "ws", "id": rec.ID, "content": content, "if_match": rec.Checksum,
	})
	if r.IsError {
		t.Fatalf("save = %q", resultText(r))
	}
	data, _, _ := svc.GetContent(context.Background(), rec.Ref())
	if string(data) != content {
		t.Error("content not saved")
	}
}

func TestReadSceneMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_scene", map[string]any{"workspace": "ws", "id": "nope"})
	if !r.IsError || resultText(r) != "not found: ws/nope" {
		t.Errorf("missing = %q", resultText(r))
	}
}

func TestOpenAndCurrentScene(t *testing.T) {
	srv, svc := testServer(t)

	r := callTool(t, srv, "current_scene", nil)
	if resultText(r) != "no scene displayed" {
		t.Errorf("current before open = %q", resultText(r))
	}

	rec := testutil.CreateScene(t, svc, sceneservice.CreateInput{WorkspaceID: "ws", Title: "Board"})
	r = callTool(t, srv, "open_scene", map[string]any{"workspace": "ws", "id": rec.ID})
	if r.IsError || !strings.Contains(resultText(r), rec.ID) {
		t.Fatalf("open = %q", resultText(r))
	}

	r = callTool(t, srv, "open_scene", map[string]any{"workspace": "ws", "id": "missing"})
	if !r.IsError {
		t.Error("opening a missing scene should fail")
	}
	r = callTool(t, srv, "current_scene", nil)
	if resultText(r) != "no scene displayed" {
		t.Errorf("current after failed open = %q", resultText(r))
	}
}

func TestSceneFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_scene_format", nil)
	if !strings.Contains(resultText(r), `"type": "scene"`) {
		t.Error("format contract should show the document type")
	}

	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != formatURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
