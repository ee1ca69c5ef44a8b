package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ganban/internal/boardservice"
	"github.com/starford/ganban/internal/gitstore"
	"github.com/starford/ganban/internal/testutil"
)

func testServer(t *testing.T) (*Server, *boardservice.Service) {
	t.Helper()
	ctx := context.Background()
	store := gitstore.New(testutil.GitRepo(t))
	if _, err := store.Init(ctx, "MCP board"); err != nil {
		t.Fatal(err)
	}
	svc, err := boardservice.New(ctx, store, boardservice.WithIndex(testutil.TestDB(t)))
	if err != nil {
		t.Fatal(err)
	}
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_board":
		result, err = srv.getBoard(ctx, req)
	case "get_card":
		result, err = srv.getCard(ctx, req)
	case "search_cards":
		result, err = srv.searchCards(ctx, req)
	case "list_cards":
		result, err = srv.listCards(ctx, req)
	case "create_card":
		result, err = srv.createCard(ctx, req)
	case "move_card":
		result, err = srv.moveCard(ctx, req)
	case "get_card_document":
		result, err = srv.getCardDocument(ctx, req)
	case "update_card":
		result, err = srv.updateCard(ctx, req)
	case "archive_card":
		result, err = srv.archiveCard(ctx, req)
	case "sync_board":
		result, err = srv.syncBoard(ctx, req)
	case "get_card_contract":
		result, err = srv.getCardContract(ctx, req)
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

func TestCreateAndGetCard(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_card", map[string]interface{}{
		"title":  "Fix login",
		"body":   "Users cannot sign in.",
		"labels": "bug, ui",
	})
	if text := resultText(r); text != "created card 1 in column 1" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "get_card", map[string]interface{}{"id": "1"})
	if r.IsError {
		t.Fatalf("get_card: %s", resultText(r))
	}
	var card boardservice.CardView
	if err := json.Unmarshal([]byte(resultText(r)), &card); err != nil {
		t.Fatal(err)
	}
	if card.Title != "Fix login" || len(card.Labels) != 2 || card.Labels[1] != "ui" {
		t.Errorf("card = %+v", card)
	}
}

func TestCreateCardMissingTitle(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_card", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing title")
	}
}

func TestMoveAndArchiveCard(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "create_card", map[string]interface{}{"title": "A"})
	callTool(t, srv, "create_card", map[string]interface{}{"title": "B", "column": "2"})

	r := callTool(t, srv, "move_card", map[string]interface{}{"id": "1", "column": "2", "position": float64(0)})
	if r.IsError {
		t.Fatalf("move_card: %s", resultText(r))
	}
	b, err := svc.Board(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(b.Columns[1].Cards, ","); got != "1,2" {
		t.Errorf("doing = %s, want 1,2", got)
	}

	r = callTool(t, srv, "archive_card", map[string]interface{}{"id": "2"})
	if r.IsError {
		t.Fatalf("archive_card: %s", resultText(r))
	}
	c, err := svc.Card(context.Background(), "2")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Archived {
		t.Error("card 2 should be archived")
	}

	r = callTool(t, srv, "archive_card", map[string]interface{}{"id": "9"})
	if !r.IsError {
		t.Error("expected error for unknown card")
	}
}

func TestGetBoard(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_board", map[string]interface{}{})
	var b boardservice.BoardView
	if err := json.Unmarshal([]byte(resultText(r)), &b); err != nil {
		t.Fatal(err)
	}
	if b.Title != "MCP board" || len(b.Columns) != 3 {
		t.Errorf("board = %+v", b)
	}
}

func TestSearchCards(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_card", map[string]interface{}{"title": "Fix login"})
	callTool(t, srv, "create_card", map[string]interface{}{"title": "Write docs"})

	r := callTool(t, srv, "search_cards", map[string]interface{}{"query": "docs"})
	if text := resultText(r); !strings.Contains(text, "Write docs") || strings.Contains(text, "Fix login") {
		t.Errorf("search result = %s", text)
	}
}

func TestListCards(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_card", map[string]interface{}{"title": "Fix login", "labels": "bug, ui"})
	callTool(t, srv, "create_card", map[string]interface{}{"title": "Write docs"})

	r := callTool(t, srv, "list_cards", map[string]interface{}{"label": "ui"})
	if r.IsError {
		t.Fatalf("list_cards failed: %s", resultText(r))
	}
	if text := resultText(r); !strings.Contains(text, "Fix login") || strings.Contains(text, "Write docs") {
		t.Errorf("list result = %s", text)
	}
}

func TestUpdateCard(t *testing.T) {
	srv, svc := testServer(t)
	callTool(t, srv, "create_card", map[string]interface{}{"title": "Fix login"})

	r := callTool(t, srv, "get_card_document", map[string]interface{}{"id": "1"})
	if text := resultText(r); text != "# Fix login\n" {
		t.Errorf("document = %q", text)
	}

	md := "---\nlabels:\n- bug\n---\n# Fix login\n\nSession cookie expires early.\n\n## Notes\n\nSee logs.\n"
	r = callTool(t, srv, "update_card", map[string]interface{}{"id": "1", "markdown": md})
	if r.IsError || resultText(r) != "updated card 1" {
		t.Fatalf("update_card: %s", resultText(r))
	}
	card, err := svc.Card(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if card.Body != "Session cookie expires early." || len(card.Sections) != 2 || len(card.Labels) != 1 {
		t.Errorf("card = %+v", card)
	}

	r = callTool(t, srv, "update_card", map[string]interface{}{"id": "9", "markdown": md})
	if !r.IsError {
		t.Error("expected error for unknown card")
	}
	r = callTool(t, srv, "update_card", map[string]interface{}{"id": "1"})
	if !r.IsError {
		t.Error("expected error for missing markdown")
	}
}

func TestSyncBoard(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_board", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("sync_board: %s", resultText(r))
	}
	if text := resultText(r); text != `{"fetched":[],"merged":[],"pushed":null,"error":null}` {
		t.Errorf("sync result = %s", text)
	}
}

func TestGetCardContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_card_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "# ganban Card Format Contract") {
		t.Error("contract text missing")
	}
}
