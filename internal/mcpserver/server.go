// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes board tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ganban/internal/boardservice"
	"github.com/starford/ganban/internal/index"
)

// Server wraps the MCP server with board tools.
type Server struct {
	mcp *server.MCPServer
	svc *boardservice.Service
}

// New creates a new MCP server with all board tools registered.
func New(svc *boardservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ganban",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_board",
		mcp.WithDescription("Return the whole board: columns with their card ids in order, cards, and labels."),
	), s.getBoard)

	s.mcp.AddTool(mcp.NewTool("get_card",
		mcp.WithDescription("Return one card with its sections and metadata."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
	), s.getCard)

	s.mcp.AddTool(mcp.NewTool("search_cards",
		mcp.WithDescription("Full-text search through titles, bodies and labels of cards that are not archived."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchCards)

	s.mcp.AddTool(mcp.NewTool("list_cards",
		mcp.WithDescription("List cards that are not archived, optionally only those in one column or with one label."),
		mcp.WithString("column", mcp.Description("Order id of a column")),
		mcp.WithString("label", mcp.Description("Label name")),
	), s.listCards)

	s.mcp.AddTool(mcp.NewTool("create_card",
		mcp.WithDescription("Create a card and link it into a column (the first column by default). "+
			"Read the card format via get_card_contract or the ganban://card-format resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Card title")),
		mcp.WithString("body", mcp.Description("Markdown body of the first section")),
		mcp.WithString("column", mcp.Description("Order id of the target column")),
		mcp.WithString("labels", mcp.Description("Comma-separated label names")),
		mcp.WithString("assigned", mcp.Description("Assignee")),
		mcp.WithString("due", mcp.Description("Due date, YYYY-MM-DD")),
	), s.createCard)

	s.mcp.AddTool(mcp.NewTool("move_card",
		mcp.WithDescription("Move a card to a column, optionally at a position (0 is the top)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
		mcp.WithString("column", mcp.Required(), mcp.Description("Order id of the target column")),
		mcp.WithNumber("position", mcp.Description("Position in the target column; appended when omitted")),
	), s.moveCard)

	s.mcp.AddTool(mcp.NewTool("get_card_document",
		mcp.WithDescription("Return a card as the Markdown document it is stored as, front matter included."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
	), s.getCardDocument)

	s.mcp.AddTool(mcp.NewTool("update_card",
		mcp.WithDescription("Replace a card's title, sections and front matter with a Markdown document. "+
			"Fetch the current one with get_card_document first; keys left out of the front matter are removed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
		mcp.WithString("markdown", mcp.Required(), mcp.Description("Full card document")),
	), s.updateCard)

	s.mcp.AddTool(mcp.NewTool("archive_card",
		mcp.WithDescription("Archive a card by unlinking it from its column."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Card id")),
	), s.archiveCard)

	s.mcp.AddTool(mcp.NewTool("sync_board",
		mcp.WithDescription("Fetch every remote, merge their board branches, and push to the upstream remote."),
	), s.syncBoard)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns the card document format. Call this before creating cards."),
	), s.getCardContract)

	s.mcp.AddResource(
		mcp.NewResource("ganban://card-format", "Card Format Contract",
			mcp.WithResourceDescription("How card documents are laid out on the board branch."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBoard(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.svc.Board(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) getCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.Card(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(c)
}

func (s *Server) searchCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listCards(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.ListCards(ctx, index.ListFilter{
		ColumnOrder: req.GetString("column", ""),
		Label:       req.GetString("label", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows)
}

func (s *Server) createCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := boardservice.CreateCardInput{
		Title:    title,
		Body:     req.GetString("body", ""),
		Column:   req.GetString("column", ""),
		Labels:   splitLabels(req.GetString("labels", "")),
		Assigned: req.GetString("assigned", ""),
		Due:      req.GetString("due", ""),
	}
	c, err := s.svc.CreateCard(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created card %s in column %s", c.ID, c.Column)), nil
}

func splitLabels(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (s *Server) moveCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	column, err := req.RequireString("column")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := boardservice.MoveCardInput{Column: column}
	if pos := req.GetInt("position", -1); pos >= 0 {
		in.Position = &pos
	}
	if _, err := s.svc.MoveCard(ctx, id, in); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved card %s to column %s", id, column)), nil
}

func (s *Server) getCardDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, err := s.svc.CardDocument(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(md), nil
}

func (s *Server) updateCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	md, err := req.RequireString("markdown")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.SetCardDocument(ctx, id, md)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated card %s", c.ID)), nil
}

func (s *Server) archiveCard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.ArchiveCard(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("archived card %s", id)), nil
}

func (s *Server) syncBoard(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.svc.Sync(ctx)
	out, err := json.Marshal(res)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.OK() {
		return mcp.NewToolResultError(string(out)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getCardContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ganban://card-format",
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}
