// Package mcpserver exposes the vault to agents over the Model Context
// Protocol. Every tool validates paths through pathguard and renders
// failures through the sanitizer.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultgate/internal/filecache"
	"github.com/starford/vaultgate/internal/guide"
	"github.com/starford/vaultgate/internal/index"
	"github.com/starford/vaultgate/internal/pathguard"
	"github.com/starford/vaultgate/internal/sanitize"
	"github.com/starford/vaultgate/internal/storage"
)

const (
	rootGuideURI     = "vault://guide"
	guideContractURI = "vault://guide-contract"
	maxSearchLimit   = 100
)

// Server wraps the MCP server with the vault tools.
type Server struct {
	mcp       *server.MCPServer
	guard     *pathguard.Guard
	store     storage.Provider
	guides    *guide.Collector
	cache     *filecache.Cache
	db        index.NoteIndex
	sanitizer *sanitize.Sanitizer
	logger    *slog.Logger
	version   string
}

// Option configures a Server.
type Option func(*Server)

// WithSanitizer sets the sanitizer used for tool errors.
func WithSanitizer(s *sanitize.Sanitizer) Option {
	return func(srv *Server) { srv.sanitizer = s }
}

// WithLogger sets the logger for failed tool calls.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.logger = l }
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(srv *Server) { srv.version = v }
}

// New creates a new MCP server with all vault tools registered.
func New(guard *pathguard.Guard, store storage.Provider, guides *guide.Collector, cache *filecache.Cache, db index.NoteIndex, opts ...Option) *Server {
	s := &Server{
		guard:     guard,
		store:     store,
		guides:    guides,
		cache:     cache,
		db:        db,
		sanitizer: sanitize.New(),
		logger:    slog.Default(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"vaultgate",
		s.version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_guides",
		mcp.WithDescription("Return the directory guides that apply to a vault directory or note, "+
			"ordered from the top-level directory down. Later guides are more specific and take precedence. "+
			"The root guide is not repeated here; read the "+rootGuideURI+" resource for it."),
		mcp.WithString("path", mcp.Description("Directory or note path relative to the vault root (default: root)")),
	), s.getGuides)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List all notes or notes in a specific folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search note titles, bodies, and tags for a literal substring."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20, max 100)")),
	), s.searchNotes)

	s.mcp.AddResource(
		mcp.NewResource(rootGuideURI, "Root Guide",
			mcp.WithResourceDescription("Guide file at the vault root; applies to the whole vault."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRootGuide,
	)

	s.mcp.AddResource(
		mcp.NewResource(guideContractURI, "Guide Contract",
			mcp.WithResourceDescription("How directory guides are ordered and how vault paths are resolved."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideContract,
	)

	return s
}

// ServeStdio serves MCP on stdin/stdout until ctx is done or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler returns the streamable HTTP transport for this server.
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) getGuides(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target := req.GetString("path", ".")
	entries, err := s.guides.Collect(target)
	if err != nil {
		return s.toolError("get_guides", err), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("no directory guides on this path"), nil
	}
	return mcp.NewToolResultText(renderGuides(entries, s.guides.FileName())), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(s.sanitizer.Message(err.Error())), nil
	}
	abs, err := s.guard.ResolveSafe(path)
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	content, ok, err := s.cache.ReadOptional(abs)
	if err != nil {
		return s.toolError("read_note", err), nil
	}
	if !ok {
		return mcp.NewToolResultError(s.sanitizer.Message("not found: " + path)), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")
	metas, err := s.store.List(folder)
	if err != nil {
		return s.toolError("list_notes", err), nil
	}
	if len(metas) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(s.sanitizer.Message(err.Error())), nil
	}
	limit := min(req.GetInt("limit", 0), maxSearchLimit)
	results, err := s.db.Search(query, limit)
	if err != nil {
		return s.toolError("search_notes", err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return s.toolError("search_notes", err), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readRootGuide(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	content, _, err := s.guides.Root()
	if err != nil {
		text, incident := s.sanitizer.Report(s.logger, "mcp: root guide failed", err)
		return nil, fmt.Errorf("%s (incident %s)", text, incident)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rootGuideURI,
			MIMEType: "text/markdown",
			Text:     content,
		},
	}, nil
}

func (s *Server) readGuideContract(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideContractURI,
			MIMEType: "text/markdown",
			Text:     GuideContract,
		},
	}, nil
}

// toolError logs err and returns its sanitized form as a tool error result.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	if err == nil {
		err = errors.New("unknown error")
	}
	text, incident := s.sanitizer.Report(s.logger, "mcp: tool failed", err, slog.String("tool", tool))
	return mcp.NewToolResultError(fmt.Sprintf("%s (incident %s)", text, incident))
}

func renderGuides(entries []guide.Entry, fileName string) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s/%s\n\n", e.Dir, fileName)
		b.WriteString(strings.TrimRight(e.Content, "\n"))
	}
	return b.String()
}
