// Package mcpserve exposes search.Service as an MCP stdio server with two
// tools, search_files and search_text, giving an LLM host an alternative
// front-end to the engine distinct from the editor's own progress-stream
// API: this package only ever calls search.Service's public methods.
package mcpserve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rgsearch/rgsearch/internal/config"
	"github.com/rgsearch/rgsearch/internal/search"
)

// Server wraps an MCP server backed by one search.Service.
type Server struct {
	svc    *search.Service
	cfg    config.Defaults
	server *mcp.Server
}

// New constructs a Server with its tools registered, ready for Run.
func New(svc *search.Service, cfg config.Defaults) *Server {
	s := &Server{
		svc: svc,
		cfg: cfg,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "rgsearch",
			Version: "0.1.0",
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves MCP requests over stdio until ctx is cancelled or the
// transport closes.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "search_files",
		Description: "Fuzzy file-path search across one or more workspace folders.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"folders":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Folder paths to search"},
				"pattern":     {Type: "string", Description: "Fuzzy file-name pattern; empty matches every file"},
				"max_results": {Type: "integer", Description: "Stop after this many results (0 for unlimited)"},
				"include":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Glob patterns a file must match"},
				"exclude":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Glob patterns to exclude"},
			},
			Required: []string{"folders"},
		},
	}, s.handleSearchFiles)

	s.server.AddTool(&mcp.Tool{
		Name:        "search_text",
		Description: "Grep-style content search across one or more workspace folders.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"folders":           {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Folder paths to search"},
				"query":             {Type: "string", Description: "Text or regex pattern to find"},
				"is_regexp":         {Type: "boolean", Description: "Treat query as a regular expression"},
				"is_case_sensitive": {Type: "boolean", Description: "Case-sensitive match"},
				"max_results":       {Type: "integer", Description: "Stop after this many matching files (0 for unlimited)"},
				"exclude":           {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Glob patterns to exclude"},
			},
			Required: []string{"folders", "query"},
		},
	}, s.handleSearchText)
}

type searchFilesParams struct {
	Folders    []string `json:"folders"`
	Pattern    string   `json:"pattern"`
	MaxResults int      `json:"max_results"`
	Include    []string `json:"include"`
	Exclude    []string `json:"exclude"`
}

type searchTextParams struct {
	Folders         []string `json:"folders"`
	Query           string   `json:"query"`
	IsRegExp        bool     `json:"is_regexp"`
	IsCaseSensitive bool     `json:"is_case_sensitive"`
	MaxResults      int      `json:"max_results"`
	Exclude         []string `json:"exclude"`
}

func globSet(patterns []string) map[string]search.ExcludeValue {
	if len(patterns) == 0 {
		return nil
	}
	m := make(map[string]search.ExcludeValue, len(patterns))
	for _, p := range patterns {
		m[p] = search.ExcludeValue{Enabled: true}
	}
	return m
}

func folderQueries(folders []string) []search.FolderQuery {
	out := make([]search.FolderQuery, len(folders))
	for i, f := range folders {
		out[i] = search.FolderQuery{Folder: f}
	}
	return out
}

func (s *Server) handleSearchFiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params searchFilesParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Errorf("invalid search_files arguments: %w", err)), nil
	}
	if len(params.Folders) == 0 {
		return errorResult(fmt.Errorf("search_files requires at least one folder")), nil
	}

	ch, err := s.svc.Search(ctx, search.Query{
		Folders:        folderQueries(params.Folders),
		FilePattern:    params.Pattern,
		MaxResults:     params.MaxResults,
		IncludePattern: globSet(params.Include),
		ExcludePattern: globSet(params.Exclude),
	})
	if err != nil {
		return errorResult(err), nil
	}

	var matches []search.RawFileMatch
	var term search.ProgressEvent
	for ev := range ch {
		matches = append(matches, ev.Files...)
		if ev.Done {
			term = ev
		}
	}
	if term.Err != nil {
		return errorResult(term.Err), nil
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.RelativePath
	}
	return jsonResult(map[string]any{"files": paths, "total": term.Total, "limit_hit": term.LimitHit, "from_cache": term.FromCache})
}

func (s *Server) handleSearchText(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params searchTextParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult(fmt.Errorf("invalid search_text arguments: %w", err)), nil
	}
	if len(params.Folders) == 0 || params.Query == "" {
		return errorResult(fmt.Errorf("search_text requires at least one folder and a non-empty query")), nil
	}

	ch, err := s.svc.Search(ctx, search.Query{
		Folders:        folderQueries(params.Folders),
		MaxResults:     params.MaxResults,
		ExcludePattern: globSet(params.Exclude),
		ContentPattern: &search.ContentQuery{
			Pattern:         params.Query,
			IsRegExp:        params.IsRegExp,
			IsCaseSensitive: params.IsCaseSensitive,
		},
	})
	if err != nil {
		return errorResult(err), nil
	}

	type fileResult struct {
		Path    string `json:"path"`
		Matches int    `json:"matches"`
	}
	var results []fileResult
	var term search.ProgressEvent
	for ev := range ch {
		for _, t := range ev.Text {
			results = append(results, fileResult{Path: t.AbsolutePath, Matches: len(t.Matches)})
		}
		if ev.Done {
			term = ev
		}
	}
	if term.Err != nil {
		return errorResult(term.Err), nil
	}

	return jsonResult(map[string]any{"results": results, "total": term.Total, "limit_hit": term.LimitHit})
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return errorResult(err), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(body)}}}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	slog.Error("mcp tool call failed", "error", err)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: strings.TrimSpace(err.Error())}},
		IsError: true,
	}
}
