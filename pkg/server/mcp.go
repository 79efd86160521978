package server

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-assistant/pkg/archive"
)

const (
	mcpServerName    = "research-assistant-mcp"
	mcpServerVersion = "1.0.0"
)

type ResearchTopicArgs struct {
	Topic string `json:"topic" jsonschema:"the research topic to investigate"`
}

type ResearchTopicResult struct {
	Topic  string `json:"topic"`
	Tasks  int    `json:"tasks"`
	Report string `json:"report"`
}

type SearchNotesArgs struct {
	Query string `json:"query" jsonschema:"the search query"`
	K     int    `json:"k,omitempty" jsonschema:"the number of chunks to return, default 5"`
	RunID        string `json:"run_id,omitempty" jsonschema:"restrict the search to one run"`
	Topic        string `json:"topic,omitempty" jsonschema:"restrict the search to runs on this exact topic"`
	TaskIDs      []int  `json:"task_ids,omitempty" jsonschema:"restrict the search to notes of these task ids"`
	ExcludeRunID string `json:"exclude_run_id,omitempty" jsonschema:"leave out the notes of this run"`
}

type SearchNotesResult struct {
	Hits []archive.Hit `json:"hits"`
}

// NewMCPServer exposes the research workflow and the note archive as MCP
// tools.
func NewMCPServer(s *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: mcpServerName, Version: mcpServerVersion}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "research_topic",
		Description: "Plan a literature search for a topic, research every task on arXiv in parallel and return a structured report.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args ResearchTopicArgs) (*mcp.CallToolResult, ResearchTopicResult, error) {
		final, err := s.Research(ctx, args.Topic)
		if err != nil {
			return nil, ResearchTopicResult{}, err
		}
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: final.FinalReport}},
		}
		return result, ResearchTopicResult{Topic: final.Topic, Tasks: len(final.Tasks), Report: final.FinalReport}, nil
	})

	if s.Archive != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_notes",
			Description: "Semantic search over the research notes of previous runs.",
		}, func(ctx context.Context, _ *mcp.CallToolRequest, args SearchNotesArgs) (*mcp.CallToolResult, SearchNotesResult, error) {
			hits, err := s.SearchNotes(ctx, args.Query, args.K, archive.Filter{
				RunID:        args.RunID,
				Topic:        args.Topic,
				TaskIDs:      args.TaskIDs,
				ExcludeRunID: args.ExcludeRunID,
			})
			if err != nil {
				return nil, SearchNotesResult{}, err
			}
			if hits == nil {
				hits = []archive.Hit{}
			}
			return nil, SearchNotesResult{Hits: hits}, nil
		})
	}

	return server
}

// NewMCPHandler serves server over the streamable HTTP transport.
func NewMCPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}
