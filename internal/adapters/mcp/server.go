package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/docs-assistant/internal/core/domain"
	"github.com/kirillkom/docs-assistant/internal/core/ports"
)

const askDocsTool = "ask_docs"

// NewServer exposes the chat pipeline as a single MCP tool.
func NewServer(chat ports.ChatService, version string) *server.MCPServer {
	s := server.NewMCPServer("docs-assistant", version, server.WithToolCapabilities(false))
	s.AddTool(askDocsToolSpec(), askDocsHandler(chat))
	return s
}

func askDocsToolSpec() mcp.Tool {
	return mcp.NewTool(askDocsTool,
		mcp.WithDescription("Answer a question from the indexed documentation and list the cited documents."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question to answer")),
		mcp.WithString("corpus", mcp.Description("Corpus name; the server default is used when empty")),
		mcp.WithNumber("top_k", mcp.Description("Number of chunks to retrieve")),
	)
}

func askDocsHandler(chat ports.ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		answer, err := chat.Answer(ctx, domain.Query{
			Text:   text,
			Corpus: req.GetString("corpus", ""),
			TopK:   req.GetInt("top_k", 0),
		})
		if err != nil {
			slog.Warn("mcp_ask_docs_failed", "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatAnswer(answer)), nil
	}
}

func formatAnswer(answer *domain.Answer) string {
	if len(answer.Citations) == 0 {
		return answer.Text
	}
	var b strings.Builder
	b.WriteString(answer.Text)
	b.WriteString("\n\nSources:")
	for _, c := range answer.Citations {
		fmt.Fprintf(&b, "\n- %s (%s)", c.Title, c.ID)
	}
	return b.String()
}
