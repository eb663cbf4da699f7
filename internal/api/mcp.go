package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/voicedesk/switchboard/internal/storage"
)

// NewMCPServer creates an MCP server exposing the escalation workflow as
// tools, so an agent runtime can ask questions and answer help requests the
// same way the HTTP surface does.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"switchboard",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("switchboard — escalation engine for customer questions: answer from the knowledge base, escalate to a human supervisor, and learn from their answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_question",
			mcp.WithDescription("Submit a customer question. Returns a knowledge-base answer when one matches, otherwise escalates to a supervisor and returns the pending help request id."),
			mcp.WithString("question", mcp.Description("The customer's question"), mcp.Required()),
			mcp.WithString("customer_name", mcp.Description("Customer name, if known")),
			mcp.WithString("customer_phone", mcp.Description("Customer phone number, if known")),
		),
		mcpAskQuestion(deps),
	)

	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Look up the knowledge base for an answer to a question without escalating on a miss."),
			mcp.WithString("question", mcp.Description("Question to match against stored answers"), mcp.Required()),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("list_help_requests",
			mcp.WithDescription("List help requests, newest first. Pass status=pending to see only open escalations."),
			mcp.WithString("status", mcp.Description("Filter: 'pending' for open requests only")),
		),
		mcpListHelpRequests(deps),
	)

	s.AddTool(
		mcp.NewTool("answer_help_request",
			mcp.WithDescription("Resolve a pending help request with a supervisor answer. The answer is stored in the knowledge base and relayed to the waiting customer."),
			mcp.WithString("id", mcp.Description("Help request id"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The supervisor's answer"), mcp.Required()),
		),
		mcpAnswerHelpRequest(deps),
	)

	return s
}

func mcpAskQuestion(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		customer := storage.CustomerInfo{
			Name:  req.GetString("customer_name", ""),
			Phone: req.GetString("customer_phone", ""),
		}

		// No session id: MCP callers are text agents, not live calls.
		result, err := deps.Engine.HandleIncomingCall(ctx, "", customer, question)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to process question: %v", err)), nil
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchKnowledge(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		entry, ok, err := deps.Knowledge.FindMatch(question)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if !ok {
			return mcpText("no matching answer found"), nil
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entry: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHelpRequests(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			requests []storage.HelpRequest
			err      error
		)
		if req.GetString("status", "") == "pending" {
			requests, err = deps.Requests.ListPending()
		} else {
			requests, err = deps.Requests.ListAll()
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list help requests: %v", err)), nil
		}

		if len(requests) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(requests)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal requests: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAnswerHelpRequest(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		updated, entry, err := deps.Engine.Resolve(ctx, id, answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to resolve help request: %v", err)), nil
		}

		b, err := json.Marshal(RespondResult{HelpRequest: updated, KnowledgeEntry: entry})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
