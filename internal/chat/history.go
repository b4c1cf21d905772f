package chat

import (
	"encoding/json"

	"tripgen/internal/llm"
	"tripgen/internal/models"
)

// toLLMHistory rebuilds the provider conversation from stored messages.
// Assistant messages interleave text and tool parts; every run of tool
// parts becomes an assistant tool-call message followed by its results.
func toLLMHistory(messages []*models.Message) []llm.Message {
	start := 0
	for start < len(messages) && messages[start].Role != models.RoleUser {
		start++
	}

	var out []llm.Message
	for _, m := range messages[start:] {
		if m.Role == models.RoleUser {
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.TextContent()})
			continue
		}
		out = append(out, assistantTurns(m)...)
	}
	return out
}

func assistantTurns(m *models.Message) []llm.Message {
	if len(m.Parts) == 0 {
		if m.Content == "" {
			return nil
		}
		return []llm.Message{{Role: llm.RoleAssistant, Content: m.Content}}
	}

	var (
		out     []llm.Message
		current llm.Message
		results []llm.Message
	)
	flush := func() {
		if current.Content == "" && len(current.ToolCalls) == 0 {
			return
		}
		current.Role = llm.RoleAssistant
		out = append(out, current)
		out = append(out, results...)
		current = llm.Message{}
		results = nil
	}

	for _, p := range m.Parts {
		switch p.Type {
		case models.PartText:
			if len(current.ToolCalls) > 0 {
				flush()
			}
			if current.Content != "" {
				current.Content += "\n\n"
			}
			current.Content += p.Text
		case models.PartToolInvocation:
			inv := p.ToolInvocation
			if inv == nil || inv.State == models.ToolStateCall {
				continue
			}
			args := inv.Args
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			current.ToolCalls = append(current.ToolCalls, llm.ToolCall{ID: inv.ToolCallID, Name: inv.ToolName, Arguments: args})
			result := string(inv.Result)
			if result == "" {
				result = "{}"
			}
			results = append(results, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: inv.ToolCallID,
				Name:       inv.ToolName,
				Content:    result,
			})
		}
	}
	flush()
	return out
}
