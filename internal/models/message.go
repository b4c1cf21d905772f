package models

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type PartType string

const (
	PartText           PartType = "text"
	PartToolInvocation PartType = "tool-invocation"
)

type ToolState string

const (
	ToolStateCall   ToolState = "call"
	ToolStateResult ToolState = "result"
	ToolStateError  ToolState = "error"
)

// ToolInvocation records one tool call the assistant made and what it returned.
type ToolInvocation struct {
	ToolCallID string          `json:"tool_call_id"`
	ToolName   string          `json:"tool_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	State      ToolState       `json:"state"`
}

type MessagePart struct {
	Type           PartType        `json:"type"`
	Text           string          `json:"text,omitempty"`
	ToolInvocation *ToolInvocation `json:"tool_invocation,omitempty"`
}

func TextPart(text string) MessagePart {
	return MessagePart{Type: PartText, Text: text}
}

type Message struct {
	ID        string        `json:"id" db:"id"`
	TripID    string        `json:"trip_id" db:"trip_id"`
	Seq       int64         `json:"seq" db:"seq"`
	Role      Role          `json:"role" db:"role"`
	Content   string        `json:"content" db:"content"`
	Parts     []MessagePart `json:"parts" db:"parts"`
	Author    Author        `json:"author,omitempty" db:"-"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

// TextContent joins the text parts of a message.
func (m *Message) TextContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// ToolInvocations returns the tool parts of a message in order.
func (m *Message) ToolInvocations() []ToolInvocation {
	var out []ToolInvocation
	for _, p := range m.Parts {
		if p.Type == PartToolInvocation && p.ToolInvocation != nil {
			out = append(out, *p.ToolInvocation)
		}
	}
	return out
}
