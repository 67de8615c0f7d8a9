package session

import (
	"time"

	"github.com/kalambet/ragchat/internal/rag"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata is the optional payload attached to an assistant Message.
type Metadata struct {
	SearchResults []rag.SearchResult `json:"search_results,omitempty"`
	Timing        *rag.Timing        `json:"timing,omitempty"`
	Stats         *rag.ChatStats     `json:"stats,omitempty"`
	MLOps         *rag.MLOpsInfo     `json:"mlops_info,omitempty"`
	IsError       bool               `json:"is_error,omitempty"`
}

// Message is one entry of the conversation history. Messages are immutable
// once appended; insertion order is display order.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Meta      *Metadata `json:"metadata,omitempty"`
}

// ExportDocument is the downloadable JSON form of a session.
type ExportDocument struct {
	Timestamp     time.Time `json:"timestamp"`
	Messages      []Message `json:"messages"`
	TotalMessages int       `json:"totalMessages"`
	AdminMode     bool      `json:"adminMode"`
}
