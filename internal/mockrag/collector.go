package mockrag

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kalambet/ragchat/internal/storage"
)

// Collection limits, matching the service's fine-tuning data criteria.
const (
	minConversationLen = 5
	maxConversationLen = 2000
)

// systemKeywords mark exchanges about the service itself; those are noise
// for fine-tuning and never collected.
var systemKeywords = []string{
	"초기화", "설정", "오류", "서버", "모델", "로딩", "api",
	"시스템", "에러", "debug", "test", "health", "status",
}

// collector filters and persists chat exchanges as training material.
type collector struct {
	store *storage.Store
}

// shouldCollect reports whether the exchange qualifies as training data.
func (c *collector) shouldCollect(userMessage, assistantResponse string) bool {
	userLen := utf8.RuneCountInString(strings.TrimSpace(userMessage))
	respLen := utf8.RuneCountInString(strings.TrimSpace(assistantResponse))
	if userLen < minConversationLen || respLen < minConversationLen {
		return false
	}
	if userLen > maxConversationLen || respLen > maxConversationLen {
		return false
	}
	combined := strings.ToLower(userMessage + " " + assistantResponse)
	for _, kw := range systemKeywords {
		if strings.Contains(combined, kw) {
			return false
		}
	}
	return true
}

// collect persists one exchange. Returns false when the exchange was
// filtered out or the write failed.
func (c *collector) collect(userMessage, assistantResponse, userID, modelVersion string) (bool, error) {
	if !c.shouldCollect(userMessage, assistantResponse) {
		return false, nil
	}
	err := c.store.SaveConversation(storage.Conversation{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		UserMessage:  strings.TrimSpace(userMessage),
		Assistant:    strings.TrimSpace(assistantResponse),
		UserID:       userID,
		ModelVersion: modelVersion,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
