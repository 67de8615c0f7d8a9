package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one collected user/assistant exchange, kept as
// fine-tuning material until it is trained on or cleared.
type Conversation struct {
	ID           string
	CreatedAt    time.Time
	UserMessage  string
	Assistant    string
	UserID       string
	ModelVersion string
	Trained      bool
}
