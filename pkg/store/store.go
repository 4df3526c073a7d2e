// Package store persists conversations, detected items and complexes in
// Postgres.
package store

import (
	"context"
	"strings"
	"time"
)

// minIDLength guards against legacy short ids that predate UUID keys.
// Anything shorter is treated as absent and filtered at load.
const minIDLength = 10

// ValidID reports whether id is usable as a persistent key.
func ValidID(id string) bool {
	return len(strings.TrimSpace(id)) >= minIDLength
}

// Conversation is one journaling session.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Summary   string
	ComplexID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Complex groups related conversations around a recurring theme.
type Complex struct {
	ID          string
	UserID      string
	Name        string
	Color       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DetectedItem is one detected emotion, part or need attached to a
// conversation.
type DetectedItem struct {
	ConversationID string
	Kind           string
	Label          string
	Category       string
	Frequency      int
	Intensity      float64
	LastSeen       time.Time
}

// FindConversations filters ListConversations. Nil fields match everything.
type FindConversations struct {
	UserID    string
	ComplexID *string
	Limit     int
}

// UpdateConversation carries a partial conversation update. Nil fields are
// left untouched; an empty *ComplexID detaches the conversation.
type UpdateConversation struct {
	ID        string
	Title     *string
	Summary   *string
	ComplexID *string
}

// UpdateComplex carries a partial complex update.
type UpdateComplex struct {
	ID          string
	Name        *string
	Color       *string
	Description *string
}

// Store is the persistence contract used by the API handlers.
type Store interface {
	CreateConversation(ctx context.Context, c *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, find FindConversations) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	CreateComplex(ctx context.Context, c *Complex) (*Complex, error)
	GetComplex(ctx context.Context, id string) (*Complex, error)
	ListComplexes(ctx context.Context, userID string) ([]*Complex, error)
	UpdateComplex(ctx context.Context, update UpdateComplex) (*Complex, error)
	DeleteComplex(ctx context.Context, id string) error

	UpsertDetectedItems(ctx context.Context, items []DetectedItem) error
	ListDetectedItems(ctx context.Context, userID string) ([]*DetectedItem, error)
}
