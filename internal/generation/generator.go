package generation

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tributary-api/internal/domain"
)

// Request carries everything the generation service needs to produce one
// training conversation: the resolved template, the item's opaque parameter
// bag, and ownership/trace context.
type Request struct {
	Template   *domain.PromptTemplate
	Topic      string
	Tier       string
	Parameters map[string]any
	UserID     uuid.UUID
	RunID      uuid.UUID
}

// Generator defines the interface for generating training conversations.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
type Generator interface {
	// GenerateConversation produces a single conversation for the request.
	// Implementations must bound the call with a timeout so a hung LLM call
	// degrades to an item-level failure rather than wedging a batch job.
	GenerateConversation(ctx context.Context, req Request) (*domain.Conversation, error)
}
