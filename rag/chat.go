package rag

import (
	"context"

	"studyrag/types"

	"github.com/google/uuid"
)

// ChatService ties retrieval and grounded generation together for a
// single question against a document.
type ChatService struct {
	retriever *Retriever
	generator *Generator
}

func NewChatService(retriever *Retriever, generator *Generator) *ChatService {
	return &ChatService{
		retriever: retriever,
		generator: generator,
	}
}

// Ask answers a question against the document's namespace. A document
// with no stored chunks yields the insufficient-context answer and no
// citations rather than an error.
func (s *ChatService) Ask(ctx context.Context, docID uuid.UUID, question string, history []types.ConversationTurn) (*types.ConversationTurn, error) {
	result, err := s.retriever.Retrieve(ctx, docID, question, 0)
	if err != nil {
		return nil, err
	}

	answer, citations, err := s.generator.Answer(ctx, question, history, result)
	if err != nil {
		return nil, err
	}

	return &types.ConversationTurn{
		Role:      types.RoleAssistant,
		Content:   answer,
		Citations: citations,
	}, nil
}
