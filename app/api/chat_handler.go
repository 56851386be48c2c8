package api

import (
	"studyrag/rag"
	"studyrag/store"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ChatHandler struct {
	store store.DBStorer
	chat  *rag.ChatService
}

func NewChatHandler(s store.DBStorer, chat *rag.ChatService) *ChatHandler {
	return &ChatHandler{
		store: s,
		chat:  chat,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.ChatParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	userID, err := uuid.Parse(params.UserID)
	if err != nil {
		return ErrInvalidID()
	}

	if err := authorize(c.Context(), h.store, userID, docID); err != nil {
		return err
	}

	turn, err := h.chat.Ask(c.Context(), docID, params.Message, params.History)
	if err != nil {
		return err
	}

	return c.JSON(turn)
}
