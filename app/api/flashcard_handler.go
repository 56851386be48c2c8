package api

import (
	"studyrag/rag"
	"studyrag/store"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FlashcardHandler struct {
	store      store.DBStorer
	flashcards *rag.FlashcardService
}

func NewFlashcardHandler(s store.DBStorer, flashcards *rag.FlashcardService) *FlashcardHandler {
	return &FlashcardHandler{
		store:      s,
		flashcards: flashcards,
	}
}

func (h *FlashcardHandler) HandleGenerate(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.FlashcardParams
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

	cards, err := h.flashcards.Generate(c.Context(), docID, params.Count)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"flashcards": cards})
}

func (h *FlashcardHandler) HandleEvaluate(c *fiber.Ctx) error {
	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	cardID, err := uuid.Parse(c.Params("cardID"))
	if err != nil {
		return ErrInvalidID()
	}

	var params types.EvaluateParams
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

	card, err := h.store.GetFlashcardByID(c.Context(), cardID)
	if err != nil {
		return err
	}
	if card.DocID != docID {
		return types.ErrNotFound
	}

	feedback, err := h.flashcards.Evaluate(c.Context(), card, params.Response)
	if err != nil {
		return err
	}

	return c.JSON(feedback)
}
