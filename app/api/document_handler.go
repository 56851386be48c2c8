package api

import (
	"context"

	"studyrag/ingest"
	"studyrag/store"
	"studyrag/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type DocumentHandler struct {
	store        store.DBStorer
	orchestrator *ingest.Orchestrator
}

func NewDocumentHandler(s store.DBStorer, o *ingest.Orchestrator) *DocumentHandler {
	return &DocumentHandler{
		store:        s,
		orchestrator: o,
	}
}

// HandleIngest accepts a document for background ingestion and replies
// before the work is done.
func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	var params types.IngestParams
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

	// A caller-supplied id re-ingests an existing document; a fresh id
	// starts a new one.
	docID := uuid.New()
	if params.DocumentID != "" {
		docID, err = uuid.Parse(params.DocumentID)
		if err != nil {
			return ErrInvalidID()
		}
	}

	doc := types.Document{
		ID:        docID,
		UserID:    userID,
		SourceURL: params.SourceURL,
	}

	if err := h.orchestrator.Trigger(c.Context(), doc); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":     doc.ID,
		"status": types.StatusPending,
	})
}

func (h *DocumentHandler) HandleGetDocument(c *fiber.Ctx) error {
	docID, userID, err := parseDocRequest(c)
	if err != nil {
		return err
	}

	if err := authorize(c.Context(), h.store, userID, docID); err != nil {
		return err
	}

	doc, err := h.store.GetDocumentByID(c.Context(), docID)
	if err != nil {
		return err
	}

	return c.JSON(doc)
}

func parseDocRequest(c *fiber.Ctx) (docID, userID uuid.UUID, err error) {
	docID, err = uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidID()
	}
	userID, err = uuid.Parse(c.Query("user_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidID()
	}
	return docID, userID, nil
}

// authorize hides existence: an unknown document and someone else's
// document both come back as access denied.
func authorize(ctx context.Context, checker types.AccessChecker, userID, docID uuid.UUID) error {
	ok, err := checker.CanAccess(ctx, userID, docID)
	if err != nil {
		return err
	}
	if !ok {
		return types.ErrAccessDenied
	}
	return nil
}
