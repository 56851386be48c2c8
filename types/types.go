package types

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type IngestStatus string

const (
	StatusPending   IngestStatus = "PENDING"
	StatusIngesting IngestStatus = "INGESTING"
	StatusReady     IngestStatus = "READY"
	StatusFailed    IngestStatus = "FAILED"
)

// Failure reasons recorded on a document when ingestion ends in FAILED.
const (
	FailNoExtractableText  = "NoExtractableText"
	FailEmbeddingOrStorage = "EmbeddingOrStorageFailure"
	FailSourceUnreachable  = "SourceUnreachable"
)

var (
	ErrAccessDenied        = errors.New("access denied")
	ErrNotFound            = errors.New("not found")
	ErrIngestionInProgress = errors.New("ingestion already in progress")
)

type Document struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	SourceURL    string       `json:"source_url"`
	Status       IngestStatus `json:"status"`
	FailReason   string       `json:"fail_reason,omitempty"`
	PageCount    int          `json:"page_count"`
	ChunkCount   int          `json:"chunk_count"`
	FailedChunks int          `json:"failed_chunks"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Page is one page of extracted PDF text, in document order.
type Page struct {
	Number int
	Text   string
}

// ChunkDraft is a chunk before it has an identity or an embedding.
// Offsets are rune offsets into the page text and never overlap between
// drafts of the same page.
type ChunkDraft struct {
	Text        string
	Page        int
	StartOffset int
	EndOffset   int
}

type Chunk struct {
	ID          uuid.UUID
	DocID       uuid.UUID
	Ordinal     int
	Page        int
	StartOffset int
	EndOffset   int
	Text        string
	Embedding   []float32
}

// VectorRecord is the persisted form of a chunk inside the vector index.
// Namespace (the owning document id) is supplied by the caller on upsert.
type VectorRecord struct {
	ChunkID     uuid.UUID
	Ordinal     int
	Page        int
	StartOffset int
	EndOffset   int
	Text        string
	Vector      []float32
}

// Match is a single similarity hit, score descending by similarity.
type Match struct {
	ChunkID     uuid.UUID
	Ordinal     int
	Page        int
	StartOffset int
	EndOffset   int
	Text        string
	Score       float64
}

// RetrievalResult is the budget-bounded, deduplicated slice of matches
// used to ground a single generation call.
type RetrievalResult struct {
	Matches []Match
	Tokens  int
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ConversationTurn struct {
	Role      Role        `json:"role" validate:"required,oneof=user assistant"`
	Content   string      `json:"content" validate:"required"`
	Citations []Citation `json:"citations,omitempty"`
}

type Citation struct {
	ChunkID     uuid.UUID `json:"chunk_id"`
	Page        int       `json:"page"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
}

type Flashcard struct {
	ID           uuid.UUID   `json:"id"`
	DocID        uuid.UUID   `json:"document_id"`
	Question     string      `json:"question"`
	Answer       string      `json:"answer"`
	SourceChunks []uuid.UUID `json:"source_chunks"`
	CreatedAt    time.Time   `json:"created_at"`
}

// FlashcardFeedback is transient; all three fields are always populated,
// where "populated" may be the empty string for IncorrectResponse when the
// user's answer was fully correct.
type FlashcardFeedback struct {
	CorrectResponse   string `json:"correctResponse"`
	IncorrectResponse string `json:"incorrectResponse"`
	MoreInfo          string `json:"moreInfo"`
}

// AccessChecker is the consumed access-control collaborator. Callers must
// treat a false result as ErrAccessDenied regardless of whether the
// document exists.
type AccessChecker interface {
	CanAccess(ctx context.Context, userID, docID uuid.UUID) (bool, error)
}
