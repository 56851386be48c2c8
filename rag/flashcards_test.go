package rag

import (
	"context"
	"log/slog"
	"testing"

	"studyrag/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkWith(ordinal int, text string) types.Chunk {
	return types.Chunk{
		ID:      uuid.New(),
		DocID:   uuid.New(),
		Ordinal: ordinal,
		Page:    1,
		Text:    text,
	}
}

func newTestFlashcards(db *fakeStore, llm *fakeLLM) *FlashcardService {
	return NewFlashcardService(db, llm, slog.New(slog.DiscardHandler))
}

func TestGenerateGroundedFlashcards(t *testing.T) {
	db := newRagFakeStore()
	source := chunkWith(0, "The mitochondria generate cellular energy through respiration.")
	db.chunks = []types.Chunk{source}

	llm := &fakeLLM{responses: []string{
		`[{"question": "What do mitochondria do?", "answer": "Mitochondria generate cellular energy"}]`,
	}}
	svc := newTestFlashcards(db, llm)

	cards, err := svc.Generate(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	card := cards[0]
	assert.Equal(t, "What do mitochondria do?", card.Question)
	require.Len(t, card.SourceChunks, 1)
	assert.Equal(t, source.ID, card.SourceChunks[0])

	// Card was persisted.
	saved, err := db.GetFlashcardByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, card.Question, saved.Question)
}

func TestGenerateDiscardsHallucinatedCards(t *testing.T) {
	db := newRagFakeStore()
	db.chunks = []types.Chunk{chunkWith(0, "The mitochondria generate cellular energy through respiration.")}

	llm := &fakeLLM{responses: []string{
		`[
			{"question": "What do elephants do?", "answer": "Elephants communicate using seismic vibrations"},
			{"question": "What do mitochondria do?", "answer": "Mitochondria generate cellular energy"}
		]`,
	}}
	svc := newTestFlashcards(db, llm)

	cards, err := svc.Generate(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "What do mitochondria do?", cards[0].Question)
}

func TestGenerateRepairsMalformedJSON(t *testing.T) {
	db := newRagFakeStore()
	db.chunks = []types.Chunk{chunkWith(0, "The mitochondria generate cellular energy through respiration.")}

	llm := &fakeLLM{responses: []string{
		`Sure, here are your flashcards! question one...`,
		`[{"question": "What do mitochondria do?", "answer": "Mitochondria generate cellular energy"}]`,
	}}
	svc := newTestFlashcards(db, llm)

	cards, err := svc.Generate(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	require.Len(t, cards, 1)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "FIX the JSON")
}

func TestGenerateTrimsToRequestedCount(t *testing.T) {
	db := newRagFakeStore()
	db.chunks = []types.Chunk{chunkWith(0, "The mitochondria generate cellular energy through respiration.")}

	llm := &fakeLLM{responses: []string{
		`[
			{"question": "Q1?", "answer": "Mitochondria generate cellular energy"},
			{"question": "Q2?", "answer": "Mitochondria generate cellular energy"},
			{"question": "Q3?", "answer": "Mitochondria generate cellular energy"}
		]`,
	}}
	svc := newTestFlashcards(db, llm)

	cards, err := svc.Generate(context.Background(), uuid.New(), 2)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestGenerateEmptyNamespace(t *testing.T) {
	db := newRagFakeStore()
	llm := &fakeLLM{responses: []string{"unused"}}
	svc := newTestFlashcards(db, llm)

	cards, err := svc.Generate(context.Background(), uuid.New(), 3)
	require.NoError(t, err)
	assert.Empty(t, cards)
	assert.Empty(t, llm.prompts)
}

func TestEvaluateReturnsAllFeedbackFields(t *testing.T) {
	db := newRagFakeStore()
	llm := &fakeLLM{responses: []string{
		`{"correctResponse": "You named the organelle.", "incorrectResponse": "You missed respiration.", "moreInfo": "Respiration happens in the inner membrane."}`,
	}}
	svc := newTestFlashcards(db, llm)

	card := &types.Flashcard{
		ID:       uuid.New(),
		Question: "What do mitochondria do?",
		Answer:   "They generate energy through respiration.",
	}

	feedback, err := svc.Evaluate(context.Background(), card, "They make energy")
	require.NoError(t, err)
	assert.Equal(t, "You named the organelle.", feedback.CorrectResponse)
	assert.Equal(t, "You missed respiration.", feedback.IncorrectResponse)
	assert.Equal(t, "Respiration happens in the inner membrane.", feedback.MoreInfo)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], card.Question)
	assert.Contains(t, llm.prompts[0], card.Answer)
	assert.Contains(t, llm.prompts[0], "They make energy")
}

func TestEvaluateEmptyFieldsAllowed(t *testing.T) {
	db := newRagFakeStore()
	llm := &fakeLLM{responses: []string{
		`{"correctResponse": "Everything was right.", "incorrectResponse": "", "moreInfo": ""}`,
	}}
	svc := newTestFlashcards(db, llm)

	card := &types.Flashcard{ID: uuid.New(), Question: "Q", Answer: "A"}
	feedback, err := svc.Evaluate(context.Background(), card, "A")
	require.NoError(t, err)
	assert.Empty(t, feedback.IncorrectResponse)
	assert.Empty(t, feedback.MoreInfo)
}

func TestEvaluateRepairsMalformedJSON(t *testing.T) {
	db := newRagFakeStore()
	llm := &fakeLLM{responses: []string{
		`Great answer! Let me grade it...`,
		`{"correctResponse": "All of it.", "incorrectResponse": "", "moreInfo": ""}`,
	}}
	svc := newTestFlashcards(db, llm)

	card := &types.Flashcard{ID: uuid.New(), Question: "Q", Answer: "A"}
	feedback, err := svc.Evaluate(context.Background(), card, "A")
	require.NoError(t, err)
	assert.Equal(t, "All of it.", feedback.CorrectResponse)
	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "FIX the JSON")
}

func TestSampleChunksEvenSpread(t *testing.T) {
	var chunks []types.Chunk
	for i := 0; i < 100; i++ {
		chunks = append(chunks, chunkWith(i, "text"))
	}

	sampled := sampleChunks(chunks, 10)
	require.Len(t, sampled, 10)
	assert.Equal(t, 0, sampled[0].Ordinal)
	assert.Equal(t, 90, sampled[9].Ordinal)

	few := sampleChunks(chunks[:5], 10)
	assert.Len(t, few, 5)
}
