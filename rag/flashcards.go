package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studyrag/model"
	"studyrag/store"
	"studyrag/types"

	"github.com/google/uuid"
)

const flashcardSystemPrompt = `You are a study assistant generating flashcards from document excerpts.

IMPORTANT RULES (MANDATORY):
- Output MUST be a valid JSON array.
- Output MUST start with '[' and end with ']'.
- Do NOT include explanations, comments, or markdown.
- Do NOT include any text outside JSON.
- Every element MUST be an object with exactly two keys: "question" and "answer".
- Questions and answers MUST come from the provided excerpts only.
- Do NOT invent facts that are not in the excerpts.`

const evaluateSystemPrompt = `You are a study assistant grading a learner's answer to a flashcard.

IMPORTANT RULES (MANDATORY):
- Output MUST be a valid JSON object.
- Output MUST start with '{' and end with '}'.
- Do NOT include explanations, comments, or markdown outside JSON.
- The object MUST have exactly three string keys:
  "correctResponse", "incorrectResponse", "moreInfo".
- "correctResponse" names what the learner got right, or "" if nothing.
- "incorrectResponse" names what the learner got wrong or missed, or "" if nothing.
- "moreInfo" adds helpful detail from the reference answer, or "" if none.`

// containmentThreshold is the minimum share of answer words that must
// appear in a chunk for that chunk to count as the card's source.
const containmentThreshold = 0.5

const maxSampledChunks = 12

type generatedCard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FlashcardService generates question/answer cards from a document's
// stored chunks and grades free-form responses against them. Cards
// whose answers cannot be traced back to any chunk are discarded.
type FlashcardService struct {
	store store.DBStorer
	llm   model.Generator
	log   *slog.Logger
}

func NewFlashcardService(db store.DBStorer, llm model.Generator, log *slog.Logger) *FlashcardService {
	return &FlashcardService{
		store: db,
		llm:   llm,
		log:   log,
	}
}

// Generate produces up to count cards. A second pass runs when the
// first yields too few grounded cards; the result may still fall short
// of count.
func (s *FlashcardService) Generate(ctx context.Context, docID uuid.UUID, count int) ([]types.Flashcard, error) {
	chunks, err := s.store.ListChunks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return []types.Flashcard{}, nil
	}

	sampled := sampleChunks(chunks, maxSampledChunks)

	var cards []types.Flashcard
	for pass := 0; pass < 2 && len(cards) < count; pass++ {
		need := count - len(cards)
		generated, err := s.generateOnce(ctx, sampled, need)
		if err != nil {
			if len(cards) > 0 {
				s.log.Warn("flashcard pass failed", "doc_id", docID, "pass", pass, "error", err)
				break
			}
			return nil, err
		}

		for _, g := range generated {
			if len(cards) >= count {
				break
			}
			sources := groundCard(g, chunks)
			if len(sources) == 0 {
				s.log.Warn("discarding ungrounded flashcard", "doc_id", docID, "question", g.Question)
				continue
			}
			cards = append(cards, types.Flashcard{
				ID:           uuid.New(),
				DocID:        docID,
				Question:     strings.TrimSpace(g.Question),
				Answer:       strings.TrimSpace(g.Answer),
				SourceChunks: sources,
				CreatedAt:    time.Now().UTC(),
			})
		}
	}

	for _, card := range cards {
		if err := s.store.SaveFlashcard(ctx, card); err != nil {
			return nil, fmt.Errorf("save flashcard: %w", err)
		}
	}

	return cards, nil
}

func (s *FlashcardService) generateOnce(ctx context.Context, chunks []types.Chunk, count int) ([]generatedCard, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate exactly %d flashcards from these excerpts.\n\nExcerpts:\n", count)
	for _, c := range chunks {
		fmt.Fprintf(&b, "[page %d] %s\n\n", c.Page, strings.TrimSpace(c.Text))
	}
	b.WriteString(`Return ONLY the JSON array, like: [{"question":"...","answer":"..."}]`)

	raw, err := s.llm.Generate(ctx, flashcardSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}

	cards, parseErr := parseCards(raw)
	if parseErr == nil {
		return cards, nil
	}

	// One repair round for malformed JSON.
	raw, err = s.llm.Generate(ctx, flashcardSystemPrompt, model.BuildRepairPrompt(raw))
	if err != nil {
		return nil, err
	}
	cards, parseErr = parseCards(raw)
	if parseErr != nil {
		return nil, fmt.Errorf("parse flashcards: %w", parseErr)
	}
	return cards, nil
}

func parseCards(raw string) ([]generatedCard, error) {
	jsonStr, err := model.ExtractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var cards []generatedCard
	if err := json.Unmarshal([]byte(jsonStr), &cards); err != nil {
		return nil, err
	}

	var out []generatedCard
	for _, c := range cards {
		if strings.TrimSpace(c.Question) == "" || strings.TrimSpace(c.Answer) == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Evaluate grades a learner's response against the card's reference
// answer. All three feedback fields are always present; empty string
// means nothing to say for that field.
func (s *FlashcardService) Evaluate(ctx context.Context, card *types.Flashcard, response string) (*types.FlashcardFeedback, error) {
	prompt := fmt.Sprintf(`Question:
%s

Reference answer:
%s

Learner's response:
%s

Return ONLY the JSON object.`, card.Question, card.Answer, response)

	raw, err := s.llm.Generate(ctx, evaluateSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	feedback, parseErr := parseFeedback(raw)
	if parseErr == nil {
		return feedback, nil
	}

	raw, err = s.llm.Generate(ctx, evaluateSystemPrompt, model.BuildRepairPrompt(raw))
	if err != nil {
		return nil, err
	}
	feedback, parseErr = parseFeedback(raw)
	if parseErr != nil {
		return nil, fmt.Errorf("parse feedback: %w", parseErr)
	}
	return feedback, nil
}

func parseFeedback(raw string) (*types.FlashcardFeedback, error) {
	jsonStr, err := model.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var feedback types.FlashcardFeedback
	if err := json.Unmarshal([]byte(jsonStr), &feedback); err != nil {
		return nil, err
	}
	return &feedback, nil
}

// sampleChunks picks up to limit chunks spread evenly across the
// document in ordinal order.
func sampleChunks(chunks []types.Chunk, limit int) []types.Chunk {
	if len(chunks) <= limit {
		return chunks
	}

	sampled := make([]types.Chunk, 0, limit)
	stride := float64(len(chunks)) / float64(limit)
	for i := 0; i < limit; i++ {
		sampled = append(sampled, chunks[int(float64(i)*stride)])
	}
	return sampled
}

// groundCard returns the ids of chunks containing the card's answer,
// measured by word overlap. Words of three runes or fewer are ignored.
func groundCard(card generatedCard, chunks []types.Chunk) []uuid.UUID {
	words := significantWords(card.Answer)
	if len(words) == 0 {
		return nil
	}

	var sources []uuid.UUID
	for _, c := range chunks {
		chunkWords := make(map[string]bool)
		for _, w := range significantWords(c.Text) {
			chunkWords[w] = true
		}

		hits := 0
		for _, w := range words {
			if chunkWords[w] {
				hits++
			}
		}
		if float64(hits)/float64(len(words)) >= containmentThreshold {
			sources = append(sources, c.ID)
		}
	}
	return sources
}

func significantWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len([]rune(w)) > 3 {
			words = append(words, w)
		}
	}
	return words
}
