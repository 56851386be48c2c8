package rag

import (
	"context"
	"fmt"
	"strings"

	"studyrag/model"
	"studyrag/types"
)

// InsufficientContextAnswer is returned verbatim when retrieval yields
// nothing to ground an answer on.
const InsufficientContextAnswer = "I don't have enough information in this document to answer that."

const maxHistoryTurns = 6

const answerSystemPrompt = `You are a study assistant answering questions about a single document.
Answer ONLY from the provided context. If the context does not contain
the answer, say exactly: "` + InsufficientContextAnswer + `"
Answer clearly and to the point, without adding any additional information.
Don't add introductions like 'Of course!' or 'Here's the answer:'`

// Generator produces grounded answers. Citations name exactly the
// chunks that were put in front of the LLM.
type Generator struct {
	llm model.Generator
}

func NewGenerator(llm model.Generator) *Generator {
	return &Generator{llm: llm}
}

func (g *Generator) Answer(ctx context.Context, question string, history []types.ConversationTurn, result *types.RetrievalResult) (string, []types.Citation, error) {
	if result == nil || len(result.Matches) == 0 {
		return InsufficientContextAnswer, []types.Citation{}, nil
	}

	prompt := buildAnswerPrompt(question, history, result.Matches)

	answer, err := g.llm.Generate(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", nil, err
	}
	answer = strings.TrimSpace(answer)

	citations := make([]types.Citation, 0, len(result.Matches))
	for _, m := range result.Matches {
		citations = append(citations, types.Citation{
			ChunkID:     m.ChunkID,
			Page:        m.Page,
			StartOffset: m.StartOffset,
			EndOffset:   m.EndOffset,
		})
	}

	return answer, citations, nil
}

func buildAnswerPrompt(question string, history []types.ConversationTurn, matches []types.Match) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "[page %d] %s\n\n", m.Page, strings.TrimSpace(m.Text))
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			label := "User"
			if turn.Role == types.RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question:\n%s\nAnswer:", question)
	return b.String()
}
