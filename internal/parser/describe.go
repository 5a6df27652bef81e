package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"distill-client/internal/model"
)

// Describe returns display text for a stored message whose content may be
// a raw envelope. Structured envelopes become a short summary; anything
// that is not an envelope is returned unchanged.
func Describe(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"type"`) {
		return content
	}

	var fields object
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil {
		return content
	}
	var typ string
	_ = json.Unmarshal(fields["type"], &typ)
	body := fields["body"]

	switch normalizeType(typ) {
	case model.TypeQuiz:
		return fmt.Sprintf("Quiz: %d questions", quizCount(body))
	case model.TypeFlashnotes, model.TypeFlashcards:
		return fmt.Sprintf("Flashnotes: %d notes", cardCount(body))
	}

	if !present(body) {
		return content
	}
	res := Classify(Envelope{Type: typ, Body: body})
	switch res.Kind {
	case KindQuiz:
		return fmt.Sprintf("Quiz: %d questions", len(res.Quiz.Questions))
	case KindFlashcards:
		return fmt.Sprintf("Flashnotes: %d notes", len(res.Flashcards.Cards))
	}
	return res.Text
}

func quizCount(body json.RawMessage) int {
	if quiz, err := decodeQuiz(body); err == nil {
		return len(quiz.Questions)
	}
	return 0
}

func cardCount(body json.RawMessage) int {
	if cards, err := decodeFlashcards(body); err == nil {
		return len(cards.Cards)
	}
	return 0
}
