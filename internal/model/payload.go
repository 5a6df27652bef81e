package model

import "time"

type HandoffKind string

const (
	HandoffQuiz       HandoffKind = "quiz"
	HandoffFlashcards HandoffKind = "flashcards"
)

func (k HandoffKind) Valid() bool {
	return k == HandoffQuiz || k == HandoffFlashcards
}

type QuizQuestion struct {
	ID            int      `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

type QuizPayload struct {
	Name      string         `json:"name"`
	Questions []QuizQuestion `json:"questions"`
}

type Flashcard struct {
	ID    string   `json:"id"`
	Front string   `json:"front"`
	Back  string   `json:"back"`
	Topic string   `json:"topic,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

type FlashcardPayload struct {
	Name  string      `json:"name"`
	Cards []Flashcard `json:"cards"`
}

// Handoff is a structured result waiting to be consumed by its view.
type Handoff struct {
	Kind       HandoffKind       `json:"kind"`
	SessionID  string            `json:"session_id"`
	Quiz       *QuizPayload      `json:"quiz,omitempty"`
	Flashcards *FlashcardPayload `json:"flashcards,omitempty"`
	ProducedAt time.Time         `json:"produced_at"`
}
