package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"distill-client/internal/model"
)

var (
	errUnrecognized = errors.New("no {type, body} envelope recovered")
	errNoQuestions  = errors.New("quiz body has no questions")
	errNoCards      = errors.New("flashcard body has no cards")
)

const noExplanation = "No explanation provided."

type object = map[string]json.RawMessage

// structuredBody decodes a string body that itself holds JSON, once.
func structuredBody(raw json.RawMessage) json.RawMessage {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		inner := stripFences(text)
		if json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
	}
	return raw
}

func decodeQuiz(raw json.RawMessage) (*model.QuizPayload, error) {
	body := structuredBody(raw)

	var items []object
	if err := json.Unmarshal(body, &items); err != nil {
		var wrapper struct {
			Questions []object `json:"questions"`
		}
		if werr := json.Unmarshal(body, &wrapper); werr != nil {
			return nil, fmt.Errorf("quiz body: %w", err)
		}
		items = wrapper.Questions
	}
	if len(items) == 0 {
		return nil, errNoQuestions
	}

	quiz := &model.QuizPayload{Questions: make([]model.QuizQuestion, 0, len(items))}
	for i, item := range items {
		quiz.Questions = append(quiz.Questions, transformQuestion(i, item))
	}
	return quiz, nil
}

func transformQuestion(i int, q object) model.QuizQuestion {
	question := firstString(q, "question", "text", "prompt")
	if question == "" {
		question = fmt.Sprintf("Question %d", i+1)
	}
	options := firstStrings(q, "options", "choices")
	explanation := firstString(q, "explanation", "reason")
	if explanation == "" {
		explanation = noExplanation
	}

	return model.QuizQuestion{
		ID:            i + 1,
		Question:      question,
		Options:       options,
		CorrectAnswer: answerIndex(firstPresent(q, "correctAnswer", "correct_answer", "answer", "correct"), options),
		Explanation:   explanation,
	}
}

// answerIndex resolves an answer to an option index. Numbers are taken as
// indexes; strings are matched against options by case-insensitive
// containment in either direction. Anything out of range is 0.
func answerIndex(raw json.RawMessage, options []string) int {
	idx := 0

	var n float64
	var s string
	switch {
	case raw == nil:
	case json.Unmarshal(raw, &n) == nil:
		idx = int(n)
	case json.Unmarshal(raw, &s) == nil && len(options) > 0:
		want := strings.ToLower(strings.TrimSpace(s))
		idx = -1
		for i, opt := range options {
			have := strings.ToLower(opt)
			if strings.Contains(have, want) || strings.Contains(want, have) {
				idx = i
				break
			}
		}
	}

	if idx < 0 || idx >= len(options) {
		return 0
	}
	return idx
}

func decodeFlashcards(raw json.RawMessage) (*model.FlashcardPayload, error) {
	body := structuredBody(raw)

	var cards []model.Flashcard
	var fields object
	var items []json.RawMessage

	switch {
	case json.Unmarshal(body, &fields) == nil:
		switch {
		case present(fields["flashcards"]):
			cards = cardsFrom(fields["flashcards"])
		case present(fields["cards"]):
			cards = cardsFrom(fields["cards"])
		case present(fields["notes"]):
			cards = notesFrom(fields["notes"])
		}
	case json.Unmarshal(body, &items) == nil:
		cards = mixedFrom(items)
	default:
		return nil, fmt.Errorf("flashcard body: %w", errNoCards)
	}

	if len(cards) == 0 {
		return nil, errNoCards
	}
	for i := range cards {
		cards[i].ID = "ai-" + strconv.Itoa(i+1)
	}
	return &model.FlashcardPayload{Cards: cards}, nil
}

func cardsFrom(raw json.RawMessage) []model.Flashcard {
	var items []object
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	cards := make([]model.Flashcard, 0, len(items))
	for _, item := range items {
		if card, ok := cardFrom(item); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

func cardFrom(item object) (model.Flashcard, bool) {
	front := firstString(item, "front", "term", "question")
	back := firstString(item, "back", "definition", "answer")
	if front == "" && back == "" {
		return model.Flashcard{}, false
	}
	return model.Flashcard{
		Front: front,
		Back:  back,
		Topic: "AI Generated",
		Tags:  []string{"AI Generated", "Study Cards"},
	}, true
}

func notesFrom(raw json.RawMessage) []model.Flashcard {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	cards := make([]model.Flashcard, 0, len(items))
	for _, item := range items {
		if text := noteText(item); text != "" {
			cards = append(cards, noteCard(len(cards), text))
		}
	}
	return cards
}

// mixedFrom reads a bare array whose items are cards or notes.
func mixedFrom(items []json.RawMessage) []model.Flashcard {
	cards := make([]model.Flashcard, 0, len(items))
	for _, item := range items {
		var fields object
		if err := json.Unmarshal(item, &fields); err == nil {
			if card, ok := cardFrom(fields); ok {
				cards = append(cards, card)
				continue
			}
		}
		if text := noteText(item); text != "" {
			cards = append(cards, noteCard(len(cards), text))
		}
	}
	return cards
}

func noteText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var fields object
	if err := json.Unmarshal(raw, &fields); err == nil {
		return firstString(fields, "note", "content", "text")
	}
	return ""
}

func noteCard(i int, text string) model.Flashcard {
	return model.Flashcard{
		Front: fmt.Sprintf("Study Note %d", i+1),
		Back:  text,
		Topic: "AI Generated",
		Tags:  []string{"AI Generated", "Study Notes"},
	}
}

// renderText turns a conversational body into display text.
func renderText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return fmt.Sprintf("Generated %d items", len(items))
		}
	case '{':
		var fields object
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			if present(fields["question"]) && present(fields["options"]) {
				answer := scalarText(fields["answer"])
				if answer == "" {
					answer = "N/A"
				}
				return fmt.Sprintf("Question: %s\nOptions: %s\nAnswer: %s",
					scalarText(fields["question"]),
					strings.Join(firstStrings(fields, "options"), ", "),
					answer)
			}
			return fmt.Sprintf("[Generated content: %s]", strings.Join(orderedKeys(trimmed), ", "))
		}
	}
	return string(trimmed)
}

// orderedKeys lists an object's keys in document order.
func orderedKeys(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		key, ok := tok.(string)
		if !ok {
			break
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			break
		}
	}
	return keys
}

func firstPresent(fields object, keys ...string) json.RawMessage {
	for _, key := range keys {
		if raw, ok := fields[key]; ok && present(raw) {
			return raw
		}
	}
	return nil
}

func firstString(fields object, keys ...string) string {
	for _, key := range keys {
		if text := scalarText(fields[key]); text != "" {
			return text
		}
	}
	return ""
}

func firstStrings(fields object, keys ...string) []string {
	for _, key := range keys {
		var items []json.RawMessage
		if err := json.Unmarshal(fields[key], &items); err != nil || len(items) == 0 {
			continue
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, scalarText(item))
		}
		return out
	}
	return []string{}
}

// scalarText renders a JSON string as its value and any other JSON value as
// its literal text.
func scalarText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}
