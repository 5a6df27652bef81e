// Package parser turns the upstream AI service's response text into a
// classified result: conversational text, a quiz or a set of flashcards.
//
// The upstream payload is nominally {"type": ..., "body": ...} but arrives
// truncated, wrapped in code fences, double encoded or concatenated with
// other objects often enough that recovery runs as an ordered cascade of
// strategies. Nothing in this package returns an error: input that cannot be
// recovered is plain text.
package parser

import (
	"encoding/json"
	"strings"

	"distill-client/internal/apperr"
	"distill-client/internal/model"
	"distill-client/pkg/logger"
)

type Kind int

const (
	KindText Kind = iota
	KindQuiz
	KindFlashcards
)

func (k Kind) String() string {
	switch k {
	case KindQuiz:
		return "quiz"
	case KindFlashcards:
		return "flashcards"
	default:
		return "text"
	}
}

// Result is a classified response.
type Result struct {
	Kind Kind
	// Type is the envelope's discriminator, "" when nothing was recovered.
	Type       string
	Text       string
	Name       string
	Quiz       *model.QuizPayload
	Flashcards *model.FlashcardPayload
	// Body is the structured payload as the upstream service sent it, with
	// a JSON string body decoded once. Empty for text results.
	Body json.RawMessage
	// Strategy names the cascade step that recovered the envelope.
	Strategy string
	// Extracted is true when a {type, body} envelope was recovered.
	Extracted bool
}

func (r Result) Structured() bool {
	return r.Kind == KindQuiz || r.Kind == KindFlashcards
}

// HandoffKind maps a structured result to its slot; "" for text.
func (r Result) HandoffKind() model.HandoffKind {
	switch r.Kind {
	case KindQuiz:
		return model.HandoffQuiz
	case KindFlashcards:
		return model.HandoffFlashcards
	default:
		return ""
	}
}

// MessageType is the discriminator to store on an assistant message.
func (r Result) MessageType() string {
	if r.Type == "" {
		return model.TypeResponse
	}
	return r.Type
}

type Parser struct {
	strategies []Strategy
}

// New returns a parser running strategies in order, or the default cascade
// when none are given.
func New(strategies ...Strategy) *Parser {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Parser{strategies: strategies}
}

var defaultParser = New()

// Parse runs the default cascade over text.
func Parse(text string) Result {
	return defaultParser.Parse(text)
}

// Parse runs the cascade over text and classifies the first envelope
// recovered. When every strategy declines the whole text is plain text.
func (p *Parser) Parse(text string) Result {
	if env, name, ok := p.recover(text); ok {
		res := Classify(env)
		res.Strategy = name
		return res
	}

	logger.Debugf("%v", apperr.Parse("parse response", errUnrecognized))
	return Result{Kind: KindText, Text: text, Strategy: StrategyPlain}
}

func (p *Parser) recover(text string) (Envelope, string, bool) {
	for _, s := range p.strategies {
		if env, ok := s.Attempt(text); ok {
			return env, s.Name(), true
		}
	}
	return Envelope{}, "", false
}

// ParseEnvelope classifies a query response whose outer {type, body} was
// already decoded. A string body is run through the cascade first since the
// upstream service frequently nests the real envelope inside it; when the
// cascade finds nothing the outer envelope is classified as is.
func (p *Parser) ParseEnvelope(typ, name string, body json.RawMessage) Result {
	outer := Envelope{Type: typ, Name: name, Body: body}

	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		if env, strategy, ok := p.recover(text); ok {
			if env.Name == "" {
				env.Name = name
			}
			res := Classify(env)
			res.Strategy = strategy
			return res
		}
	}

	res := Classify(outer)
	res.Strategy = StrategyEnvelope
	return res
}

// ParseEnvelope is Parser.ParseEnvelope with the default cascade.
func ParseEnvelope(typ, name string, body json.RawMessage) Result {
	return defaultParser.ParseEnvelope(typ, name, body)
}

// Classify maps an envelope to a result. A string body holding another
// envelope is unwrapped once. A structured type whose body cannot be read
// as its payload degrades to text.
func Classify(env Envelope) Result {
	env = unwrapOnce(env)
	res := Result{Type: env.Type, Name: env.Name, Extracted: true}

	switch normalizeType(env.Type) {
	case model.TypeQuiz:
		quiz, err := decodeQuiz(env.Body)
		if err == nil {
			quiz.Name = payloadName(env, "AI Generated Quiz")
			res.Kind = KindQuiz
			res.Quiz = quiz
			res.Body = structuredBody(env.Body)
			return res
		}
		logger.Debugf("%v", apperr.Parse("decode quiz", err))
	case model.TypeFlashnotes, model.TypeFlashcards:
		cards, err := decodeFlashcards(env.Body)
		if err == nil {
			cards.Name = payloadName(env, "AI Generated Flashcards")
			res.Kind = KindFlashcards
			res.Flashcards = cards
			res.Body = structuredBody(env.Body)
			return res
		}
		logger.Debugf("%v", apperr.Parse("decode flashcards", err))
	}

	res.Kind = KindText
	res.Text = renderText(env.Body)
	return res
}

func normalizeType(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}

func structuredType(typ string) bool {
	switch normalizeType(typ) {
	case model.TypeQuiz, model.TypeFlashnotes, model.TypeFlashcards:
		return true
	}
	return false
}

// unwrapOnce replaces env with the envelope encoded in its string body, if
// there is one. It does not recurse.
func unwrapOnce(env Envelope) Envelope {
	var text string
	if err := json.Unmarshal(env.Body, &text); err != nil {
		return env
	}
	inner, ok := envelopeFromJSON([]byte(stripFences(text)))
	if !ok {
		return env
	}
	if inner.Name == "" {
		inner.Name = env.Name
	}
	return inner
}

func payloadName(env Envelope, fallback string) string {
	if name := strings.TrimSpace(env.Name); name != "" {
		return name
	}
	return fallback
}
