package parser

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Envelope is a recovered {type, body} pair. Body is kept raw: it may be a
// string, an object or an array.
type Envelope struct {
	Type string
	Name string
	Body json.RawMessage
}

// Strategy is one step of the recovery cascade. Attempt must be pure.
type Strategy interface {
	Name() string
	Attempt(text string) (Envelope, bool)
}

// Strategy names, reported in Result.Strategy.
const (
	StrategyDirect      = "direct"
	StrategyBodyField   = "body_field"
	StrategyTypeAnchor  = "type_anchor"
	StrategyMultiObject = "multi_object"
	StrategyEnvelope    = "envelope"
	StrategyPlain       = "plain"
)

// DefaultStrategies is the cascade in evaluation order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		DirectStrategy{},
		BodyFieldStrategy{},
		TypeAnchorStrategy{},
		MultiObjectStrategy{},
	}
}

var (
	multiplexPattern = regexp.MustCompile(`\}\s*\{`)
	bodyFieldPattern = regexp.MustCompile(`"body"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	typeFieldPattern = regexp.MustCompile(`"type"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fencePattern     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\s*```$")
)

// looksMultiplexed reports whether text seems to hold several JSON objects
// back to back.
func looksMultiplexed(text string) bool {
	return multiplexPattern.MatchString(text)
}

// stripFences removes a surrounding markdown code fence.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// envelopeFromJSON accepts a JSON object that has a non-empty string "type"
// and a non-empty "body".
func envelopeFromJSON(data []byte) (Envelope, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, false
	}
	return envelopeFromFields(fields)
}

func envelopeFromFields(fields map[string]json.RawMessage) (Envelope, bool) {
	var typ string
	if err := json.Unmarshal(fields["type"], &typ); err != nil || strings.TrimSpace(typ) == "" {
		return Envelope{}, false
	}
	body, ok := fields["body"]
	if !ok || !present(body) {
		return Envelope{}, false
	}
	env := Envelope{Type: typ, Body: body}
	if raw, ok := fields["name"]; ok {
		_ = json.Unmarshal(raw, &env.Name)
	}
	return env, true
}

// present mirrors a truthiness check on a body value: null, false, 0 and ""
// do not count.
func present(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

// DirectStrategy parses the whole text, after removing a code fence.
type DirectStrategy struct{}

func (DirectStrategy) Name() string { return StrategyDirect }

func (DirectStrategy) Attempt(text string) (Envelope, bool) {
	return envelopeFromJSON([]byte(stripFences(text)))
}

// BodyFieldStrategy pulls a well-quoted "body" string out of otherwise
// broken JSON. It declines on multiplexed text so a later step can pick the
// structured object.
type BodyFieldStrategy struct{}

func (BodyFieldStrategy) Name() string { return StrategyBodyField }

func (BodyFieldStrategy) Attempt(text string) (Envelope, bool) {
	if looksMultiplexed(text) {
		return Envelope{}, false
	}
	m := bodyFieldPattern.FindStringSubmatch(text)
	if m == nil {
		return Envelope{}, false
	}
	body := unescape(m[1])
	if body == "" {
		return Envelope{}, false
	}

	typ := "response"
	if tm := typeFieldPattern.FindStringSubmatch(text); tm != nil && tm[1] != "" {
		typ = unescape(tm[1])
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, false
	}
	return Envelope{Type: typ, Body: raw}, true
}

// unescape decodes a JSON string literal's contents. Sequences the JSON
// decoder rejects fall back to replacing the common escapes by hand.
func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	return strings.NewReplacer(
		`\\`, `\`,
		`\"`, `"`,
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	).Replace(s)
}

// TypeAnchorStrategy finds a "type": key, backs up to the nearest '{' and
// scans forward to the matching '}'. The scan skips braces inside string
// literals.
type TypeAnchorStrategy struct{}

func (TypeAnchorStrategy) Name() string { return StrategyTypeAnchor }

func (TypeAnchorStrategy) Attempt(text string) (Envelope, bool) {
	if looksMultiplexed(text) {
		return Envelope{}, false
	}

	offset := 0
	for {
		idx := strings.Index(text[offset:], `"type":`)
		if idx < 0 {
			return Envelope{}, false
		}
		typeIndex := offset + idx
		offset = typeIndex + len(`"type":`)

		start := strings.LastIndex(text[:typeIndex], "{")
		if start < 0 {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}
		if env, ok := envelopeFromJSON([]byte(text[start : end+1])); ok {
			return env, true
		}
	}
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// MultiObjectStrategy splits back-to-back objects on the "}{" boundary,
// restores the braces the split consumed and accepts the first fragment
// with a structured type.
type MultiObjectStrategy struct{}

func (MultiObjectStrategy) Name() string { return StrategyMultiObject }

func (MultiObjectStrategy) Attempt(text string) (Envelope, bool) {
	parts := multiplexPattern.Split(text, -1)
	if len(parts) < 2 {
		return Envelope{}, false
	}

	last := len(parts) - 1
	for i, part := range parts {
		fragment := part
		switch i {
		case 0:
			fragment = part + "}"
		case last:
			fragment = "{" + part
		default:
			fragment = "{" + part + "}"
		}

		env, ok := envelopeFromJSON([]byte(strings.TrimSpace(fragment)))
		if ok && structuredType(env.Type) {
			return env, true
		}
	}
	return Envelope{}, false
}
