package intent

import (
	"strings"

	"github.com/nadzzz/companion/internal/catalog"
)

// Answer tokens the model is asked to reply with.
const (
	tokenAnime  = "ANIME_FOUND:"
	tokenUpdate = "UPDATE_FOUND:"
)

// ParseResult is either Parsed or Unparsed.
type ParseResult interface {
	isParseResult()
}

// Parsed carries an intent recovered from model output.
type Parsed struct {
	Intent Intent
}

// Unparsed carries model output that matched no answer token, or matched
// one with unusable arguments. Raw is the trimmed model text.
type Unparsed struct {
	Raw string
}

func (Parsed) isParseResult()   {}
func (Unparsed) isParseResult() {}

// ParseModelOutput parses a reply of the form
//
//	ANIME_FOUND: <name>
//	UPDATE_FOUND: <name> | <status>
//
// The token may be wrapped in quotes, backticks or bold markers and may be
// lower case. Anything else, including an UPDATE_FOUND without a valid
// status, is Unparsed.
func ParseModelOutput(raw string) ParseResult {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Unparsed{Raw: text}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "`\"*")
		line = strings.TrimSpace(line)

		switch {
		case hasPrefixFold(line, tokenAnime):
			name := cleanName(line[len(tokenAnime):])
			if name == "" {
				return Unparsed{Raw: text}
			}
			return Parsed{Intent: Intent{Kind: AddToList, EntityName: name, Source: "model"}}

		case hasPrefixFold(line, tokenUpdate):
			name, status, ok := strings.Cut(line[len(tokenUpdate):], "|")
			if !ok {
				return Unparsed{Raw: text}
			}
			name = cleanName(name)
			st, valid := catalog.ParseStatus(cleanName(status))
			if name == "" || !valid {
				return Unparsed{Raw: text}
			}
			return Parsed{Intent: Intent{Kind: SetStatus, EntityName: name, Status: st, Source: "model"}}
		}
	}
	return Unparsed{Raw: text}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
