package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nadzzz/companion/internal/catalog"
)

// Matcher binds one grammar to one intent shape.
type Matcher interface {
	Name() string

	// TryMatch returns the bound intent and true, or false when the grammar
	// does not match or captures no entity name.
	TryMatch(text string) (Intent, bool)
}

// DefaultMatchers returns the matchers in priority order:
// add, completed, rate, remove.
func DefaultMatchers() []Matcher {
	return []Matcher{
		NewAddMatcher(),
		NewCompletedMatcher(),
		NewRateMatcher(),
		NewRemoveMatcher(),
	}
}

// grammar is one regexp plus the capture groups holding the entity name
// (first non-empty wins) and, for ratings, the score.
type grammar struct {
	re         *regexp.Regexp
	nameGroups []int
	scoreGroup int
}

func (g grammar) name(m []string) string {
	for _, i := range g.nameGroups {
		if i < len(m) {
			if n := cleanName(m[i]); n != "" && !fillerNames[strings.ToLower(n)] {
				return n
			}
		}
	}
	return ""
}

// fillerNames are captures that refer to nothing the catalog can resolve.
var fillerNames = map[string]bool{
	"i": true, "i'm": true, "im": true, "me": true, "we": true, "we're": true,
	"it": true, "this": true, "that": true,
	"them": true, "one": true, "this one": true, "that one": true,
	"something": true, "anything": true,
}

// listTail matches "[my] [up to three words] list", e.g. "my plan to watch list".
const listTail = `(?:my\s+)?(?:[\w-]+\s+){0,3}?list\b`

// --- add ---

type addMatcher struct{ grammars []grammar }

// NewAddMatcher matches "add X to my list", "put X on my list" and
// "I want to watch X".
func NewAddMatcher() Matcher {
	return &addMatcher{grammars: []grammar{
		{re: regexp.MustCompile(`(?i)\badd\s+(.+?)\s+to\s+` + listTail), nameGroups: []int{1}},
		{re: regexp.MustCompile(`(?i)\bput\s+(.+?)\s+(?:on|in)\s+` + listTail), nameGroups: []int{1}},
		{re: regexp.MustCompile(`(?i)\bI\s+want\s+to\s+watch\s+(.+)`), nameGroups: []int{1}},
	}}
}

func (m *addMatcher) Name() string { return "add" }

func (m *addMatcher) TryMatch(text string) (Intent, bool) {
	for _, g := range m.grammars {
		sub := g.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		if name := g.name(sub); name != "" {
			return Intent{Kind: AddToList, EntityName: name, Source: m.Name()}, true
		}
	}
	return Intent{}, false
}

// --- completed ---

type completedMatcher struct {
	verbs    *regexp.Regexp
	trailing grammar
}

// NewCompletedMatcher matches "finished X" and "X finished". Only the
// finished/completed/done verbs bind; "watching X" and "dropped X" are left
// for later matchers or the conversation path, and only delimit the name
// when a sentence mixes them ("I'm watching Naruto, finished Bleach").
func NewCompletedMatcher() Matcher {
	return &completedMatcher{
		verbs:    regexp.MustCompile(`(?i)\b(finished|completed|watching|dropped)\s+`),
		trailing: grammar{re: regexp.MustCompile(`(?i)^(.+?)\s+(?:is\s+)?(finished|completed|done)\b`), nameGroups: []int{1}},
	}
}

func (m *completedMatcher) Name() string { return "completed" }

func (m *completedMatcher) TryMatch(text string) (Intent, bool) {
	if name := m.afterVerb(text); name != "" {
		return m.bind(name), true
	}
	if sub := m.trailing.re.FindStringSubmatch(text); sub != nil {
		if name := completedName(m.trailing.name(sub)); name != "" {
			return m.bind(name), true
		}
	}
	return Intent{}, false
}

func (m *completedMatcher) bind(name string) Intent {
	return Intent{Kind: SetStatus, EntityName: name, Status: catalog.StatusCompleted, Source: m.Name()}
}

// afterVerb tries every finished/completed occurrence in turn. A verb run
// such as "finished watching" counts as one verb, and the name ends where
// the next verb starts.
func (m *completedMatcher) afterVerb(text string) string {
	locs := m.verbs.FindAllStringSubmatchIndex(text, -1)
	for i := 0; i < len(locs); {
		verb := strings.ToLower(text[locs[i][2]:locs[i][3]])
		nameStart := locs[i][1]
		j := i + 1
		for j < len(locs) && locs[j][0] == nameStart {
			nameStart = locs[j][1]
			j++
		}
		nameEnd := len(text)
		if j < len(locs) {
			nameEnd = locs[j][0]
		}
		i = j

		if verb != "finished" && verb != "completed" {
			continue
		}
		if name := completedName(text[nameStart:nameEnd]); name != "" {
			return name
		}
	}
	return ""
}

func completedName(s string) string {
	name := stripLeading(trimTrailingWords(s),
		"i'm watching ", "i am watching ", "i was watching ", "im watching ", "watching ",
		"i've ", "i have ", "i ", "just ")
	if name == "" || fillerNames[strings.ToLower(name)] {
		return ""
	}
	return name
}

// clauseWords are words that end a name when they close it, as in
// "finished Bleach and I'm watching Naruto".
var clauseWords = map[string]bool{
	"and": true, "but": true, "then": true, "so": true, "now": true, "also": true, "while": true,
	"i": true, "i'm": true, "im": true, "i've": true, "am": true, "was": true, "we": true, "we're": true,
	"just": true, "finally": true, "today": true, "yesterday": true,
}

func trimTrailingWords(s string) string {
	for {
		s = cleanName(s)
		i := strings.LastIndexAny(s, " \t")
		if i < 0 || !clauseWords[strings.ToLower(s[i+1:])] {
			return s
		}
		s = s[:i]
	}
}

// --- rate ---

type rateMatcher struct{ grammars []grammar }

// NewRateMatcher matches numeric ratings introduced by rate/give/gets or
// followed by stars/points. The score must close the sentence so titles
// containing numbers ("Mob Psycho 100") stay part of the name. The grammar
// accepts any number, decimals included; TryMatch range-checks it.
func NewRateMatcher() Matcher {
	const (
		score = `(-?\d+(?:\.\d+)?)`
		tail  = `(?:\s*(?:/\s*10|out\s+of\s+10|stars?|points?))?[\s.!?]*$`
	)
	return &rateMatcher{grammars: []grammar{
		{re: regexp.MustCompile(`(?i)\brate\s+(.+?)\s+(?:an?\s+|as\s+(?:an?\s+)?)?` + score + tail), nameGroups: []int{1}, scoreGroup: 2},
		{re: regexp.MustCompile(`(?i)\bgive\s+(.+?)\s+(?:an?\s+)?` + score + tail), nameGroups: []int{1}, scoreGroup: 2},
		{re: regexp.MustCompile(`(?i)^(.+?)\s+gets\s+(?:an?\s+)?` + score + tail), nameGroups: []int{1}, scoreGroup: 2},
		{re: regexp.MustCompile(`(?i)(?:^|\s)` + score + `\s*(?:stars?|points?|/\s*10)\s+(?:for|to)\s+(.+)`), nameGroups: []int{2}, scoreGroup: 1},
	}}
}

func (m *rateMatcher) Name() string { return "rate" }

func (m *rateMatcher) TryMatch(text string) (Intent, bool) {
	for _, g := range m.grammars {
		sub := g.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		name := g.name(sub)
		if name == "" {
			continue
		}
		score, whole := parseScore(sub[g.scoreGroup])
		if !whole || score < MinScore || score > MaxScore {
			return Intent{Kind: RatingOutOfRange, EntityName: name, Score: score, Source: m.Name()}, true
		}
		return Intent{Kind: Rate, EntityName: name, Score: score, Source: m.Name()}, true
	}
	return Intent{}, false
}

// parseScore reports the score and whether it is a whole number. "8.0" is
// whole; "7.5" is not and yields 0.
func parseScore(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1e6 {
		return 0, false
	}
	return int(f), true
}

// --- remove ---

type removeMatcher struct{ grammars []grammar }

// NewRemoveMatcher matches "remove/delete/drop X from my list" and
// "take X off my list".
func NewRemoveMatcher() Matcher {
	return &removeMatcher{grammars: []grammar{
		{re: regexp.MustCompile(`(?i)\b(?:remove|delete|drop)\s+(.+?)\s+from\s+` + listTail), nameGroups: []int{1}},
		{re: regexp.MustCompile(`(?i)\btake\s+(.+?)\s+off\s+(?:of\s+)?` + listTail), nameGroups: []int{1}},
	}}
}

func (m *removeMatcher) Name() string { return "remove" }

func (m *removeMatcher) TryMatch(text string) (Intent, bool) {
	for _, g := range m.grammars {
		sub := g.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		if name := g.name(sub); name != "" {
			return Intent{Kind: Remove, EntityName: name, Source: m.Name()}, true
		}
	}
	return Intent{}, false
}

// cleanName trims whitespace, wrapping quotes and trailing punctuation.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	for {
		before := s
		s = strings.TrimRight(s, ".!?,;: ")
		s = strings.Trim(s, "\"'`“”‘’*")
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	return s
}

// stripLeading removes one leading filler phrase (case-insensitive).
func stripLeading(s string, prefixes ...string) string {
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return cleanName(s[len(p):])
		}
	}
	return s
}
