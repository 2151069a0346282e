package intent

import (
	"sort"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-voice/internal/match"
)

// Intent is a classified utterance.
type Intent struct {
	Type       string
	Confidence float64
	Trigger    string
	RawText    string
	Parameters map[string]string
}

// Query returns the free-text search query of a play_music intent.
func (i Intent) Query() string { return i.Parameters["query"] }

// Level returns the requested volume of a set_volume intent.
func (i Intent) Level() (int, bool) {
	v, ok := i.Parameters["level"]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

var fillers = map[string]struct{}{
	"please": {}, "could": {}, "can": {}, "would": {}, "will": {}, "you": {},
	"me": {}, "for": {}, "some": {}, "song": {}, "track": {}, "music": {},
	"hey": {}, "loqa": {},
}

// articles are ignored when comparing a play request's remainder to a
// track navigation trigger.
var articles = map[string]struct{}{"the": {}, "a": {}, "an": {}}

// Classifier maps transcripts onto trigger phrases in threshold mode.
type Classifier struct {
	matcher    *match.Matcher
	candidates []match.Candidate

	// playPrefixes holds play_music triggers, longest first.
	playPrefixes []string
	// navigation maps the content words of next/previous triggers to their type.
	navigation map[string]string
}

func NewClassifier(defs []Definition, settings match.Settings) *Classifier {
	var cands []match.Candidate
	c := &Classifier{navigation: make(map[string]string)}
	for _, d := range defs {
		for _, trig := range d.Triggers {
			n := match.Normalize(trig)
			if n == "" {
				continue
			}
			cands = append(cands, match.Candidate{Label: d.Type, Variants: []string{n}})
			switch d.Type {
			case TypePlayMusic:
				c.playPrefixes = append(c.playPrefixes, n)
			case TypeNextTrack, TypePreviousTrack:
				if key := contentWords(n); key != "" {
					c.navigation[key] = d.Type
				}
			}
		}
	}
	sort.SliceStable(c.playPrefixes, func(i, j int) bool {
		return len(match.Tokens(c.playPrefixes[i])) > len(match.Tokens(c.playPrefixes[j]))
	})
	c.matcher = match.New(settings, cands)
	c.candidates = cands
	return c
}

// Classify returns the best intent. Text that matches no trigger above the
// threshold yields TypeUnknown.
func (c *Classifier) Classify(text string) Intent {
	q := match.Normalize(text)
	out := Intent{Type: TypeUnknown, RawText: text, Parameters: map[string]string{}}
	if q == "" {
		return out
	}
	if in, ok := c.playRequest(q, out); ok {
		return in
	}
	top, ok := c.matcher.Match(q, c.candidates, match.ModeThreshold)
	out.Confidence = top.Combined / 100
	if !ok {
		return out
	}
	top = c.mostSpecific(q, top)

	out.Type = top.Label
	out.Trigger = top.Variant
	switch out.Type {
	case TypePlayMusic:
		out.Parameters["query"] = extractQuery(q, top.Variant)
	case TypeSetVolume:
		if n, ok := ParseLevel(q); ok {
			out.Parameters["level"] = strconv.Itoa(n)
		}
	}
	return out
}

// playRequest handles utterances that open with a play trigger. Whatever
// follows is a song query, even when it reads like another command, except
// for bare track navigation such as "play the next song".
func (c *Classifier) playRequest(q string, out Intent) (Intent, bool) {
	for _, trig := range c.playPrefixes {
		if !strings.HasPrefix(q, trig+" ") {
			continue
		}
		rest := strings.TrimPrefix(q, trig+" ")
		if typ, ok := c.navigation[contentWords(rest)]; ok {
			out.Type = typ
			out.Trigger = trig
			out.Confidence = 1
			return out, true
		}
		query := trimFillers(rest)
		if query == "" {
			return out, false
		}
		out.Type = TypePlayMusic
		out.Trigger = trig
		out.Confidence = 1
		out.Parameters["query"] = query
		return out, true
	}
	return out, false
}

func isFiller(w string) bool {
	if _, ok := articles[w]; ok {
		return true
	}
	_, ok := fillers[w]
	return ok
}

// contentWords drops fillers and articles.
func contentWords(q string) string {
	var kept []string
	for _, w := range match.Tokens(q) {
		if !isFiller(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// trimFillers drops leading fillers and articles and trailing politeness,
// so titles such as "stop the music" survive intact.
func trimFillers(q string) string {
	words := match.Tokens(q)
	for len(words) > 0 && isFiller(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && words[len(words)-1] == "please" {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// mostSpecific breaks score ties in favour of the trigger covering more of
// the utterance, then the one the utterance starts with.
func (c *Classifier) mostSpecific(q string, top match.Result) match.Result {
	best := top
	bestWords, bestPrefix := coverage(q, top.Variant), startsWith(q, top.Variant)
	for i, cand := range c.candidates {
		r := c.matcher.Score(q, cand)
		r.Index = i
		if r.Combined != top.Combined || r.Lexical != top.Lexical {
			continue
		}
		words, prefix := coverage(q, r.Variant), startsWith(q, r.Variant)
		if words > bestWords || (words == bestWords && prefix && !bestPrefix) {
			best, bestWords, bestPrefix = r, words, prefix
		}
	}
	return best
}

func startsWith(q, phrase string) bool {
	return q == phrase || strings.HasPrefix(q, phrase+" ")
}

// coverage counts trigger words present in the query.
func coverage(q, trigger string) int {
	qs := make(map[string]struct{})
	for _, w := range match.Tokens(q) {
		qs[w] = struct{}{}
	}
	n := 0
	for _, w := range match.Tokens(trigger) {
		if _, ok := qs[w]; ok {
			n++
		}
	}
	return n
}

// extractQuery drops the trigger words and fillers from q.
func extractQuery(q, trigger string) string {
	drop := make(map[string]int)
	for _, w := range match.Tokens(trigger) {
		drop[w]++
	}
	var kept []string
	for _, w := range match.Tokens(q) {
		if drop[w] > 0 {
			drop[w]--
			continue
		}
		if _, ok := fillers[w]; ok {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

var units = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
	"nineteen": 19,
}

var tens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// ParseLevel finds the first number in normalized text, written as digits
// or English words, clamped to 0..100.
func ParseLevel(q string) (int, bool) {
	words := match.Tokens(q)
	for i := 0; i < len(words); i++ {
		w := words[i]
		if n, err := strconv.Atoi(w); err == nil {
			return clamp(n), true
		}
		switch {
		case w == "hundred" || w == "max" || w == "maximum" || w == "full":
			return 100, true
		case w == "mute" || w == "off":
			return 0, true
		}
		if n, ok := tens[w]; ok {
			if i+1 < len(words) {
				if u, ok := units[words[i+1]]; ok && u > 0 && u < 10 {
					n += u
				}
			}
			return clamp(n), true
		}
		if n, ok := units[w]; ok {
			if i+1 < len(words) && words[i+1] == "hundred" {
				n *= 100
			}
			return clamp(n), true
		}
	}
	return 0, false
}

func clamp(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}
