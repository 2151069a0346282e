package match

import (
	"strings"

	"github.com/antzucaro/matchr"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/loqalabs/loqa-voice/internal/config"
)

// Mode selects how Match treats low scores.
type Mode int

const (
	// ModeBest always returns the top candidate with its raw score.
	ModeBest Mode = iota
	// ModeThreshold returns nothing when the top score is below the cutoff.
	ModeThreshold
)

func (m Mode) String() string {
	if m == ModeThreshold {
		return "threshold"
	}
	return "best"
}

// Tier buckets a best-match score.
type Tier int

const (
	TierReject Tier = iota
	TierUncertain
	TierConfident
)

func (t Tier) String() string {
	switch t {
	case TierConfident:
		return "confident"
	case TierUncertain:
		return "uncertain"
	default:
		return "reject"
	}
}

// Candidate is one catalog entry. Variants are stored normalized.
type Candidate struct {
	Label    string
	Variants []string
}

// NewCandidate normalizes variants and drops empty or duplicate ones. The
// label itself is always the first variant.
func NewCandidate(label string, variants ...string) Candidate {
	c := Candidate{Label: label}
	seen := make(map[string]struct{})
	for _, v := range append([]string{label}, variants...) {
		n := Normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		c.Variants = append(c.Variants, n)
	}
	return c
}

// Result is the score of one query against one candidate. Phonetic is nil
// when the query failed the phonetic admissibility checks.
type Result struct {
	Label    string
	Index    int
	Variant  string
	Lexical  float64
	Phonetic *float64
	Combined float64
}

// Settings holds scoring knobs.
type Settings struct {
	Threshold         float64
	PhoneticWeight    float64
	PhoneticMinLength int
	PhoneticMaxLength int
	PhoneticMaxTokens int
	RejectBelow       float64
	ConfidentAt       float64
}

func SettingsFrom(cfg config.MatcherConfig) Settings {
	return Settings{
		Threshold:         cfg.FuzzyMatchThreshold,
		PhoneticWeight:    cfg.PhoneticWeight,
		PhoneticMinLength: cfg.PhoneticMinLength,
		PhoneticMaxLength: cfg.PhoneticMaxLength,
		PhoneticMaxTokens: cfg.PhoneticMaxTokens,
		RejectBelow:       cfg.RejectBelow,
		ConfidentAt:       cfg.ConfidentAt,
	}
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		Threshold:         70,
		PhoneticWeight:    0.6,
		PhoneticMinLength: 4,
		PhoneticMaxLength: 32,
		PhoneticMaxTokens: 3,
		RejectBelow:       50,
		ConfidentAt:       80,
	}
}

// Encoder maps one word to its phonetic code.
type Encoder func(word string) string

// DoubleMetaphone returns the primary Double Metaphone code.
func DoubleMetaphone(word string) string {
	primary, _ := matchr.DoubleMetaphone(word)
	return primary
}

type Option func(*Matcher)

// WithEncoder replaces the phonetic encoder.
func WithEncoder(enc Encoder) Option {
	return func(m *Matcher) {
		if enc != nil {
			m.encode = enc
		}
	}
}

// Matcher scores free text against candidates. Candidate encodings live in
// an LRU sized to the catalog it serves; query encodings are never stored.
type Matcher struct {
	settings Settings
	encode   Encoder
	cache    *lru.Cache[string, string]
}

// New builds a matcher whose encoding cache holds every variant of
// candidates.
func New(settings Settings, candidates []Candidate, opts ...Option) *Matcher {
	size := 0
	for _, c := range candidates {
		size += len(c.Variants)
	}
	if size < 16 {
		size = 16
	}
	cache, _ := lru.New[string, string](size)
	m := &Matcher{settings: settings, encode: DoubleMetaphone, cache: cache}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) Settings() Settings { return m.settings }

// Admissible reports whether a normalized query may be scored phonetically.
func (m *Matcher) Admissible(query string) bool {
	n := len([]rune(query))
	if n <= m.settings.PhoneticMinLength || n >= m.settings.PhoneticMaxLength {
		return false
	}
	return len(Tokens(query)) < m.settings.PhoneticMaxTokens
}

// Score rates query against every variant of c and keeps the strongest.
func (m *Matcher) Score(query string, c Candidate) Result {
	q := Normalize(query)
	return m.score(q, c, 0, m.queryCode(q))
}

func (m *Matcher) queryCode(query string) *string {
	if query == "" || !m.Admissible(query) {
		return nil
	}
	code := m.encodePhrase(query)
	if code == "" {
		return nil
	}
	return &code
}

func (m *Matcher) score(query string, c Candidate, index int, qcode *string) Result {
	best := Result{Label: c.Label, Index: index}
	for i, v := range c.Variants {
		r := Result{Label: c.Label, Index: index, Variant: v}
		r.Lexical = TokenSetRatio(query, v)
		r.Combined = r.Lexical
		if qcode != nil {
			p := TokenSetRatio(*qcode, m.candidateCode(v))
			r.Phonetic = &p
			w := m.settings.PhoneticWeight
			r.Combined = r.Lexical*(1-w) + p*w
		}
		if i == 0 || better(r, best) {
			best = r
		}
	}
	return best
}

func (m *Matcher) candidateCode(variant string) string {
	if code, ok := m.cache.Get(variant); ok {
		return code
	}
	code := m.encodePhrase(variant)
	m.cache.Add(variant, code)
	return code
}

func (m *Matcher) encodePhrase(s string) string {
	words := Tokens(s)
	codes := make([]string, 0, len(words))
	for _, w := range words {
		if code := m.encode(w); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

// better orders results by combined score, then lexical score. Equal
// results keep insertion order because callers scan in order.
func better(a, b Result) bool {
	if a.Combined != b.Combined {
		return a.Combined > b.Combined
	}
	return a.Lexical > b.Lexical
}

// Best returns the top candidate regardless of score. ok is false only when
// there is nothing to score.
func (m *Matcher) Best(query string, candidates []Candidate) (Result, bool) {
	q := Normalize(query)
	if q == "" || len(candidates) == 0 {
		return Result{}, false
	}
	qcode := m.queryCode(q)
	var top Result
	found := false
	for i, c := range candidates {
		if len(c.Variants) == 0 {
			continue
		}
		r := m.score(q, c, i, qcode)
		if !found || better(r, top) {
			top = r
			found = true
		}
	}
	return top, found
}

// Match applies mode to Best.
func (m *Matcher) Match(query string, candidates []Candidate, mode Mode) (Result, bool) {
	r, ok := m.Best(query, candidates)
	if !ok {
		return Result{}, false
	}
	if mode == ModeThreshold && r.Combined < m.settings.Threshold {
		return r, false
	}
	return r, true
}

// Classify buckets a best-match score.
func (m *Matcher) Classify(score float64) Tier {
	switch {
	case score >= m.settings.ConfidentAt:
		return TierConfident
	case score >= m.settings.RejectBelow:
		return TierUncertain
	default:
		return TierReject
	}
}
