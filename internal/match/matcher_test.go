package match

import (
	"reflect"
	"testing"
)

func songs() []Candidate {
	return []Candidate{
		NewCandidate("Frozen"),
		NewCandidate("Let It Go", "frozen let it go"),
		NewCandidate("Bohemian Rhapsody", "queen bohemian rhapsody"),
		NewCandidate("Yellow Submarine"),
	}
}

func TestScenarioTypoToleratedPhonetically(t *testing.T) {
	m := New(DefaultSettings(), songs())
	r := m.Score("frozzen", NewCandidate("Frozen"))
	if r.Phonetic == nil {
		t.Fatal("expected phonetic score for admissible query")
	}
	if r.Combined < 80 {
		t.Fatalf("expected combined >= 80, got %+v (phonetic %v)", r, *r.Phonetic)
	}
}

func TestScenarioShortQuerySkipsPhonetic(t *testing.T) {
	calls := 0
	m := New(DefaultSettings(), songs(), WithEncoder(func(w string) string {
		calls++
		return DoubleMetaphone(w)
	}))
	r, ok := m.Best("go", songs())
	if !ok {
		t.Fatal("expected a best match")
	}
	if calls != 0 {
		t.Fatalf("phonetic encoder invoked %d times", calls)
	}
	if r.Phonetic != nil || r.Combined != r.Lexical {
		t.Fatalf("expected lexical-only score, got %+v", r)
	}
}

func TestAdmissible(t *testing.T) {
	m := New(DefaultSettings(), nil)
	cases := []struct {
		query string
		want  bool
	}{
		{"go", false},
		{"abba", false},
		{"queen", true},
		{"yellow submarine", true},
		{"play yellow submarine", false},
		{"supercalifragilisticexpialidocious", false},
	}
	for _, tc := range cases {
		if got := m.Admissible(tc.query); got != tc.want {
			t.Fatalf("Admissible(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestBestIsIdempotent(t *testing.T) {
	m := New(DefaultSettings(), songs())
	first, ok1 := m.Best("bohemian rapsody", songs())
	second, ok2 := m.Best("bohemian rapsody", songs())
	if !ok1 || !ok2 {
		t.Fatal("expected matches")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ: %+v vs %+v", first, second)
	}
	if first.Label != "Bohemian Rhapsody" {
		t.Fatalf("unexpected winner %q", first.Label)
	}
}

func TestBestPrefersCombinedThenLexicalThenOrder(t *testing.T) {
	m := New(DefaultSettings(), nil)
	dup := []Candidate{NewCandidate("first", "yellow"), NewCandidate("second", "yellow")}
	r, _ := m.Best("yellow", dup)
	if r.Label != "first" || r.Index != 0 {
		t.Fatalf("tie should keep insertion order, got %+v", r)
	}

	a := Result{Combined: 80, Lexical: 70}
	b := Result{Combined: 80, Lexical: 90}
	if !better(b, a) || better(a, b) {
		t.Fatal("lexical should break combined ties")
	}
}

func TestTokenSetRatioIgnoresExtraWords(t *testing.T) {
	if got := TokenSetRatio("could you play frozen please", "play frozen"); got != 100 {
		t.Fatalf("expected 100, got %v", got)
	}
	if got := TokenSetRatio("frozen", "yellow submarine"); got >= 50 {
		t.Fatalf("unrelated phrases scored %v", got)
	}
	if got := TokenSetRatio("", "x"); got != 0 {
		t.Fatalf("empty side scored %v", got)
	}
}

func TestMatchModes(t *testing.T) {
	m := New(DefaultSettings(), songs())
	r, ok := m.Match("zzzz qqqq", songs(), ModeThreshold)
	if ok {
		t.Fatalf("threshold mode should reject, got %+v", r)
	}
	r, ok = m.Match("zzzz qqqq", songs(), ModeBest)
	if !ok || r.Label == "" {
		t.Fatal("best mode always returns a candidate")
	}
	if m.Classify(r.Combined) != TierReject {
		t.Fatalf("expected reject tier for %v", r.Combined)
	}
	if _, ok := m.Match("", songs(), ModeBest); ok {
		t.Fatal("empty query has no match")
	}
}

func TestClassify(t *testing.T) {
	m := New(DefaultSettings(), nil)
	cases := []struct {
		score float64
		want  Tier
	}{
		{0, TierReject},
		{49.9, TierReject},
		{50, TierUncertain},
		{79.9, TierUncertain},
		{80, TierConfident},
		{100, TierConfident},
	}
	for _, tc := range cases {
		if got := m.Classify(tc.score); got != tc.want {
			t.Fatalf("Classify(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestCandidateEncodingsCached(t *testing.T) {
	calls := 0
	enc := func(w string) string {
		calls++
		return DoubleMetaphone(w)
	}
	cands := []Candidate{NewCandidate("Frozen")}
	m := New(DefaultSettings(), cands, WithEncoder(enc))
	m.Best("frozzen", cands)
	first := calls
	m.Best("frozzen", cands)
	// second pass encodes only the query
	if calls-first != 1 {
		t.Fatalf("expected one new encoding, got %d", calls-first)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Beyoncé", "beyonce"},
		{"  Let  It -- Go!  ", "let it go"},
		{"AC/DC", "ac dc"},
		{"Mötley Crüe_2", "motley crue 2"},
		{"", ""},
	}
	for _, tc := range cases {
		got := Normalize(tc.in)
		if got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if again := Normalize(got); again != got {
			t.Fatalf("Normalize not idempotent: %q -> %q", got, again)
		}
	}
}

func TestNewCandidateDedupesVariants(t *testing.T) {
	c := NewCandidate("Let It Go", "let it go", "", "LET-IT-GO", "frozen let it go")
	want := []string{"let it go", "frozen let it go"}
	if !reflect.DeepEqual(c.Variants, want) {
		t.Fatalf("unexpected variants %v", c.Variants)
	}
}
