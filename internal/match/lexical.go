package match

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// ratio is the indel similarity of two strings in [0,100].
func ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 100
	}
	return 200 * float64(matchr.LongestCommonSubsequence(a, b)) / float64(total)
}

// TokenSetRatio compares the word sets of two normalized strings. Words
// present in both sides count fully, so "could you play frozen please"
// scores 100 against "play frozen".
func TokenSetRatio(a, b string) float64 {
	ta, tb := wordSet(a), wordSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		if len(ta) == len(tb) {
			return 100
		}
		return 0
	}

	var common, onlyA, onlyB []string
	for w := range ta {
		if _, ok := tb[w]; ok {
			common = append(common, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range tb {
		if _, ok := ta[w]; !ok {
			onlyB = append(onlyB, w)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	left := join(base, strings.Join(onlyA, " "))
	right := join(base, strings.Join(onlyB, " "))

	best := ratio(left, right)
	if base != "" {
		if r := ratio(base, left); r > best {
			best = r
		}
		if r := ratio(base, right); r > best {
			best = r
		}
	}
	return best
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Tokens(s) {
		set[w] = struct{}{}
	}
	return set
}

func join(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
