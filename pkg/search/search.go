// Package search builds and ranks weighted full-text vectors for stored recipes.
//
// A vector maps each normalized lexeme to the positions it occupies in the indexed text,
// tagged with a weight class: A for the recipe name, B for its categories, C for its
// ingredients. The serialized form follows the familiar tsvector text layout, e.g.
// 'flour':3C 'pasta':1A, so stored values stay readable.
package search

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Weight is a position's weight class
type Weight byte

const (
	WeightA Weight = 'A'
	WeightB Weight = 'B'
	WeightC Weight = 'C'
	WeightD Weight = 'D'
)

// Value returns the ranking multiplier for the weight class
func (w Weight) Value() float64 {
	switch w {
	case WeightA:
		return 1.0
	case WeightB:
		return 0.4
	case WeightC:
		return 0.2
	default:
		return 0.1
	}
}

// Position is one occurrence of a lexeme
type Position struct {
	Pos    int
	Weight Weight
}

// Vector maps lexemes to their positions
type Vector map[string][]Position

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "in": {}, "into": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "with": {}, "without": {}, "your": {}, "you": {},
}

// Fold strips diacritics so "Crème Brûlée" and "creme brulee" produce the same lexemes.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokenize splits text into normalized lexemes in order of appearance.
// Stopwords and single characters are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(Fold(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem reduces common English plurals so "tomatoes" and "tomato" share a lexeme.
func stem(w string) string {
	n := len(w)
	switch {
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 4 && strings.HasSuffix(w, "oes"):
		return w[:n-2]
	case n > 4 && (strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes") ||
		strings.HasSuffix(w, "xes") || strings.HasSuffix(w, "sses")):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:n-1]
	}
	return w
}

// BuildVector indexes name (A), categories (B) and ingredients (C).
// Positions run sequentially across the three sources starting at 1.
func BuildVector(name string, categories, ingredients []string) Vector {
	v := make(Vector)
	pos := 0
	add := func(text string, w Weight) {
		for _, lex := range Tokenize(text) {
			pos++
			v[lex] = append(v[lex], Position{Pos: pos, Weight: w})
		}
	}
	add(name, WeightA)
	for _, c := range categories {
		add(c, WeightB)
	}
	for _, i := range ingredients {
		add(i, WeightC)
	}
	return v
}

// Len returns the total number of positions in the vector
func (v Vector) Len() int {
	n := 0
	for _, ps := range v {
		n += len(ps)
	}
	return n
}

// String serializes the vector with lexemes in sorted order. Weight D is implicit.
func (v Vector) String() string {
	lexemes := make([]string, 0, len(v))
	for lex := range v {
		lexemes = append(lexemes, lex)
	}
	sort.Strings(lexemes)

	var b strings.Builder
	for i, lex := range lexemes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		b.WriteString(lex)
		b.WriteByte('\'')
		for j, p := range v[lex] {
			if j == 0 {
				b.WriteByte(':')
			} else {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(p.Pos))
			if p.Weight != WeightD && p.Weight != 0 {
				b.WriteByte(byte(p.Weight))
			}
		}
	}
	return b.String()
}

// ParseVector reads the form produced by Vector.String.
func ParseVector(s string) (Vector, error) {
	v := make(Vector)
	for _, tok := range strings.Fields(s) {
		if len(tok) < 2 || tok[0] != '\'' {
			return nil, fmt.Errorf("malformed lexeme %q", tok)
		}
		end := strings.IndexByte(tok[1:], '\'')
		if end < 0 {
			return nil, fmt.Errorf("unterminated lexeme %q", tok)
		}
		lex := tok[1 : end+1]
		rest := tok[end+2:]
		if rest == "" {
			v[lex] = append(v[lex], Position{Weight: WeightD})
			continue
		}
		if rest[0] != ':' {
			return nil, fmt.Errorf("malformed positions in %q", tok)
		}
		for _, p := range strings.Split(rest[1:], ",") {
			if p == "" {
				return nil, fmt.Errorf("empty position in %q", tok)
			}
			w := WeightD
			if last := p[len(p)-1]; last >= 'A' && last <= 'D' {
				w = Weight(last)
				p = p[:len(p)-1]
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("bad position in %q: %w", tok, err)
			}
			v[lex] = append(v[lex], Position{Pos: n, Weight: w})
		}
	}
	return v, nil
}

// Query is a parsed free-text search: every term must be present for a match
type Query []string

// ParseQuery normalizes free text the same way indexed text is normalized.
func ParseQuery(text string) Query {
	seen := make(map[string]struct{})
	var q Query
	for _, lex := range Tokenize(text) {
		if _, dup := seen[lex]; dup {
			continue
		}
		seen[lex] = struct{}{}
		q = append(q, lex)
	}
	return q
}

// Empty reports whether the query has no searchable terms
func (q Query) Empty() bool {
	return len(q) == 0
}

// Rank scores v against q. It returns 0 unless every query term occurs in v.
// Each occurrence contributes its weight value and the sum is damped by document length.
func Rank(v Vector, q Query) float64 {
	if len(v) == 0 || q.Empty() {
		return 0
	}
	var score float64
	for _, term := range q {
		positions, ok := v[term]
		if !ok {
			return 0
		}
		for _, p := range positions {
			score += p.Weight.Value()
		}
	}
	return score / (1 + math.Log(float64(v.Len())))
}
