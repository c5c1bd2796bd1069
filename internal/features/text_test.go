// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"math"
	"strings"
	"testing"
)

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func newTestAnalyzer(maxLen int) *TextAnalyzer {
	return NewTextAnalyzer(NewLexiconAnnotator(nil), NewHashingEncoder(32), maxLen)
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"words and punctuation", "Hello, world!", []string{"Hello", ",", "world", "!"}},
		{"numbers keep separators", "Pay 1,000.50 at 10:30", []string{"Pay", "1,000.50", "at", "10:30"}},
		{"hyphen and apostrophe join letters", "well-known don't", []string{"well-known", "don't"}},
		{"trailing comma splits", "March 3, 2024", []string{"March", "3", ",", "2024"}},
		{"symbols are single tokens", "$5 and 20%", []string{"$", "5", "and", "20", "%"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenize(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("tokenize(%q) = %d tokens, want %d (%v)", tt.text, len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].text != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i].text, tt.want[i])
				}
			}
		})
	}
}

func TestTokenizeSentenceStarts(t *testing.T) {
	t.Parallel()

	got := tokenize("One. Two")
	if !got[0].sentStart || got[1].sentStart || !got[2].sentStart {
		t.Errorf("sentence starts = %v %v %v, want true false true", got[0].sentStart, got[1].sentStart, got[2].sentStart)
	}
}

func TestAnnotateTags(t *testing.T) {
	t.Parallel()

	doc := NewLexiconAnnotator(nil).Annotate("The quick dogs were running to London.")
	want := map[string]string{
		"The":     "DET",
		"dogs":    "NOUN",
		"were":    "AUX",
		"running": "VERB",
		"to":      "PART",
		"London":  "PROPN",
		".":       "PUNCT",
	}
	for _, tok := range doc.Tokens {
		if tag, ok := want[tok.Text]; ok && tok.POS != tag {
			t.Errorf("POS(%q) = %s, want %s", tok.Text, tok.POS, tag)
		}
	}
	for _, tok := range doc.Tokens {
		switch tok.Text {
		case "dogs":
			if tok.Lemma != "dog" {
				t.Errorf("Lemma(dogs) = %q, want dog", tok.Lemma)
			}
		case "were":
			if tok.Lemma != "be" {
				t.Errorf("Lemma(were) = %q, want be", tok.Lemma)
			}
		case "running":
			if tok.Lemma != "run" {
				t.Errorf("Lemma(running) = %q, want run", tok.Lemma)
			}
		}
	}
}

func TestAnnotateEntities(t *testing.T) {
	t.Parallel()

	doc := NewLexiconAnnotator(nil).Annotate("Apple hired Dr. Sarah Smith in London on March 3, 2024 for $5 million.")

	got := make(map[string]int)
	for _, e := range doc.Entities {
		got[e.Label]++
	}
	for _, label := range []string{"ORG", "PERSON", "GPE", "DATE", "MONEY"} {
		if got[label] != 1 {
			t.Errorf("entities[%s] = %d, want 1 (all: %v)", label, got[label], got)
		}
	}
	if len(doc.Entities) != 5 {
		t.Errorf("len(entities) = %d, want 5", len(doc.Entities))
	}
}

func TestAnnotatePatternEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text  string
		label string
	}{
		{"It rose 20% overnight", "PERCENT"},
		{"We met at 10:30 pm", "TIME"},
		{"She finished 3rd overall", "ORDINAL"},
		{"They shipped 40 kg of rice", "QUANTITY"},
		{"There were 12 apples", "CARDINAL"},
		{"It opened in 1999", "DATE"},
		{"Acme Widgets Inc announced results", "ORG"},
	}
	a := NewLexiconAnnotator(nil)
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			doc := a.Annotate(tt.text)
			found := false
			for _, e := range doc.Entities {
				if e.Label == tt.label {
					found = true
				}
			}
			if !found {
				t.Errorf("Annotate(%q) entities = %v, want one %s", tt.text, doc.Entities, tt.label)
			}
		})
	}
}

func TestAnalyzeFixedWidths(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(DefaultMaxTextLength)
	for _, text := range []string{
		"",
		"hi",
		"Apple hired Dr. Sarah Smith in London on March 3, 2024 for $5 million.",
		strings.Repeat("A much longer sentence about markets and prices. ", 40),
	} {
		b := a.Analyze(text)
		if len(b[GroupPOSTags]) != len(POSTags) {
			t.Errorf("len(pos_tags) = %d, want %d", len(b[GroupPOSTags]), len(POSTags))
		}
		if len(b[GroupEntities]) != len(EntityLabels) {
			t.Errorf("len(entities) = %d, want %d", len(b[GroupEntities]), len(EntityLabels))
		}
		if len(b[GroupTextStats]) != TextStatsWidth {
			t.Errorf("len(text_stats) = %d, want %d", len(b[GroupTextStats]), TextStatsWidth)
		}
		if len(b[GroupTextEmbedding]) != 32 {
			t.Errorf("len(text_embedding) = %d, want 32", len(b[GroupTextEmbedding]))
		}
		if s := sum(b[GroupPOSTags]); s > 1+1e-9 {
			t.Errorf("sum(pos_tags) = %v, want <= 1", s)
		}
		if s := sum(b[GroupEntities]); s > 1+1e-9 {
			t.Errorf("sum(entities) = %v, want <= 1", s)
		}
	}
}

func TestAnalyzeDistributionsAndStats(t *testing.T) {
	t.Parallel()

	b := newTestAnalyzer(DefaultMaxTextLength).Analyze("Apple hired Dr. Sarah Smith in London on March 3, 2024 for $5 million.")

	if s := sum(b[GroupPOSTags]); math.Abs(s-1) > 1e-9 {
		t.Errorf("sum(pos_tags) = %v, want 1", s)
	}
	if s := sum(b[GroupEntities]); math.Abs(s-1) > 1e-9 {
		t.Errorf("sum(entities) = %v, want 1", s)
	}

	stats := b[GroupTextStats]
	if stats[0] != 18 {
		t.Errorf("doc length = %v, want 18", stats[0])
	}
	if stats[1] != 15 {
		t.Errorf("non-punct count = %v, want 15", stats[1])
	}
	if stats[3] != 5 {
		t.Errorf("entity count = %v, want 5", stats[3])
	}
	if stats[4] <= 0 || stats[4] > 1 {
		t.Errorf("lexical diversity = %v, want in (0,1]", stats[4])
	}
	if stats[5] < 0 || stats[5] > 1 {
		t.Errorf("oov ratio = %v, want in [0,1]", stats[5])
	}
}

func TestAnalyzeNoEntitiesIsAllZero(t *testing.T) {
	t.Parallel()

	b := newTestAnalyzer(DefaultMaxTextLength).Analyze("the cat sat on the mat")
	if s := sum(b[GroupEntities]); s != 0 {
		t.Errorf("sum(entities) = %v, want 0", s)
	}
	if b[GroupTextStats][3] != 0 {
		t.Errorf("entity count = %v, want 0", b[GroupTextStats][3])
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	t.Parallel()

	b := newTestAnalyzer(DefaultMaxTextLength).Analyze("")
	for _, name := range []string{GroupPOSTags, GroupEntities, GroupTextStats, GroupTextEmbedding} {
		if s := sum(b[name]); s != 0 {
			t.Errorf("sum(%s) = %v, want 0 for empty text", name, s)
		}
	}
}

func TestAnalyzeTruncates(t *testing.T) {
	t.Parallel()

	b := newTestAnalyzer(10).Analyze(strings.Repeat("word ", 100))
	if got := b[GroupTextStats][0]; got != 2 {
		t.Errorf("doc length after truncation = %v, want 2", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	if got := truncateRunes("héllo wörld", 5); got != "héllo" {
		t.Errorf("truncateRunes = %q, want héllo", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Errorf("truncateRunes = %q, want abc", got)
	}
}

func TestHashingEncoderDeterministic(t *testing.T) {
	t.Parallel()

	enc := NewHashingEncoder(64)
	toks := []Token{{Lower: "price", Lemma: "price"}, {Lower: "prices", Lemma: "price"}, {Lower: "zebra", Lemma: "zebra"}}
	v := enc.EncodeTokens(toks)

	for i := range v[0] {
		if v[0][i] != v[1][i] {
			t.Fatal("equal lemmas should encode identically")
		}
	}
	var norm float64
	for _, x := range v[2] {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("|v| = %v, want 1", math.Sqrt(norm))
	}
	again := enc.EncodeTokens(toks[2:])
	for i := range again[0] {
		if again[0][i] != v[2][i] {
			t.Fatal("encoding should be deterministic")
		}
	}
}

func TestParseLexiconRejectsUnknownLabels(t *testing.T) {
	t.Parallel()

	if _, err := ParseLexicon([]byte("closed_classes:\n  NOPE: [x]\n")); err == nil {
		t.Error("expected error for unknown closed class")
	}
	if _, err := ParseLexicon([]byte("gazetteer:\n  ALIEN: [x]\n")); err == nil {
		t.Error("expected error for unknown entity label")
	}
	lex, err := ParseLexicon([]byte("stopwords: [foo]\n"))
	if err != nil {
		t.Fatalf("ParseLexicon: %v", err)
	}
	if !lex.IsStopword("foo") {
		t.Error("foo should be a stop word")
	}
}

func TestNormalizeAndMeanPool(t *testing.T) {
	t.Parallel()

	v := []float64{3, 4}
	normalize(v)
	if math.Abs(v[0]-0.6) > 1e-12 || math.Abs(v[1]-0.8) > 1e-12 {
		t.Errorf("normalize([3 4]) = %v, want [0.6 0.8]", v)
	}
	zero := []float64{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("normalize(zero) = %v, want unchanged", zero)
	}

	got := meanPool([][]float64{{1, 2}, {3, 6}}, 2)
	if got[0] != 2 || got[1] != 4 {
		t.Errorf("meanPool = %v, want [2 4]", got)
	}
	if got := meanPool(nil, 3); len(got) != 3 || sum(got) != 0 {
		t.Errorf("meanPool(nil) = %v, want three zeros", got)
	}
}
