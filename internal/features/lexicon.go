// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// lexiconFile is the on-disk shape of a lexicon.
type lexiconFile struct {
	Stopwords       []string            `yaml:"stopwords"`
	ClosedClasses   map[string][]string `yaml:"closed_classes"`
	Verbs           []string            `yaml:"verbs"`
	Adjectives      []string            `yaml:"adjectives"`
	Vocabulary      []string            `yaml:"vocabulary"`
	Lemmas          map[string]string   `yaml:"lemmas"`
	NumberWords     []string            `yaml:"number_words"`
	OrdinalWords    []string            `yaml:"ordinal_words"`
	Months          []string            `yaml:"months"`
	Weekdays        []string            `yaml:"weekdays"`
	RelativeDates   []string            `yaml:"relative_dates"`
	CurrencySymbols []string            `yaml:"currency_symbols"`
	CurrencyWords   []string            `yaml:"currency_words"`
	PercentWords    []string            `yaml:"percent_words"`
	Units           []string            `yaml:"units"`
	Titles          []string            `yaml:"titles"`
	OrgSuffixes     []string            `yaml:"org_suffixes"`
	Gazetteer       map[string][]string `yaml:"gazetteer"`
}

type wordSet map[string]struct{}

func newWordSet(words []string) wordSet {
	s := make(wordSet, len(words))
	for _, w := range words {
		s[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return s
}

func (s wordSet) has(w string) bool {
	_, ok := s[w]
	return ok
}

// gazetteerEntry is a multi-token phrase with its entity label.
type gazetteerEntry struct {
	tokens []string
	label  string
}

// Lexicon holds the word lists the rule-based annotator consults. It is
// immutable once loaded and safe to share between extractors.
type Lexicon struct {
	stopwords       wordSet
	closed          map[string]string // lower word -> UPOS tag
	verbs           wordSet
	adjectives      wordSet
	known           wordSet // every in-vocabulary form
	lemmas          map[string]string
	numberWords     wordSet
	ordinalWords    wordSet
	months          wordSet
	weekdays        wordSet
	relativeDates   wordSet
	currencySymbols wordSet
	currencyWords   wordSet
	percentWords    wordSet
	units           wordSet
	titles          wordSet
	orgSuffixes     wordSet
	gazetteer       map[string][]gazetteerEntry // first token -> longest-first entries
}

// DefaultLexicon parses the embedded English lexicon.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon is invalid: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon file, or returns the embedded default when
// path is empty.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon builds a Lexicon from YAML.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := &Lexicon{
		stopwords:       newWordSet(f.Stopwords),
		closed:          make(map[string]string),
		verbs:           newWordSet(f.Verbs),
		adjectives:      newWordSet(f.Adjectives),
		lemmas:          make(map[string]string, len(f.Lemmas)),
		numberWords:     newWordSet(f.NumberWords),
		ordinalWords:    newWordSet(f.OrdinalWords),
		months:          newWordSet(f.Months),
		weekdays:        newWordSet(f.Weekdays),
		relativeDates:   newWordSet(f.RelativeDates),
		currencySymbols: newWordSet(f.CurrencySymbols),
		currencyWords:   newWordSet(f.CurrencyWords),
		percentWords:    newWordSet(f.PercentWords),
		units:           newWordSet(f.Units),
		titles:          newWordSet(f.Titles),
		orgSuffixes:     newWordSet(f.OrgSuffixes),
		gazetteer:       make(map[string][]gazetteerEntry),
	}

	for tag := range f.ClosedClasses {
		if posIndex(tag) < 0 {
			return nil, fmt.Errorf("parse lexicon: unknown closed class %q", tag)
		}
	}
	// Tags are visited in POSTags order and the first listing wins, so "that"
	// stays DET when it is also listed under SCONJ.
	for _, tag := range POSTags {
		for _, w := range f.ClosedClasses[tag] {
			w = strings.ToLower(w)
			if _, dup := lex.closed[w]; !dup {
				lex.closed[w] = tag
			}
		}
	}
	for k, v := range f.Lemmas {
		lex.lemmas[strings.ToLower(k)] = strings.ToLower(v)
	}

	known := make(wordSet)
	for _, set := range []wordSet{lex.stopwords, lex.verbs, lex.adjectives, newWordSet(f.Vocabulary),
		lex.numberWords, lex.ordinalWords, lex.months, lex.weekdays, lex.relativeDates, lex.currencyWords,
		lex.units, lex.titles, lex.orgSuffixes} {
		for w := range set {
			known[w] = struct{}{}
		}
	}
	for w := range lex.closed {
		known[w] = struct{}{}
	}
	for k := range lex.lemmas {
		known[k] = struct{}{}
	}

	for label := range f.Gazetteer {
		if entityIndex(label) < 0 {
			return nil, fmt.Errorf("parse lexicon: unknown entity label %q", label)
		}
	}
	for _, label := range EntityLabels {
		for _, p := range f.Gazetteer[label] {
			toks := strings.Fields(strings.ToLower(p))
			if len(toks) == 0 {
				continue
			}
			lex.gazetteer[toks[0]] = append(lex.gazetteer[toks[0]], gazetteerEntry{tokens: toks, label: label})
			for _, t := range toks {
				known[t] = struct{}{}
			}
		}
	}
	for first, entries := range lex.gazetteer {
		sortLongestFirst(entries)
		lex.gazetteer[first] = entries
	}
	lex.known = known
	return lex, nil
}

func sortLongestFirst(entries []gazetteerEntry) {
	slices.SortStableFunc(entries, func(a, b gazetteerEntry) int {
		return len(b.tokens) - len(a.tokens)
	})
}

// IsStopword reports whether the lowercased word is a stop word.
func (l *Lexicon) IsStopword(lower string) bool { return l.stopwords.has(lower) }

// Known reports whether a lowercased form or its lemma is in vocabulary.
func (l *Lexicon) Known(lower, lemma string) bool {
	return l.known.has(lower) || l.known.has(lemma)
}
