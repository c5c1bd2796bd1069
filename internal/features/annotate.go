// Fusionserve - Multimodal Feature Fusion and Model Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fusionserve

package features

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// POSTags is the Universal Dependencies part-of-speech tag set. The
// pos_tags group has one slot per tag, in this order.
var POSTags = []string{
	"ADJ", "ADP", "ADV", "AUX", "CCONJ", "DET", "INTJ", "NOUN", "NUM",
	"PART", "PRON", "PROPN", "PUNCT", "SCONJ", "SYM", "VERB", "X",
}

// EntityLabels is the OntoNotes named-entity label set. The entities group
// has one slot per label, in this order.
var EntityLabels = []string{
	"PERSON", "NORP", "FAC", "ORG", "GPE", "LOC", "PRODUCT", "EVENT", "WORK_OF_ART",
	"LAW", "LANGUAGE", "DATE", "TIME", "PERCENT", "MONEY", "QUANTITY", "ORDINAL", "CARDINAL",
}

var (
	posIndexes    = indexOf(POSTags)
	entityIndexes = indexOf(EntityLabels)
)

func indexOf(labels []string) map[string]int {
	m := make(map[string]int, len(labels))
	for i, l := range labels {
		m[l] = i
	}
	return m
}

func posIndex(tag string) int {
	if i, ok := posIndexes[tag]; ok {
		return i
	}
	return -1
}

func entityIndex(label string) int {
	if i, ok := entityIndexes[label]; ok {
		return i
	}
	return -1
}

// Token is one annotated token.
type Token struct {
	Text      string
	Lower     string
	Lemma     string
	POS       string
	IsPunct   bool
	IsStop    bool
	IsOOV     bool
	SentStart bool
}

// Entity is a labelled token span [Start, End).
type Entity struct {
	Label string
	Start int
	End   int
}

// Doc is an annotated text.
type Doc struct {
	Tokens   []Token
	Entities []Entity
}

// Annotator tags tokens and recognizes entities.
type Annotator interface {
	Annotate(text string) *Doc
}

// LexiconAnnotator is a deterministic rule-based annotator driven by a
// Lexicon: closed-class lookup and suffix heuristics for POS, and gazetteer
// plus pattern rules for entities.
type LexiconAnnotator struct {
	lex *Lexicon
}

// NewLexiconAnnotator returns an annotator over lex, or the default lexicon
// when lex is nil.
func NewLexiconAnnotator(lex *Lexicon) *LexiconAnnotator {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &LexiconAnnotator{lex: lex}
}

// symbolPunct are punctuation runes tagged SYM rather than PUNCT.
const symbolPunct = "%#@&*/\\"

// Annotate implements Annotator.
func (a *LexiconAnnotator) Annotate(text string) *Doc {
	raw := tokenize(text)
	// cases.Caser is stateful; one per call keeps Annotate goroutine-safe.
	folder := cases.Fold()

	doc := &Doc{Tokens: make([]Token, 0, len(raw))}
	for i, r := range raw {
		tok := Token{Text: r.text, SentStart: r.sentStart}
		tok.Lower = norm.NFKC.String(folder.String(r.text))
		var prev *Token
		if i > 0 {
			prev = &doc.Tokens[i-1]
		}
		tok.POS, tok.IsPunct = a.tag(tok, prev)
		tok.Lemma = a.lemmatize(tok.Lower, tok.POS)
		tok.IsStop = a.lex.IsStopword(tok.Lower)
		tok.IsOOV = hasLetter(tok.Text) && !a.lex.Known(tok.Lower, tok.Lemma)
		doc.Tokens = append(doc.Tokens, tok)
	}
	doc.Entities = a.recognize(doc.Tokens)
	return doc
}

type rawToken struct {
	text      string
	sentStart bool
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// tokenize splits text into word and number tokens plus single-rune
// punctuation and symbol tokens. Hyphens and apostrophes join letters;
// '.', ',' and ':' join digits so "3.14", "1,000" and "10:30" survive.
func tokenize(text string) []rawToken {
	runes := []rune(text)
	var out []rawToken
	sentStart := true
	start := -1

	flush := func(end int) {
		if start >= 0 {
			out = append(out, rawToken{text: string(runes[start:end]), sentStart: sentStart})
			sentStart = false
			start = -1
		}
	}

	for i, r := range runes {
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		case start >= 0 && i+1 < len(runes) && joinsWord(r, runes[i-1], runes[i+1]):
			// connector inside a word or number
		default:
			flush(i)
			if unicode.IsSpace(r) {
				continue
			}
			out = append(out, rawToken{text: string(r), sentStart: sentStart})
			sentStart = r == '.' || r == '!' || r == '?'
		}
	}
	flush(len(runes))
	return out
}

func joinsWord(r, before, after rune) bool {
	switch r {
	case '-', '\'', '’':
		return unicode.IsLetter(before) && unicode.IsLetter(after)
	case '.', ',', ':':
		return unicode.IsDigit(before) && unicode.IsDigit(after)
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsDigit(r) {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != ',' && r != ':' {
			return false
		}
	}
	return true
}

func isCapitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func isDigitOrdinal(lower string) bool {
	if len(lower) < 3 {
		return false
	}
	suffix := lower[len(lower)-2:]
	if suffix != "st" && suffix != "nd" && suffix != "rd" && suffix != "th" {
		return false
	}
	_, err := strconv.Atoi(lower[:len(lower)-2])
	return err == nil
}

func isTimeToken(s string) bool {
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return false
	}
	hv, err1 := strconv.Atoi(h)
	mv, err2 := strconv.Atoi(m)
	return err1 == nil && err2 == nil && hv < 24 && mv < 60
}

// tag returns the UPOS tag and whether the token counts as punctuation.
func (a *LexiconAnnotator) tag(tok Token, prev *Token) (string, bool) {
	text, lower := tok.Text, tok.Lower
	first, size := utf8.DecodeRuneInString(text)

	if size == len(text) && unicode.IsPunct(first) {
		if strings.ContainsRune(symbolPunct, first) {
			return "SYM", false
		}
		return "PUNCT", true
	}
	if !hasLetter(text) && !unicode.IsDigit(first) {
		if unicode.IsSymbol(first) {
			return "SYM", false
		}
		return "X", false
	}
	if isNumeric(text) || a.lex.numberWords.has(lower) {
		return "NUM", false
	}
	if isDigitOrdinal(lower) || a.lex.ordinalWords.has(lower) {
		return "ADJ", false
	}
	if tag, ok := a.lex.closed[lower]; ok {
		// a capitalized closed-class word mid-sentence is still closed-class
		return tag, false
	}
	if isCapitalized(text) && (!tok.SentStart || !a.lex.Known(lower, lower) || a.lex.gazetteer[lower] != nil) {
		return "PROPN", false
	}

	lemma := a.lemmatize(lower, "VERB")
	switch {
	case a.lex.verbs.has(lower) || a.lex.verbs.has(lemma):
		if a.lex.adjectives.has(lower) && prev != nil && prev.POS == "DET" {
			return "ADJ", false
		}
		return "VERB", false
	case a.lex.adjectives.has(lower):
		return "ADJ", false
	}

	n := len(lower)
	switch {
	case n > 4 && strings.HasSuffix(lower, "ly"):
		return "ADV", false
	case n > 5 && (strings.HasSuffix(lower, "ing") || strings.HasSuffix(lower, "ize") ||
		strings.HasSuffix(lower, "ise") || strings.HasSuffix(lower, "ify")):
		return "VERB", false
	case n > 4 && strings.HasSuffix(lower, "ed"):
		return "VERB", false
	case n > 5 && (strings.HasSuffix(lower, "ous") || strings.HasSuffix(lower, "ful") ||
		strings.HasSuffix(lower, "ive") || strings.HasSuffix(lower, "able") ||
		strings.HasSuffix(lower, "ible") || strings.HasSuffix(lower, "less") ||
		strings.HasSuffix(lower, "ish") || strings.HasSuffix(lower, "ical")):
		return "ADJ", false
	}

	if prev != nil && (prev.Lower == "to" || prev.POS == "AUX" || prev.POS == "PRON") {
		return "VERB", false
	}
	return "NOUN", false
}

// lemmatize folds inflections with an exception table then suffix rules.
func (a *LexiconAnnotator) lemmatize(lower, pos string) string {
	if l, ok := a.lex.lemmas[lower]; ok {
		return l
	}
	switch pos {
	case "NOUN":
		return stripPlural(lower)
	case "VERB", "AUX":
		return stripVerbal(lower)
	}
	return lower
}

func stripPlural(w string) string {
	n := len(w)
	switch {
	case n > 4 && strings.HasSuffix(w, "ies"):
		return w[:n-3] + "y"
	case n > 4 && (strings.HasSuffix(w, "sses") || strings.HasSuffix(w, "xes") ||
		strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes")):
		return w[:n-2]
	case n > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") &&
		!strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:n-1]
	}
	return w
}

func stripVerbal(w string) string {
	n := len(w)
	switch {
	case n > 5 && strings.HasSuffix(w, "ing"):
		return undouble(w[:n-3])
	case n > 4 && strings.HasSuffix(w, "ied"):
		return w[:n-3] + "y"
	case n > 4 && strings.HasSuffix(w, "ed"):
		return undouble(w[:n-2])
	case n > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return stripPlural(w)
	}
	return w
}

// undouble turns "runn" into "run".
func undouble(stem string) string {
	n := len(stem)
	if n >= 3 && stem[n-1] == stem[n-2] && !strings.ContainsRune("aeiouls", rune(stem[n-1])) {
		return stem[:n-1]
	}
	return stem
}

// recognize runs the entity rules left to right; the first rule that
// matches at a position claims its span.
func (a *LexiconAnnotator) recognize(toks []Token) []Entity {
	var ents []Entity
	for i := 0; i < len(toks); {
		if label, end, ok := a.matchAt(toks, i); ok {
			ents = append(ents, Entity{Label: label, Start: i, End: end})
			i = end
			continue
		}
		i++
	}
	return ents
}

func (a *LexiconAnnotator) matchAt(toks []Token, i int) (string, int, bool) {
	t := toks[i]
	next := func(k int) (Token, bool) {
		if i+k < len(toks) {
			return toks[i+k], true
		}
		return Token{}, false
	}
	isNum := func(tk Token) bool { return tk.POS == "NUM" }

	// gazetteer: longest phrase first, first token must carry an upper-case rune
	if hasUpper(t.Text) {
		for _, e := range a.lex.gazetteer[t.Lower] {
			if i+len(e.tokens) > len(toks) {
				continue
			}
			match := true
			for k, w := range e.tokens {
				if toks[i+k].Lower != w {
					match = false
					break
				}
			}
			if match {
				return e.label, i + len(e.tokens), true
			}
		}
	}

	// currency symbol + number [+ scale word]
	if a.lex.currencySymbols.has(t.Text) {
		if n1, ok := next(1); ok && isNum(n1) {
			end := i + 2
			if n2, ok := next(2); ok && a.lex.numberWords.has(n2.Lower) {
				end++
			}
			return "MONEY", end, true
		}
	}

	if isTimeToken(t.Text) {
		end := i + 1
		if n1, ok := next(1); ok && (n1.Lower == "am" || n1.Lower == "pm") {
			end++
		}
		return "TIME", end, true
	}

	if t.POS == "ADJ" && (isDigitOrdinal(t.Lower) || a.lex.ordinalWords.has(t.Lower)) {
		return "ORDINAL", i + 1, true
	}

	// dates
	if isCapitalized(t.Text) && (a.lex.months.has(t.Lower) || a.lex.weekdays.has(t.Lower)) {
		end := i + 1
		if n1, ok := next(1); ok && isNum(n1) {
			end++
			if n2, ok := next(2); ok && n2.Text == "," {
				if n3, ok := next(3); ok && isYear(n3.Text) {
					end += 2
				}
			}
		}
		return "DATE", end, true
	}
	if a.lex.relativeDates.has(t.Lower) {
		return "DATE", i + 1, true
	}
	if isNum(t) {
		if n1, ok := next(1); ok && isCapitalized(n1.Text) && a.lex.months.has(n1.Lower) {
			return "DATE", i + 2, true
		}
		if n1, ok := next(1); ok {
			switch {
			case n1.Text == "%" || a.lex.percentWords.has(n1.Lower):
				return "PERCENT", i + 2, true
			case a.lex.currencyWords.has(n1.Lower):
				return "MONEY", i + 2, true
			case a.lex.units.has(n1.Lower):
				return "QUANTITY", i + 2, true
			}
		}
		if isYear(t.Text) {
			return "DATE", i + 1, true
		}
		end := i + 1
		for end < len(toks) && toks[end].POS == "NUM" {
			end++
		}
		return "CARDINAL", end, true
	}

	// title followed by a capitalized name run
	if a.lex.titles.has(t.Lower) {
		j := i + 1
		if j < len(toks) && toks[j].Text == "." {
			j++
		}
		end := j
		for end < len(toks) && isCapitalized(toks[end].Text) && hasLetter(toks[end].Text) {
			end++
		}
		if end > j {
			return "PERSON", end, true
		}
	}

	// proper-noun run closed by an organisation suffix
	if t.POS == "PROPN" {
		end := i
		for end < len(toks) && toks[end].POS == "PROPN" {
			end++
		}
		if end < len(toks) && isCapitalized(toks[end].Text) && a.lex.orgSuffixes.has(toks[end].Lower) {
			end++
		}
		if end-i > 1 && a.lex.orgSuffixes.has(toks[end-1].Lower) {
			return "ORG", end, true
		}
	}
	return "", 0, false
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	y, err := strconv.Atoi(s)
	return err == nil && y >= 1900 && y <= 2099
}
