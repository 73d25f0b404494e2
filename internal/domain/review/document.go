package review

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// WordsPerPage is used to estimate page count from extracted text.
const WordsPerPage = 300

// SectionKey names a canonical document section.
type SectionKey string

const (
	SectionAbstract         SectionKey = "abstract"
	SectionIntroduction     SectionKey = "introduction"
	SectionLiteratureReview SectionKey = "literature_review"
	SectionMethodology      SectionKey = "methodology"
	SectionResults          SectionKey = "results"
	SectionDiscussion       SectionKey = "discussion"
	SectionConclusion       SectionKey = "conclusion"
	SectionReferences       SectionKey = "references"
)

// sectionKeywords lists English and Indonesian heading keywords per section.
var sectionKeywords = []struct {
	key      SectionKey
	keywords []string
}{
	{SectionAbstract, []string{"abstract", "abstrak"}},
	{SectionIntroduction, []string{"introduction", "pendahuluan", "latar belakang"}},
	{SectionLiteratureReview, []string{"literature review", "related work", "tinjauan pustaka", "kajian pustaka", "landasan teori"}},
	{SectionMethodology, []string{"methodology", "methods", "materials and methods", "research method", "metodologi", "metode penelitian", "metode"}},
	{SectionResults, []string{"results", "findings", "hasil penelitian", "hasil"}},
	{SectionDiscussion, []string{"discussion", "pembahasan"}},
	{SectionConclusion, []string{"conclusion", "conclusions", "kesimpulan", "penutup"}},
	{SectionReferences, []string{"references", "bibliography", "daftar pustaka", "referensi"}},
}

// AllSections is the canonical section order.
func AllSections() []SectionKey {
	out := make([]SectionKey, 0, len(sectionKeywords))
	for _, s := range sectionKeywords {
		out = append(out, s.key)
	}
	return out
}

// Section is one detected heading.
type Section struct {
	Key   SectionKey `json:"key"`
	Title string     `json:"title"`
	Index int        `json:"index"`
}

// ExtractedDocument is the step 1 result.
type ExtractedDocument struct {
	Text               string    `json:"text"`
	WordCount          int       `json:"wordCount"`
	CharCount          int       `json:"charCount"`
	EstimatedPageCount int       `json:"estimatedPageCount"`
	Sections           []Section `json:"sections"`
}

// NewExtractedDocument computes counts and sections for text.
func NewExtractedDocument(text string) ExtractedDocument {
	words := len(strings.Fields(text))
	pages := (words + WordsPerPage - 1) / WordsPerPage
	if pages < 1 {
		pages = 1
	}
	return ExtractedDocument{
		Text:               text,
		WordCount:          words,
		CharCount:          utf8.RuneCountInString(text),
		EstimatedPageCount: pages,
		Sections:           DetectSections(text),
	}
}

// Has reports whether a section was detected.
func (d ExtractedDocument) Has(key SectionKey) bool {
	for _, s := range d.Sections {
		if s.Key == key {
			return true
		}
	}
	return false
}

// Section returns the detected heading for key.
func (d ExtractedDocument) Section(key SectionKey) (Section, bool) {
	for _, s := range d.Sections {
		if s.Key == key {
			return s, true
		}
	}
	return Section{}, false
}

// Prefix returns at most n runes from the start of the text.
func (d ExtractedDocument) Prefix(n int) string { return headRunes(d.Text, n) }

// Suffix returns at most n runes from the end of the text.
func (d ExtractedDocument) Suffix(n int) string { return tailRunes(d.Text, n) }

// headingPrefix strips numbering such as "1.", "2.1", "IV.", "BAB I", "Chapter 3".
var headingPrefix = regexp.MustCompile(`^(?i)(?:(?:bab|chapter|section|part)\s+[0-9ivxlcdm]+[.:)]?\s+|[0-9]+(?:\.[0-9]+)*[.)]?\s+|[ivxlcdm]+[.)]\s+)`)

const (
	maxHeadingLen   = 80
	maxHeadingWords = 8
)

// headingJoin splits combined headings such as "Results and Discussion" or
// "Hasil dan Pembahasan".
var headingJoin = regexp.MustCompile(`\s*(?:,|&|\band\b|\bdan\b)\s*`)

// DetectSections finds the first heading line for each known section and
// returns the matches ordered by position in the text. A combined heading
// marks every section it names.
func DetectSections(text string) []Section {
	found := map[SectionKey]Section{}
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)

		title := stripHeading(line)
		heading := strings.ToLower(title)
		if heading == "" || len(heading) > maxHeadingLen {
			continue
		}
		keys := exactKeys(heading)
		if len(keys) == 0 && headingShaped(line, title) {
			if k, ok := prefixKey(heading); ok {
				keys = []SectionKey{k}
			}
		}
		for _, k := range keys {
			if _, ok := found[k]; !ok {
				found[k] = Section{Key: k, Title: strings.TrimSpace(line), Index: start}
			}
		}
	}

	out := make([]Section, 0, len(found))
	for _, k := range AllSections() {
		if s, ok := found[k]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// stripHeading removes markup, numbering and trailing punctuation, keeping case.
func stripHeading(line string) string {
	h := strings.TrimSpace(line)
	h = strings.TrimLeft(h, "#* \t")
	h = headingPrefix.ReplaceAllString(h, "")
	h = strings.TrimRight(h, ":.* \t")
	return strings.TrimSpace(h)
}

func keywordKey(heading string) (SectionKey, bool) {
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if heading == kw {
				return sk.key, true
			}
		}
	}
	return "", false
}

// exactKeys matches a heading that is one keyword, or keywords joined by
// "and", "dan", "&" or commas.
func exactKeys(heading string) []SectionKey {
	if k, ok := keywordKey(heading); ok {
		return []SectionKey{k}
	}
	parts := headingJoin.Split(heading, -1)
	if len(parts) < 2 {
		return nil
	}
	keys := make([]SectionKey, 0, len(parts))
	for _, p := range parts {
		k, ok := keywordKey(p)
		if !ok {
			return nil
		}
		keys = append(keys, k)
	}
	return keys
}

// prefixKey matches headings such as "Introduction to the Study".
func prefixKey(heading string) (SectionKey, bool) {
	for _, sk := range sectionKeywords {
		for _, kw := range sk.keywords {
			if strings.HasPrefix(heading, kw+" ") {
				return sk.key, true
			}
		}
	}
	return "", false
}

// headingShaped rejects prose: a heading is short, does not end a sentence
// and capitalizes its longer words.
func headingShaped(line, title string) bool {
	raw := strings.TrimRight(strings.TrimSpace(line), "*# \t")
	if strings.HasSuffix(raw, ".") || strings.HasSuffix(raw, "?") || strings.HasSuffix(raw, "!") ||
		strings.HasSuffix(raw, ",") || strings.HasSuffix(raw, ";") || strings.HasSuffix(raw, "…") {
		return false
	}
	words := strings.Fields(title)
	if len(words) > maxHeadingWords {
		return false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if utf8.RuneCountInString(w) <= 3 || !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	total := utf8.RuneCountInString(s)
	if total <= n {
		return s
	}
	skip := total - n
	i := 0
	for pos := range s {
		if i == skip {
			return s[pos:]
		}
		i++
	}
	return ""
}
