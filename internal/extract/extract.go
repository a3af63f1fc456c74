// Package extract pulls candidate payer names out of raw bank statement
// descriptions and normalizes text for matching.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	taxIDPattern  = regexp.MustCompile(`\b\d{11,14}\b`)
	datePattern   = regexp.MustCompile(`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
	amountPattern = regexp.MustCompile(`(?i)(?:r\$\s*)?\d{1,3}(?:\.\d{3})*,\d{2}`)
	prefixPattern = regexp.MustCompile(`(?i)^\s*(?:pix|ted|doc|transf(?:erencia)?|dep(?:osito)?)\b[\s:.\-]*(?:recebido|recebimento|enviado|de|da|do|para)?[\s:.\-]*`)
	capsToken     = regexp.MustCompile(`[A-ZÁÀÂÃÉÊÍÓÔÕÚÇ]{3,}`)
)

// Normalize lowercases text, strips diacritics, drops everything that is not
// a letter or digit and collapses whitespace. Applying it twice yields the
// same result.
func Normalize(text string) string {
	decomposed := norm.NFD.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining marks left over from NFD decomposition
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Extractor finds candidate payer names in statement descriptions. Transport
// boilerplate, tax IDs, dates and amounts are stripped before the residual
// text is considered a name.
type Extractor struct {
	reserved map[string]struct{}
}

// NewExtractor builds an extractor with the given reserved keyword list.
// Reserved keywords are banking vocabulary that never forms part of a name.
func NewExtractor(reservedKeywords []string) *Extractor {
	reserved := make(map[string]struct{}, len(reservedKeywords))
	for _, kw := range reservedKeywords {
		reserved[Normalize(kw)] = struct{}{}
	}
	return &Extractor{reserved: reserved}
}

// CandidateNames returns the plausible payer names found in the description,
// deduplicated and in discovery order. Degenerate input yields an empty slice.
func (e *Extractor) CandidateNames(description string) []string {
	names := []string{}
	if strings.TrimSpace(description) == "" {
		return names
	}

	working := amountPattern.ReplaceAllString(description, " ")
	working = taxIDPattern.ReplaceAllString(working, " ")
	working = datePattern.ReplaceAllString(working, " ")

	// Transport prefixes can stack, e.g. "PIX TRANSF RECEBIDO".
	for {
		stripped := prefixPattern.ReplaceAllString(working, "")
		if stripped == working {
			break
		}
		working = stripped
	}

	seen := make(map[string]struct{})
	add := func(name string) {
		if len(name) < 3 {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	if residual := e.withoutReserved(Normalize(working)); len(residual) >= 3 {
		add(residual)
	}

	// Uppercase runs in the original text are usually names the bank shouts.
	for _, token := range capsToken.FindAllString(description, -1) {
		normalized := Normalize(token)
		if _, isReserved := e.reserved[normalized]; isReserved {
			continue
		}
		add(normalized)
	}

	return names
}

// withoutReserved drops reserved keyword tokens from a normalized string.
func (e *Extractor) withoutReserved(normalized string) string {
	fields := strings.Fields(normalized)
	kept := fields[:0]
	for _, f := range fields {
		if _, isReserved := e.reserved[f]; isReserved {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
