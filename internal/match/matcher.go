// Package match scores extracted payer names against the company registry.
package match

import (
	"math"
	"sort"
	"strings"

	"github.com/amplafin/contaflow/internal/extract"
	"github.com/amplafin/contaflow/internal/model"
)

// Score constants. Partner scores are proportional to token overlap; company
// name hits are near-certain and scored above the partner ceiling.
const (
	scoreExact     = 100
	scoreTradeName = 95
	scoreLegalName = 90
	surnameBonus   = 15

	// MinScore is the floor below which a hit is noise, not a candidate.
	MinScore = 40
)

// Matcher resolves payer names to registry companies.
type Matcher struct {
	companies []model.Company
}

// NewMatcher builds a matcher over the active company registry.
func NewMatcher(companies []model.Company) *Matcher {
	return &Matcher{companies: companies}
}

// Result holds the scored candidates for one transaction.
type Result struct {
	Matches    []model.CandidateMatch
	Confidence float64
}

// Best returns the top candidate, or nil when nothing matched.
func (r *Result) Best() *model.CandidateMatch {
	if len(r.Matches) == 0 {
		return nil
	}
	return &r.Matches[0]
}

// UniqueCompanies returns the distinct company IDs among the candidates, in
// score order. More than one company means the payer identity is ambiguous.
func (r *Result) UniqueCompanies() []string {
	seen := make(map[string]struct{})
	ids := []string{}
	for _, m := range r.Matches {
		if _, dup := seen[m.CompanyID]; dup {
			continue
		}
		seen[m.CompanyID] = struct{}{}
		ids = append(ids, m.CompanyID)
	}
	return ids
}

// Match scores every extracted name against every company and partner,
// deduplicates by (company, name) keeping the best score, and sorts the
// survivors descending. Confidence is the best score scaled to 0..1.
func (m *Matcher) Match(names []string) Result {
	best := make(map[string]model.CandidateMatch)

	for _, name := range names {
		searchTokens := tokenize(name, 3)
		if len(searchTokens) == 0 {
			continue
		}

		for i := range m.companies {
			company := &m.companies[i]
			if !company.IsActive {
				continue
			}

			if score := m.scoreCompanyName(name, searchTokens, company.LegalName, scoreLegalName); score >= MinScore {
				keep(best, model.CandidateMatch{
					Name:         name,
					CompanyID:    company.ID,
					CompanyName:  company.LegalName,
					Relationship: "company",
					Score:        score,
				})
			}
			if company.TradeName != "" {
				if score := m.scoreCompanyName(name, searchTokens, company.TradeName, scoreTradeName); score >= MinScore {
					keep(best, model.CandidateMatch{
						Name:         name,
						CompanyID:    company.ID,
						CompanyName:  company.LegalName,
						Relationship: "trade_name",
						Score:        score,
					})
				}
			}

			for _, partner := range company.Partners {
				if score := scorePartner(name, searchTokens, partner.Name); score >= MinScore {
					relationship := partner.Role
					if relationship == "" {
						relationship = "partner"
					}
					keep(best, model.CandidateMatch{
						Name:         name,
						CompanyID:    company.ID,
						CompanyName:  company.LegalName,
						Relationship: relationship,
						Score:        score,
					})
				}
			}
		}
	}

	matches := make([]model.CandidateMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].CompanyName != matches[j].CompanyName {
			return matches[i].CompanyName < matches[j].CompanyName
		}
		return matches[i].Name < matches[j].Name
	})

	result := Result{Matches: matches}
	if len(matches) > 0 {
		result.Confidence = float64(matches[0].Score) / 100.0
	}
	return result
}

// scoreCompanyName scores a search name against a company legal or trade
// name. Exact normalized equality is certainty; otherwise at least two tokens
// must overlap for the near-certain hit score.
func (m *Matcher) scoreCompanyName(name string, searchTokens []string, companyName string, hitScore int) int {
	normalized := extract.Normalize(companyName)
	if normalized == "" {
		return 0
	}
	if normalized == name {
		return scoreExact
	}

	targetTokens := tokenize(normalized, 2)
	if matchedTokens(searchTokens, targetTokens) >= 2 {
		return hitScore
	}
	return 0
}

// scorePartner scores a search name against one partner name. Equality is
// 100; otherwise the score is proportional to token overlap with a bonus
// when the surnames agree.
func scorePartner(name string, searchTokens []string, partnerName string) int {
	normalized := extract.Normalize(partnerName)
	if normalized == "" {
		return 0
	}
	if normalized == name {
		return scoreExact
	}

	partnerTokens := tokenize(normalized, 2)
	if len(partnerTokens) == 0 {
		return 0
	}

	matched := matchedTokens(searchTokens, partnerTokens)
	if matched == 0 {
		return 0
	}

	denom := len(searchTokens)
	if len(partnerTokens) > denom {
		denom = len(partnerTokens)
	}
	score := int(math.Round(float64(matched) / float64(denom) * 80))

	if tokensOverlap(searchTokens[len(searchTokens)-1], partnerTokens[len(partnerTokens)-1]) {
		score += surnameBonus
	}
	if score > scoreExact {
		score = scoreExact
	}
	return score
}

// matchedTokens counts search tokens that overlap any target token.
func matchedTokens(searchTokens, targetTokens []string) int {
	matched := 0
	for _, s := range searchTokens {
		for _, t := range targetTokens {
			if tokensOverlap(s, t) {
				matched++
				break
			}
		}
	}
	return matched
}

// tokensOverlap reports whether either token contains the other.
func tokensOverlap(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func tokenize(normalized string, minLen int) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= minLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func keep(best map[string]model.CandidateMatch, candidate model.CandidateMatch) {
	key := candidate.CompanyID + "\x00" + candidate.Name
	if existing, ok := best[key]; !ok || candidate.Score > existing.Score {
		best[key] = candidate
	}
}
