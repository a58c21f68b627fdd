package services

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// CatalogVersion identifies the shipped rule set. Identical text,
// fields, and catalog version always produce the identical finding set.
const CatalogVersion = "v1"

// RuleInput is everything a rule may look at. Rules are pure functions
// of this input and share no mutable state.
type RuleInput struct {
	FullText string
	Pages    chunking.PageMap
	Fields   *types.ExtractedField
}

// RuleMatch is one hit produced by a rule. Span is nil when the rule
// fired on the absence of something and has no text to point at.
type RuleMatch struct {
	Description string
	Evidence    string
	Span        *types.Span
}

type Rule struct {
	ID       string
	Name     string
	Severity types.RiskSeverity
	Enabled  bool
	Eval     func(in RuleInput) ([]RuleMatch, error)
}

type Catalog struct {
	Version string
	Rules   []Rule
}

// evidenceAt anchors a case-insensitive pattern in the text, widening
// the match to at most window bytes of context clamped to the page the
// match starts on. The returned evidence is always the verbatim
// substring at the span.
func evidenceAt(in RuleInput, pattern *regexp.Regexp, window int) (string, *types.Span) {
	loc := pattern.FindStringIndex(in.FullText)
	if loc == nil {
		return "", nil
	}
	start, end := loc[0], loc[1]
	if window > 0 && end-start < window {
		pad := (window - (end - start)) / 2
		start -= pad
		end += pad
	}
	if start < 0 {
		start = 0
	}
	if end > len(in.FullText) {
		end = len(in.FullText)
	}

	// Clamp to the page the match starts on so evidence never crosses
	// a page boundary.
	page := in.Pages.PageFor(loc[0])
	pageStart, pageEnd := pageBounds(in, page)
	if start < pageStart {
		start = pageStart
	}
	if end > pageEnd {
		end = pageEnd
	}
	if end <= start {
		return "", nil
	}

	// The pad widening is byte-based and can land mid-rune; snap
	// outward so the evidence never starts or ends with a broken
	// character. Page bounds are rune boundaries already.
	for start > pageStart && !utf8.RuneStart(in.FullText[start]) {
		start--
	}
	for end < pageEnd && !utf8.RuneStart(in.FullText[end]) {
		end++
	}

	span := types.NewSpan(page, start, end)
	return in.FullText[start:end], &span
}

func pageBounds(in RuleInput, page int) (int, int) {
	if len(in.Pages) == 0 {
		return 0, len(in.FullText)
	}
	start := in.Pages[page]
	end := len(in.FullText)
	if page+1 < len(in.Pages) {
		end = in.Pages[page+1]
	}
	return start, end
}

const evidenceWindow = 160

var (
	reUnlimitedLiability = regexp.MustCompile(`(?i)unlimited liabilit\w*`)
	reLiability          = regexp.MustCompile(`(?i)liabilit\w*`)
	reAutoRenew          = regexp.MustCompile(`(?i)automatic\w*\s+renew\w*|auto-?renew\w*`)
	reGoverningLaw       = regexp.MustCompile(`(?i)governing law|governed by the laws? of`)
	reTerminateConv      = regexp.MustCompile(`(?i)terminat\w*[^.]{0,80}(for convenience|without cause)`)
	reIndemnifyBroad     = regexp.MustCompile(`(?i)indemnif\w*[^.]{0,60}hold\w*\s+harmless`)
	reConfidential       = regexp.MustCompile(`(?i)confidential\w*`)
	rePaymentNetDays     = regexp.MustCompile(`(?i)net\s+(\d{1,3})\b`)
	reSignature          = regexp.MustCompile(`(?i)signed by|signature|/s/`)
)

// DefaultCatalog is the shipped audit rule set. Rules only read their
// input; absence-style rules return a nil span rather than inventing
// evidence.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: CatalogVersion,
		Rules: []Rule{
			{
				ID: "R001", Name: "Unlimited liability", Severity: types.SeverityCritical, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					ev, span := evidenceAt(in, reUnlimitedLiability, evidenceWindow)
					if span == nil {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "The contract appears to expose a party to unlimited liability.",
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R002", Name: "Missing liability cap", Severity: types.SeverityHigh, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					if in.Fields != nil && in.Fields.LiabilityCapAmount != nil {
						return nil, nil
					}
					ev, span := evidenceAt(in, reLiability, evidenceWindow)
					return []RuleMatch{{
						Description: "No enforceable liability cap was extracted from the contract.",
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R003", Name: "Low liability cap", Severity: types.SeverityMedium, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					if in.Fields == nil || in.Fields.LiabilityCapAmount == nil {
						return nil, nil
					}
					amount := *in.Fields.LiabilityCapAmount
					if amount >= 10000 {
						return nil, nil
					}
					ev, span := evidenceAt(in, reLiability, evidenceWindow)
					return []RuleMatch{{
						Description: fmt.Sprintf("Liability cap of %.2f %s is unusually low.", amount, in.Fields.LiabilityCapCurrency),
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R004", Name: "Automatic renewal", Severity: types.SeverityMedium, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					ev, span := evidenceAt(in, reAutoRenew, evidenceWindow)
					if span == nil {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "The contract renews automatically; calendar the notice window to avoid lock-in.",
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R005", Name: "Missing governing law", Severity: types.SeverityMedium, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					hasField := in.Fields != nil && strings.TrimSpace(in.Fields.GoverningLaw) != ""
					if hasField || reGoverningLaw.MatchString(in.FullText) {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "No governing-law clause was found; dispute jurisdiction is undefined.",
					}}, nil
				},
			},
			{
				ID: "R006", Name: "No termination for convenience", Severity: types.SeverityMedium, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					if reTerminateConv.MatchString(in.FullText) {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "The contract grants no right to terminate for convenience.",
					}}, nil
				},
			},
			{
				ID: "R007", Name: "Broad indemnity", Severity: types.SeverityHigh, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					ev, span := evidenceAt(in, reIndemnifyBroad, evidenceWindow)
					if span == nil {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "Broad indemnify-and-hold-harmless language shifts open-ended risk.",
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R008", Name: "Missing confidentiality", Severity: types.SeverityHigh, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					hasField := in.Fields != nil && strings.TrimSpace(in.Fields.Confidentiality) != ""
					if hasField || reConfidential.MatchString(in.FullText) {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "No confidentiality obligations were found in the contract.",
					}}, nil
				},
			},
			{
				ID: "R009", Name: "Extended payment terms", Severity: types.SeverityLow, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					m := rePaymentNetDays.FindStringSubmatchIndex(in.FullText)
					if m == nil {
						return nil, nil
					}
					days, err := strconv.Atoi(in.FullText[m[2]:m[3]])
					if err != nil || days <= 60 {
						return nil, nil
					}
					ev, span := evidenceAt(in, rePaymentNetDays, evidenceWindow)
					return []RuleMatch{{
						Description: fmt.Sprintf("Payment terms of net %d days exceed the 60-day threshold.", days),
						Evidence:    ev,
						Span:        span,
					}}, nil
				},
			},
			{
				ID: "R010", Name: "Missing signatories", Severity: types.SeverityHigh, Enabled: true,
				Eval: func(in RuleInput) ([]RuleMatch, error) {
					if in.Fields != nil && len(in.Fields.Signatories) > 0 {
						var sigs []string
						if err := json.Unmarshal(in.Fields.Signatories, &sigs); err == nil && len(sigs) > 0 {
							return nil, nil
						}
					}
					if reSignature.MatchString(in.FullText) {
						return nil, nil
					}
					return []RuleMatch{{
						Description: "No signatories were identified; the contract may be unexecuted.",
					}}, nil
				},
			},
		},
	}
}

// CatalogConfig is the optional YAML tuning file: per-rule enablement
// and severity overrides. Absent entries keep catalog defaults.
type CatalogConfig struct {
	Rules []struct {
		ID       string `yaml:"id"`
		Enabled  *bool  `yaml:"enabled"`
		Severity string `yaml:"severity"`
	} `yaml:"rules"`
}

func LoadCatalogConfig(path string) (*CatalogConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg CatalogConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule catalog config: %w", err)
	}
	return &cfg, nil
}

// Apply mutates the catalog with the overrides from cfg. Unknown rule
// ids and invalid severities are ignored with the defaults kept.
func (c *Catalog) Apply(cfg *CatalogConfig) {
	if cfg == nil {
		return
	}
	byID := make(map[string]int, len(c.Rules))
	for i := range c.Rules {
		byID[c.Rules[i].ID] = i
	}
	for _, override := range cfg.Rules {
		i, ok := byID[override.ID]
		if !ok {
			continue
		}
		if override.Enabled != nil {
			c.Rules[i].Enabled = *override.Enabled
		}
		if override.Severity != "" {
			sev := types.RiskSeverity(strings.ToLower(override.Severity))
			if sev.Valid() {
				c.Rules[i].Severity = sev
			}
		}
	}
}
