package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

const riskyContract = `MASTER SERVICES AGREEMENT

The Supplier shall bear unlimited liability for any breach of this
Agreement. This Agreement shall automatically renew for successive
one-year terms unless either party gives notice. Supplier shall
indemnify and hold harmless the Customer from all claims. Payment is
due net 90 days from invoice.`

func TestEvaluate_EvidenceMatchesSpanSlice(t *testing.T) {
	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, DefaultCatalog())
	findings := svc.Evaluate(context.Background(), uuid.New(), riskyContract, chunking.PageMap{0}, nil)
	if len(findings) == 0 {
		t.Fatalf("expected findings for risky contract")
	}
	for _, f := range findings {
		if f.Span == nil {
			continue
		}
		got := riskyContract[f.Span.CharStart:f.Span.CharEnd]
		if got != f.EvidenceText {
			t.Fatalf("rule %s: evidence %q is not the text at its span %q", f.RuleID, f.EvidenceText, got)
		}
	}
}

func TestEvaluate_DetectsExpectedRules(t *testing.T) {
	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, DefaultCatalog())
	findings := svc.Evaluate(context.Background(), uuid.New(), riskyContract, chunking.PageMap{0}, nil)

	byRule := make(map[string]*types.AuditFinding)
	for _, f := range findings {
		byRule[f.RuleID] = f
	}
	for _, want := range []string{"R001", "R004", "R007", "R009"} {
		if byRule[want] == nil {
			t.Fatalf("expected rule %s to fire, got rules %v", want, ruleIDs(findings))
		}
	}
	if f := byRule["R001"]; f.Severity != types.SeverityCritical {
		t.Fatalf("R001 severity = %s, want critical", f.Severity)
	}
	if f := byRule["R001"]; !strings.Contains(f.EvidenceText, "unlimited liability") {
		t.Fatalf("R001 evidence %q does not contain the matched phrase", f.EvidenceText)
	}
}

func TestEvaluate_AbsenceRulesCarryNilSpan(t *testing.T) {
	text := "This short memo has no legal clauses at all."
	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, DefaultCatalog())
	findings := svc.Evaluate(context.Background(), uuid.New(), text, chunking.PageMap{0}, nil)

	var sawAbsence bool
	for _, f := range findings {
		if f.RuleID == "R005" || f.RuleID == "R008" || f.RuleID == "R010" {
			sawAbsence = true
			if f.Span != nil {
				t.Fatalf("rule %s fired on absence but carries a span %+v", f.RuleID, f.Span)
			}
			if f.EvidenceText != "" {
				t.Fatalf("rule %s fired on absence but carries evidence %q", f.RuleID, f.EvidenceText)
			}
		}
	}
	if !sawAbsence {
		t.Fatalf("expected at least one absence-style finding, got rules %v", ruleIDs(findings))
	}
}

func TestEvaluate_OneFailingRuleDoesNotPoisonTheRest(t *testing.T) {
	catalog := &Catalog{
		Version: "test",
		Rules: []Rule{
			{
				ID: "T001", Name: "Always errors", Severity: types.SeverityLow, Enabled: true,
				Eval: func(RuleInput) ([]RuleMatch, error) {
					return nil, errors.New("boom")
				},
			},
			{
				ID: "T002", Name: "Always panics", Severity: types.SeverityLow, Enabled: true,
				Eval: func(RuleInput) ([]RuleMatch, error) {
					panic("rule bug")
				},
			},
			{
				ID: "T003", Name: "Always fires", Severity: types.SeverityHigh, Enabled: true,
				Eval: func(RuleInput) ([]RuleMatch, error) {
					return []RuleMatch{{Description: "found it"}}, nil
				},
			},
		},
	}
	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, catalog)
	findings := svc.Evaluate(context.Background(), uuid.New(), "text", chunking.PageMap{0}, nil)
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding, got %d (%v)", len(findings), ruleIDs(findings))
	}
	if findings[0].RuleID != "T003" {
		t.Fatalf("surviving finding came from %s, want T003", findings[0].RuleID)
	}
}

func TestEvaluate_DisabledRulesAreSkipped(t *testing.T) {
	catalog := DefaultCatalog()
	for i := range catalog.Rules {
		if catalog.Rules[i].ID == "R001" {
			catalog.Rules[i].Enabled = false
		}
	}
	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, catalog)
	findings := svc.Evaluate(context.Background(), uuid.New(), riskyContract, chunking.PageMap{0}, nil)
	for _, f := range findings {
		if f.RuleID == "R001" {
			t.Fatalf("disabled rule R001 still fired")
		}
	}
}

func TestEvaluate_LiabilityCapRules(t *testing.T) {
	capAmount := 5000.0
	fields := &types.ExtractedField{LiabilityCapAmount: &capAmount, LiabilityCapCurrency: "USD"}
	text := "The Supplier's aggregate liability shall not exceed the cap stated herein."

	svc := NewAuditService(newTestLogger(t), metrics.Noop{}, DefaultCatalog())
	findings := svc.Evaluate(context.Background(), uuid.New(), text, chunking.PageMap{0}, fields)

	byRule := make(map[string]bool)
	for _, f := range findings {
		byRule[f.RuleID] = true
	}
	if byRule["R002"] {
		t.Fatalf("R002 (missing cap) must not fire when a cap is present")
	}
	if !byRule["R003"] {
		t.Fatalf("R003 (low cap) should fire for a 5000 cap, got %v", ruleIDs(findings))
	}
}

func TestCatalogApply_Overrides(t *testing.T) {
	catalog := DefaultCatalog()
	cfg := &CatalogConfig{}
	disabled := false
	cfg.Rules = append(cfg.Rules, struct {
		ID       string `yaml:"id"`
		Enabled  *bool  `yaml:"enabled"`
		Severity string `yaml:"severity"`
	}{ID: "R009", Enabled: &disabled, Severity: "high"})
	cfg.Rules = append(cfg.Rules, struct {
		ID       string `yaml:"id"`
		Enabled  *bool  `yaml:"enabled"`
		Severity string `yaml:"severity"`
	}{ID: "R999", Severity: "critical"})

	catalog.Apply(cfg)
	for _, r := range catalog.Rules {
		if r.ID == "R009" {
			if r.Enabled {
				t.Fatalf("R009 should be disabled by override")
			}
			if r.Severity != types.SeverityHigh {
				t.Fatalf("R009 severity = %s, want high", r.Severity)
			}
		}
	}
}

func ruleIDs(findings []*types.AuditFinding) []string {
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.RuleID
	}
	return ids
}
