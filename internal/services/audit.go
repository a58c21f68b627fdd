package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/digvijay2003/contract-intelligence-api/internal/chunking"
	"github.com/digvijay2003/contract-intelligence-api/internal/logger"
	"github.com/digvijay2003/contract-intelligence-api/internal/observability/metrics"
	"github.com/digvijay2003/contract-intelligence-api/internal/types"
)

// AuditService runs the rule catalog against one document. A rule that
// errors or panics is isolated: it is logged and counted, the other
// rules still run, and the document never fails because of it.
type AuditService interface {
	Evaluate(ctx context.Context, documentID uuid.UUID, fullText string, pages chunking.PageMap, fields *types.ExtractedField) []*types.AuditFinding
}

type auditService struct {
	log     *logger.Logger
	metrics metrics.Recorder
	catalog *Catalog
}

func NewAuditService(baseLog *logger.Logger, recorder metrics.Recorder, catalog *Catalog) AuditService {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &auditService{
		log:     baseLog.With("service", "AuditService", "catalog_version", catalog.Version),
		metrics: recorder,
		catalog: catalog,
	}
}

func (s *auditService) Evaluate(ctx context.Context, documentID uuid.UUID, fullText string, pages chunking.PageMap, fields *types.ExtractedField) []*types.AuditFinding {
	in := RuleInput{FullText: fullText, Pages: pages, Fields: fields}

	// Rules are independent, so evaluate them concurrently; results are
	// collected per rule slot to keep catalog order deterministic.
	results := make([][]RuleMatch, len(s.catalog.Rules))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range s.catalog.Rules {
		rule := s.catalog.Rules[i]
		if !rule.Enabled {
			continue
		}
		slot := i
		g.Go(func() error {
			matches, err := s.evalOne(rule, in)
			if err != nil {
				s.log.Warn("Audit rule failed; continuing with remaining rules",
					"document_id", documentID,
					"rule_id", rule.ID,
					"error", err,
				)
				s.metrics.RuleFailure(rule.ID)
				return nil
			}
			results[slot] = matches
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now()
	var findings []*types.AuditFinding
	for i, matches := range results {
		rule := s.catalog.Rules[i]
		for _, m := range matches {
			findings = append(findings, &types.AuditFinding{
				ID:           uuid.New(),
				DocumentID:   documentID,
				RuleID:       rule.ID,
				RuleName:     rule.Name,
				Severity:     rule.Severity,
				Description:  m.Description,
				EvidenceText: m.Evidence,
				Span:         m.Span,
				DetectedAt:   now,
			})
		}
	}
	return findings
}

// evalOne shields the engine from a misbehaving rule.
func (s *auditService) evalOne(rule Rule, in RuleInput) (matches []RuleMatch, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches = nil
			err = fmt.Errorf("rule %s panicked: %v", rule.ID, r)
		}
	}()
	matches, err = rule.Eval(in)
	if err != nil {
		return nil, err
	}

	// Drop matches whose span does not actually locate their evidence;
	// a finding with no locatable evidence keeps a nil span instead.
	valid := matches[:0]
	for _, m := range matches {
		if m.Span != nil {
			if !m.Span.Valid() || m.Span.CharEnd > len(in.FullText) || in.FullText[m.Span.CharStart:m.Span.CharEnd] != m.Evidence {
				m.Span = nil
				m.Evidence = ""
			}
		}
		valid = append(valid, m)
	}
	return valid, nil
}
