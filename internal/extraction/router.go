package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/conceptgraph-backend/internal/budget"
	"github.com/yungbote/conceptgraph-backend/internal/dispatch"
	pkgerrors "github.com/yungbote/conceptgraph-backend/internal/pkg/errors"
	"github.com/yungbote/conceptgraph-backend/internal/pkg/logger"
	"github.com/yungbote/conceptgraph-backend/internal/platform/envutil"
	"github.com/yungbote/conceptgraph-backend/internal/segment"
	"github.com/yungbote/conceptgraph-backend/internal/types"
)

// Caller is the dispatcher surface the router needs; satisfied by
// *dispatch.Dispatcher.
type Caller interface {
	Dispatch(ctx context.Context, tier types.Tier, req dispatch.Request) (dispatch.Result, error)
}

// RouteResult is the per-segment extraction outcome with tier provenance.
type RouteResult struct {
	Candidates []types.Candidate
	Tier       types.Tier
	Calls      map[types.Tier]int
	Cost       float64
}

type Router struct {
	log        *logger.Logger
	thresholds DensityThresholds
	ledger     *budget.Ledger
	caller     Caller
	fallback   Extractor
	maxTokens  int
}

func NewRouter(baseLog *logger.Logger, thresholds DensityThresholds, ledger *budget.Ledger, caller Caller, fallback Extractor) *Router {
	return &Router{
		log:        baseLog.With("service", "ExtractionRouter"),
		thresholds: thresholds,
		ledger:     ledger,
		caller:     caller,
		fallback:   fallback,
		maxTokens:  envutil.Int("EXTRACT_MAX_TOKENS", 800),
	}
}

// TierForDensity maps the probe's estimate onto an inference tier.
func (r *Router) TierForDensity(density float64) types.Tier {
	switch {
	case density < r.thresholds.Low:
		return types.TierNone
	case density <= r.thresholds.High:
		return types.TierCheap
	default:
		return types.TierExpensive
	}
}

// ExtractSegment routes one segment. Budget exhaustion and transient
// dispatch failures degrade one tier down rather than failing the segment;
// the no-inference path always succeeds.
func (r *Router) ExtractSegment(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment, docBudget *budget.DocBudget) RouteResult {
	return r.extract(ctx, documentID, tenantID, seg, docBudget, r.TierForDensity(EstimateDensity(seg.Text)))
}

// ExtractSegmentEscalated re-runs a segment one tier above its routed tier.
// Used for the single gate-floor retry pass.
func (r *Router) ExtractSegmentEscalated(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment, docBudget *budget.DocBudget) RouteResult {
	tier := types.EscalatedTier(r.TierForDensity(EstimateDensity(seg.Text)))
	return r.extract(ctx, documentID, tenantID, seg, docBudget, tier)
}

func (r *Router) extract(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment, docBudget *budget.DocBudget, tier types.Tier) RouteResult {
	result := RouteResult{Calls: map[types.Tier]int{}}

	for tier != types.TierNone {
		cands, cost, calls, err := r.extractPaid(ctx, documentID, tenantID, seg, tier, docBudget)
		result.Calls[tier] += calls
		result.Cost += cost
		if err == nil {
			result.Candidates = cands
			result.Tier = tier
			return result
		}
		r.log.Debug("tier degraded for segment",
			"segment", seg.Index,
			"tier", tier,
			"error", err,
		)
		tier = types.CheaperTier(tier)
	}

	result.Candidates = r.fallback.Extract(ctx, documentID, tenantID, seg)
	result.Tier = types.TierNone
	return result
}

// extractPaid runs one segment through a paid tier, with the
// retry-once / refund-then-reconsume semantics for provider failures.
// A malformed body counts as a provider failure: it gets the same single
// same-tier retry before the caller degrades the tier.
func (r *Router) extractPaid(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment, tier types.Tier, docBudget *budget.DocBudget) ([]types.Candidate, float64, int, error) {
	if !docBudget.TryConsume(tier, 1) {
		return nil, 0, 0, fmt.Errorf("document cap reached for tier %s: %w", tier, pkgerrors.ErrBudgetExhausted)
	}
	if _, ok := r.ledger.Consume(ctx, tenantID, tier, 1, 0); !ok {
		docBudget.Refund(tier, 1)
		return nil, 0, 0, fmt.Errorf("daily quota reached for tier %s: %w", tier, pkgerrors.ErrBudgetExhausted)
	}

	var totalCost float64
	cands, cost, err := r.attempt(ctx, documentID, tenantID, seg, tier, docBudget, dispatch.PriorityFirstPass)
	totalCost += cost
	calls := 1
	if err != nil {
		var pe *dispatch.ProviderError
		if !errors.As(err, &pe) {
			// Rate-limit or circuit-open: transient, not worth a same-tier
			// retry. Refund and let the caller degrade.
			r.ledger.Refund(ctx, tenantID, tier, 1, 0)
			docBudget.Refund(tier, 1)
			return nil, totalCost, calls, err
		}

		// Provider failure: refund the failed charge, reconsume for a single
		// same-tier retry at retry priority.
		r.ledger.Refund(ctx, tenantID, tier, 1, 0)
		if _, ok := r.ledger.Consume(ctx, tenantID, tier, 1, 0); !ok {
			docBudget.Refund(tier, 1)
			return nil, totalCost, calls, fmt.Errorf("quota lost before retry: %w", pkgerrors.ErrBudgetExhausted)
		}
		cands, cost, err = r.attempt(ctx, documentID, tenantID, seg, tier, docBudget, dispatch.PriorityRetry)
		totalCost += cost
		calls++
		if err != nil {
			r.ledger.Refund(ctx, tenantID, tier, 1, 0)
			docBudget.Refund(tier, 1)
			return nil, totalCost, calls, err
		}
	}
	return cands, totalCost, calls, nil
}

// attempt is one dispatch-and-parse round. A malformed body is returned as a
// ProviderError; its billed cost stands either way, only the quota charge is
// refundable by the caller.
func (r *Router) attempt(ctx context.Context, documentID uuid.UUID, tenantID string, seg segment.Segment, tier types.Tier, docBudget *budget.DocBudget, priority dispatch.Priority) ([]types.Candidate, float64, error) {
	res, err := r.caller.Dispatch(ctx, tier, dispatch.Request{
		TenantID:   tenantID,
		DocumentID: documentID,
		System:     extractionSystemPrompt,
		User:       extractionUserPrompt(seg),
		MaxTokens:  r.maxTokens,
		Priority:   priority,
	})
	if err != nil {
		return nil, 0, err
	}

	r.ledger.RecordCost(ctx, tenantID, tier, res.Cost)
	docBudget.AddCost(res.Cost)

	cands, perr := parseCandidates(res.Text, documentID, tenantID, seg.Index, tier)
	if perr != nil {
		return nil, res.Cost, &dispatch.ProviderError{Err: perr}
	}
	return cands, res.Cost, nil
}

const extractionSystemPrompt = `You extract named domain concepts from text.
Respond with a JSON array only. Each element: {"name": string, "type": string, "confidence": number between 0 and 1}.
Extract products, technologies, organizations, and domain terms. No prose.`

func extractionUserPrompt(seg segment.Segment) string {
	var b strings.Builder
	if seg.Section != "" {
		b.WriteString("Section: ")
		b.WriteString(seg.Section)
		b.WriteString("\n")
	}
	if seg.Language != "" {
		b.WriteString("Language: ")
		b.WriteString(seg.Language)
		b.WriteString("\n")
	}
	b.WriteString("Text:\n")
	b.WriteString(seg.Text)
	return b.String()
}

func parseCandidates(raw string, documentID uuid.UUID, tenantID string, segmentIndex int, tier types.Tier) ([]types.Candidate, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "["); i >= 0 {
		if j := strings.LastIndex(raw, "]"); j > i {
			raw = raw[i : j+1]
		}
	}
	var parsed []struct {
		Name       string  `json:"name"`
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed extraction response: %w", err)
	}

	out := make([]types.Candidate, 0, len(parsed))
	seen := map[string]bool{}
	for _, p := range parsed {
		name := strings.TrimSpace(p.Name)
		norm := strings.ToLower(name)
		if name == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		conf := p.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		out = append(out, types.Candidate{
			RawText:      name,
			Norm:         norm,
			EntityType:   strings.TrimSpace(p.Type),
			Confidence:   conf,
			SegmentIndex: segmentIndex,
			DocumentID:   documentID,
			TenantID:     tenantID,
			Tier:         tier,
		})
	}
	return out, nil
}
