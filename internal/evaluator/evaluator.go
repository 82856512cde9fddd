// Package evaluator implements the bid scoring function for the OpenLot
// marketplace. Evaluate is pure (no I/O, no shared state), so all bids of
// one auction can be scored independently and in any order.
//
// Scoring pipeline:
//  1. Weighted raw score over four clamped [0,100] signals
//  2. Risk gate (≥80 disqualifies) and risk penalty multiplier
//  3. Load penalty multiplier from the agent's active task count
//  4. Named optional boosts (safety layer, optimizer)
//  5. Deterministic textual explanation for the audit trail
package evaluator

import (
	"fmt"
	"strings"
	"time"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// Component weights of the raw score. They sum to 1 so the raw score stays
// within [0,100].
const (
	weightCapability = 0.35
	weightConfidence = 0.25
	weightPastRate   = 0.20
	weightRelevance  = 0.20
)

// Risk gate and penalty thresholds, checked in priority order.
const (
	riskDisqualifyAt   = 80.0
	riskHighAt         = 65.0
	riskModerateAt     = 50.0
	riskHighPenalty    = 0.6
	riskModeratePen    = 0.8
	loadHeavyAt        = 5
	loadElevatedAt     = 3
	loadHeavyPenalty   = 0.7
	loadElevatedPen    = 0.9
	defaultSafetyBoost = 1.2
)

// DisqualificationRiskReason is recorded on bids rejected by the risk gate.
const DisqualificationRiskReason = "Risk threshold exceeded (≥80)"

// Config names the optional boosts the evaluator applies. There is exactly
// one scoring formula; divergent models are expressed as boost entries here,
// never as a second evaluator.
type Config struct {
	// SafetyAgentID receives SafetyWeight. Defaults to the reserved
	// safety-layer identity.
	SafetyAgentID string
	SafetyWeight  float64

	// OptimizerAgentID receives OptimizerBoost when both are set.
	// Disabled by default.
	OptimizerAgentID string
	OptimizerBoost   float64
}

// DefaultConfig returns the standard boost set: safety layer at 1.2,
// optimizer disabled.
func DefaultConfig() Config {
	return Config{
		SafetyAgentID: models.SafetyLayerAgentID,
		SafetyWeight:  defaultSafetyBoost,
	}
}

// MaxBoost is the largest multiplier a single bid can receive, bounding
// FinalBid ≤ MaxBoost() × RawScore.
func (c Config) MaxBoost() float64 {
	max := 1.0
	if c.SafetyAgentID != "" && c.SafetyWeight > max {
		max = c.SafetyWeight
	}
	if c.OptimizerAgentID != "" && c.OptimizerBoost > max {
		max = c.OptimizerBoost
	}
	return max
}

// Evaluate scores a single bid against a task. taskComplexity is part of the
// evaluation contract for forward compatibility; the current formula weights
// only the agent-supplied signals.
func Evaluate(bid models.BidInput, taskComplexity float64, cfg Config) models.EvaluatedBid {
	_ = taskComplexity

	capability := clamp(bid.CapabilityMatch)
	confidence := clamp(bid.Confidence)
	pastRate := clamp(bid.PastSuccessRate)
	relevance := clamp(bid.ContextRelevance)
	risk := clamp(bid.Risk)
	activeTasks := bid.ActiveTasks
	if activeTasks < 0 {
		activeTasks = 0
	}

	raw := weightCapability*capability +
		weightConfidence*confidence +
		weightPastRate*pastRate +
		weightRelevance*relevance

	out := models.EvaluatedBid{
		AgentID:          bid.AgentID,
		RawScore:         raw,
		RiskMultiplier:   1.0,
		LoadMultiplier:   1.0,
		SafetyWeight:     1.0,
		OptimizerBoost:   1.0,
		Timestamp:        time.Now().UTC(),
		CapabilityMatch:  capability,
		Confidence:       confidence,
		PastSuccessRate:  pastRate,
		ContextRelevance: relevance,
		Risk:             risk,
		ActiveTasks:      activeTasks,
	}

	// Risk gate first: a disqualified bid keeps its raw score as the audit
	// FinalBid and receives no further multipliers.
	if risk >= riskDisqualifyAt {
		out.Disqualified = true
		out.DisqualificationReason = DisqualificationRiskReason
		out.FinalBid = raw
		out.Explanation = explain(out)
		return out
	}

	switch {
	case risk >= riskHighAt:
		out.RiskMultiplier = riskHighPenalty
	case risk >= riskModerateAt:
		out.RiskMultiplier = riskModeratePen
	}

	switch {
	case activeTasks >= loadHeavyAt:
		out.LoadMultiplier = loadHeavyPenalty
	case activeTasks >= loadElevatedAt:
		out.LoadMultiplier = loadElevatedPen
	}

	if cfg.SafetyAgentID != "" && bid.AgentID == cfg.SafetyAgentID {
		out.SafetyWeight = cfg.SafetyWeight
	}
	if cfg.OptimizerAgentID != "" && bid.AgentID == cfg.OptimizerAgentID && cfg.OptimizerBoost > 0 {
		out.OptimizerBoost = cfg.OptimizerBoost
	}

	out.FinalBid = raw * out.RiskMultiplier * out.LoadMultiplier * out.SafetyWeight * out.OptimizerBoost
	out.Explanation = explain(out)
	return out
}

// explain builds the ordered audit explanation: base score, then every
// multiplier that deviates from 1.0 in pipeline order, then the final bid.
func explain(b models.EvaluatedBid) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "base score %.2f", b.RawScore)

	if b.Disqualified {
		fmt.Fprintf(&sb, "; disqualified: %s", b.DisqualificationReason)
		fmt.Fprintf(&sb, "; final bid %.2f", b.FinalBid)
		return sb.String()
	}

	if b.RiskMultiplier != 1.0 {
		label := "moderate-risk penalty"
		if b.RiskMultiplier == riskHighPenalty {
			label = "high-risk penalty"
		}
		fmt.Fprintf(&sb, "; %s x%.2f", label, b.RiskMultiplier)
	}
	if b.LoadMultiplier != 1.0 {
		label := "load penalty"
		if b.LoadMultiplier == loadHeavyPenalty {
			label = "heavy-load penalty"
		}
		fmt.Fprintf(&sb, "; %s x%.2f", label, b.LoadMultiplier)
	}
	if b.SafetyWeight != 1.0 {
		fmt.Fprintf(&sb, "; safety-layer boost x%.2f", b.SafetyWeight)
	}
	if b.OptimizerBoost != 1.0 {
		fmt.Fprintf(&sb, "; optimizer boost x%.2f", b.OptimizerBoost)
	}
	fmt.Fprintf(&sb, "; final bid %.2f", b.FinalBid)
	return sb.String()
}

// RiskBandFor maps a bid's risk to the band label used in explainability
// reports, with the penalty wording attached to the band.
func RiskBandFor(risk float64) (models.RiskBand, string) {
	switch {
	case risk >= riskHighAt:
		return models.RiskBandHigh, "high risk: 40% bid penalty applied"
	case risk >= riskModerateAt:
		return models.RiskBandModerate, "moderate risk: 20% bid penalty applied"
	default:
		return models.RiskBandLow, "low risk: no penalty"
	}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
