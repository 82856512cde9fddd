// Package models defines the domain types for the OpenLot marketplace:
// tasks, bids, auction sessions, archive entries, and analytics reports.
//
// Types here are plain data. Scoring lives in internal/evaluator, the
// session lifecycle in internal/auction, persistence in internal/archive.
package models

import (
	"errors"
	"strings"
	"time"
)

// SafetyLayerAgentID is the reserved identity of the safety-layer agent.
// Bids submitted under this identity receive a fixed scoring boost.
const SafetyLayerAgentID = "safety_layer"

// ── Task ─────────────────────────────────────────────────────

// Task is a unit of work offered to competing agents.
// Immutable once created; supplied by the caller.
type Task struct {
	ID          string    `json:"id"`
	Workspace   string    `json:"workspace"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Complexity  float64   `json:"complexity"` // 0-100
	Domains     []string  `json:"domains"`
	TimeoutMs   int64     `json:"timeout_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields a task must carry before an auction can open.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("task id is required")
	}
	if strings.TrimSpace(t.Workspace) == "" {
		return errors.New("task workspace is required")
	}
	if len(t.Domains) == 0 {
		return errors.New("task must declare at least one domain")
	}
	return nil
}

// ── Bids ─────────────────────────────────────────────────────

// BidInput is the signal vector one agent submits for one task.
type BidInput struct {
	AgentID                 string   `json:"agent_id"`
	CapabilityMatch         float64  `json:"capability_match"`  // 0-100
	Confidence              float64  `json:"confidence"`        // 0-100
	PastSuccessRate         float64  `json:"past_success_rate"` // 0-100
	ContextRelevance        float64  `json:"context_relevance"` // 0-100
	Risk                    float64  `json:"risk"`              // 0-100
	ActiveTasks             int      `json:"active_tasks"`
	RecommendsCollaboration bool     `json:"recommends_collaboration,omitempty"`
	CollaborationPartners   []string `json:"collaboration_partners,omitempty"`
}

// EvaluatedBid is the scored form of a BidInput. It is written once by the
// evaluator and never mutated afterward. Disqualified bids keep their
// computed FinalBid for auditing but are excluded from winner eligibility.
type EvaluatedBid struct {
	AgentID                string    `json:"agent_id"`
	RawScore               float64   `json:"raw_score"`
	FinalBid               float64   `json:"final_bid"`
	Disqualified           bool      `json:"disqualified"`
	DisqualificationReason string    `json:"disqualification_reason,omitempty"`
	RiskMultiplier         float64   `json:"risk_multiplier"`
	LoadMultiplier         float64   `json:"load_multiplier"`
	SafetyWeight           float64   `json:"safety_weight"`
	OptimizerBoost         float64   `json:"optimizer_boost"`
	Explanation            string    `json:"explanation"`
	Timestamp              time.Time `json:"timestamp"`

	// Clamped input snapshot, kept for the explainability report.
	CapabilityMatch  float64 `json:"capability_match"`
	Confidence       float64 `json:"confidence"`
	PastSuccessRate  float64 `json:"past_success_rate"`
	ContextRelevance float64 `json:"context_relevance"`
	Risk             float64 `json:"risk"`
	ActiveTasks      int     `json:"active_tasks"`
}

// ── Auction Session ──────────────────────────────────────────

type AuctionStatus string

const (
	AuctionPending    AuctionStatus = "PENDING"
	AuctionBidding    AuctionStatus = "BIDDING"
	AuctionEvaluating AuctionStatus = "EVALUATING"
	AuctionCompleted  AuctionStatus = "COMPLETED"
	AuctionCancelled  AuctionStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

// RiskBand labels the winner's risk exposure in the explainability report.
type RiskBand string

const (
	RiskBandLow      RiskBand = "LOW"
	RiskBandModerate RiskBand = "MODERATE"
	RiskBandHigh     RiskBand = "HIGH"
)

// Alternative is a runner-up entry in the explainability report.
type Alternative struct {
	AgentID  string  `json:"agent_id"`
	FinalBid float64 `json:"final_bid"`
	Gap      float64 `json:"gap"` // winner.FinalBid - FinalBid
}

// ExplainabilityReport justifies a winner selection.
type ExplainabilityReport struct {
	Rationale    string        `json:"rationale"`
	RiskBand     RiskBand      `json:"risk_band"`
	RiskNote     string        `json:"risk_note"`
	Alternatives []Alternative `json:"alternatives,omitempty"` // at most 3
}

// AuctionSession is the aggregate root for one task's auction. It is created
// PENDING, mutated only by the engine's single evaluation pass, and becomes
// immutable once Status is terminal. WinningAgentID is set iff COMPLETED.
type AuctionSession struct {
	ID                    string                `json:"id"`
	TaskID                string                `json:"task_id"`
	Workspace             string                `json:"workspace"`
	Task                  Task                  `json:"task"`
	Status                AuctionStatus         `json:"status"`
	Bids                  []EvaluatedBid        `json:"bids"`
	WinningAgentID        string                `json:"winning_agent_id,omitempty"`
	WinningBid            float64               `json:"winning_bid,omitempty"`
	PricePaid             float64               `json:"price_paid,omitempty"`
	BundleUsed            bool                  `json:"bundle_used"`
	SafetyFilterTriggered bool                  `json:"safety_filter_triggered"`
	Explainability        *ExplainabilityReport `json:"explainability,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	CompletedAt           *time.Time            `json:"completed_at,omitempty"`
}

// Margin is the score gap between the winner and the best losing qualified
// bid. Zero when there was no runner-up.
func (s *AuctionSession) Margin() float64 {
	if s.Status != AuctionCompleted {
		return 0
	}
	best := 0.0
	found := false
	for _, b := range s.Bids {
		if b.Disqualified || b.AgentID == s.WinningAgentID {
			continue
		}
		if !found || b.FinalBid > best {
			best = b.FinalBid
			found = true
		}
	}
	if !found {
		return 0
	}
	return s.WinningBid - best
}

// QualifiedBidCount counts bids eligible for winner selection.
func (s *AuctionSession) QualifiedBidCount() int {
	n := 0
	for _, b := range s.Bids {
		if !b.Disqualified {
			n++
		}
	}
	return n
}

// ── Archive ──────────────────────────────────────────────────

// Outcome is the downstream execution result of an awarded task.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeFailure        Outcome = "failure"
)

// ValidOutcome reports whether o is one of the three known outcomes.
func ValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeSuccess, OutcomePartialSuccess, OutcomeFailure:
		return true
	}
	return false
}

// ArchiveEntry is the flattened, durable snapshot of a completed auction.
// Created once at archival time; never updated.
type ArchiveEntry struct {
	AuctionID             string    `json:"auction_id"`
	TaskID                string    `json:"task_id"`
	Workspace             string    `json:"workspace"`
	WinningAgentID        string    `json:"winning_agent_id"`
	WinningBid            float64   `json:"winning_bid"`
	PricePaid             float64   `json:"price_paid"`
	Margin                float64   `json:"margin"`
	BidCount              int       `json:"bid_count"`
	QualifiedBids         int       `json:"qualified_bids"`
	Complexity            float64   `json:"complexity"`
	BundleUsed            bool      `json:"bundle_used"`
	SafetyFilterTriggered bool      `json:"safety_filter_triggered"`
	Outcome               Outcome   `json:"outcome"`
	ExecutionMs           int64     `json:"execution_ms"`
	Explanation           string    `json:"explanation,omitempty"`
	ArchivedAt            time.Time `json:"archived_at"`
}

// ── Patterns & Analytics ─────────────────────────────────────

type PatternType string

const (
	PatternAgentDominance        PatternType = "agent_dominance"
	PatternLoadSensitivity       PatternType = "load_sensitivity"
	PatternComplexityCorrelation PatternType = "complexity_correlation"
	PatternCollaborationBenefit  PatternType = "collaboration_benefit"
	PatternRiskFiltering         PatternType = "risk_filtering_effectiveness"
)

// MarketplacePattern is a recurring structure mined from archived auctions.
// Recomputed on demand from a history window; a report, not a source of truth.
type MarketplacePattern struct {
	ID          string      `json:"id"`
	Type        PatternType `json:"type"`
	AgentIDs    []string    `json:"agent_ids,omitempty"`
	Frequency   int         `json:"frequency"`
	SuccessRate float64     `json:"success_rate"`
	KeyInsight  string      `json:"key_insight"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// AuctionAnalytics is the per-workspace rollup over an archive window.
// All counts are zero and all maps empty for an empty window.
type AuctionAnalytics struct {
	Workspace            string               `json:"workspace"`
	TotalAuctions        int                  `json:"total_auctions"`
	TotalBids            int                  `json:"total_bids"`
	AvgBidsPerAuction    float64              `json:"avg_bids_per_auction"`
	AvgWinningBid        float64              `json:"avg_winning_bid"`
	AgentWinRates        map[string]float64   `json:"agent_win_rates"`
	AvgWinningBidByBand  map[string]float64   `json:"avg_winning_bid_by_band"` // 20-point complexity bands
	SafetyFilterTriggers int                  `json:"safety_filter_triggers"`
	BundledAuctions      int                  `json:"bundled_auctions"`
	Patterns             []MarketplacePattern `json:"patterns"`
	GeneratedAt          time.Time            `json:"generated_at"`
}

// ComplexityBand buckets a complexity value into a 20-point band label,
// e.g. 47 → "40-59". Values at or above 80 fall in "80-99".
func ComplexityBand(complexity float64) string {
	switch {
	case complexity < 20:
		return "0-19"
	case complexity < 40:
		return "20-39"
	case complexity < 60:
		return "40-59"
	case complexity < 80:
		return "60-79"
	default:
		return "80-99"
	}
}
