package archive_test

import (
	"math"
	"testing"

	"github.com/openlot/openlot/marketplace/internal/archive"
	"github.com/openlot/openlot/marketplace/pkg/models"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestGenerateAnalytics_EmptyHistory(t *testing.T) {
	got := archive.GenerateAnalytics("ws", nil)

	if got.Workspace != "ws" {
		t.Errorf("Workspace = %q, want ws", got.Workspace)
	}
	if got.TotalAuctions != 0 || got.TotalBids != 0 {
		t.Errorf("totals = (%d, %d), want zeros", got.TotalAuctions, got.TotalBids)
	}
	if got.AvgBidsPerAuction != 0 || got.AvgWinningBid != 0 {
		t.Errorf("averages = (%v, %v), want zeros", got.AvgBidsPerAuction, got.AvgWinningBid)
	}
	if got.AgentWinRates == nil || len(got.AgentWinRates) != 0 {
		t.Errorf("AgentWinRates = %v, want empty map", got.AgentWinRates)
	}
	if got.AvgWinningBidByBand == nil || len(got.AvgWinningBidByBand) != 0 {
		t.Errorf("AvgWinningBidByBand = %v, want empty map", got.AvgWinningBidByBand)
	}
	if got.Patterns == nil || len(got.Patterns) != 0 {
		t.Errorf("Patterns = %v, want empty slice", got.Patterns)
	}
	if got.GeneratedAt.IsZero() {
		t.Error("GeneratedAt is zero")
	}
}

func TestGenerateAnalytics_Rollup(t *testing.T) {
	history := []models.ArchiveEntry{
		{
			AuctionID:      "a1",
			WinningAgentID: "agent-a",
			WinningBid:     80,
			BidCount:       4,
			Complexity:     30,
			Outcome:        models.OutcomeSuccess,
			BundleUsed:     true,
		},
		{
			AuctionID:             "a2",
			WinningAgentID:        "agent-a",
			WinningBid:            60,
			BidCount:              2,
			Complexity:            30,
			Outcome:               models.OutcomeFailure,
			SafetyFilterTriggered: true,
		},
		{
			AuctionID:      "a3",
			WinningAgentID: "agent-b",
			WinningBid:     40,
			BidCount:       3,
			Complexity:     85,
			Outcome:        models.OutcomeSuccess,
		},
	}

	got := archive.GenerateAnalytics("ws", history)

	if got.TotalAuctions != 3 {
		t.Errorf("TotalAuctions = %d, want 3", got.TotalAuctions)
	}
	if got.TotalBids != 9 {
		t.Errorf("TotalBids = %d, want 9", got.TotalBids)
	}
	if !almostEqual(got.AvgBidsPerAuction, 3) {
		t.Errorf("AvgBidsPerAuction = %v, want 3", got.AvgBidsPerAuction)
	}
	if !almostEqual(got.AvgWinningBid, 60) {
		t.Errorf("AvgWinningBid = %v, want 60", got.AvgWinningBid)
	}

	if !almostEqual(got.AgentWinRates["agent-a"], 2.0/3.0) {
		t.Errorf("AgentWinRates[agent-a] = %v, want 2/3", got.AgentWinRates["agent-a"])
	}
	if !almostEqual(got.AgentWinRates["agent-b"], 1.0/3.0) {
		t.Errorf("AgentWinRates[agent-b] = %v, want 1/3", got.AgentWinRates["agent-b"])
	}

	if !almostEqual(got.AvgWinningBidByBand["20-39"], 70) {
		t.Errorf("AvgWinningBidByBand[20-39] = %v, want 70", got.AvgWinningBidByBand["20-39"])
	}
	if !almostEqual(got.AvgWinningBidByBand["80-99"], 40) {
		t.Errorf("AvgWinningBidByBand[80-99] = %v, want 40", got.AvgWinningBidByBand["80-99"])
	}

	if got.SafetyFilterTriggers != 1 {
		t.Errorf("SafetyFilterTriggers = %d, want 1", got.SafetyFilterTriggers)
	}
	if got.BundledAuctions != 1 {
		t.Errorf("BundledAuctions = %d, want 1", got.BundledAuctions)
	}
}
