package archive_test

import (
	"fmt"
	"testing"

	"github.com/openlot/openlot/marketplace/internal/archive"
	"github.com/openlot/openlot/marketplace/pkg/models"
)

// quietEntry builds an archive entry that triggers no detector on its own:
// mid complexity, wide margin, no bundle, no safety filter.
func quietEntry(id, agent string, outcome models.Outcome) models.ArchiveEntry {
	return models.ArchiveEntry{
		AuctionID:      id,
		TaskID:         "task-" + id,
		Workspace:      "ws",
		WinningAgentID: agent,
		WinningBid:     60,
		PricePaid:      55,
		Margin:         20,
		BidCount:       2,
		QualifiedBids:  2,
		Complexity:     50,
		Outcome:        outcome,
	}
}

func findPattern(patterns []models.MarketplacePattern, typ models.PatternType) *models.MarketplacePattern {
	for i := range patterns {
		if patterns[i].Type == typ {
			return &patterns[i]
		}
	}
	return nil
}

func TestDetectPatterns_EmptyHistory(t *testing.T) {
	if got := archive.DetectPatterns(nil); got != nil {
		t.Errorf("DetectPatterns(nil) = %v, want nil", got)
	}
}

func TestDetectPatterns_AgentDominance(t *testing.T) {
	var history []models.ArchiveEntry
	// agent-x wins five times, succeeding in three.
	for i := 0; i < 5; i++ {
		outcome := models.OutcomeSuccess
		if i >= 3 {
			outcome = models.OutcomeFailure
		}
		history = append(history, quietEntry(fmt.Sprintf("x-%d", i), "agent-x", outcome))
	}
	// Scattered wins stay below the threshold.
	for i := 0; i < 4; i++ {
		history = append(history, quietEntry(fmt.Sprintf("y-%d", i), fmt.Sprintf("agent-%d", i), models.OutcomeSuccess))
	}

	patterns := archive.DetectPatterns(history)
	p := findPattern(patterns, models.PatternAgentDominance)
	if p == nil {
		t.Fatal("agent dominance not detected")
	}
	if len(p.AgentIDs) != 1 || p.AgentIDs[0] != "agent-x" {
		t.Errorf("AgentIDs = %v, want [agent-x]", p.AgentIDs)
	}
	if p.Frequency != 1 {
		t.Errorf("Frequency = %d, want 1 dominant agent", p.Frequency)
	}
	if p.SuccessRate != 0.6 {
		t.Errorf("SuccessRate = %v, want 0.6 (dominant agent's auctions only)", p.SuccessRate)
	}
}

func TestDetectPatterns_AgentDominanceBelowThreshold(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 4; i++ {
		history = append(history, quietEntry(fmt.Sprintf("x-%d", i), "agent-x", models.OutcomeSuccess))
	}
	if p := findPattern(archive.DetectPatterns(history), models.PatternAgentDominance); p != nil {
		t.Errorf("dominance detected at 4 wins, want threshold 5")
	}
}

func TestDetectPatterns_LoadSensitivity(t *testing.T) {
	var history []models.ArchiveEntry
	// Four of ten auctions decided by a tight margin: 40% ≥ 30%.
	for i := 0; i < 4; i++ {
		e := quietEntry(fmt.Sprintf("tight-%d", i), fmt.Sprintf("a-%d", i), models.OutcomeSuccess)
		e.Margin = 2
		history = append(history, e)
	}
	for i := 0; i < 6; i++ {
		history = append(history, quietEntry(fmt.Sprintf("wide-%d", i), fmt.Sprintf("b-%d", i), models.OutcomeSuccess))
	}

	p := findPattern(archive.DetectPatterns(history), models.PatternLoadSensitivity)
	if p == nil {
		t.Fatal("load sensitivity not detected")
	}
	if p.Frequency != 4 {
		t.Errorf("Frequency = %d, want 4", p.Frequency)
	}
}

func TestDetectPatterns_LoadSensitivityNeedsRunnerUp(t *testing.T) {
	var history []models.ArchiveEntry
	// Tight margins but single-bidder auctions: margin is undefined without a
	// runner-up, so these never count.
	for i := 0; i < 10; i++ {
		e := quietEntry(fmt.Sprintf("solo-%d", i), fmt.Sprintf("a-%d", i), models.OutcomeSuccess)
		e.QualifiedBids = 1
		e.Margin = 0
		history = append(history, e)
	}

	if p := findPattern(archive.DetectPatterns(history), models.PatternLoadSensitivity); p != nil {
		t.Error("load sensitivity detected on single-bidder auctions")
	}
}

func TestDetectPatterns_ComplexityCorrelation(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 4; i++ {
		e := quietEntry(fmt.Sprintf("low-%d", i), fmt.Sprintf("a-%d", i), models.OutcomeSuccess)
		e.Complexity = 20
		history = append(history, e)
	}
	for i := 0; i < 4; i++ {
		e := quietEntry(fmt.Sprintf("high-%d", i), fmt.Sprintf("b-%d", i), models.OutcomeFailure)
		e.Complexity = 85
		history = append(history, e)
	}

	p := findPattern(archive.DetectPatterns(history), models.PatternComplexityCorrelation)
	if p == nil {
		t.Fatal("complexity correlation not detected")
	}
	if p.Frequency != 8 {
		t.Errorf("Frequency = %d, want 8", p.Frequency)
	}
	if p.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0 (high cohort)", p.SuccessRate)
	}
}

func TestDetectPatterns_ComplexityCorrelationSmallGap(t *testing.T) {
	var history []models.ArchiveEntry
	// Both cohorts succeed; no divergence to report.
	for i := 0; i < 3; i++ {
		low := quietEntry(fmt.Sprintf("low-%d", i), "a", models.OutcomeSuccess)
		low.Complexity = 20
		high := quietEntry(fmt.Sprintf("high-%d", i), "b", models.OutcomeSuccess)
		high.Complexity = 85
		history = append(history, low, high)
	}

	if p := findPattern(archive.DetectPatterns(history), models.PatternComplexityCorrelation); p != nil {
		t.Error("complexity correlation detected without a success-rate gap")
	}
}

func TestDetectPatterns_CollaborationBenefit(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 3; i++ {
		e := quietEntry(fmt.Sprintf("bundle-%d", i), fmt.Sprintf("a-%d", i), models.OutcomeSuccess)
		e.BundleUsed = true
		history = append(history, e)
	}
	for i := 0; i < 3; i++ {
		history = append(history, quietEntry(fmt.Sprintf("solo-%d", i), fmt.Sprintf("b-%d", i), models.OutcomeFailure))
	}

	p := findPattern(archive.DetectPatterns(history), models.PatternCollaborationBenefit)
	if p == nil {
		t.Fatal("collaboration benefit not detected")
	}
	if p.Frequency != 3 {
		t.Errorf("Frequency = %d, want 3", p.Frequency)
	}
	if p.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", p.SuccessRate)
	}
}

func TestDetectPatterns_CollaborationTooFewBundles(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 2; i++ {
		e := quietEntry(fmt.Sprintf("bundle-%d", i), "a", models.OutcomeSuccess)
		e.BundleUsed = true
		history = append(history, e)
	}
	history = append(history, quietEntry("solo", "b", models.OutcomeFailure))

	if p := findPattern(archive.DetectPatterns(history), models.PatternCollaborationBenefit); p != nil {
		t.Error("collaboration benefit detected from only 2 bundled runs")
	}
}

func TestDetectPatterns_RiskFiltering(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 5; i++ {
		outcome := models.OutcomeSuccess
		if i == 4 {
			outcome = models.OutcomeFailure
		}
		e := quietEntry(fmt.Sprintf("filtered-%d", i), fmt.Sprintf("a-%d", i), outcome)
		e.SafetyFilterTriggered = true
		history = append(history, e)
	}
	history = append(history, quietEntry("plain", "b", models.OutcomeSuccess))

	p := findPattern(archive.DetectPatterns(history), models.PatternRiskFiltering)
	if p == nil {
		t.Fatal("risk filtering not detected")
	}
	if p.Frequency != 5 {
		t.Errorf("Frequency = %d, want 5", p.Frequency)
	}
	if p.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %v, want 0.8", p.SuccessRate)
	}
}

func TestDetectPatterns_PartialSuccessIsNotSuccess(t *testing.T) {
	var history []models.ArchiveEntry
	for i := 0; i < 5; i++ {
		history = append(history, quietEntry(fmt.Sprintf("x-%d", i), "agent-x", models.OutcomePartialSuccess))
	}

	p := findPattern(archive.DetectPatterns(history), models.PatternAgentDominance)
	if p == nil {
		t.Fatal("agent dominance not detected")
	}
	if p.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0 (partial success does not count)", p.SuccessRate)
	}
}
