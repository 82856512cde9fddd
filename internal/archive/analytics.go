package archive

import (
	"time"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// GenerateAnalytics rolls a history window up into per-workspace metrics
// plus the detected patterns. All divisions are guarded: an empty window
// returns zero counts, empty maps, and no patterns.
func GenerateAnalytics(workspace string, history []models.ArchiveEntry) models.AuctionAnalytics {
	report := models.AuctionAnalytics{
		Workspace:           workspace,
		AgentWinRates:       make(map[string]float64),
		AvgWinningBidByBand: make(map[string]float64),
		Patterns:            []models.MarketplacePattern{},
		GeneratedAt:         time.Now().UTC(),
	}
	if len(history) == 0 {
		return report
	}

	report.TotalAuctions = len(history)

	winningBidSum := 0.0
	winsByAgent := make(map[string]int)
	bandSums := make(map[string]float64)
	bandCounts := make(map[string]int)

	for _, e := range history {
		report.TotalBids += e.BidCount
		winningBidSum += e.WinningBid
		if e.WinningAgentID != "" {
			winsByAgent[e.WinningAgentID]++
		}
		band := models.ComplexityBand(e.Complexity)
		bandSums[band] += e.WinningBid
		bandCounts[band]++
		if e.SafetyFilterTriggered {
			report.SafetyFilterTriggers++
		}
		if e.BundleUsed {
			report.BundledAuctions++
		}
	}

	total := float64(report.TotalAuctions)
	report.AvgBidsPerAuction = float64(report.TotalBids) / total
	report.AvgWinningBid = winningBidSum / total
	for agent, wins := range winsByAgent {
		report.AgentWinRates[agent] = float64(wins) / total
	}
	for band, sum := range bandSums {
		report.AvgWinningBidByBand[band] = sum / float64(bandCounts[band])
	}

	if patterns := DetectPatterns(history); patterns != nil {
		report.Patterns = patterns
	}
	return report
}
