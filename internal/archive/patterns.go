package archive

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// Detection thresholds for the five pattern types.
const (
	dominanceMinWins      = 5
	tightMarginBelow      = 5.0
	tightMarginShare      = 0.30
	complexityLowBelow    = 40.0
	complexityHighAtLeast = 70.0
	complexityMinGap      = 0.2
	collaborationMinRuns  = 3
	collaborationMinLift  = 0.1
	riskFilterMinRuns     = 5
)

// DetectPatterns mines a history window for the five marketplace pattern
// types. Each detector is independent; the result is a report recomputed on
// demand, never a source of truth.
func DetectPatterns(history []models.ArchiveEntry) []models.MarketplacePattern {
	if len(history) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var patterns []models.MarketplacePattern
	detectors := []func([]models.ArchiveEntry, time.Time) *models.MarketplacePattern{
		detectAgentDominance,
		detectLoadSensitivity,
		detectComplexityCorrelation,
		detectCollaborationBenefit,
		detectRiskFiltering,
	}
	for _, detect := range detectors {
		if p := detect(history, now); p != nil {
			patterns = append(patterns, *p)
		}
	}
	return patterns
}

// detectAgentDominance finds agents with at least dominanceMinWins wins.
// Frequency counts distinct dominant agents, not total wins; the success
// rate is restricted to the dominant agents' auctions.
func detectAgentDominance(history []models.ArchiveEntry, now time.Time) *models.MarketplacePattern {
	wins := make(map[string]int)
	for _, e := range history {
		if e.WinningAgentID != "" {
			wins[e.WinningAgentID]++
		}
	}

	var dominant []string
	for agent, n := range wins {
		if n >= dominanceMinWins {
			dominant = append(dominant, agent)
		}
	}
	if len(dominant) == 0 {
		return nil
	}
	sort.Strings(dominant)

	dominantSet := make(map[string]bool, len(dominant))
	for _, a := range dominant {
		dominantSet[a] = true
	}
	var theirAuctions []models.ArchiveEntry
	for _, e := range history {
		if dominantSet[e.WinningAgentID] {
			theirAuctions = append(theirAuctions, e)
		}
	}

	return &models.MarketplacePattern{
		ID:          uuid.New().String(),
		Type:        models.PatternAgentDominance,
		AgentIDs:    dominant,
		Frequency:   len(dominant),
		SuccessRate: successRate(theirAuctions),
		KeyInsight: fmt.Sprintf("%d agent(s) won %d+ auctions each in this window; their auctions succeed at %.0f%%",
			len(dominant), dominanceMinWins, successRate(theirAuctions)*100),
		DetectedAt: now,
	}
}

// detectLoadSensitivity reports when tightly-contested auctions (margin
// below tightMarginBelow with a real runner-up) make up at least
// tightMarginShare of the window.
func detectLoadSensitivity(history []models.ArchiveEntry, now time.Time) *models.MarketplacePattern {
	var tight []models.ArchiveEntry
	for _, e := range history {
		if e.QualifiedBids > 1 && e.Margin < tightMarginBelow {
			tight = append(tight, e)
		}
	}
	if float64(len(tight)) < tightMarginShare*float64(len(history)) || len(tight) == 0 {
		return nil
	}

	return &models.MarketplacePattern{
		ID:          uuid.New().String(),
		Type:        models.PatternLoadSensitivity,
		Frequency:   len(tight),
		SuccessRate: successRate(tight),
		KeyInsight: fmt.Sprintf("%d of %d auctions were decided by a margin under %.0f points",
			len(tight), len(history), tightMarginBelow),
		DetectedAt: now,
	}
}

// detectComplexityCorrelation compares the success rate of low-complexity
// auctions against high-complexity ones and reports gaps above
// complexityMinGap.
func detectComplexityCorrelation(history []models.ArchiveEntry, now time.Time) *models.MarketplacePattern {
	var low, high []models.ArchiveEntry
	for _, e := range history {
		switch {
		case e.Complexity < complexityLowBelow:
			low = append(low, e)
		case e.Complexity >= complexityHighAtLeast:
			high = append(high, e)
		}
	}
	if len(low) == 0 || len(high) == 0 {
		return nil
	}

	lowRate := successRate(low)
	highRate := successRate(high)
	gap := lowRate - highRate
	if gap < 0 {
		gap = -gap
	}
	if gap <= complexityMinGap {
		return nil
	}

	return &models.MarketplacePattern{
		ID:          uuid.New().String(),
		Type:        models.PatternComplexityCorrelation,
		Frequency:   len(low) + len(high),
		SuccessRate: highRate,
		KeyInsight: fmt.Sprintf("success rate diverges with complexity: %.0f%% below %.0f vs %.0f%% at %.0f+",
			lowRate*100, complexityLowBelow, highRate*100, complexityHighAtLeast),
		DetectedAt: now,
	}
}

// detectCollaborationBenefit reports when bundled auctions (at least
// collaborationMinRuns of them) outperform non-bundled ones by more than
// collaborationMinLift.
func detectCollaborationBenefit(history []models.ArchiveEntry, now time.Time) *models.MarketplacePattern {
	var bundled, solo []models.ArchiveEntry
	for _, e := range history {
		if e.BundleUsed {
			bundled = append(bundled, e)
		} else {
			solo = append(solo, e)
		}
	}
	if len(bundled) < collaborationMinRuns {
		return nil
	}

	bundledRate := successRate(bundled)
	soloRate := successRate(solo)
	if bundledRate-soloRate <= collaborationMinLift {
		return nil
	}

	return &models.MarketplacePattern{
		ID:          uuid.New().String(),
		Type:        models.PatternCollaborationBenefit,
		Frequency:   len(bundled),
		SuccessRate: bundledRate,
		KeyInsight: fmt.Sprintf("bundled auctions succeed at %.0f%% vs %.0f%% without bundling",
			bundledRate*100, soloRate*100),
		DetectedAt: now,
	}
}

// detectRiskFiltering reports the success rate of auctions where the safety
// filter flagged a competitive-but-risky bid, as a measure of filter
// precision. Requires riskFilterMinRuns such auctions.
func detectRiskFiltering(history []models.ArchiveEntry, now time.Time) *models.MarketplacePattern {
	var triggered []models.ArchiveEntry
	for _, e := range history {
		if e.SafetyFilterTriggered {
			triggered = append(triggered, e)
		}
	}
	if len(triggered) < riskFilterMinRuns {
		return nil
	}

	rate := successRate(triggered)
	return &models.MarketplacePattern{
		ID:          uuid.New().String(),
		Type:        models.PatternRiskFiltering,
		Frequency:   len(triggered),
		SuccessRate: rate,
		KeyInsight: fmt.Sprintf("auctions that filtered a competitive risky bid succeed at %.0f%%",
			rate*100),
		DetectedAt: now,
	}
}

// successRate is the fraction of entries with a fully successful outcome.
func successRate(entries []models.ArchiveEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.Outcome == models.OutcomeSuccess {
			n++
		}
	}
	return float64(n) / float64(len(entries))
}
