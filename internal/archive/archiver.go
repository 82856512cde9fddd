package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// Default retention windows.
const (
	DefaultAuctionRetention = 90 * 24 * time.Hour
	DefaultPatternRetention = 30 * 24 * time.Hour
)

// Archiver persists terminal auction records and mines them for patterns.
// A driver failure is surfaced to the caller; the in-memory session it came
// from stays decided regardless.
type Archiver struct {
	driver     Driver
	auctionTTL time.Duration
	patternTTL time.Duration
}

// ArchiverOption configures an Archiver.
type ArchiverOption func(*Archiver)

// WithRetention overrides the auction and pattern retention windows.
func WithRetention(auctionTTL, patternTTL time.Duration) ArchiverOption {
	return func(a *Archiver) {
		if auctionTTL > 0 {
			a.auctionTTL = auctionTTL
		}
		if patternTTL > 0 {
			a.patternTTL = patternTTL
		}
	}
}

// NewArchiver creates an archiver on the given driver.
func NewArchiver(driver Driver, opts ...ArchiverOption) *Archiver {
	a := &Archiver{
		driver:     driver,
		auctionTTL: DefaultAuctionRetention,
		patternTTL: DefaultPatternRetention,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EntryFromSession flattens a completed session plus its execution outcome
// into an archive entry.
func EntryFromSession(session *models.AuctionSession, outcome models.Outcome, executionMs int64) (models.ArchiveEntry, error) {
	if session.Status != models.AuctionCompleted {
		return models.ArchiveEntry{}, fmt.Errorf("auction %s is %s, only COMPLETED sessions are archived", session.ID, session.Status)
	}
	if !models.ValidOutcome(outcome) {
		return models.ArchiveEntry{}, fmt.Errorf("unknown outcome %q", outcome)
	}

	explanation := ""
	if session.Explainability != nil {
		explanation = session.Explainability.Rationale
	}

	return models.ArchiveEntry{
		AuctionID:             session.ID,
		TaskID:                session.TaskID,
		Workspace:             session.Workspace,
		WinningAgentID:        session.WinningAgentID,
		WinningBid:            session.WinningBid,
		PricePaid:             session.PricePaid,
		Margin:                session.Margin(),
		BidCount:              len(session.Bids),
		QualifiedBids:         session.QualifiedBidCount(),
		Complexity:            session.Task.Complexity,
		BundleUsed:            session.BundleUsed,
		SafetyFilterTriggered: session.SafetyFilterTriggered,
		Outcome:               outcome,
		ExecutionMs:           executionMs,
		Explanation:           explanation,
		ArchivedAt:            time.Now().UTC(),
	}, nil
}

// ArchiveAuction upserts a flattened auction record, tagged by workspace,
// winning agent, and complexity band, and bumps the workspace counter.
func (a *Archiver) ArchiveAuction(ctx context.Context, entry models.ArchiveEntry) error {
	if !models.ValidOutcome(entry.Outcome) {
		return fmt.Errorf("unknown outcome %q", entry.Outcome)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal archive entry: %w", err)
	}

	tags := []string{
		workspaceTag(entry.Workspace),
		agentTag(entry.WinningAgentID),
		complexityTag(entry.Complexity),
	}
	if err := a.driver.Set(ctx, auctionKey(entry.AuctionID), data, SetOptions{TTL: a.auctionTTL, Tags: tags}); err != nil {
		return fmt.Errorf("archive auction %s: %w", entry.AuctionID, err)
	}

	count, err := a.driver.Incr(ctx, counterKey(entry.Workspace))
	if err != nil {
		return fmt.Errorf("increment auction counter for %s: %w", entry.Workspace, err)
	}

	log.Debug().
		Str("auction_id", entry.AuctionID).
		Str("workspace", entry.Workspace).
		Int64("workspace_total", count).
		Msg("Auction archived")
	return nil
}

// ArchiveBids persists each evaluated bid individually, tagged by agent,
// under the same retention as the auction itself.
func (a *Archiver) ArchiveBids(ctx context.Context, auctionID string, bids []models.EvaluatedBid) error {
	for _, bid := range bids {
		data, err := json.Marshal(bid)
		if err != nil {
			return fmt.Errorf("marshal bid for %s: %w", bid.AgentID, err)
		}
		opts := SetOptions{
			TTL:  a.auctionTTL,
			Tags: []string{agentTag(bid.AgentID), bidAuctionTag(auctionID)},
		}
		if err := a.driver.Set(ctx, bidKey(auctionID, bid.AgentID), data, opts); err != nil {
			return fmt.Errorf("archive bid %s/%s: %w", auctionID, bid.AgentID, err)
		}
	}
	return nil
}

// GetEntry returns one archived auction record.
func (a *Archiver) GetEntry(ctx context.Context, auctionID string) (*models.ArchiveEntry, error) {
	data, err := a.driver.Get(ctx, auctionKey(auctionID))
	if err != nil {
		return nil, err
	}
	var entry models.ArchiveEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode archive entry %s: %w", auctionID, err)
	}
	return &entry, nil
}

// History loads a workspace's archived auctions, oldest first.
func (a *Archiver) History(ctx context.Context, workspace string) ([]models.ArchiveEntry, error) {
	raw, err := a.driver.ListTag(ctx, workspaceTag(workspace))
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", workspace, err)
	}

	entries := make([]models.ArchiveEntry, 0, len(raw))
	for _, data := range raw {
		var entry models.ArchiveEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DetectAndRecordPatterns mines the history window for the five pattern
// types and persists every detection with the pattern retention window.
func (a *Archiver) DetectAndRecordPatterns(ctx context.Context, workspace string, history []models.ArchiveEntry) ([]models.MarketplacePattern, error) {
	patterns := DetectPatterns(history)

	var errs []error
	for _, p := range patterns {
		data, err := json.Marshal(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("marshal pattern %s: %w", p.Type, err))
			continue
		}
		opts := SetOptions{
			TTL:  a.patternTTL,
			Tags: []string{patternTag(workspace), "pattern_type:" + string(p.Type)},
		}
		if err := a.driver.Set(ctx, patternKey(p.ID), data, opts); err != nil {
			errs = append(errs, fmt.Errorf("record pattern %s: %w", p.Type, err))
		}
	}

	if len(errs) > 0 {
		return patterns, errors.Join(errs...)
	}
	log.Debug().
		Str("workspace", workspace).
		Int("patterns", len(patterns)).
		Int("window", len(history)).
		Msg("Pattern detection recorded")
	return patterns, nil
}

// GenerateAnalytics computes the per-workspace rollup over a history window.
// Pure: an empty window yields an all-zero report with no patterns.
func (a *Archiver) GenerateAnalytics(workspace string, history []models.ArchiveEntry) models.AuctionAnalytics {
	return GenerateAnalytics(workspace, history)
}

// ── Keys & tags ──────────────────────────────────────────────

func auctionKey(auctionID string) string { return "auction:" + auctionID }
func patternKey(patternID string) string { return "pattern:" + patternID }
func counterKey(workspace string) string { return "counter:auctions:" + workspace }

func bidKey(auctionID, agentID string) string {
	return "bid:" + auctionID + ":" + agentID
}

func workspaceTag(workspace string) string { return "workspace:" + workspace }
func agentTag(agentID string) string       { return "agent:" + agentID }
func patternTag(workspace string) string   { return "patterns:" + workspace }
func bidAuctionTag(auctionID string) string {
	return "bids:" + auctionID
}

func complexityTag(complexity float64) string {
	return "complexity:" + models.ComplexityBand(complexity)
}
