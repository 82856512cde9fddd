// Package auction implements the task marketplace auction engine: the
// session state machine that takes one task through bid collection,
// evaluation, safety filtering, optional bundle evaluation, and
// Vickrey-style winner selection.
//
// Session lifecycle: PENDING → BIDDING → EVALUATING → COMPLETED | CANCELLED.
// A session has exactly one evaluation pass; once terminal it is immutable.
package auction

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openlot/openlot/marketplace/internal/evaluator"
	"github.com/openlot/openlot/marketplace/internal/store"
	"github.com/openlot/openlot/marketplace/pkg/models"
)

var tracer = otel.Tracer("openlot-marketplace/auction")

// Vickrey-style pricing: the winner pays the runner-up's bid, floored at
// this fraction of their own bid.
const priceFloorRatio = 0.7

// Bundle evaluation trigger thresholds and synergy uplift.
const (
	bundleComplexityMin = 70.0
	bundleDomainsMin    = 3
	bundleRiskSignal    = 50.0
	bundleTopN          = 3
	bundleSynergyBonus  = 1.15
)

// maxReportAlternatives caps the runner-up list in explainability reports.
const maxReportAlternatives = 3

// Engine owns auction sessions. It is an explicit, constructed component:
// one per process (or per test), holding its store dependency.
type Engine struct {
	store      store.SessionStore
	eval       evaluator.Config
	bidTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluatorConfig overrides the evaluator boost set.
func WithEvaluatorConfig(cfg evaluator.Config) Option {
	return func(e *Engine) { e.eval = cfg }
}

// WithBidTimeout sets the collection deadline used when a task declares none.
func WithBidTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.bidTimeout = d
		}
	}
}

// New creates an auction engine backed by the given session store.
func New(s store.SessionStore, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		eval:  evaluator.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates the task and opens a PENDING session for it.
// A malformed task is rejected here; no session is created.
func (e *Engine) Create(ctx context.Context, task models.Task) (*models.AuctionSession, error) {
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	session := &models.AuctionSession{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Workspace: task.Workspace,
		Task:      task,
		Status:    models.AuctionPending,
		Bids:      []models.EvaluatedBid{},
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Debug().
		Str("auction_id", session.ID).
		Str("task_id", task.ID).
		Str("workspace", task.Workspace).
		Msg("Auction session created")
	return session, nil
}

// RunAuction executes one full auction over a pre-assembled bid list:
// create → evaluate → safety filter → bundle evaluation → winner selection.
// This is the synchronous inbound path; CollectAndRun performs live
// concurrent collection instead.
func (e *Engine) RunAuction(ctx context.Context, task models.Task, bids []models.BidInput) (*models.AuctionSession, error) {
	session, err := e.Create(ctx, task)
	if err != nil {
		return nil, err
	}
	return e.settle(ctx, session, bids)
}

// CollectAndRun opens a session, solicits a bid from every bidder
// concurrently under the task's collection deadline, then settles the
// auction over whatever bids arrived in time.
func (e *Engine) CollectAndRun(ctx context.Context, task models.Task, bidders []Bidder) (*models.AuctionSession, error) {
	session, err := e.Create(ctx, task)
	if err != nil {
		return nil, err
	}

	session.Status = models.AuctionBidding
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("enter bidding: %w", err)
	}

	bids := collectBids(ctx, task, bidders, e.bidTimeout)
	return e.settle(ctx, session, bids)
}

// settle runs the single evaluation pass and drives the session to a
// terminal state. Evaluation, filtering, bundling, and selection are
// synchronous and CPU-bound.
func (e *Engine) settle(ctx context.Context, session *models.AuctionSession, bids []models.BidInput) (*models.AuctionSession, error) {
	ctx, span := tracer.Start(ctx, "auction.settle")
	defer span.End()
	span.SetAttributes(
		attribute.String("auction.id", session.ID),
		attribute.String("auction.workspace", session.Workspace),
		attribute.Int("auction.bid_count", len(bids)),
	)

	session.Status = models.AuctionEvaluating
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("enter evaluating: %w", err)
	}

	// Evaluate every collected bid in submission order. The evaluator is
	// pure, so order cannot affect individual scores; it only fixes the
	// tie-break order for selection.
	session.Bids = make([]models.EvaluatedBid, 0, len(bids))
	for _, bid := range bids {
		session.Bids = append(session.Bids, evaluator.Evaluate(bid, session.Task.Complexity, e.eval))
	}

	session.SafetyFilterTriggered = safetyFilterTriggered(session.Bids)
	session.BundleUsed = bundleWouldOutscore(session.Task, session.Bids)

	e.selectWinner(session)

	now := time.Now().UTC()
	session.CompletedAt = &now
	if err := e.store.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	evt := log.Info().
		Str("auction_id", session.ID).
		Str("task_id", session.TaskID).
		Str("workspace", session.Workspace).
		Str("status", string(session.Status)).
		Int("bids", len(session.Bids)).
		Bool("safety_filter", session.SafetyFilterTriggered).
		Bool("bundle", session.BundleUsed)
	if session.Status == models.AuctionCompleted {
		evt = evt.
			Str("winner", session.WinningAgentID).
			Float64("winning_bid", session.WinningBid).
			Float64("price_paid", session.PricePaid)
	}
	evt.Msg("Auction settled")

	span.SetAttributes(attribute.String("auction.status", string(session.Status)))
	return session, nil
}

// safetyFilterTriggered reports whether any risk-disqualified bid would have
// been competitive (non-zero audit bid). Informational only; it never alters
// winner selection.
func safetyFilterTriggered(bids []models.EvaluatedBid) bool {
	for _, b := range bids {
		if b.Disqualified && b.FinalBid > 0 {
			return true
		}
	}
	return false
}

// bundleWouldOutscore runs the advisory bundle evaluation: for complex,
// multi-domain tasks where at least one qualified bid carries elevated risk,
// it checks whether the synergy-adjusted mean of the top qualified bids
// beats the best single bid. The result is recorded for analytics and does
// not change which single agent wins.
func bundleWouldOutscore(task models.Task, bids []models.EvaluatedBid) bool {
	if task.Complexity < bundleComplexityMin || len(task.Domains) < bundleDomainsMin {
		return false
	}

	qualified := qualifiedSorted(bids)
	if len(qualified) == 0 {
		return false
	}

	riskSignal := false
	for _, b := range qualified {
		if b.Risk >= bundleRiskSignal {
			riskSignal = true
			break
		}
	}
	if !riskSignal {
		return false
	}

	top := qualified
	if len(top) > bundleTopN {
		top = top[:bundleTopN]
	}
	sum := 0.0
	for _, b := range top {
		sum += b.FinalBid
	}
	synergyMean := sum / float64(len(top)) * bundleSynergyBonus

	return synergyMean > qualified[0].FinalBid
}

// selectWinner filters to qualified bids and applies Vickrey-style pricing.
// No qualified bids is not an error: the session cancels cleanly.
func (e *Engine) selectWinner(session *models.AuctionSession) {
	qualified := qualifiedSorted(session.Bids)
	if len(qualified) == 0 {
		session.Status = models.AuctionCancelled
		return
	}

	winner := qualified[0]
	session.WinningAgentID = winner.AgentID
	session.WinningBid = winner.FinalBid

	if len(qualified) > 1 {
		runnerUp := qualified[1]
		floor := priceFloorRatio * winner.FinalBid
		if runnerUp.FinalBid > floor {
			session.PricePaid = runnerUp.FinalBid
		} else {
			session.PricePaid = floor
		}
	} else {
		session.PricePaid = winner.FinalBid
	}

	session.Explainability = buildReport(winner, qualified)
	session.Status = models.AuctionCompleted
}

// qualifiedSorted returns non-disqualified bids sorted descending by
// FinalBid. The sort is stable so ties resolve by submission order.
func qualifiedSorted(bids []models.EvaluatedBid) []models.EvaluatedBid {
	qualified := make([]models.EvaluatedBid, 0, len(bids))
	for _, b := range bids {
		if !b.Disqualified {
			qualified = append(qualified, b)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].FinalBid > qualified[j].FinalBid
	})
	return qualified
}

// buildReport assembles the explainability report for a decided auction.
func buildReport(winner models.EvaluatedBid, qualified []models.EvaluatedBid) *models.ExplainabilityReport {
	band, note := evaluator.RiskBandFor(winner.Risk)

	report := &models.ExplainabilityReport{
		Rationale: fmt.Sprintf(
			"Agent %s won with final bid %.2f (raw %.2f; capability %.0f, confidence %.0f, past success %.0f, relevance %.0f)",
			winner.AgentID, winner.FinalBid, winner.RawScore,
			winner.CapabilityMatch, winner.Confidence, winner.PastSuccessRate, winner.ContextRelevance,
		),
		RiskBand: band,
		RiskNote: note,
	}

	for _, alt := range qualified[1:] {
		if len(report.Alternatives) == maxReportAlternatives {
			break
		}
		report.Alternatives = append(report.Alternatives, models.Alternative{
			AgentID:  alt.AgentID,
			FinalBid: alt.FinalBid,
			Gap:      winner.FinalBid - alt.FinalBid,
		})
	}
	return report
}

// ── Queries ──────────────────────────────────────────────────

// GetSession returns one session by id.
func (e *Engine) GetSession(ctx context.Context, id string) (*models.AuctionSession, error) {
	return e.store.GetSession(ctx, id)
}

// ListActive returns a workspace's non-terminal sessions.
func (e *Engine) ListActive(ctx context.Context, workspace string) ([]models.AuctionSession, error) {
	return e.store.ListActive(ctx, workspace)
}

// GetHistory returns a workspace's COMPLETED sessions, newest first.
func (e *Engine) GetHistory(ctx context.Context, workspace string, limit int) ([]models.AuctionSession, error) {
	return e.store.ListHistory(ctx, workspace, limit)
}
