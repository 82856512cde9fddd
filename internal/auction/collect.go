package auction

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openlot/openlot/marketplace/pkg/models"
)

// defaultCollectTimeout applies when a task declares no collection deadline.
const defaultCollectTimeout = 5 * time.Second

// Bidder is one eligible agent solicited during the BIDDING phase.
// Bid must honor ctx cancellation; responses after the collection deadline
// are discarded.
type Bidder interface {
	AgentID() string
	Bid(ctx context.Context, task models.Task) (models.BidInput, error)
}

// BidderFunc adapts a function to the Bidder interface.
type BidderFunc struct {
	ID string
	Fn func(ctx context.Context, task models.Task) (models.BidInput, error)
}

func (b BidderFunc) AgentID() string { return b.ID }

func (b BidderFunc) Bid(ctx context.Context, task models.Task) (models.BidInput, error) {
	return b.Fn(ctx, task)
}

// collectBids fans a bid request out to every bidder and fans in whatever
// responses arrive before the task deadline. The gather completes at
// min(all responded, deadline). Each solicitation runs independently; a slow
// agent never blocks the others, and late bids are dropped, not queued.
func collectBids(ctx context.Context, task models.Task, bidders []Bidder, fallback time.Duration) []models.BidInput {
	if len(bidders) == 0 {
		return nil
	}

	timeout := fallback
	if timeout <= 0 {
		timeout = defaultCollectTimeout
	}
	if task.TimeoutMs > 0 {
		timeout = time.Duration(task.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type response struct {
		agentID string
		bid     models.BidInput
		err     error
	}

	// Buffered so goroutines finishing after the deadline can exit without
	// a receiver.
	ch := make(chan response, len(bidders))
	for _, b := range bidders {
		go func(b Bidder) {
			bid, err := b.Bid(ctx, task)
			ch <- response{agentID: b.AgentID(), bid: bid, err: err}
		}(b)
	}

	start := time.Now()
	bids := make([]models.BidInput, 0, len(bidders))
	for received := 0; received < len(bidders); received++ {
		select {
		case r := <-ch:
			if r.err != nil {
				// Non-response is not an error for the auction: the agent
				// simply contributes no bid.
				log.Debug().
					Err(r.err).
					Str("agent_id", r.agentID).
					Str("task_id", task.ID).
					Msg("Bid solicitation failed")
				continue
			}
			bids = append(bids, r.bid)
		case <-ctx.Done():
			log.Info().
				Str("task_id", task.ID).
				Int("received", len(bids)).
				Msg("Bid collection deadline reached")
			return bids
		}
	}

	log.Debug().
		Str("task_id", task.ID).
		Int("received", len(bids)).
		Int("solicited", len(bidders)).
		Dur("elapsed", time.Since(start)).
		Msg("Bid collection complete")
	return bids
}
