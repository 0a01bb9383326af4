package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"errors"

	"github.com/robfig/cron/v3"
)

type TickReport struct {
	Skipped    bool
	Activated  int64
	Ended      int64
	Settled    int
	Incomplete int
	Failed     int
	Reversed   int
}

// CronLifecycleScheduler reconciles auction lifecycles on a fixed schedule.
// Each tick derives state from timestamps alone, so a missed tick is simply
// caught up by the next one.
type CronLifecycleScheduler struct {
	cron        *cron.Cron
	spec        string
	auctionRepo domain.AuctionRepository
	settlement  *SettlementService
	bids        *BidService
	leader      domain.LeaderElection
	clock       domain.Clock
	log         logger.Logger
}

func NewCronLifecycleScheduler(
	spec string,
	auctionRepo domain.AuctionRepository,
	settlement *SettlementService,
	bids *BidService,
	leader domain.LeaderElection,
	clock domain.Clock,
	log logger.Logger,
) *CronLifecycleScheduler {
	cronLog := logger.CronLogger{Log: log}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &CronLifecycleScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		spec:        spec,
		auctionRepo: auctionRepo,
		settlement:  settlement,
		bids:        bids,
		leader:      leader,
		clock:       clock,
		log:         log,
	}
}

func (s *CronLifecycleScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting lifecycle scheduler", "spec", s.spec)

	_, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running tick to finish.
func (s *CronLifecycleScheduler) Stop() error {
	s.log.Info("Stopping lifecycle scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *CronLifecycleScheduler) Tick(ctx context.Context) TickReport {
	var report TickReport

	isLeader, err := s.leader.IsLeader(ctx)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		report.Skipped = true
		return report
	}
	if !isLeader {
		report.Skipped = true
		return report
	}

	now := s.clock.Now()

	if report.Activated, err = s.auctionRepo.ActivateDueAuctions(ctx, now); err != nil {
		s.log.Error("Failed to activate due auctions", "error", err)
	}
	if report.Ended, err = s.auctionRepo.EndDueAuctions(ctx, now); err != nil {
		s.log.Error("Failed to end due auctions", "error", err)
	}

	if report.Reversed, err = s.bids.ReplayReversals(ctx); err != nil {
		s.log.Error("Failed to replay escrow reversals", "error", err)
	}

	ids, err := s.auctionRepo.GetUnsettledAuctionIDs(ctx)
	if err != nil {
		s.log.Error("Failed to list unsettled auctions", "error", err)
		return report
	}

	for _, id := range ids {
		_, err := s.settlement.Settle(ctx, id)
		switch {
		case err == nil:
			report.Settled++
		case errors.Is(err, domain.ErrSettlementIncomplete):
			// Don't count as settled, the remaining refunds retry next tick
			s.log.Warn("Settlement incomplete", "auction_id", id, "error", err)
			report.Incomplete++
		default:
			s.log.Error("Failed to settle auction", "auction_id", id, "error", err)
			report.Failed++
		}
	}

	if report.Activated > 0 || report.Ended > 0 || report.Reversed > 0 || len(ids) > 0 {
		s.log.Info("Lifecycle tick", "activated", report.Activated, "ended", report.Ended,
			"settled", report.Settled, "incomplete", report.Incomplete, "failed", report.Failed,
			"reversed", report.Reversed)
	}
	return report
}
