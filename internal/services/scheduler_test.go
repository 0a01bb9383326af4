package services

import (
	"auction-engine/internal/domain"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLeader struct {
	leader bool
	err    error
}

func (s stubLeader) BecomeLeader(ctx context.Context) (bool, error) { return s.leader, s.err }
func (s stubLeader) IsLeader(ctx context.Context) (bool, error)     { return s.leader, s.err }
func (s stubLeader) ReleaseLeadership(ctx context.Context) error    { return nil }

func TestTickDrivesLifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")

	f.clock.Set(start.Add(30 * time.Second))
	report := f.scheduler.Tick(context.Background())
	assert.Equal(t, int64(1), report.Activated)
	assert.Equal(t, domain.AuctionActive, f.stored(t, a.ID).Status)

	f.bid(t, a.ID, "alice", "150")

	f.clock.Set(a.EndTime.Add(30 * time.Second))
	report = f.scheduler.Tick(context.Background())
	assert.Equal(t, int64(1), report.Ended)
	assert.Equal(t, 1, report.Settled)

	stored := f.stored(t, a.ID)
	assert.Equal(t, domain.AuctionCompleted, stored.Status)
	assert.True(t, stored.IsProcessed)

	// nothing left to do
	report = f.scheduler.Tick(context.Background())
	assert.Zero(t, report.Ended)
	assert.Zero(t, report.Settled)
}

func TestTickCatchesUpAfterMissedTicks(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)

	// the scheduler was down for the whole auction
	f.clock.Set(a.EndTime.Add(3 * time.Hour))
	report := f.scheduler.Tick(context.Background())
	assert.Zero(t, report.Activated)
	assert.Equal(t, int64(1), report.Ended)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, domain.AuctionExpired, f.stored(t, a.ID).Status)
}

func TestTickRetriesIncompleteSettlement(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.fund("bob", "1000")

	f.clock.Set(start)
	f.bid(t, a.ID, "alice", "100")
	f.bid(t, a.ID, "bob", "110")

	f.wallet.setFailing("alice", true)
	f.clock.Set(a.EndTime)
	report := f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, report.Incomplete)
	assert.False(t, f.stored(t, a.ID).IsProcessed)

	f.wallet.setFailing("alice", false)
	f.clock.Advance(time.Minute)
	report = f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, report.Settled)
	assert.True(t, f.stored(t, a.ID).IsProcessed)
	assert.True(t, f.balance(t, "alice").Equal(dec("995")))
}

func TestTickSkipsWhenNotLeader(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.clock.Set(a.EndTime)

	for _, leader := range []stubLeader{{leader: false}, {err: errors.New("redis down")}} {
		s := NewCronLifecycleScheduler("@every 1m", f.repo, f.settlement, f.bids, leader, f.clock, f.settlement.log)
		report := s.Tick(context.Background())
		assert.True(t, report.Skipped)
	}
	assert.Equal(t, domain.AuctionUpcoming, f.stored(t, a.ID).Status)
}

func TestSchedulerStartStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.scheduler.Start(context.Background()))
	require.NoError(t, f.scheduler.Stop())

	bad := NewCronLifecycleScheduler("not a schedule", f.repo, f.settlement, f.bids, stubLeader{leader: true}, f.clock, f.settlement.log)
	assert.Error(t, bad.Start(context.Background()))
}
