package services

import (
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingNotifier struct {
	mu      sync.Mutex
	wins    []domain.WinNotification
	refunds map[string][]domain.RefundNotification
	fail    bool
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{refunds: map[string][]domain.RefundNotification{}}
}

func (n *recordingNotifier) NotifyWin(ctx context.Context, userID string, w domain.WinNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wins = append(n.wins, w)
	if n.fail {
		return errors.New("notification channel down")
	}
	return nil
}

func (n *recordingNotifier) NotifyRefund(ctx context.Context, userID string, r domain.RefundNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refunds[userID] = append(n.refunds[userID], r)
	if n.fail {
		return errors.New("notification channel down")
	}
	return nil
}

func (n *recordingNotifier) refundCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, r := range n.refunds {
		total += len(r)
	}
	return total
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AuctionEvent
}

func (p *recordingPublisher) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

func (p *recordingPublisher) types() []domain.AuctionEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.AuctionEventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyWallet fails credits for selected users until told otherwise. Debits
// can be made to time out, optionally after they were applied.
type flakyWallet struct {
	*memory.Wallet
	mu           sync.Mutex
	failCredits  map[string]bool
	credits      int
	debitTimeout int
	applyThenErr bool
	onCredit     func()
}

func (w *flakyWallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	w.mu.Lock()
	timeout := w.debitTimeout > 0
	if timeout {
		w.debitTimeout--
	}
	apply := w.applyThenErr
	w.mu.Unlock()

	if !timeout {
		return w.Wallet.Debit(ctx, userID, amount, ref)
	}
	if apply {
		if err := w.Wallet.Debit(ctx, userID, amount, ref); err != nil {
			return err
		}
	}
	return context.DeadlineExceeded
}

func (w *flakyWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	w.mu.Lock()
	fail := w.failCredits[userID]
	w.credits++
	hook := w.onCredit
	w.onCredit = nil
	w.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errors.New("wallet unavailable")
	}
	return w.Wallet.Credit(ctx, userID, amount, ref)
}

func (w *flakyWallet) setFailing(userID string, fail bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failCredits[userID] = fail
}

// timeDebitsOut makes the next n debits report a timeout. With applied set
// the debit still lands first.
func (w *flakyWallet) timeDebitsOut(n int, applied bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debitTimeout = n
	w.applyThenErr = applied
}

// beforeNextCredit runs hook once, ahead of the next credit.
func (w *flakyWallet) beforeNextCredit(hook func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onCredit = hook
}

func (w *flakyWallet) creditCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.credits
}

// racingRepo loses writes as if another writer got there first, and can run
// another writer right before a write reaches the store.
type racingRepo struct {
	*memory.AuctionRepository
	mu          sync.Mutex
	pass        int
	conflicts   int
	beforeWrite func()
}

func (r *racingRepo) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	r.mu.Lock()
	if r.pass > 0 {
		r.pass--
	} else if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return domain.ErrConcurrencyConflict
	}
	hook := r.beforeWrite
	r.beforeWrite = nil
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return r.AuctionRepository.UpdateAuction(ctx, auction)
}

func (r *racingRepo) loseNext(n int) {
	r.loseAfter(0, n)
}

// loseAfter lets pass writes through and then loses the next n.
func (r *racingRepo) loseAfter(pass, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pass = pass
	r.conflicts = n
}

func (r *racingRepo) beforeNextWrite(hook func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeWrite = hook
}

type fixture struct {
	repo       *racingRepo
	wallet     *flakyWallet
	notifier   *recordingNotifier
	publisher  *recordingPublisher
	cache      *memory.StateCache
	eventLog   *memory.EventLog
	reversals  *memory.EscrowReversalStore
	clock      *memory.ManualClock
	bids       *BidService
	settlement *SettlementService
	manager    *AuctionManager
	scheduler  *CronLifecycleScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.FromZap(zaptest.NewLogger(t))

	f := &fixture{
		repo:      &racingRepo{AuctionRepository: memory.NewAuctionRepository()},
		wallet:    &flakyWallet{Wallet: memory.NewWallet(), failCredits: map[string]bool{}},
		notifier:  newRecordingNotifier(),
		publisher: &recordingPublisher{},
		cache:     memory.NewStateCache(),
		eventLog:  memory.NewEventLog(),
		reversals: memory.NewEscrowReversalStore(),
		clock:     memory.NewManualClock(start.Add(-time.Hour)),
	}

	opts := DefaultEngineOptions()
	opts.WalletTimeout = time.Second
	opts.NotifyTimeout = time.Second

	f.bids = NewBidService(f.repo, f.wallet, f.reversals, f.publisher, f.cache, f.clock, opts, log)
	f.settlement = NewSettlementService(f.repo, f.wallet, f.notifier, NewStaticAdminDirectory([]string{"admin"}),
		f.publisher, f.cache, f.clock, opts, log)
	f.manager = NewAuctionManager(f.repo, f.cache, f.eventLog, memory.NewStaticIncrementRules(), f.clock, log)
	f.scheduler = NewCronLifecycleScheduler("@every 1m", f.repo, f.settlement, f.bids, memory.SingleNodeLeader{}, f.clock, log)
	return f
}

func (f *fixture) fund(userID, amount string) {
	f.wallet.Deposit(userID, dec(amount))
}

func (f *fixture) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	b, err := f.wallet.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

type auctionOpt func(in *CreateAuctionInput)

func withReserve(v string) auctionOpt {
	return func(in *CreateAuctionInput) { in.ReservePrice = decimal.NewNullDecimal(dec(v)) }
}

func withFee(v string) auctionOpt {
	return func(in *CreateAuctionInput) { in.FeePercentage = dec(v) }
}

func withAutoExtend(minutes int) auctionOpt {
	return func(in *CreateAuctionInput) {
		in.AutoExtend = true
		in.ExtensionMinutes = minutes
	}
}

// createAuction opens an auction running from start to start+1h.
func (f *fixture) createAuction(t *testing.T, opts ...auctionOpt) *domain.Auction {
	t.Helper()
	in := CreateAuctionInput{
		ProductRef:    "prod_1",
		Title:         "Mechanical watch",
		StartPrice:    dec("100"),
		BidIncrement:  decimal.NewNullDecimal(dec("10")),
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		FeePercentage: dec("5"),
	}
	for _, o := range opts {
		o(&in)
	}
	a, err := f.manager.CreateAuction(context.Background(), in)
	require.NoError(t, err)
	return a
}

func (f *fixture) bid(t *testing.T, auctionID, bidderID, amount string) *domain.Auction {
	t.Helper()
	a, err := f.bids.PlaceBid(context.Background(), auctionID, bidderID, dec(amount))
	require.NoError(t, err)
	return a
}

func (f *fixture) stored(t *testing.T, auctionID string) *domain.Auction {
	t.Helper()
	a, err := f.repo.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return a
}
