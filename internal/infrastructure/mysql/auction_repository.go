package mysql

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Masterminds/squirrel"
)

var auctionColumns = []string{
	"id", "product_ref", "title", "description",
	"start_price", "reserve_price", "bid_increment",
	"current_top_bid", "current_top_bidder_id",
	"start_time", "end_time", "status", "bid_count",
	"fee_percentage", "auto_extend", "extension_minutes", "last_extension_time",
	"winner_id", "winning_bid", "is_processed", "version",
	"created_at", "updated_at",
}

var bidColumns = []string{
	"auction_id", "seq", "bidder_id", "amount", "placed_at", "status", "refund_ref", "refunded_at",
}

var liveStatuses = []int{int(domain.AuctionUpcoming), int(domain.AuctionActive)}

// MySQLAuctionRepository stores the auction header in `auctions` and its bids
// in `auction_bids`; both are always written in one transaction guarded by
// the header's version column.
type MySQLAuctionRepository struct {
	db *utils.MySQL
}

func NewMySQLAuctionRepository(db *utils.MySQL) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction domain.Auction
		status  int
		lastExt sql.NullTime
	)

	err := row.Scan(
		&auction.ID, &auction.ProductRef, &auction.Title, &auction.Description,
		&auction.StartPrice, &auction.ReservePrice, &auction.BidIncrement,
		&auction.CurrentTopBid, &auction.CurrentTopBidderID,
		&auction.StartTime, &auction.EndTime, &status, &auction.BidCount,
		&auction.FeePercentage, &auction.AutoExtend, &auction.ExtensionMinutes, &lastExt,
		&auction.WinnerID, &auction.WinningBid, &auction.IsProcessed, &auction.Version,
		&auction.CreatedAt, &auction.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	if lastExt.Valid {
		t := lastExt.Time
		auction.LastExtensionTime = &t
	}
	return &auction, nil
}

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	tx, err := r.db.Database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := r.db.SqlBuilder.
		Insert("auctions").
		Columns(auctionColumns...).
		Values(
			auction.ID, auction.ProductRef, auction.Title, auction.Description,
			auction.StartPrice, auction.ReservePrice, auction.BidIncrement,
			auction.CurrentTopBid, auction.CurrentTopBidderID,
			auction.StartTime, auction.EndTime, int(auction.Status), auction.BidCount,
			auction.FeePercentage, auction.AutoExtend, auction.ExtensionMinutes, auction.LastExtensionTime,
			auction.WinnerID, auction.WinningBid, auction.IsProcessed, auction.Version,
			auction.CreatedAt, auction.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: auction %s already exists", domain.ErrInvalidAuction, auction.ID)
		}
		return err
	}

	if err := r.upsertBids(ctx, tx, auction); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	// one snapshot for header and bids
	tx, err := r.db.Database.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query, args, err := r.db.SqlBuilder.
		Select(auctionColumns...).
		From("auctions").
		Where(squirrel.Eq{"id": auctionID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	auction, err := scanAuction(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}

	bids, err := r.loadBids(ctx, tx, []string{auctionID})
	if err != nil {
		return nil, err
	}
	auction.Bids = bids[auctionID]

	return auction, tx.Commit()
}

func (r *MySQLAuctionRepository) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	tx, err := r.db.Database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := r.db.SqlBuilder.
		Update("auctions").
		SetMap(map[string]interface{}{
			"title":                 auction.Title,
			"description":           auction.Description,
			"current_top_bid":       auction.CurrentTopBid,
			"current_top_bidder_id": auction.CurrentTopBidderID,
			"end_time":              auction.EndTime,
			"status":                int(auction.Status),
			"bid_count":             auction.BidCount,
			"last_extension_time":   auction.LastExtensionTime,
			"winner_id":             auction.WinnerID,
			"winning_bid":           auction.WinningBid,
			"is_processed":          auction.IsProcessed,
			"updated_at":            auction.UpdatedAt,
			"version":               squirrel.Expr("version + 1"),
		}).
		Where(squirrel.Eq{"id": auction.ID, "version": auction.Version}).
		ToSql()
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM auctions WHERE id = ?", auction.ID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAuctionNotFound
		}
		return fmt.Errorf("%w: auction %s changed since version %d", domain.ErrConcurrencyConflict, auction.ID, auction.Version)
	}

	if err := r.upsertBids(ctx, tx, auction); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	auction.Version++
	return nil
}

// upsertBids writes every bid row; existing rows only ever change their
// refund state.
func (r *MySQLAuctionRepository) upsertBids(ctx context.Context, tx *sql.Tx, auction *domain.Auction) error {
	if len(auction.Bids) == 0 {
		return nil
	}

	insert := r.db.SqlBuilder.Insert("auction_bids").Columns(bidColumns...)
	for i, b := range auction.Bids {
		insert = insert.Values(auction.ID, i, b.BidderID, b.Amount, b.PlacedAt, int(b.Status), b.RefundRef, b.RefundedAt)
	}
	query, args, err := insert.
		Suffix("ON DUPLICATE KEY UPDATE status = VALUES(status), refund_ref = VALUES(refund_ref), refunded_at = VALUES(refunded_at)").
		ToSql()
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func (r *MySQLAuctionRepository) loadBids(ctx context.Context, tx *sql.Tx, auctionIDs []string) (map[string][]domain.Bid, error) {
	query, args, err := r.db.SqlBuilder.
		Select(bidColumns...).
		From("auction_bids").
		Where(squirrel.Eq{"auction_id": auctionIDs}).
		OrderBy("auction_id", "seq").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := make(map[string][]domain.Bid, len(auctionIDs))
	for rows.Next() {
		var (
			auctionID  string
			seq        int
			bid        domain.Bid
			status     int
			refundedAt sql.NullTime
		)
		if err := rows.Scan(&auctionID, &seq, &bid.BidderID, &bid.Amount, &bid.PlacedAt, &status, &bid.RefundRef, &refundedAt); err != nil {
			return nil, err
		}
		bid.Status = domain.BidStatus(status)
		if refundedAt.Valid {
			t := refundedAt.Time
			bid.RefundedAt = &t
		}
		bids[auctionID] = append(bids[auctionID], bid)
	}
	return bids, rows.Err()
}

func statusPredicate(status domain.AuctionStatus, now time.Time) squirrel.Sqlizer {
	live := squirrel.Eq{"status": liveStatuses}
	switch status {
	case domain.AuctionUpcoming:
		return squirrel.And{live, squirrel.Gt{"start_time": now}}
	case domain.AuctionActive:
		return squirrel.And{live, squirrel.LtOrEq{"start_time": now}, squirrel.Gt{"end_time": now}}
	case domain.AuctionEnded:
		return squirrel.Or{
			squirrel.Eq{"status": int(domain.AuctionEnded)},
			squirrel.And{live, squirrel.LtOrEq{"end_time": now}},
		}
	default:
		return squirrel.Eq{"status": int(status)}
	}
}

func (r *MySQLAuctionRepository) FindAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	q := r.db.SqlBuilder.Select(auctionColumns...).From("auctions")

	if filter.Status != nil {
		q = q.Where(statusPredicate(*filter.Status, filter.Now))
	}
	if filter.BidderID != "" {
		q = q.Where("id IN (SELECT auction_id FROM auction_bids WHERE bidder_id = ?)", filter.BidderID)
	}
	if filter.MinTopBid.Valid {
		q = q.Where(squirrel.GtOrEq{"current_top_bid": filter.MinTopBid.Decimal})
	}
	if filter.MaxTopBid.Valid {
		q = q.Where(squirrel.LtOrEq{"current_top_bid": filter.MaxTopBid.Decimal})
	}

	q = q.OrderBy("end_time ASC", "id ASC")
	switch {
	case filter.Limit > 0:
		q = q.Limit(uint64(filter.Limit))
	case filter.Offset > 0:
		// MySQL has no OFFSET without LIMIT
		q = q.Limit(math.MaxInt32)
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Database.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var (
		auctions []*domain.Auction
		ids      []string
	)
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		auctions = append(auctions, auction)
		ids = append(ids, auction.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	bids, err := r.loadBids(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range auctions {
		a.Bids = bids[a.ID]
	}

	return auctions, tx.Commit()
}

// ActivateDueAuctions and EndDueAuctions bump the version of every row they
// touch so that in-flight writers re-validate against the new status.
func (r *MySQLAuctionRepository) ActivateDueAuctions(ctx context.Context, now time.Time) (int64, error) {
	return r.flip(ctx, r.db.SqlBuilder.
		Update("auctions").
		Set("status", int(domain.AuctionActive)).
		Where(squirrel.Eq{"status": int(domain.AuctionUpcoming)}).
		Where(squirrel.LtOrEq{"start_time": now}).
		Where(squirrel.Gt{"end_time": now}), now)
}

func (r *MySQLAuctionRepository) EndDueAuctions(ctx context.Context, now time.Time) (int64, error) {
	return r.flip(ctx, r.db.SqlBuilder.
		Update("auctions").
		Set("status", int(domain.AuctionEnded)).
		Where(squirrel.Eq{"status": liveStatuses}).
		Where(squirrel.LtOrEq{"end_time": now}), now)
}

func (r *MySQLAuctionRepository) flip(ctx context.Context, update squirrel.UpdateBuilder, now time.Time) (int64, error) {
	query, args, err := update.
		Set("updated_at", now).
		Set("version", squirrel.Expr("version + 1")).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.Database.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MySQLAuctionRepository) GetUnsettledAuctionIDs(ctx context.Context) ([]string, error) {
	query, args, err := r.db.SqlBuilder.
		Select("id").
		From("auctions").
		Where(squirrel.Eq{
			"is_processed": false,
			"status": []int{
				int(domain.AuctionEnded), int(domain.AuctionCompleted),
				int(domain.AuctionExpired), int(domain.AuctionCancelled),
			},
		}).
		OrderBy("end_time ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
