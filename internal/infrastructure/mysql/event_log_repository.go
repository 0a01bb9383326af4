package mysql

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
)

type MySQLEventLogRepository struct {
	db *utils.MySQL
}

func NewMySQLEventLogRepository(db *utils.MySQL) *MySQLEventLogRepository {
	return &MySQLEventLogRepository{db: db}
}

func (r *MySQLEventLogRepository) SaveAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	query, args, err := r.db.SqlBuilder.
		Insert("auction_events").
		Columns("auction_id", "event_type", "user_id", "amount", "end_time", "occurred_at", "created_at").
		Values(event.AuctionID, string(event.Type), event.UserID, event.Amount, event.EndTime, event.Timestamp, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Database.ExecContext(ctx, query, args...)
	return err
}

func (r *MySQLEventLogRepository) GetAuctionEvents(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	query, args, err := r.db.SqlBuilder.
		Select("auction_id", "event_type", "user_id", "amount", "end_time", "occurred_at").
		From("auction_events").
		Where(squirrel.Eq{"auction_id": auctionID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuctionEvent
	for rows.Next() {
		var (
			event     domain.AuctionEvent
			eventType string
			endTime   sql.NullTime
		)
		if err := rows.Scan(&event.AuctionID, &eventType, &event.UserID, &event.Amount, &endTime, &event.Timestamp); err != nil {
			return nil, err
		}

		event.Type = domain.AuctionEventType(eventType)
		if endTime.Valid {
			t := endTime.Time
			event.EndTime = &t
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
