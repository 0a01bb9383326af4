package mysql

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"
	"context"

	"github.com/Masterminds/squirrel"
)

type MySQLEscrowReversalRepository struct {
	db *utils.MySQL
}

func NewMySQLEscrowReversalRepository(db *utils.MySQL) *MySQLEscrowReversalRepository {
	return &MySQLEscrowReversalRepository{db: db}
}

func (r *MySQLEscrowReversalRepository) SaveReversal(ctx context.Context, reversal *domain.EscrowReversal) error {
	query, args, err := r.db.SqlBuilder.
		Insert("escrow_reversals").
		Columns("ref", "user_id", "amount", "reason", "created_at").
		Values(reversal.Ref, reversal.UserID, reversal.Amount, reversal.Reason, reversal.CreatedAt).
		Suffix("ON DUPLICATE KEY UPDATE ref = ref").
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Database.ExecContext(ctx, query, args...)
	return err
}

func (r *MySQLEscrowReversalRepository) ListReversals(ctx context.Context, limit int) ([]*domain.EscrowReversal, error) {
	builder := r.db.SqlBuilder.
		Select("ref", "user_id", "amount", "reason", "created_at").
		From("escrow_reversals").
		OrderBy("created_at ASC", "ref ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversals []*domain.EscrowReversal
	for rows.Next() {
		var rev domain.EscrowReversal
		if err := rows.Scan(&rev.Ref, &rev.UserID, &rev.Amount, &rev.Reason, &rev.CreatedAt); err != nil {
			return nil, err
		}
		reversals = append(reversals, &rev)
	}
	return reversals, rows.Err()
}

func (r *MySQLEscrowReversalRepository) DeleteReversal(ctx context.Context, ref string) error {
	query, args, err := r.db.SqlBuilder.
		Delete("escrow_reversals").
		Where(squirrel.Eq{"ref": ref}).
		ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Database.ExecContext(ctx, query, args...)
	return err
}
