package mysql

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
)

const (
	entryDebit  = "debit"
	entryCredit = "credit"

	errDuplicateEntry = 1062
)

func isDuplicateKey(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}

// MySQLWallet keeps balances in `wallets` and every applied movement in
// `wallet_entries`, keyed by its reference. The entry insert and the balance
// change share a transaction, so a reference is applied at most once.
type MySQLWallet struct {
	db    *utils.MySQL
	clock domain.Clock
}

func NewMySQLWallet(db *utils.MySQL, clock domain.Clock) *MySQLWallet {
	return &MySQLWallet{db: db, clock: clock}
}

func (w *MySQLWallet) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return w.balance(ctx, w.db.Database, userID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (w *MySQLWallet) balance(ctx context.Context, q queryRower, userID string) (decimal.Decimal, error) {
	query, args, err := w.db.SqlBuilder.
		Select("balance").
		From("wallets").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err = q.QueryRowContext(ctx, query, args...).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}

func (w *MySQLWallet) Debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit", domain.ErrInvalidAmount)
	}

	return w.apply(ctx, userID, amount, ref, entryDebit, func(tx *sql.Tx, now time.Time) error {
		query, args, err := w.db.SqlBuilder.
			Update("wallets").
			Set("balance", squirrel.Expr("balance - ?", amount)).
			Set("updated_at", now).
			Where(squirrel.Eq{"user_id": userID}).
			Where(squirrel.GtOrEq{"balance": amount}).
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
		if affected == 0 && amount.IsPositive() {
			balance, err := w.balance(ctx, tx, userID)
			if err != nil {
				return err
			}
			return &domain.InsufficientFundsError{Required: amount, Balance: balance}
		}
		return nil
	})
}

func (w *MySQLWallet) Credit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit", domain.ErrInvalidAmount)
	}

	return w.apply(ctx, userID, amount, ref, entryCredit, func(tx *sql.Tx, now time.Time) error {
		query, args, err := w.db.SqlBuilder.
			Insert("wallets").
			Columns("user_id", "balance", "updated_at").
			Values(userID, amount, now).
			Suffix("ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = VALUES(updated_at)").
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
}

func (w *MySQLWallet) apply(ctx context.Context, userID string, amount decimal.Decimal, ref, kind string, move func(tx *sql.Tx, now time.Time) error) error {
	tx, err := w.db.Database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := w.clock.Now()
	query, args, err := w.db.SqlBuilder.
		Insert("wallet_entries").
		Columns("ref", "user_id", "amount", "kind", "created_at").
		Values(ref, userID, amount, kind, now).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			// already applied
			return nil
		}
		return err
	}

	if err := move(tx, now); err != nil {
		return err
	}
	return tx.Commit()
}
