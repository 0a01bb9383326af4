package utils

import (
	"auction-engine/internal/config"
	"auction-engine/pkg/logger"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
)

// MySQL bundles the connection pool with a statement builder using `?` placeholders.
type MySQL struct {
	Database   *sql.DB
	SqlBuilder squirrel.StatementBuilderType
}

func InitializeMysql(ctx context.Context, cfg config.MySQLConfig, log logger.Logger) (*MySQL, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	log.Info("Connected to MySQL", "max_open_conns", cfg.MaxOpenConns)
	return NewMySQL(db), nil
}

func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{
		Database:   db,
		SqlBuilder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
}

func (m *MySQL) Close() error {
	return m.Database.Close()
}
