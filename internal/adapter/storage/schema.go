package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                CHAR(36) PRIMARY KEY,
		kind              VARCHAR(16) NOT NULL,
		title             VARCHAR(200) NOT NULL,
		slug              VARCHAR(220) NOT NULL,
		short_description VARCHAR(200) NOT NULL DEFAULT '',
		description       MEDIUMTEXT NOT NULL,
		instructor        VARCHAR(200) NOT NULL DEFAULT '',
		modality          VARCHAR(16) NOT NULL,
		location          VARCHAR(255) NOT NULL DEFAULT '',
		virtual_link      VARCHAR(512) NOT NULL DEFAULT '',
		price             BIGINT NOT NULL,
		total_slots       INT NOT NULL,
		available_slots   INT NOT NULL,
		status            VARCHAR(16) NOT NULL,
		featured          BOOLEAN NOT NULL DEFAULT FALSE,
		starts_at         DATETIME(3) NOT NULL,
		ends_at           DATETIME(3) NULL,
		level             VARCHAR(32) NOT NULL DEFAULT '',
		category          VARCHAR(32) NOT NULL DEFAULT '',
		created_at        DATETIME(3) NOT NULL,
		updated_at        DATETIME(3) NOT NULL,
		UNIQUE KEY uq_listings_kind_slug (kind, slug),
		CONSTRAINT chk_listings_slots CHECK (available_slots >= 0 AND available_slots <= total_slots)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id               CHAR(36) PRIMARY KEY,
		sale_number      VARCHAR(64) NOT NULL UNIQUE,
		listing_id       CHAR(36) NOT NULL,
		listing_kind     VARCHAR(16) NOT NULL,
		customer_name    VARCHAR(100) NOT NULL,
		customer_email   VARCHAR(255) NOT NULL,
		customer_phone   VARCHAR(20) NOT NULL,
		customer_rut     VARCHAR(12) NOT NULL,
		customer_address VARCHAR(255) NOT NULL DEFAULT '',
		total            BIGINT NOT NULL,
		payment_method   VARCHAR(16) NOT NULL,
		transaction_id   VARCHAR(128) NOT NULL DEFAULT '',
		status           VARCHAR(16) NOT NULL,
		sale_date        DATETIME(3) NOT NULL,
		created_at       DATETIME(3) NOT NULL,
		updated_at       DATETIME(3) NOT NULL,
		INDEX idx_sales_status_created (status, created_at),
		INDEX idx_sales_listing (listing_id),
		CONSTRAINT fk_sales_listing FOREIGN KEY (listing_id) REFERENCES listings(id)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36) PRIMARY KEY,
		email         VARCHAR(255) NOT NULL UNIQUE,
		name          VARCHAR(100) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		role          VARCHAR(16) NOT NULL,
		created_at    DATETIME(3) NOT NULL
	)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id                TEXT PRIMARY KEY,
		kind              TEXT NOT NULL,
		title             TEXT NOT NULL,
		slug              TEXT NOT NULL,
		short_description TEXT NOT NULL DEFAULT '',
		description       TEXT NOT NULL,
		instructor        TEXT NOT NULL DEFAULT '',
		modality          TEXT NOT NULL,
		location          TEXT NOT NULL DEFAULT '',
		virtual_link      TEXT NOT NULL DEFAULT '',
		price             BIGINT NOT NULL,
		total_slots       INTEGER NOT NULL,
		available_slots   INTEGER NOT NULL,
		status            TEXT NOT NULL,
		featured          BOOLEAN NOT NULL DEFAULT FALSE,
		starts_at         TIMESTAMPTZ NOT NULL,
		ends_at           TIMESTAMPTZ,
		level             TEXT NOT NULL DEFAULT '',
		category          TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		UNIQUE (kind, slug),
		CHECK (available_slots >= 0 AND available_slots <= total_slots)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id               TEXT PRIMARY KEY,
		sale_number      TEXT NOT NULL UNIQUE,
		listing_id       TEXT NOT NULL REFERENCES listings(id),
		listing_kind     TEXT NOT NULL,
		customer_name    TEXT NOT NULL,
		customer_email   TEXT NOT NULL,
		customer_phone   TEXT NOT NULL,
		customer_rut     TEXT NOT NULL,
		customer_address TEXT NOT NULL DEFAULT '',
		total            BIGINT NOT NULL,
		payment_method   TEXT NOT NULL,
		transaction_id   TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		sale_date        TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_status_created ON sales(status, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_listing ON sales(listing_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
}

func MigrateMySQL(ctx context.Context, db *sql.DB) error {
	for _, stmt := range mysqlMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mysql migration: %w", err)
		}
	}
	logrus.Info("mysql migrations applied")
	return nil
}

func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range postgresMigrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migration: %w", err)
		}
	}
	logrus.Info("postgres migrations applied")
	return nil
}
