package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

const pgUniqueViolation = "23505"

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectAttempts int
}

// NewPostgresPool connects and pings, retrying while the database is still
// starting up.
func NewPostgresPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	attempts := max(cfg.ConnectAttempts, 1)

	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logrus.WithError(err).WithField("attempt", attempt).Warn("postgres not ready, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

type PostgresAdapter struct {
	db *pgxpool.Pool
}

func NewPostgresAdapter(db *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{db: db}
}

func (p *PostgresAdapter) CreateListing(ctx context.Context, l domain.Listing) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		l.ID, l.Kind, l.Title, l.Slug, l.ShortDescription, l.Description, l.Instructor, l.Modality,
		l.Location, l.VirtualLink, l.Price, l.TotalSlots, l.AvailableSlots, l.Status, l.Featured,
		l.StartsAt, l.EndsAt, l.Level, l.Category, l.CreatedAt, l.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return domain.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	return scanPgListing(p.db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

func (p *PostgresAdapter) GetListingBySlug(ctx context.Context, kind domain.ListingKind, slug string) (*domain.Listing, error) {
	return scanPgListing(p.db.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE kind = $1 AND slug = $2`, kind, slug))
}

func (p *PostgresAdapter) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.PublishedOnly {
		args = append(args, domain.ListingStatusPublished)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.FeaturedOnly {
		where = append(where, "featured")
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.PublishedOnly {
		query += " ORDER BY starts_at DESC"
	} else {
		query += " ORDER BY created_at DESC"
	}
	offset, limit := domain.Window(filter.Page, filter.Limit)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanPgListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) UpdateListing(ctx context.Context, l domain.Listing, totalSlots *int) error {
	// Postgres evaluates every SET expression against the old row.
	tag, err := p.db.Exec(ctx, `
		UPDATE listings
		SET title = $1, slug = $2, short_description = $3, description = $4, instructor = $5,
			modality = $6, location = $7, virtual_link = $8, price = $9, status = $10, featured = $11,
			starts_at = $12, ends_at = $13, level = $14, category = $15, updated_at = $16,
			total_slots = COALESCE($18::int, total_slots),
			available_slots = available_slots + (COALESCE($18::int, total_slots) - total_slots)
		WHERE id = $17 AND total_slots - available_slots <= COALESCE($18::int, total_slots)`,
		l.Title, l.Slug, l.ShortDescription, l.Description, l.Instructor,
		l.Modality, l.Location, l.VirtualLink, l.Price, l.Status, l.Featured,
		l.StartsAt, l.EndsAt, l.Level, l.Category, l.UpdatedAt,
		l.ID, totalSlots,
	)
	if isPgUniqueViolation(err) {
		return domain.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetListing(ctx, l.ID); err != nil {
			return err
		}
		return domain.ErrInvalidCapacity
	}
	return nil
}

func (p *PostgresAdapter) DeleteListing(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `
		DELETE FROM listings
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM sales WHERE listing_id = $1)`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.GetListing(ctx, id); err != nil {
			return err
		}
		return domain.ErrConflict
	}
	return nil
}

func (p *PostgresAdapter) ReserveSeat(ctx context.Context, listingID string, build func(domain.Listing) domain.Sale) (*domain.Sale, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	listing, err := scanPgListing(tx.QueryRow(ctx, `
		UPDATE listings
		SET available_slots = available_slots - 1, updated_at = $1
		WHERE id = $2 AND status = $3 AND available_slots > 0
		RETURNING `+listingColumns,
		time.Now().UTC(), listingID, domain.ListingStatusPublished,
	))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, reserveFailure(scanPgListing(tx.QueryRow(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID)))
	}
	if err != nil {
		return nil, err
	}

	sale := build(*listing)
	_, err = tx.Exec(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		sale.ID, sale.SaleNumber, sale.ListingID, sale.ListingKind, sale.Name, sale.Email,
		sale.Phone, sale.Rut, sale.Address, sale.Total, sale.PaymentMethod, sale.TransactionID,
		sale.Status, sale.SaleDate, sale.CreatedAt, sale.UpdatedAt,
	)
	if isPgUniqueViolation(err) {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return &sale, nil
}

func (p *PostgresAdapter) TransitionSale(ctx context.Context, t domain.SaleTransition) (*domain.Sale, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sale, err := scanPgSale(tx.QueryRow(ctx, `
		UPDATE sales
		SET status = $1, transaction_id = COALESCE(NULLIF($2, ''), transaction_id), updated_at = $3
		WHERE id = $4 AND status = $5
		RETURNING `+saleColumns,
		t.To, t.TransactionID, t.At, t.SaleID, t.From,
	))
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := scanPgSale(tx.QueryRow(ctx,
			`SELECT `+saleColumns+` FROM sales WHERE id = $1`, t.SaleID)); err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, err
	}

	if t.ReleaseSeat {
		_, err = tx.Exec(ctx, `
			UPDATE listings
			SET available_slots = LEAST(available_slots + 1, total_slots), updated_at = $1
			WHERE id = $2`,
			t.At, sale.ListingID,
		)
		if err != nil {
			return nil, fmt.Errorf("release seat: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return sale, nil
}

func (p *PostgresAdapter) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return scanPgSale(p.db.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
}

func (p *PostgresAdapter) GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error) {
	return scanPgSale(p.db.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE sale_number = $1`, saleNumber))
}

func (p *PostgresAdapter) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ListingID != "" {
		args = append(args, filter.ListingID)
		where = append(where, fmt.Sprintf("listing_id = $%d", len(args)))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	offset, limit := domain.Window(filter.Page, filter.Limit)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return p.querySales(ctx, query, args...)
}

func (p *PostgresAdapter) ListPendingSales(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Sale, error) {
	return p.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`,
		domain.SaleStatusPending, createdBefore, limit,
	)
}

func (p *PostgresAdapter) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		s, err := scanPgSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if isPgUniqueViolation(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := p.db.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users WHERE email = $1`, strings.ToLower(email),
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (p *PostgresAdapter) HasRole(ctx context.Context, role domain.Role) (bool, error) {
	var exists bool
	err := p.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query role: %w", err)
	}
	return exists, nil
}

func scanPgListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(&l.ID, &l.Kind, &l.Title, &l.Slug, &l.ShortDescription, &l.Description,
		&l.Instructor, &l.Modality, &l.Location, &l.VirtualLink, &l.Price, &l.TotalSlots,
		&l.AvailableSlots, &l.Status, &l.Featured, &l.StartsAt, &l.EndsAt, &l.Level, &l.Category,
		&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return &l, nil
}

func scanPgSale(row pgx.Row) (*domain.Sale, error) {
	var s domain.Sale
	err := row.Scan(&s.ID, &s.SaleNumber, &s.ListingID, &s.ListingKind, &s.Name, &s.Email,
		&s.Phone, &s.Rut, &s.Address, &s.Total, &s.PaymentMethod, &s.TransactionID,
		&s.Status, &s.SaleDate, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sale: %w", err)
	}
	return &s, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
