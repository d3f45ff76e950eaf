package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const listingColumns = `id, kind, title, slug, short_description, description, instructor, modality,
	location, virtual_link, price, total_slots, available_slots, status, featured,
	starts_at, ends_at, level, category, created_at, updated_at`

const saleColumns = `id, sale_number, listing_id, listing_kind, customer_name, customer_email,
	customer_phone, customer_rut, customer_address, total, payment_method, transaction_id,
	status, sale_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) CreateListing(ctx context.Context, l domain.Listing) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Kind, l.Title, l.Slug, l.ShortDescription, l.Description, l.Instructor, l.Modality,
		l.Location, l.VirtualLink, l.Price, l.TotalSlots, l.AvailableSlots, l.Status, l.Featured,
		l.StartsAt, nullTime(l.EndsAt), l.Level, l.Category, l.CreatedAt, l.UpdatedAt,
	)
	if isMySQLDuplicate(err) {
		return domain.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	return scanMySQLListing(m.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
}

func (m *MySQLAdapter) GetListingBySlug(ctx context.Context, kind domain.ListingKind, slug string) (*domain.Listing, error) {
	return scanMySQLListing(m.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE kind = ? AND slug = ?`, kind, slug))
}

func (m *MySQLAdapter) ListListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.PublishedOnly {
		where = append(where, "status = ?")
		args = append(args, domain.ListingStatusPublished)
	}
	if filter.FeaturedOnly {
		where = append(where, "featured = TRUE")
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
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanMySQLListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) UpdateListing(ctx context.Context, l domain.Listing, totalSlots *int) error {
	// One statement: the capacity guard sits in WHERE, so a refused resize
	// leaves every other field untouched too. MySQL evaluates SET left to
	// right, so available_slots must come before total_slots.
	result, err := m.db.ExecContext(ctx, `
		UPDATE listings
		SET title = ?, slug = ?, short_description = ?, description = ?, instructor = ?,
			modality = ?, location = ?, virtual_link = ?, price = ?, status = ?, featured = ?,
			starts_at = ?, ends_at = ?, level = ?, category = ?, updated_at = ?,
			available_slots = available_slots + (COALESCE(?, total_slots) - total_slots),
			total_slots = COALESCE(?, total_slots)
		WHERE id = ? AND total_slots - available_slots <= COALESCE(?, total_slots)`,
		l.Title, l.Slug, l.ShortDescription, l.Description, l.Instructor,
		l.Modality, l.Location, l.VirtualLink, l.Price, l.Status, l.Featured,
		l.StartsAt, nullTime(l.EndsAt), l.Level, l.Category, l.UpdatedAt,
		totalSlots, totalSlots,
		l.ID, totalSlots,
	)
	if isMySQLDuplicate(err) {
		return domain.ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("update listing: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		cur, err := m.GetListing(ctx, l.ID)
		if err != nil {
			return err
		}
		if totalSlots != nil && *totalSlots < cur.HeldSlots() {
			return domain.ErrInvalidCapacity
		}
	}
	return nil
}

func (m *MySQLAdapter) DeleteListing(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var sales int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales WHERE listing_id = ?`, id).Scan(&sales); err != nil {
		return fmt.Errorf("count sales: %w", err)
	}
	if sales > 0 {
		return domain.ErrConflict
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit()
}

func (m *MySQLAdapter) ReserveSeat(ctx context.Context, listingID string, build func(domain.Listing) domain.Sale) (*domain.Sale, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET available_slots = available_slots - 1, updated_at = ?
		WHERE id = ? AND status = ? AND available_slots > 0`,
		time.Now().UTC(), listingID, domain.ListingStatusPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement seats: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, reserveFailure(scanMySQLListing(tx.QueryRowContext(ctx,
			`SELECT `+listingColumns+` FROM listings WHERE id = ?`, listingID)))
	}

	// the row stays locked by the update until commit
	listing, err := scanMySQLListing(tx.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, listingID))
	if err != nil {
		return nil, err
	}
	sale := build(*listing)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.SaleNumber, sale.ListingID, sale.ListingKind, sale.Name, sale.Email,
		sale.Phone, sale.Rut, sale.Address, sale.Total, sale.PaymentMethod, sale.TransactionID,
		sale.Status, sale.SaleDate, sale.CreatedAt, sale.UpdatedAt,
	)
	if isMySQLDuplicate(err) {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return &sale, nil
}

func (m *MySQLAdapter) TransitionSale(ctx context.Context, t domain.SaleTransition) (*domain.Sale, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET status = ?, transaction_id = IF(? = '', transaction_id, ?), updated_at = ?
		WHERE id = ? AND status = ?`,
		t.To, t.TransactionID, t.TransactionID, t.At, t.SaleID, t.From,
	)
	if err != nil {
		return nil, fmt.Errorf("update sale status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := scanMySQLSale(tx.QueryRowContext(ctx,
			`SELECT `+saleColumns+` FROM sales WHERE id = ?`, t.SaleID)); err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict
	}

	sale, err := scanMySQLSale(tx.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = ?`, t.SaleID))
	if err != nil {
		return nil, err
	}

	if t.ReleaseSeat {
		_, err = tx.ExecContext(ctx, `
			UPDATE listings
			SET available_slots = LEAST(available_slots + 1, total_slots), updated_at = ?
			WHERE id = ?`,
			t.At, sale.ListingID,
		)
		if err != nil {
			return nil, fmt.Errorf("release seat: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return sale, nil
}

func (m *MySQLAdapter) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return scanMySQLSale(m.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
}

func (m *MySQLAdapter) GetSaleByNumber(ctx context.Context, saleNumber string) (*domain.Sale, error) {
	return scanMySQLSale(m.db.QueryRowContext(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE sale_number = ?`, saleNumber))
}

func (m *MySQLAdapter) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ListingID != "" {
		where = append(where, "listing_id = ?")
		args = append(args, filter.ListingID)
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	offset, limit := domain.Window(filter.Page, filter.Limit)
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return m.querySales(ctx, query, args...)
}

func (m *MySQLAdapter) ListPendingSales(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Sale, error) {
	return m.querySales(ctx, `
		SELECT `+saleColumns+` FROM sales
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?`,
		domain.SaleStatusPending, createdBefore, limit,
	)
}

func (m *MySQLAdapter) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var out []domain.Sale
	for rows.Next() {
		s, err := scanMySQLSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, u domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.Role, u.CreatedAt,
	)
	if isMySQLDuplicate(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users WHERE email = ?`, strings.ToLower(email),
	).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) HasRole(ctx context.Context, role domain.Role) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE role = ?)`, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query role: %w", err)
	}
	return exists, nil
}

func scanMySQLListing(row rowScanner) (*domain.Listing, error) {
	var (
		l      domain.Listing
		endsAt sql.NullTime
	)
	err := row.Scan(&l.ID, &l.Kind, &l.Title, &l.Slug, &l.ShortDescription, &l.Description,
		&l.Instructor, &l.Modality, &l.Location, &l.VirtualLink, &l.Price, &l.TotalSlots,
		&l.AvailableSlots, &l.Status, &l.Featured, &l.StartsAt, &endsAt, &l.Level, &l.Category,
		&l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	if endsAt.Valid {
		l.EndsAt = &endsAt.Time
	}
	return &l, nil
}

func scanMySQLSale(row rowScanner) (*domain.Sale, error) {
	var s domain.Sale
	err := row.Scan(&s.ID, &s.SaleNumber, &s.ListingID, &s.ListingKind, &s.Name, &s.Email,
		&s.Phone, &s.Rut, &s.Address, &s.Total, &s.PaymentMethod, &s.TransactionID,
		&s.Status, &s.SaleDate, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan sale: %w", err)
	}
	return &s, nil
}

// reserveFailure explains why the conditional decrement matched no row.
func reserveFailure(l *domain.Listing, err error) error {
	if err != nil {
		return err
	}
	if !l.IsPublished() {
		return domain.ErrNotAvailable
	}
	return domain.ErrSoldOut
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
