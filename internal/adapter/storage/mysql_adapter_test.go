package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

func getMySQLDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/seatsales?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := MigrateMySQL(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMySQLAdapter(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	runRepositorySuite(t, NewMySQLAdapter(db))
}

func TestMySQLAdapter_DecrementGuardedInSQL(t *testing.T) {
	db := getMySQLDB(t)
	defer db.Close()

	ctx := context.Background()
	adapter := NewMySQLAdapter(db)
	l := newTestListing(1, "published")
	if err := adapter.CreateListing(ctx, l); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := adapter.ReserveSeat(ctx, l.ID, buildTestSale); err != nil {
		t.Fatalf("ReserveSeat failed: %v", err)
	}

	// Verify the check constraint still holds the floor
	_, err := db.ExecContext(ctx, `UPDATE listings SET available_slots = available_slots - 1 WHERE id = ?`, l.ID)
	if err == nil {
		t.Error("expected check constraint to reject negative available_slots")
	}
}
