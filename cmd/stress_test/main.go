package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grupoimpulso/seat-sales/internal/adapter/storage"
	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/core/service"
	"github.com/grupoimpulso/seat-sales/internal/port"
)

func main() {
	driver := flag.String("driver", "memory", "storage driver: memory, mysql or postgres")
	dsn := flag.String("dsn", "", "database DSN for mysql/postgres")
	seats := flag.Int("seats", 20, "seats on the listing")
	buyers := flag.Int("buyers", 50, "concurrent buyers")
	flag.Parse()

	logrus.SetLevel(logrus.WarnLevel)
	ctx := context.Background()

	db, cleanup, err := openRepo(ctx, *driver, *dsn)
	if err != nil {
		logrus.Fatalf("failed to open %s storage: %v", *driver, err)
	}
	defer cleanup()

	// Seed one published listing
	now := time.Now().UTC()
	id := uuid.NewString()
	listing := domain.Listing{
		ID:             id,
		Kind:           domain.ListingKindSeminar,
		Title:          "Stress " + id[:8],
		Slug:           "stress-" + id[:8],
		Modality:       domain.ModalityInPerson,
		Price:          10000,
		TotalSlots:     *seats,
		AvailableSlots: *seats,
		Status:         domain.ListingStatusPublished,
		StartsAt:       now.Add(24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.CreateListing(ctx, listing); err != nil {
		logrus.Fatalf("failed to seed listing: %v", err)
	}

	sales := service.NewSaleService(db, nil, nil)
	reservations := service.NewReservationService(db, nil, nil, sales, nil)

	// Counters
	var successCount, soldOutCount, errorCount atomic.Int32

	// Spawn concurrent buyers
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *buyers; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()

			_, err := reservations.Reserve(ctx, service.ReserveRequest{
				ListingID:     id,
				CustomerName:  fmt.Sprintf("Buyer %d", buyer),
				CustomerEmail: fmt.Sprintf("buyer%d@example.cl", buyer),
				CustomerPhone: "+56912345678",
				CustomerRut:   "11.111.111-1",
				PaymentMethod: domain.PaymentMethodMercadoPago,
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				logrus.WithError(err).Error("unexpected reserve failure")
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", *driver)
	fmt.Printf("Seats:            %d\n", *seats)
	fmt.Printf("Buyers:           %d\n", *buyers)
	fmt.Printf("Reserved:         %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	want := min(*seats, *buyers)
	if int(success) == want && int(soldOut) == *buyers-want {
		fmt.Printf("PASS: exactly %d seats reserved\n", want)
	} else {
		fmt.Printf("FAIL: expected %d reserved/%d sold out, got %d/%d\n", want, *buyers-want, success, soldOut)
		failed = true
	}

	// Verify no oversell in the store
	final, err := db.GetListing(ctx, id)
	if err != nil {
		logrus.Fatalf("failed to read listing: %v", err)
	}
	stored, err := db.ListSales(ctx, domain.SaleFilter{ListingID: id, Limit: domain.MaxPageSize})
	if err != nil {
		logrus.Fatalf("failed to list sales: %v", err)
	}
	fmt.Printf("Available slots:  %d\n", final.AvailableSlots)
	fmt.Printf("Stored sales:     %d\n", len(stored))

	if final.AvailableSlots == *seats-want && final.AvailableSlots >= 0 {
		fmt.Println("PASS: no oversell")
	} else {
		fmt.Printf("FAIL: expected %d available, got %d\n", *seats-want, final.AvailableSlots)
		failed = true
	}

	if failed {
		cleanup()
		os.Exit(1)
	}
}

func openRepo(ctx context.Context, driver, dsn string) (port.DatabaseRepository, func(), error) {
	switch driver {
	case "mysql":
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(50)
		if err := storage.MigrateMySQL(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
	case "postgres":
		pool, err := storage.NewPostgresPool(ctx, dsn, storage.PoolConfig{MaxConns: 50, ConnectAttempts: 1})
		if err != nil {
			return nil, nil, err
		}
		if err := storage.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return storage.NewPostgresAdapter(pool), pool.Close, nil
	case "memory":
		return storage.NewMemoryAdapter(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", driver)
}
