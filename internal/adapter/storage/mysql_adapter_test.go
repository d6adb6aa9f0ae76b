package storage

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"

	"github.com/rl1809/bookstore/internal/core/domain"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/bookstore?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return adapter, db
}

func TestBuildBookWhere(t *testing.T) {
	from, to := 20.0, 30.0
	name := "50%_off"

	where, args := buildBookWhere(nil)
	assert.Equal(t, "1=1", where)
	assert.Empty(t, args)

	where, args = buildBookWhere([]domain.Filter{{From: &from, To: &to}, {Name: &name}, {}})
	assert.Equal(t, "(price >= ? AND price <= ?) OR (LOWER(name) LIKE ?) OR (1=1)", where)
	assert.Equal(t, []any{20.0, 30.0, `%50\%\_off%`}, args)
}

func TestMySQLTryDecrement_PrunesDrainedEntry(t *testing.T) {
	m, db := getMySQLAdapter(t)
	ctx := context.Background()

	db.ExecContext(ctx, `DELETE FROM inventory WHERE book_id = 'test-book'`)
	defer db.ExecContext(ctx, `DELETE FROM inventory WHERE book_id = 'test-book'`)

	if err := m.AddStock(ctx, "test-book", "shelf-1", 2); err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}
	if err := m.AddStock(ctx, "test-book", "shelf-1", 1); err != nil {
		t.Fatalf("AddStock failed: %v", err)
	}

	ok, err := m.TryDecrement(ctx, "test-book", "shelf-1", 4)
	if err != nil || ok {
		t.Fatalf("expected refusal, got ok=%v err=%v", ok, err)
	}

	ok, err = m.TryDecrement(ctx, "test-book", "shelf-1", 3)
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}

	var rows int
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory WHERE book_id = 'test-book'`).Scan(&rows)
	if rows != 0 {
		t.Errorf("expected drained entry to be removed, found %d rows", rows)
	}
}

func TestMySQLTryDecrement_Concurrent(t *testing.T) {
	m, db := getMySQLAdapter(t)
	ctx := context.Background()

	db.ExecContext(ctx, `DELETE FROM inventory WHERE book_id = 'test-book-c'`)
	defer db.ExecContext(ctx, `DELETE FROM inventory WHERE book_id = 'test-book-c'`)

	initialStock := 10
	totalRequests := 30
	if err := m.AddStock(ctx, "test-book-c", "shelf-1", initialStock); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := m.TryDecrement(ctx, "test-book-c", "shelf-1", 1); err == nil && ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if int(successCount.Load()) != initialStock {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
}

func TestMySQLOrders(t *testing.T) {
	m, db := getMySQLAdapter(t)
	ctx := context.Background()

	id, err := m.CreateOrder(ctx, domain.Order{
		Books:     map[string]int{"book-a": 2, "book-b": 1},
		Status:    domain.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	defer func() {
		db.ExecContext(ctx, `DELETE FROM order_books WHERE order_id = ?`, id)
		db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	}()

	order, err := m.GetOrder(ctx, id)
	if err != nil || order == nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	assert.Equal(t, map[string]int{"book-a": 2, "book-b": 1}, order.Books)

	if err := m.MarkFulfilled(ctx, id, time.Now().UTC()); err != nil {
		t.Fatalf("MarkFulfilled failed: %v", err)
	}
	assert.ErrorIs(t, m.MarkFulfilled(ctx, id, time.Now().UTC()), domain.ErrConflict)

	order, _ = m.GetOrder(ctx, id)
	assert.Equal(t, domain.OrderStatusFulfilled, order.Status)
	assert.NotNil(t, order.FulfilledAt)
}
