package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/bookstore/internal/core/domain"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id          VARCHAR(36)  NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		author      VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		price       DOUBLE       NOT NULL,
		image       VARCHAR(512) NOT NULL DEFAULT '',
		INDEX idx_books_price (price),
		INDEX idx_books_author (author)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		book_id    VARCHAR(64)  NOT NULL,
		shelf      VARCHAR(128) NOT NULL,
		stock      INT          NOT NULL,
		version    INT          NOT NULL DEFAULT 0,
		updated_at TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (book_id, shelf)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id           VARCHAR(36) NOT NULL PRIMARY KEY,
		status       VARCHAR(16) NOT NULL,
		created_at   DATETIME(6) NOT NULL,
		fulfilled_at DATETIME(6) NULL,
		INDEX idx_orders_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS order_books (
		order_id VARCHAR(36) NOT NULL,
		book_id  VARCHAR(64) NOT NULL,
		quantity INT         NOT NULL,
		PRIMARY KEY (order_id, book_id)
	)`,
}

// MySQLAdapter implements the book, inventory and order repositories on
// MySQL. The DSN must set parseTime=true.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// SeedBooks inserts the catalog when the books table is empty.
func (m *MySQLAdapter) SeedBooks(ctx context.Context, books []domain.Book) (int, error) {
	var existing int
	if err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&existing); err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	if existing > 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, b := range books {
		id := b.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (id, name, author, description, price, image)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, b.Name, b.Author, b.Description, b.Price, b.Image,
		)
		if err != nil {
			return 0, fmt.Errorf("insert book: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(books), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeContains(s string) string {
	return "%" + strings.ToLower(likeEscaper.Replace(s)) + "%"
}

// buildBookWhere renders filters as an OR of AND-groups with positional args.
func buildBookWhere(filters []domain.Filter) (string, []any) {
	if len(filters) == 0 {
		return "1=1", nil
	}

	var args []any
	groups := make([]string, 0, len(filters))
	for _, f := range filters {
		var conds []string
		if f.From != nil {
			conds = append(conds, "price >= ?")
			args = append(args, *f.From)
		}
		if f.To != nil {
			conds = append(conds, "price <= ?")
			args = append(args, *f.To)
		}
		if f.Name != nil {
			conds = append(conds, "LOWER(name) LIKE ?")
			args = append(args, likeContains(*f.Name))
		}
		if f.Author != nil {
			conds = append(conds, "LOWER(author) LIKE ?")
			args = append(args, likeContains(*f.Author))
		}
		if len(conds) == 0 {
			conds = append(conds, "1=1")
		}
		groups = append(groups, "("+strings.Join(conds, " AND ")+")")
	}
	return strings.Join(groups, " OR "), args
}

func (m *MySQLAdapter) ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error) {
	where, args := buildBookWhere(filters)
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, author, description, price, image
		FROM books WHERE `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	books := []domain.Book{}
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Name, &b.Author, &b.Description, &b.Price, &b.Image); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (m *MySQLAdapter) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var b domain.Book
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, author, description, price, image
		FROM books WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.Author, &b.Description, &b.Price, &b.Image)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query book: %w", err)
	}
	return &b, nil
}

func (m *MySQLAdapter) AddStock(ctx context.Context, bookID, shelf string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (book_id, shelf, stock, version) VALUES (?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE stock = stock + VALUES(stock), version = version + 1`,
		bookID, shelf, quantity,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) Lookup(ctx context.Context, bookID string) ([]domain.ShelfLocation, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT shelf, stock FROM inventory
		WHERE book_id = ? AND stock > 0 ORDER BY shelf`, bookID)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	locations := []domain.ShelfLocation{}
	for rows.Next() {
		var loc domain.ShelfLocation
		if err := rows.Scan(&loc.Shelf, &loc.Count); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

func (m *MySQLAdapter) GetEntry(ctx context.Context, bookID, shelf string) (*domain.InventoryEntry, error) {
	entry := domain.InventoryEntry{BookID: bookID, Shelf: shelf}
	err := m.db.QueryRowContext(ctx, `
		SELECT stock FROM inventory WHERE book_id = ? AND shelf = ?`, bookID, shelf,
	).Scan(&entry.Count)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	if entry.Count <= 0 {
		return nil, nil
	}
	return &entry, nil
}

// TryDecrement applies the guarded decrement and prunes a drained row in one
// transaction, so no reader sees a zero-count entry.
func (m *MySQLAdapter) TryDecrement(ctx context.Context, bookID, shelf string, quantity int) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock - ?, version = version + 1
		WHERE book_id = ? AND shelf = ? AND stock >= ?`,
		quantity, bookID, shelf, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM inventory WHERE book_id = ? AND shelf = ? AND stock <= 0`,
		bookID, shelf,
	)
	if err != nil {
		return false, fmt.Errorf("prune inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	id := uuid.NewString()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, status, created_at) VALUES (?, ?, ?)`,
		id, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for bookID, quantity := range order.Books {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_books (order_id, book_id, quantity) VALUES (?, ?, ?)`,
			id, bookID, quantity,
		)
		if err != nil {
			return "", fmt.Errorf("insert order book: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

const orderSelect = `
	SELECT o.id, o.status, o.created_at, o.fulfilled_at, ob.book_id, ob.quantity
	FROM orders o JOIN order_books ob ON ob.order_id = o.id`

// scanOrders folds joined order rows, which arrive grouped by order id.
func scanOrders(rows *sql.Rows) ([]domain.Order, error) {
	orders := []domain.Order{}
	for rows.Next() {
		var (
			id, status, bookID string
			createdAt          time.Time
			fulfilledAt        sql.NullTime
			quantity           int
		)
		if err := rows.Scan(&id, &status, &createdAt, &fulfilledAt, &bookID, &quantity); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		if n := len(orders); n == 0 || orders[n-1].ID != id {
			o := domain.Order{
				ID:        id,
				Books:     make(map[string]int),
				Status:    domain.OrderStatus(status),
				CreatedAt: createdAt.UTC(),
			}
			if fulfilledAt.Valid {
				at := fulfilledAt.Time.UTC()
				o.FulfilledAt = &at
			}
			orders = append(orders, o)
		}
		orders[len(orders)-1].Books[bookID] = quantity
	}
	return orders, rows.Err()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, orderSelect+` WHERE o.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, orderSelect+` ORDER BY o.created_at, o.id`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (m *MySQLAdapter) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, fulfilled_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.OrderStatusFulfilled), at, id, string(domain.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: order %s is not pending", domain.ErrConflict, id)
	}
	return nil
}
