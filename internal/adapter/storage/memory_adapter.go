package storage

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/bookstore/internal/core/domain"
)

// stockCell holds one (book, shelf) count. A cell marked removed has been
// pruned from the index and must not be written again.
type stockCell struct {
	mu      sync.Mutex
	count   int
	removed bool
}

// MemoryAdapter keeps books, inventory and orders in process memory. The
// index lock only guards the cell maps; counts are guarded per cell so
// decrements on different keys never contend.
type MemoryAdapter struct {
	stockMu sync.RWMutex
	stock   map[string]map[string]*stockCell // book id -> shelf -> cell

	booksMu sync.RWMutex
	books   []domain.Book

	ordersMu sync.RWMutex
	orders   map[string]domain.Order
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		stock:  make(map[string]map[string]*stockCell),
		orders: make(map[string]domain.Order),
	}
}

// Seed replaces the catalog. Books without an id get a generated one.
func (m *MemoryAdapter) Seed(books []domain.Book) {
	seeded := make([]domain.Book, len(books))
	for i, b := range books {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		seeded[i] = b
	}

	m.booksMu.Lock()
	m.books = seeded
	m.booksMu.Unlock()
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryAdapter) ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.booksMu.RLock()
	defer m.booksMu.RUnlock()
	return domain.ApplyFilters(m.books, filters), nil
}

func (m *MemoryAdapter) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.booksMu.RLock()
	defer m.booksMu.RUnlock()
	for _, b := range m.books {
		if b.ID == id {
			book := b
			return &book, nil
		}
	}
	return nil, nil
}

func (m *MemoryAdapter) cell(bookID, shelf string) *stockCell {
	m.stockMu.RLock()
	defer m.stockMu.RUnlock()
	return m.stock[bookID][shelf]
}

func (m *MemoryAdapter) cellOrCreate(bookID, shelf string) *stockCell {
	if c := m.cell(bookID, shelf); c != nil {
		return c
	}

	m.stockMu.Lock()
	defer m.stockMu.Unlock()

	shelves, ok := m.stock[bookID]
	if !ok {
		shelves = make(map[string]*stockCell)
		m.stock[bookID] = shelves
	}
	c, ok := shelves[shelf]
	if !ok {
		c = &stockCell{}
		shelves[shelf] = c
	}
	return c
}

func (m *MemoryAdapter) prune(bookID, shelf string, c *stockCell) {
	m.stockMu.Lock()
	defer m.stockMu.Unlock()

	shelves := m.stock[bookID]
	if shelves[shelf] != c {
		return
	}
	delete(shelves, shelf)
	if len(shelves) == 0 {
		delete(m.stock, bookID)
	}
}

func (m *MemoryAdapter) AddStock(ctx context.Context, bookID, shelf string, quantity int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c := m.cellOrCreate(bookID, shelf)
		c.mu.Lock()
		if c.removed {
			// lost to a concurrent prune, retry on a fresh cell
			c.mu.Unlock()
			continue
		}
		c.count += quantity
		c.mu.Unlock()
		return nil
	}
}

func (m *MemoryAdapter) Lookup(ctx context.Context, bookID string) ([]domain.ShelfLocation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.stockMu.RLock()
	cells := maps.Clone(m.stock[bookID])
	m.stockMu.RUnlock()

	locations := make([]domain.ShelfLocation, 0, len(cells))
	for shelf, c := range cells {
		c.mu.Lock()
		count, removed := c.count, c.removed
		c.mu.Unlock()

		if !removed && count > 0 {
			locations = append(locations, domain.ShelfLocation{Shelf: shelf, Count: count})
		}
	}
	return locations, nil
}

func (m *MemoryAdapter) GetEntry(ctx context.Context, bookID, shelf string) (*domain.InventoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := m.cell(bookID, shelf)
	if c == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed || c.count <= 0 {
		return nil, nil
	}
	return &domain.InventoryEntry{BookID: bookID, Shelf: shelf, Count: c.count}, nil
}

func (m *MemoryAdapter) TryDecrement(ctx context.Context, bookID, shelf string, quantity int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c := m.cell(bookID, shelf)
	if c == nil {
		return false, nil
	}

	c.mu.Lock()
	if c.removed || c.count < quantity {
		c.mu.Unlock()
		return false, nil
	}
	c.count -= quantity
	drained := c.count == 0
	if drained {
		c.removed = true
	}
	c.mu.Unlock()

	if drained {
		m.prune(bookID, shelf, c)
	}
	return true, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Books = maps.Clone(o.Books)
	if o.FulfilledAt != nil {
		at := *o.FulfilledAt
		o.FulfilledAt = &at
	}
	return o
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	order = cloneOrder(order)
	order.ID = uuid.NewString()

	m.ordersMu.Lock()
	m.orders[order.ID] = order
	m.ordersMu.Unlock()

	return order.ID, nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.ordersMu.RLock()
	defer m.ordersMu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o = cloneOrder(o)
	return &o, nil
}

// ListOrders returns orders oldest first.
func (m *MemoryAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.ordersMu.RLock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, cloneOrder(o))
	}
	m.ordersMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.ordersMu.Lock()
	defer m.ordersMu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != domain.OrderStatusPending {
		return domain.ErrConflict
	}
	o.Status = domain.OrderStatusFulfilled
	o.FulfilledAt = &at
	m.orders[id] = o
	return nil
}
