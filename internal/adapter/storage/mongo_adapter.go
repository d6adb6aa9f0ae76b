package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const (
	booksCollection     = "books"
	inventoryCollection = "inventory"
	ordersCollection    = "orders"

	// maxCASAttempts bounds the read-compare-write loop of a single decrement
	maxCASAttempts = 16
)

var ErrDecrementContention = errors.New("inventory decrement retries exhausted")

type bookDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	Author      string             `bson:"author"`
	Description string             `bson:"description"`
	Price       float64            `bson:"price"`
	Image       string             `bson:"image"`
}

func (d bookDocument) toDomain() domain.Book {
	return domain.Book{
		ID:          d.ID.Hex(),
		Name:        d.Name,
		Author:      d.Author,
		Description: d.Description,
		Price:       d.Price,
		Image:       d.Image,
	}
}

type inventoryDocument struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	BookID string             `bson:"bookId"`
	Shelf  string             `bson:"shelf"`
	Count  int                `bson:"count"`
}

type orderLineDocument struct {
	BookID string `bson:"bookId"`
	Count  int    `bson:"count"`
}

// orderLines is written as an array of {bookId, count}. Orders created by
// the legacy service store books as an embedded {bookId: count} document;
// both shapes decode.
type orderLines []orderLineDocument

func (l *orderLines) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*l = nil
		return nil
	case bsontype.Array:
		var lines []orderLineDocument
		if err := (bson.RawValue{Type: t, Value: data}).Unmarshal(&lines); err != nil {
			return err
		}
		*l = lines
		return nil
	case bsontype.EmbeddedDocument:
		elems, err := bson.Raw(data).Elements()
		if err != nil {
			return err
		}
		lines := make([]orderLineDocument, 0, len(elems))
		for _, e := range elems {
			count, ok := e.Value().AsInt64OK()
			if !ok {
				return fmt.Errorf("order book %s: count has BSON type %s", e.Key(), e.Value().Type)
			}
			lines = append(lines, orderLineDocument{BookID: e.Key(), Count: int(count)})
		}
		*l = lines
		return nil
	default:
		return fmt.Errorf("order books: unexpected BSON type %s", t)
	}
}

type orderDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Books       orderLines         `bson:"books"`
	Status      string              `bson:"status"`
	CreatedAt   time.Time           `bson:"createdAt"`
	FulfilledAt *time.Time          `bson:"fulfilledAt,omitempty"`
}

func (d orderDocument) toDomain() domain.Order {
	books := make(map[string]int, len(d.Books))
	for _, l := range d.Books {
		books[l.BookID] += l.Count
	}
	var fulfilledAt *time.Time
	if d.FulfilledAt != nil {
		at := d.FulfilledAt.UTC()
		fulfilledAt = &at
	}
	return domain.Order{
		ID:          d.ID.Hex(),
		Books:       books,
		Status:      domain.OrderStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		FulfilledAt: fulfilledAt,
	}
}

// MongoAdapter stores books, inventory and orders in one database. It uses
// no multi-document transactions: each inventory write is a single
// conditional update or delete on one document.
type MongoAdapter struct {
	client    *mongo.Client
	books     *mongo.Collection
	inventory *mongo.Collection
	orders    *mongo.Collection
}

func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

func NewMongoAdapter(client *mongo.Client, database string) *MongoAdapter {
	db := client.Database(database)
	return &MongoAdapter{
		client:    client,
		books:     db.Collection(booksCollection),
		inventory: db.Collection(inventoryCollection),
		orders:    db.Collection(ordersCollection),
	}
}

// EnsureIndexes creates the unique inventory key and the catalog indexes.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.inventory.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "bookId", Value: 1}, {Key: "shelf", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create inventory index: %w", err)
	}

	_, err = m.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: "text"}, {Key: "author", Value: "text"}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "author", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create book indexes: %w", err)
	}

	_, err = m.orders.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create order index: %w", err)
	}
	return nil
}

// SeedBooks inserts the catalog when the books collection is empty and
// reports how many books were written.
func (m *MongoAdapter) SeedBooks(ctx context.Context, books []domain.Book) (int, error) {
	existing, err := m.books.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	if existing > 0 || len(books) == 0 {
		return 0, nil
	}

	docs := make([]any, 0, len(books))
	for _, b := range books {
		docs = append(docs, bookDocument{
			Name:        b.Name,
			Author:      b.Author,
			Description: b.Description,
			Price:       b.Price,
			Image:       b.Image,
		})
	}
	res, err := m.books.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert books: %w", err)
	}
	return len(res.InsertedIDs), nil
}

func (m *MongoAdapter) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoAdapter) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func parseObjectID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s id %q is not a valid object id", domain.ErrInvalidRequest, kind, id)
	}
	return oid, nil
}

// buildBookQuery ORs one sub-document per filter; fields inside a filter AND.
// An empty filter matches every book.
func buildBookQuery(filters []domain.Filter) bson.M {
	if len(filters) == 0 {
		return bson.M{}
	}

	or := make(bson.A, 0, len(filters))
	for _, f := range filters {
		cond := bson.M{}

		price := bson.M{}
		if f.From != nil {
			price["$gte"] = *f.From
		}
		if f.To != nil {
			price["$lte"] = *f.To
		}
		if len(price) > 0 {
			cond["price"] = price
		}
		if f.Name != nil {
			cond["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(*f.Name), Options: "i"}
		}
		if f.Author != nil {
			cond["author"] = primitive.Regex{Pattern: regexp.QuoteMeta(*f.Author), Options: "i"}
		}
		or = append(or, cond)
	}
	return bson.M{"$or": or}
}

func (m *MongoAdapter) ListBooks(ctx context.Context, filters []domain.Filter) ([]domain.Book, error) {
	cursor, err := m.books.Find(ctx, buildBookQuery(filters), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find books: %w", err)
	}

	var docs []bookDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}

	books := make([]domain.Book, 0, len(docs))
	for _, d := range docs {
		books = append(books, d.toDomain())
	}
	return books, nil
}

func (m *MongoAdapter) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	oid, err := parseObjectID("book", id)
	if err != nil {
		return nil, err
	}

	var doc bookDocument
	err = m.books.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find book: %w", err)
	}

	book := doc.toDomain()
	return &book, nil
}

func (m *MongoAdapter) AddStock(ctx context.Context, bookID, shelf string, quantity int) error {
	filter := bson.M{"bookId": bookID, "shelf": shelf}
	update := bson.M{"$inc": bson.M{"count": quantity}}

	_, err := m.inventory.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced to create the entry; the loser now finds it
		_, err = m.inventory.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MongoAdapter) Lookup(ctx context.Context, bookID string) ([]domain.ShelfLocation, error) {
	cursor, err := m.inventory.Find(ctx,
		bson.M{"bookId": bookID, "count": bson.M{"$gt": 0}},
		options.Find().SetSort(bson.D{{Key: "shelf", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find inventory: %w", err)
	}

	var docs []inventoryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}

	locations := make([]domain.ShelfLocation, 0, len(docs))
	for _, d := range docs {
		locations = append(locations, domain.ShelfLocation{Shelf: d.Shelf, Count: d.Count})
	}
	return locations, nil
}

func (m *MongoAdapter) GetEntry(ctx context.Context, bookID, shelf string) (*domain.InventoryEntry, error) {
	var doc inventoryDocument
	err := m.inventory.FindOne(ctx, bson.M{"bookId": bookID, "shelf": shelf}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find inventory entry: %w", err)
	}
	if doc.Count <= 0 {
		return nil, nil
	}
	return &domain.InventoryEntry{BookID: doc.BookID, Shelf: doc.Shelf, Count: doc.Count}, nil
}

// TryDecrement never leaves a zero or negative document behind. A decrement
// that would drain the entry deletes it conditioned on the exact count it
// read; a larger count is decremented with a guard that keeps it positive.
// Either write fails to match if another writer got there first, and the
// loop re-reads.
func (m *MongoAdapter) TryDecrement(ctx context.Context, bookID, shelf string, quantity int) (bool, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		var doc inventoryDocument
		err := m.inventory.FindOne(ctx, bson.M{"bookId": bookID, "shelf": shelf}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("find inventory entry: %w", err)
		}
		if doc.Count < quantity {
			return false, nil
		}

		if doc.Count == quantity {
			res, err := m.inventory.DeleteOne(ctx, bson.M{"_id": doc.ID, "count": quantity})
			if err != nil {
				return false, fmt.Errorf("delete drained inventory entry: %w", err)
			}
			if res.DeletedCount == 1 {
				return true, nil
			}
			continue
		}

		res, err := m.inventory.UpdateOne(ctx,
			bson.M{"_id": doc.ID, "count": bson.M{"$gt": quantity}},
			bson.M{"$inc": bson.M{"count": -quantity}},
		)
		if err != nil {
			return false, fmt.Errorf("decrement inventory entry: %w", err)
		}
		if res.ModifiedCount == 1 {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: book %s on shelf %s", ErrDecrementContention, bookID, shelf)
}

func (m *MongoAdapter) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	lines := make([]orderLineDocument, 0, len(order.Books))
	for bookID, count := range order.Books {
		lines = append(lines, orderLineDocument{BookID: bookID, Count: count})
	}

	res, err := m.orders.InsertOne(ctx, orderDocument{
		Books:     lines,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
	})
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert order: unexpected id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (m *MongoAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	oid, err := parseObjectID("order", id)
	if err != nil {
		return nil, err
	}

	var doc orderDocument
	err = m.orders.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}

	order := doc.toDomain()
	return &order, nil
}

func (m *MongoAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	cursor, err := m.orders.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		orders = append(orders, d.toDomain())
	}
	return orders, nil
}

func (m *MongoAdapter) MarkFulfilled(ctx context.Context, id string, at time.Time) error {
	oid, err := parseObjectID("order", id)
	if err != nil {
		return err
	}

	res, err := m.orders.UpdateOne(ctx,
		bson.M{"_id": oid, "status": string(domain.OrderStatusPending)},
		bson.M{"$set": bson.M{"status": string(domain.OrderStatusFulfilled), "fulfilledAt": at}},
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: order %s is not pending", domain.ErrConflict, id)
	}
	return nil
}
