package domain

import "time"

const (
	TopicOrderCreated         = "order.created"
	TopicOrderFulfilled       = "order.fulfilled"
	TopicInventoryCompensated = "inventory.compensated"
)

type Event interface {
	Topic() string
	Key() string
}

type OrderCreatedEvent struct {
	OrderID   string         `json:"order_id"`
	Books     map[string]int `json:"books"`
	CreatedAt time.Time      `json:"created_at"`
}

func (e OrderCreatedEvent) Topic() string { return TopicOrderCreated }
func (e OrderCreatedEvent) Key() string   { return e.OrderID }

type OrderFulfilledEvent struct {
	OrderID     string            `json:"order_id"`
	Lines       []FulfillmentLine `json:"lines"`
	FulfilledAt time.Time         `json:"fulfilled_at"`
}

func (e OrderFulfilledEvent) Topic() string { return TopicOrderFulfilled }
func (e OrderFulfilledEvent) Key() string   { return e.OrderID }

// InventoryCompensatedEvent is emitted after a fulfillment race restored stock.
type InventoryCompensatedEvent struct {
	OrderID  string            `json:"order_id"`
	Restored []FulfillmentLine `json:"restored"`
	Failed   bool              `json:"failed"`
}

func (e InventoryCompensatedEvent) Topic() string { return TopicInventoryCompensated }
func (e InventoryCompensatedEvent) Key() string   { return e.OrderID }
