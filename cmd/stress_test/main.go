package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
)

const (
	bookID = "stress-book"
	shelf  = "shelf-1"
)

func main() {
	initialStock := flag.Int("stock", 20, "copies placed on the shelf")
	totalOrders := flag.Int("orders", 50, "concurrent single-copy orders")
	flag.Parse()

	ctx := context.Background()
	logger := zap.NewNop()

	store := storage.NewMemoryAdapter()
	orderService := service.NewOrderService(store, nil, logger)
	warehouse := service.NewWarehouseService(store, logger)
	fulfillment := service.NewFulfillmentService(store, store, storage.NewMemoryLocker(), logger)

	if err := warehouse.AddStock(ctx, bookID, shelf, *initialStock); err != nil {
		fmt.Fprintf(os.Stderr, "failed to add stock: %v\n", err)
		os.Exit(1)
	}

	orderIDs := make([]string, 0, *totalOrders)
	for i := 0; i < *totalOrders; i++ {
		id, err := orderService.CreateOrder(ctx, []string{bookID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create order: %v\n", err)
			os.Exit(1)
		}
		orderIDs = append(orderIDs, id)
	}

	var successCount, insufficientCount, raceCount, otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()

			err := fulfillment.FulfillOrder(ctx, orderID, []domain.FulfillmentLine{
				{Book: bookID, Shelf: shelf, NumberOfBooks: 1},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				insufficientCount.Add(1)
			case errors.Is(err, domain.ErrFulfillmentRace):
				raceCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	entry, err := store.GetEntry(ctx, bookID, shelf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read final stock: %v\n", err)
		os.Exit(1)
	}
	finalStock := 0
	if entry != nil {
		finalStock = entry.Count
	}

	fulfilled := 0
	orders, err := orderService.ListOrders(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list orders: %v\n", err)
		os.Exit(1)
	}
	for _, o := range orders {
		if o.Status == domain.OrderStatusFulfilled {
			fulfilled++
		}
	}

	success := int(successCount.Load())

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Orders:     %d\n", *totalOrders)
	fmt.Printf("Fulfilled:        %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficientCount.Load())
	fmt.Printf("Races:            %d\n", raceCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Final Stock:      %d\n", finalStock)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if finalStock < 0 {
		fmt.Printf("FAIL: stock went negative: %d\n", finalStock)
		failed = true
	}
	if success+finalStock != *initialStock {
		fmt.Printf("FAIL: %d fulfilled + %d remaining != %d initial\n", success, finalStock, *initialStock)
		failed = true
	}
	if fulfilled != success {
		fmt.Printf("FAIL: %d orders marked fulfilled, %d fulfillments succeeded\n", fulfilled, success)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: no oversell, every decremented copy belongs to a fulfilled order")
}
