package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
	"github.com/acardoso/go-pos-store/internal/store"
)

func TestCommitOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Ana")
	staff := seedStaff(t, db, "Maria", "maria", models.RoleRegular)
	lipstick := seedProduct(t, db, "Lipstick", decimal.RequireFromString("12.50"), 50)
	mascara := seedProduct(t, db, "Mascara", decimal.RequireFromString("9.00"), 30)

	orderID, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-01"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines: []store.CartLine{
			{ProductID: lipstick.ID, Quantity: 5, UnitPrice: lipstick.Price},
			{ProductID: mascara.ID, Quantity: 3, UnitPrice: mascara.Price},
		},
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}
	if orderID == 0 {
		t.Error("Order ID should not be 0")
	}

	lipstickAfter, err := store.GetProduct(ctx, db, lipstick.ID)
	if err != nil {
		t.Fatalf("Get lipstick: %v", err)
	}
	if lipstickAfter.StockQuantity != 45 {
		t.Errorf("Expected lipstick stock 45, got %d", lipstickAfter.StockQuantity)
	}

	mascaraAfter, err := store.GetProduct(ctx, db, mascara.ID)
	if err != nil {
		t.Fatalf("Get mascara: %v", err)
	}
	if mascaraAfter.StockQuantity != 27 {
		t.Errorf("Expected mascara stock 27, got %d", mascaraAfter.StockQuantity)
	}

	summaries, err := store.ListOrders(ctx, db, nil)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 order in listing, got %d", len(summaries))
	}

	expectedTotal := decimal.RequireFromString("12.50").Mul(decimal.NewFromInt(5)).
		Add(decimal.RequireFromString("9.00").Mul(decimal.NewFromInt(3)))
	if !summaries[0].Total.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, summaries[0].Total)
	}
	if summaries[0].CustomerName != "Ana" {
		t.Errorf("Expected customer name Ana, got %s", summaries[0].CustomerName)
	}
	if summaries[0].StaffName != "Maria" {
		t.Errorf("Expected staff name Maria, got %s", summaries[0].StaffName)
	}
}

func TestCommitOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Rita")
	staff := seedStaff(t, db, "Joana", "joana", models.RoleRegular)
	product := seedProduct(t, db, "Foundation", decimal.RequireFromString("20.00"), 5)

	commit := func(quantity int) (int64, error) {
		return store.CommitOrder(ctx, db, store.CommitOrderRequest{
			OrderDate:  orderDate(t, "2025-06-02"),
			CustomerID: customer.ID,
			StaffID:    staff.ID,
			Lines: []store.CartLine{
				{ProductID: product.ID, Quantity: quantity, UnitPrice: product.Price},
			},
		})
	}

	if _, err := commit(3); err != nil {
		t.Fatalf("First commit: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 2 {
		t.Errorf("Expected stock 2 after first commit, got %d", after.StockQuantity)
	}

	_, err = commit(3)
	var stockErr *database.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}
	if stockErr.ProductID != product.ID {
		t.Errorf("Expected product ID %d in error, got %d", product.ID, stockErr.ProductID)
	}
	if stockErr.Available != 2 {
		t.Errorf("Expected 2 available in error, got %d", stockErr.Available)
	}

	after, err = store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 2 {
		t.Errorf("Stock should remain 2 after failed commit, got %d", after.StockQuantity)
	}
}

func TestCommitOrderAtomicity(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Ines")
	staff := seedStaff(t, db, "Carla", "carla", models.RoleRegular)
	plentiful := seedProduct(t, db, "Eyeliner", decimal.RequireFromString("7.00"), 100)
	scarce := seedProduct(t, db, "Blush", decimal.RequireFromString("11.00"), 1)

	_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-03"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines: []store.CartLine{
			{ProductID: plentiful.ID, Quantity: 10, UnitPrice: plentiful.Price},
			{ProductID: scarce.ID, Quantity: 5, UnitPrice: scarce.Price},
		},
	})

	var stockErr *database.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	// The first line passed its check, but nothing may survive the rollback.
	plentifulAfter, err := store.GetProduct(ctx, db, plentiful.ID)
	if err != nil {
		t.Fatalf("Get plentiful product: %v", err)
	}
	if plentifulAfter.StockQuantity != 100 {
		t.Errorf("Expected untouched stock 100, got %d", plentifulAfter.StockQuantity)
	}

	var orderCount, lineCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&orderCount); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM order_lines").Scan(&lineCount); err != nil {
		t.Fatalf("Count order lines: %v", err)
	}
	if orderCount != 0 || lineCount != 0 {
		t.Errorf("Expected no order rows after rollback, got %d orders, %d lines", orderCount, lineCount)
	}
}

func TestCommitOrderEmptyCart(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Sofia")
	staff := seedStaff(t, db, "Luisa", "luisa", models.RoleRegular)

	_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-04"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
	})
	if !errors.Is(err, database.ErrEmptyCart) {
		t.Fatalf("Expected empty cart error, got: %v", err)
	}

	var orderCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&orderCount); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if orderCount != 0 {
		t.Errorf("Expected no order rows, got %d", orderCount)
	}
}

func TestCommitOrderUnknownReferences(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Vera")
	staff := seedStaff(t, db, "Paula", "paula", models.RoleRegular)
	product := seedProduct(t, db, "Concealer", decimal.RequireFromString("8.00"), 10)

	line := store.CartLine{ProductID: product.ID, Quantity: 1, UnitPrice: product.Price}

	_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-05"),
		CustomerID: 9999,
		StaffID:    staff.ID,
		Lines:      []store.CartLine{line},
	})
	var notFound *database.NotFoundError
	if !errors.As(err, &notFound) || notFound.Entity != "customer" {
		t.Fatalf("Expected customer not found, got: %v", err)
	}

	_, err = store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-05"),
		CustomerID: customer.ID,
		StaffID:    9999,
		Lines:      []store.CartLine{line},
	})
	if !errors.As(err, &notFound) || notFound.Entity != "staff" {
		t.Fatalf("Expected staff not found, got: %v", err)
	}

	_, err = store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-05"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines:      []store.CartLine{{ProductID: 9999, Quantity: 1, UnitPrice: product.Price}},
	})
	if !errors.As(err, &notFound) || notFound.Entity != "product" {
		t.Fatalf("Expected product not found, got: %v", err)
	}
}

func TestCommitOrderMergesDuplicateLines(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Clara")
	staff := seedStaff(t, db, "Rosa", "rosa", models.RoleRegular)
	product := seedProduct(t, db, "Highlighter", decimal.RequireFromString("15.00"), 10)

	orderID, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-06"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines: []store.CartLine{
			{ProductID: product.ID, Quantity: 2, UnitPrice: product.Price},
			{ProductID: product.ID, Quantity: 3, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	order, err := store.GetOrder(ctx, db, orderID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("Expected duplicates merged into 1 line, got %d", len(order.Lines))
	}
	if order.Lines[0].Quantity != 5 {
		t.Errorf("Expected merged quantity 5, got %d", order.Lines[0].Quantity)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 5 {
		t.Errorf("Expected stock 5 after merged commit, got %d", after.StockQuantity)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Beatriz")
	staff := seedStaff(t, db, "Teresa", "teresa", models.RoleRegular)
	product := seedProduct(t, db, "Primer", decimal.RequireFromString("18.00"), 5)

	orderID, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-07"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines: []store.CartLine{
			{ProductID: product.ID, Quantity: 3, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	if err := store.CancelOrder(ctx, db, orderID); err != nil {
		t.Fatalf("Cancel order: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 5 {
		t.Errorf("Expected stock restored to 5, got %d", after.StockQuantity)
	}

	summaries, err := store.ListOrders(ctx, db, nil)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("Expected empty listing after cancel, got %d orders", len(summaries))
	}

	var lineCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM order_lines").Scan(&lineCount); err != nil {
		t.Fatalf("Count order lines: %v", err)
	}
	if lineCount != 0 {
		t.Errorf("Expected no order lines after cancel, got %d", lineCount)
	}
}

func TestCancelOrderNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := store.CancelOrder(context.Background(), db, 12345)

	var notFound *database.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected not found error, got: %v", err)
	}
	if notFound.Entity != "order" || notFound.ID != 12345 {
		t.Errorf("Expected order 12345 in error, got %s %d", notFound.Entity, notFound.ID)
	}
}

func TestPriceSnapshot(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Helena")
	staff := seedStaff(t, db, "Raquel", "raquel", models.RoleRegular)
	product := seedProduct(t, db, "Palette", decimal.RequireFromString("30.00"), 10)

	_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
		OrderDate:  orderDate(t, "2025-06-08"),
		CustomerID: customer.ID,
		StaffID:    staff.ID,
		Lines: []store.CartLine{
			{ProductID: product.ID, Quantity: 2, UnitPrice: product.Price},
		},
	})
	if err != nil {
		t.Fatalf("Commit order: %v", err)
	}

	_, err = store.UpdateProduct(ctx, db, product.ID, product.Name, product.Category,
		product.Brand, decimal.RequireFromString("45.00"), 8)
	if err != nil {
		t.Fatalf("Update product price: %v", err)
	}

	summaries, err := store.ListOrders(ctx, db, nil)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(summaries))
	}

	expectedTotal := decimal.RequireFromString("60.00")
	if !summaries[0].Total.Equal(expectedTotal) {
		t.Errorf("Price edit changed a historic total: expected %s, got %s",
			expectedTotal, summaries[0].Total)
	}
}

func TestConcurrentCommitsSingleUnit(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Margarida")
	staff := seedStaff(t, db, "Filipa", "filipa", models.RoleRegular)
	product := seedProduct(t, db, "Serum", decimal.RequireFromString("25.00"), 1)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
				OrderDate:  orderDate(t, "2025-06-09"),
				CustomerID: customer.ID,
				StaffID:    staff.ID,
				Lines: []store.CartLine{
					{ProductID: product.ID, Quantity: 1, UnitPrice: product.Price},
				},
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	insufficientCount := 0
	for err := range results {
		var stockErr *database.InsufficientStockError
		switch {
		case err == nil:
			successCount++
		case errors.As(err, &stockErr):
			insufficientCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 1 || insufficientCount != 1 {
		t.Errorf("Expected exactly 1 success and 1 insufficient stock, got %d and %d",
			successCount, insufficientCount)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.StockQuantity != 0 {
		t.Errorf("Expected final stock 0, got %d", after.StockQuantity)
	}
}

func TestConcurrentCommits(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Leonor")
	staff := seedStaff(t, db, "Ines", "ines", models.RoleRegular)
	product := seedProduct(t, db, "Toner", decimal.RequireFromString("14.00"), 20)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
				OrderDate:  orderDate(t, "2025-06-10"),
				CustomerID: customer.ID,
				StaffID:    staff.ID,
				Lines: []store.CartLine{
					{ProductID: product.ID, Quantity: 2, UnitPrice: product.Price},
				},
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			var stockErr *database.InsufficientStockError
			if !errors.As(err, &stockErr) {
				t.Errorf("Unexpected error: %v", err)
			}
		}
	}

	if successCount != 10 {
		t.Errorf("Expected 10 successful commits, got %d", successCount)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	expectedStock := 20 - successCount*2
	if after.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, after.StockQuantity)
	}
	if after.StockQuantity < 0 {
		t.Error("Stock must never be negative")
	}
}

func TestListOrdersNewestFirstAndStaffFilter(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	customer := seedCustomer(t, db, "Catarina")
	first := seedStaff(t, db, "Sara", "sara", models.RoleRegular)
	second := seedStaff(t, db, "Mariana", "mariana", models.RoleRegular)
	product := seedProduct(t, db, "Cleanser", decimal.RequireFromString("10.00"), 100)

	commitFor := func(staffID int64) int64 {
		id, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
			OrderDate:  orderDate(t, "2025-06-11"),
			CustomerID: customer.ID,
			StaffID:    staffID,
			Lines: []store.CartLine{
				{ProductID: product.ID, Quantity: 1, UnitPrice: product.Price},
			},
		})
		if err != nil {
			t.Fatalf("Commit order: %v", err)
		}
		return id
	}

	firstOrder := commitFor(first.ID)
	secondOrder := commitFor(second.ID)
	thirdOrder := commitFor(first.ID)

	all, err := store.ListOrders(ctx, db, nil)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 orders, got %d", len(all))
	}
	if all[0].ID != thirdOrder || all[1].ID != secondOrder || all[2].ID != firstOrder {
		t.Errorf("Expected newest-first ordering, got %d, %d, %d", all[0].ID, all[1].ID, all[2].ID)
	}

	filtered, err := store.ListOrders(ctx, db, &first.ID)
	if err != nil {
		t.Fatalf("List orders filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("Expected 2 orders for staff %d, got %d", first.ID, len(filtered))
	}
	for _, summary := range filtered {
		if summary.StaffName != "Sara" {
			t.Errorf("Expected only Sara's orders, got %s", summary.StaffName)
		}
	}
}
