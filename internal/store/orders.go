package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
)

// CartLine is one (product, quantity, unit price) tuple submitted for an
// order. UnitPrice is the sale-time snapshot supplied by the caller; the
// engine does not re-read it from the product.
type CartLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

type CommitOrderRequest struct {
	OrderDate  time.Time
	CustomerID int64
	StaffID    int64
	Lines      []CartLine
}

// mergeCartLines collapses duplicate products into one line with the summed
// quantity, so each product is locked and checked exactly once. Duplicates
// with different unit prices are rejected: picking either price would
// falsify the snapshot.
func mergeCartLines(lines []CartLine) ([]CartLine, error) {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))

	for _, line := range lines {
		i, seen := index[line.ProductID]
		if !seen {
			index[line.ProductID] = len(merged)
			merged = append(merged, line)
			continue
		}
		if !merged[i].UnitPrice.Equal(line.UnitPrice) {
			return nil, &database.ValidationError{
				Field:  "lines",
				Reason: fmt.Sprintf("conflicting unit prices for product %d", line.ProductID),
			}
		}
		merged[i].Quantity += line.Quantity
	}

	return merged, nil
}

func validateCart(req CommitOrderRequest) ([]CartLine, error) {
	if len(req.Lines) == 0 {
		return nil, database.ErrEmptyCart
	}

	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, &database.ValidationError{
				Field:  "quantity",
				Reason: fmt.Sprintf("must be positive for product %d", line.ProductID),
			}
		}
		if line.UnitPrice.IsNegative() {
			return nil, &database.ValidationError{
				Field:  "unit_price",
				Reason: fmt.Sprintf("must not be negative for product %d", line.ProductID),
			}
		}
	}

	return mergeCartLines(req.Lines)
}

// CommitOrder converts a cart into a persisted order with its lines,
// decrementing stock for every line inside one transaction. Either the
// order, all its lines and every stock decrement are committed together,
// or nothing is.
func CommitOrder(ctx context.Context, db *sql.DB, req CommitOrderRequest) (int64, error) {
	lines, err := validateCart(req)
	if err != nil {
		return 0, err
	}

	var orderID int64

	err = database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)",
			req.CustomerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check customer exists: %w", err)
		}
		if !exists {
			return &database.NotFoundError{Entity: "customer", ID: req.CustomerID}
		}

		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM staff WHERE id = $1)",
			req.StaffID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check staff exists: %w", err)
		}
		if !exists {
			return &database.NotFoundError{Entity: "staff", ID: req.StaffID}
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_date, customer_id, staff_id, created_at)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id`,
			req.OrderDate, req.CustomerID, req.StaffID).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range lines {
			if _, err := ReserveStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_lines (order_id, product_id, quantity, unit_price, created_at)
				 VALUES ($1, $2, $3, $4, NOW())`,
				orderID, line.ProductID, line.Quantity, line.UnitPrice)
			if err != nil {
				return fmt.Errorf("create order line: %w", err)
			}

			if err := DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// CancelOrder reverses a committed order: every line's quantity is added
// back onto its product's stock, then the lines and the header are deleted,
// all inside one transaction. Cancelling an unknown id returns NotFoundError
// rather than silently succeeding.
func CancelOrder(ctx context.Context, db *sql.DB, orderID int64) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM orders WHERE id = $1 FOR UPDATE",
			orderID).Scan(&id)
		if err != nil {
			if err == sql.ErrNoRows {
				return &database.NotFoundError{Entity: "order", ID: orderID}
			}
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}

		rows, err := tx.QueryContext(ctx,
			"SELECT product_id, quantity FROM order_lines WHERE order_id = $1",
			orderID)
		if err != nil {
			return fmt.Errorf("read order lines: %w", err)
		}

		type restore struct {
			productID int64
			quantity  int
		}
		var restores []restore
		for rows.Next() {
			var r restore
			if err := rows.Scan(&r.productID, &r.quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan order line: %w", err)
			}
			restores = append(restores, r)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close order lines: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, r := range restores {
			if err := RestoreStock(ctx, tx, r.productID, r.quantity); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM order_lines WHERE order_id = $1", orderID); err != nil {
			return fmt.Errorf("delete order lines: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM orders WHERE id = $1", orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}

		return nil
	})
}

// GetOrder returns the order header with its lines.
func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := db.QueryRowContext(ctx,
		`SELECT id, order_date, customer_id, staff_id, created_at
		 FROM orders
		 WHERE id = $1`,
		id).Scan(
		&order.ID,
		&order.OrderDate,
		&order.CustomerID,
		&order.StaffID,
		&order.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "order", ID: id}
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price, created_at
		 FROM order_lines
		 WHERE order_id = $1
		 ORDER BY id`,
		id)
	if err != nil {
		return nil, fmt.Errorf("get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.OrderLine
		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ProductID,
			&line.Quantity,
			&line.UnitPrice,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return order, nil
}

// ListOrders returns orders joined with customer and staff names and the
// derived total over their lines, newest order first. A non-nil staffID
// restricts the listing to one staff member.
func ListOrders(ctx context.Context, db *sql.DB, staffID *int64) ([]models.OrderSummary, error) {
	query := `
		SELECT o.id, o.order_date, c.name, s.name,
		       SUM(l.quantity * l.unit_price) AS total
		FROM orders o
		JOIN customers c ON o.customer_id = c.id
		JOIN staff s ON o.staff_id = s.id
		JOIN order_lines l ON l.order_id = o.id`

	var args []interface{}
	if staffID != nil {
		query += " WHERE o.staff_id = $1"
		args = append(args, *staffID)
	}
	query += `
		GROUP BY o.id, o.order_date, c.name, s.name
		ORDER BY o.id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var summaries []models.OrderSummary
	for rows.Next() {
		var summary models.OrderSummary
		err := rows.Scan(
			&summary.ID,
			&summary.OrderDate,
			&summary.CustomerName,
			&summary.StaffName,
			&summary.Total,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summaries, nil
}
