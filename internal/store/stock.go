package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/acardoso/go-pos-store/internal/database"
)

// CanFulfill is the single stock-sufficiency comparison in the system.
// Every path that decrements stock routes its check through here.
func CanFulfill(available, requested int) bool {
	return available >= requested
}

// ReserveStock locks the product row and checks that the requested quantity
// can be fulfilled. The lock is held until the surrounding transaction ends,
// so concurrent commits against the same product serialize here.
func ReserveStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (int, error) {
	var available int

	err := tx.QueryRowContext(ctx,
		`SELECT stock_quantity
		 FROM products
		 WHERE id = $1
		 FOR UPDATE`,
		productID).Scan(&available)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, &database.NotFoundError{Entity: "product", ID: productID}
		}
		return 0, fmt.Errorf("lock product %d: %w", productID, err)
	}

	if !CanFulfill(available, quantity) {
		return available, &database.InsufficientStockError{ProductID: productID, Available: available}
	}

	return available, nil
}

// DecrementStock subtracts quantity from the product's stock. The guard in
// the WHERE clause keeps stock from going negative even if a caller skipped
// ReserveStock.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.InsufficientStockError{ProductID: productID}
	}

	return nil
}

// RestoreStock adds quantity back onto the product's stock. Used by order
// cancellation; the UPDATE takes the row lock itself.
func RestoreStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.NotFoundError{Entity: "product", ID: productID}
	}

	return nil
}
