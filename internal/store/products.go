package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
)

func validateProduct(name string, price decimal.Decimal, stock int) error {
	if name == "" {
		return &database.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if price.IsNegative() {
		return &database.ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if stock < 0 {
		return &database.ValidationError{Field: "stock_quantity", Reason: "must not be negative"}
	}
	return nil
}

func CreateProduct(ctx context.Context, db *sql.DB, name, category, brand string, price decimal.Decimal, stock int) (*models.Product, error) {
	if err := validateProduct(name, price, stock); err != nil {
		return nil, err
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (name, category, brand, price, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING id, name, category, brand, price, stock_quantity, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, category, brand, price, stock).Scan(
		&product.ID,
		&product.Name,
		&product.Category,
		&product.Brand,
		&product.Price,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `
		SELECT id, name, category, brand, price, stock_quantity, created_at, updated_at
		FROM products
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Category,
		&product.Brand,
		&product.Price,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "product", ID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, name, category, brand, price, stock_quantity, created_at, updated_at
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var product models.Product
		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Category,
			&product.Brand,
			&product.Price,
			&product.StockQuantity,
			&product.CreatedAt,
			&product.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(products, total, page, pageSize), nil
}

// UpdateProduct edits the product's descriptive fields, price and stock.
// Price edits do not touch order lines: committed orders keep the unit
// price captured at sale time.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, name, category, brand string, price decimal.Decimal, stock int) (*models.Product, error) {
	if err := validateProduct(name, price, stock); err != nil {
		return nil, err
	}

	product := &models.Product{}

	query := `
		UPDATE products
		SET name = $1, category = $2, brand = $3, price = $4, stock_quantity = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING id, name, category, brand, price, stock_quantity, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, category, brand, price, stock, id).Scan(
		&product.ID,
		&product.Name,
		&product.Category,
		&product.Brand,
		&product.Price,
		&product.StockQuantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "product", ID: id}
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeleteProduct removes a product. A product referenced by any order line
// cannot be deleted (historic orders must keep their lines); the restraint
// violation surfaces as ReferentialConflictError, distinct from
// NotFoundError.
func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return &database.ReferentialConflictError{Entity: "product", ID: id}
		}
		return fmt.Errorf("delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.NotFoundError{Entity: "product", ID: id}
	}

	return nil
}
