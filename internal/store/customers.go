package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
)

func CreateCustomer(ctx context.Context, db *sql.DB, name, phone, email string) (*models.Customer, error) {
	if name == "" {
		return nil, &database.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	customer := &models.Customer{}

	query := `
		INSERT INTO customers (name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, name, phone, email, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, phone, email).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}

	return customer, nil
}

func GetCustomer(ctx context.Context, db *sql.DB, id int64) (*models.Customer, error) {
	customer := &models.Customer{}

	query := `
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "customer", ID: id}
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

func ListCustomers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, name, phone, email, created_at, updated_at
		FROM customers
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		var customer models.Customer
		err := rows.Scan(
			&customer.ID,
			&customer.Name,
			&customer.Phone,
			&customer.Email,
			&customer.CreatedAt,
			&customer.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, customer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(customers, total, page, pageSize), nil
}

func UpdateCustomer(ctx context.Context, db *sql.DB, id int64, name, phone, email string) (*models.Customer, error) {
	if name == "" {
		return nil, &database.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	customer := &models.Customer{}

	query := `
		UPDATE customers
		SET name = $1, phone = $2, email = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING id, name, phone, email, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, name, phone, email, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Phone,
		&customer.Email,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "customer", ID: id}
		}
		return nil, fmt.Errorf("update customer: %w", err)
	}

	return customer, nil
}

// DeleteCustomer removes a customer. A customer referenced by any order
// cannot be deleted; the restraint violation surfaces as a
// ReferentialConflictError, distinct from NotFoundError.
func DeleteCustomer(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return &database.ReferentialConflictError{Entity: "customer", ID: id}
		}
		return fmt.Errorf("delete customer: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.NotFoundError{Entity: "customer", ID: id}
	}

	return nil
}
