package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/acardoso/go-pos-store/internal/models"
)

// SalesSummaryByStaff aggregates order count and total sold per staff
// member. A non-nil staffID restricts the summary to one member. Staff with
// no orders appear with zero counts. Read-only; never mutates order rows.
func SalesSummaryByStaff(ctx context.Context, db *sql.DB, staffID *int64) ([]models.StaffSales, error) {
	query := `
		SELECT s.id, s.name,
		       COUNT(DISTINCT o.id) AS order_count,
		       COALESCE(SUM(l.quantity * l.unit_price), 0) AS total_sold
		FROM staff s
		LEFT JOIN orders o ON o.staff_id = s.id
		LEFT JOIN order_lines l ON l.order_id = o.id`

	var args []interface{}
	if staffID != nil {
		query += " WHERE s.id = $1"
		args = append(args, *staffID)
	}
	query += `
		GROUP BY s.id, s.name
		ORDER BY s.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sales summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.StaffSales
	for rows.Next() {
		var summary models.StaffSales
		err := rows.Scan(
			&summary.StaffID,
			&summary.StaffName,
			&summary.OrderCount,
			&summary.TotalSold,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sales summary: %w", err)
		}
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summaries, nil
}

// MonthlySales returns one staff member's sales totals grouped by calendar
// month, oldest month first.
func MonthlySales(ctx context.Context, db *sql.DB, staffID int64) ([]models.MonthlySales, error) {
	query := `
		SELECT to_char(o.order_date, 'YYYY-MM') AS month,
		       SUM(l.quantity * l.unit_price) AS total
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		WHERE o.staff_id = $1
		GROUP BY month
		ORDER BY month`

	rows, err := db.QueryContext(ctx, query, staffID)
	if err != nil {
		return nil, fmt.Errorf("monthly sales: %w", err)
	}
	defer rows.Close()

	var months []models.MonthlySales
	for rows.Next() {
		var m models.MonthlySales
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, fmt.Errorf("scan monthly sales: %w", err)
		}
		months = append(months, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return months, nil
}
