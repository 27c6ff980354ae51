package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category,omitempty"`
	Brand         string          `json:"brand,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Staff carries the credential digest for authentication only. It never
// serializes and listing queries do not select it.
type Staff struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Login        string    `json:"login"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	RoleAdmin   = "Admin"
	RoleRegular = "Regular"
)

type Order struct {
	ID         int64       `json:"id"`
	OrderDate  time.Time   `json:"order_date"`
	CustomerID int64       `json:"customer_id"`
	StaffID    int64       `json:"staff_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Lines      []OrderLine `json:"lines,omitempty"`
}

// OrderLine records the unit price at time of sale. It is a copy, not a
// reference: later product price edits must not change historic totals.
type OrderLine struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderSummary is the listing row: order joined with customer and staff
// names plus the derived total over its lines.
type OrderSummary struct {
	ID           int64           `json:"id"`
	OrderDate    time.Time       `json:"order_date"`
	CustomerName string          `json:"customer_name"`
	StaffName    string          `json:"staff_name"`
	Total        decimal.Decimal `json:"total"`
}

type StaffSales struct {
	StaffID    int64           `json:"staff_id"`
	StaffName  string          `json:"staff_name"`
	OrderCount int64           `json:"order_count"`
	TotalSold  decimal.Decimal `json:"total_sold"`
}

type MonthlySales struct {
	Month string          `json:"month"`
	Total decimal.Decimal `json:"total"`
}
