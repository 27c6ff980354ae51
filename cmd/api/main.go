package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/acardoso/go-pos-store/internal/auth"
	"github.com/acardoso/go-pos-store/internal/config"
	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
	"github.com/acardoso/go-pos-store/internal/store"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	if err := bootstrapAdmin(context.Background(), db, cfg, logger); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	issuer := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	mux := http.NewServeMux()

	mux.HandleFunc("/login", handleLogin(db, issuer, logger))
	mux.HandleFunc("/customers", handleCustomers(db, issuer))
	mux.HandleFunc("/customers/", handleCustomerByID(db, issuer))
	mux.HandleFunc("/products", handleProducts(db, issuer))
	mux.HandleFunc("/products/", handleProductByID(db, issuer))
	mux.HandleFunc("/staff", handleStaff(db, issuer))
	mux.HandleFunc("/staff/", handleStaffByID(db, issuer))
	mux.HandleFunc("/orders", handleOrders(db, issuer, logger))
	mux.HandleFunc("/orders/", handleOrderByID(db, issuer, logger))
	mux.HandleFunc("/reports/staff-sales", handleStaffSales(db, issuer))
	mux.HandleFunc("/reports/monthly-sales", handleMonthlySales(db, issuer))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}
}

// bootstrapAdmin seeds the initial admin account when the staff table is
// empty, so a fresh deployment can log in.
func bootstrapAdmin(ctx context.Context, db *sql.DB, cfg *config.Config, logger *zap.Logger) error {
	count, err := store.CountStaff(ctx, db)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	staff, err := store.CreateStaff(ctx, db, "Administrator", cfg.Auth.AdminLogin, cfg.Auth.AdminPassword, models.RoleAdmin)
	if err != nil {
		return err
	}

	logger.Info("created bootstrap admin account", zap.String("login", staff.Login))
	return nil
}

// sessionClaims validates the bearer token on a request.
func sessionClaims(r *http.Request, issuer *auth.TokenIssuer) (*auth.StaffClaims, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, database.ErrAuthFailure
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		return nil, database.ErrAuthFailure
	}

	return claims, nil
}

func handleLogin(db *sql.DB, issuer *auth.TokenIssuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		var req struct {
			Login  string `json:"login"`
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		staff, err := store.Authenticate(r.Context(), db, req.Login, req.Secret)
		if err != nil {
			if errors.Is(err, database.ErrAuthFailure) {
				logger.Warn("login failed", zap.String("login", req.Login))
			}
			respondStoreError(w, err)
			return
		}

		token, err := issuer.Issue(staff)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Could not issue token")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"token": token,
			"staff": staff,
		})
	}
}

func handleCustomers(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if _, err := sessionClaims(r, issuer); err != nil {
			respondStoreError(w, err)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name  string `json:"name"`
				Phone string `json:"phone"`
				Email string `json:"email"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			customer, err := store.CreateCustomer(ctx, db, req.Name, req.Phone, req.Email)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, customer)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListCustomers(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleCustomerByID(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		id, err := pathID(r, "/customers/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid customer ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			customer, err := store.GetCustomer(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, customer)

		case http.MethodPut:
			var req struct {
				Name  string `json:"name"`
				Phone string `json:"phone"`
				Email string `json:"email"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			customer, err := store.UpdateCustomer(ctx, db, id, req.Name, req.Phone, req.Email)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, customer)

		case http.MethodDelete:
			if !claims.IsAdmin() {
				respondError(w, http.StatusForbidden, "Admin role required")
				return
			}
			if err := store.DeleteCustomer(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProducts(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if _, err := sessionClaims(r, issuer); err != nil {
			respondStoreError(w, err)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name     string `json:"name"`
				Category string `json:"category"`
				Brand    string `json:"brand"`
				Price    string `json:"price"`
				Stock    int    `json:"stock_quantity"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price, err := decimal.NewFromString(req.Price)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid price")
				return
			}

			product, err := store.CreateProduct(ctx, db, req.Name, req.Category, req.Brand, price, req.Stock)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, product)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListProducts(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleProductByID(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		id, err := pathID(r, "/products/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid product ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			product, err := store.GetProduct(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodPut:
			var req struct {
				Name     string `json:"name"`
				Category string `json:"category"`
				Brand    string `json:"brand"`
				Price    string `json:"price"`
				Stock    int    `json:"stock_quantity"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			price, err := decimal.NewFromString(req.Price)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid price")
				return
			}

			product, err := store.UpdateProduct(ctx, db, id, req.Name, req.Category, req.Brand, price, req.Stock)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, product)

		case http.MethodDelete:
			if !claims.IsAdmin() {
				respondError(w, http.StatusForbidden, "Admin role required")
				return
			}
			if err := store.DeleteProduct(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleStaff(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if !claims.IsAdmin() {
			respondError(w, http.StatusForbidden, "Admin role required")
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				Name   string `json:"name"`
				Login  string `json:"login"`
				Secret string `json:"secret"`
				Role   string `json:"role"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			staff, err := store.CreateStaff(ctx, db, req.Name, req.Login, req.Secret, req.Role)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusCreated, staff)

		case http.MethodGet:
			page, pageSize := pageParams(r)
			result, err := store.ListStaff(ctx, db, page, pageSize)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, result)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleStaffByID(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if !claims.IsAdmin() {
			respondError(w, http.StatusForbidden, "Admin role required")
			return
		}

		id, err := pathID(r, "/staff/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid staff ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			staff, err := store.GetStaff(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, staff)

		case http.MethodPut:
			var req struct {
				Name   string `json:"name"`
				Login  string `json:"login"`
				Secret string `json:"secret"`
				Role   string `json:"role"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			staff, err := store.UpdateStaff(ctx, db, id, req.Name, req.Login, req.Secret, req.Role)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, staff)

		case http.MethodDelete:
			if err := store.DeleteStaff(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrders(db *sql.DB, issuer *auth.TokenIssuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		switch r.Method {
		case http.MethodPost:
			var req struct {
				OrderDate  string `json:"order_date"`
				CustomerID int64  `json:"customer_id"`
				Lines      []struct {
					ProductID int64  `json:"product_id"`
					Quantity  int    `json:"quantity"`
					UnitPrice string `json:"unit_price"`
				} `json:"lines"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				respondError(w, http.StatusBadRequest, "Invalid request body")
				return
			}

			orderDate, err := time.Parse("2006-01-02", req.OrderDate)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid order date, expected YYYY-MM-DD")
				return
			}

			var lines []store.CartLine
			for _, line := range req.Lines {
				unitPrice, err := decimal.NewFromString(line.UnitPrice)
				if err != nil {
					respondError(w, http.StatusBadRequest, "Invalid unit price")
					return
				}
				lines = append(lines, store.CartLine{
					ProductID: line.ProductID,
					Quantity:  line.Quantity,
					UnitPrice: unitPrice,
				})
			}

			orderID, err := store.CommitOrder(ctx, db, store.CommitOrderRequest{
				OrderDate:  orderDate,
				CustomerID: req.CustomerID,
				StaffID:    claims.StaffID,
				Lines:      lines,
			})
			if err != nil {
				respondStoreError(w, err)
				return
			}

			logger.Info("order committed",
				zap.Int64("order_id", orderID),
				zap.Int64("staff_id", claims.StaffID))

			respondJSON(w, http.StatusCreated, map[string]int64{"order_id": orderID})

		case http.MethodGet:
			staffFilter := listingStaffFilter(r, claims)
			summaries, err := store.ListOrders(ctx, db, staffFilter)
			if err != nil {
				respondStoreError(w, err)
				return
			}

			respondJSON(w, http.StatusOK, summaries)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleOrderByID(db *sql.DB, issuer *auth.TokenIssuer, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		id, err := pathID(r, "/orders/")
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid order ID")
			return
		}

		switch r.Method {
		case http.MethodGet:
			order, err := store.GetOrder(ctx, db, id)
			if err != nil {
				respondStoreError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, order)

		case http.MethodDelete:
			if !claims.IsAdmin() {
				respondError(w, http.StatusForbidden, "Admin role required")
				return
			}
			if err := store.CancelOrder(ctx, db, id); err != nil {
				respondStoreError(w, err)
				return
			}

			logger.Info("order cancelled",
				zap.Int64("order_id", id),
				zap.Int64("staff_id", claims.StaffID))

			w.WriteHeader(http.StatusNoContent)

		default:
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	}
}

func handleStaffSales(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		staffFilter := listingStaffFilter(r, claims)
		summaries, err := store.SalesSummaryByStaff(r.Context(), db, staffFilter)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, summaries)
	}
}

func handleMonthlySales(db *sql.DB, issuer *auth.TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := sessionClaims(r, issuer)
		if err != nil {
			respondStoreError(w, err)
			return
		}
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		staffID := claims.StaffID
		if claims.IsAdmin() {
			if param := r.URL.Query().Get("staff_id"); param != "" {
				id, err := strconv.ParseInt(param, 10, 64)
				if err != nil {
					respondError(w, http.StatusBadRequest, "Invalid staff ID")
					return
				}
				staffID = id
			}
		}

		months, err := store.MonthlySales(r.Context(), db, staffID)
		if err != nil {
			respondStoreError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, months)
	}
}

// listingStaffFilter scopes listings and reports: regular staff only ever
// see their own, admins see everything unless they ask for one member.
func listingStaffFilter(r *http.Request, claims *auth.StaffClaims) *int64 {
	if !claims.IsAdmin() {
		id := claims.StaffID
		return &id
	}
	if param := r.URL.Query().Get("staff_id"); param != "" {
		if id, err := strconv.ParseInt(param, 10, 64); err == nil {
			return &id
		}
	}
	return nil
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func pathID(r *http.Request, prefix string) (int64, error) {
	return strconv.ParseInt(r.URL.Path[len(prefix):], 10, 64)
}

func respondStoreError(w http.ResponseWriter, err error) {
	var validationErr *database.ValidationError
	var notFoundErr *database.NotFoundError
	var conflictErr *database.ReferentialConflictError
	var stockErr *database.InsufficientStockError

	switch {
	case errors.Is(err, database.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrAuthFailure):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrDuplicateLogin):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &conflictErr):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &stockErr):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
		})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
