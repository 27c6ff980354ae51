package store

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/acardoso/go-pos-store/internal/database"
	"github.com/acardoso/go-pos-store/internal/models"
)

func validateStaff(name, login, role string) error {
	if name == "" {
		return &database.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if login == "" {
		return &database.ValidationError{Field: "login", Reason: "must not be empty"}
	}
	if role != models.RoleAdmin && role != models.RoleRegular {
		return &database.ValidationError{Field: "role", Reason: "must be Admin or Regular"}
	}
	return nil
}

// CreateStaff stores a new staff account. The secret is stored only as a
// bcrypt digest.
func CreateStaff(ctx context.Context, db *sql.DB, name, login, secret, role string) (*models.Staff, error) {
	if err := validateStaff(name, login, role); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, &database.ValidationError{Field: "secret", Reason: "must not be empty"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	staff := &models.Staff{}

	query := `
		INSERT INTO staff (name, login, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, name, login, role, created_at, updated_at`

	err = db.QueryRowContext(ctx, query, name, login, string(hash), role).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Login,
		&staff.Role,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateLogin
		}
		return nil, fmt.Errorf("create staff: %w", err)
	}

	return staff, nil
}

func GetStaff(ctx context.Context, db *sql.DB, id int64) (*models.Staff, error) {
	staff := &models.Staff{}

	query := `
		SELECT id, name, login, role, created_at, updated_at
		FROM staff
		WHERE id = $1`

	err := db.QueryRowContext(ctx, query, id).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Login,
		&staff.Role,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "staff", ID: id}
		}
		return nil, fmt.Errorf("get staff: %w", err)
	}

	return staff, nil
}

// ListStaff returns staff accounts. The credential digest is never selected.
func ListStaff(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count staff: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT id, name, login, role, created_at, updated_at
		FROM staff
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var members []models.Staff
	for rows.Next() {
		var staff models.Staff
		err := rows.Scan(
			&staff.ID,
			&staff.Name,
			&staff.Login,
			&staff.Role,
			&staff.CreatedAt,
			&staff.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan staff: %w", err)
		}
		members = append(members, staff)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(members, total, page, pageSize), nil
}

// UpdateStaff edits a staff account. An empty secret keeps the existing
// digest.
func UpdateStaff(ctx context.Context, db *sql.DB, id int64, name, login, secret, role string) (*models.Staff, error) {
	if err := validateStaff(name, login, role); err != nil {
		return nil, err
	}

	staff := &models.Staff{}

	var err error
	if secret != "" {
		var hash []byte
		hash, err = bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash secret: %w", err)
		}

		err = db.QueryRowContext(ctx,
			`UPDATE staff
			 SET name = $1, login = $2, password_hash = $3, role = $4, updated_at = NOW()
			 WHERE id = $5
			 RETURNING id, name, login, role, created_at, updated_at`,
			name, login, string(hash), role, id).Scan(
			&staff.ID, &staff.Name, &staff.Login, &staff.Role, &staff.CreatedAt, &staff.UpdatedAt)
	} else {
		err = db.QueryRowContext(ctx,
			`UPDATE staff
			 SET name = $1, login = $2, role = $3, updated_at = NOW()
			 WHERE id = $4
			 RETURNING id, name, login, role, created_at, updated_at`,
			name, login, role, id).Scan(
			&staff.ID, &staff.Name, &staff.Login, &staff.Role, &staff.CreatedAt, &staff.UpdatedAt)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &database.NotFoundError{Entity: "staff", ID: id}
		}
		if database.IsUniqueViolation(err) {
			return nil, database.ErrDuplicateLogin
		}
		return nil, fmt.Errorf("update staff: %w", err)
	}

	return staff, nil
}

func DeleteStaff(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return &database.ReferentialConflictError{Entity: "staff", ID: id}
		}
		return fmt.Errorf("delete staff: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.NotFoundError{Entity: "staff", ID: id}
	}

	return nil
}

// Authenticate verifies a login/secret pair against the stored digest.
// Unknown logins and wrong secrets both return ErrAuthFailure so callers
// cannot probe which logins exist.
func Authenticate(ctx context.Context, db *sql.DB, login, secret string) (*models.Staff, error) {
	staff := &models.Staff{}
	var hash string

	err := db.QueryRowContext(ctx,
		`SELECT id, name, login, password_hash, role, created_at, updated_at
		 FROM staff
		 WHERE login = $1`,
		login).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Login,
		&hash,
		&staff.Role,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrAuthFailure
		}
		return nil, fmt.Errorf("get staff by login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return nil, database.ErrAuthFailure
	}

	return staff, nil
}

// CountStaff reports how many staff accounts exist. Used by the bootstrap
// path that seeds the initial admin account.
func CountStaff(ctx context.Context, db *sql.DB) (int64, error) {
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM staff`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count staff: %w", err)
	}
	return count, nil
}
