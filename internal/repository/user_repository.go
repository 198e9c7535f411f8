package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nestwork/loyalty-discount-service/internal/utils"
)

// Roles a user account can hold. Operators trigger syncs, edit settings and
// manage overrides; customers quote carts and view their own tier.
const (
	RoleOperator = "OPERATOR"
	RoleCustomer = "CUSTOMER"
)

// ErrEmailExists is returned by Create when the email is already registered.
var ErrEmailExists = errors.New("email already exists")

// User mirrors one row of the `users` table. The account ID doubles as the
// customer ID in the loyalty tables.
type User struct {
	ID           uint64
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepo stores the service's accounts.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user with a hashed password and returns the new ID.
// Emails are stored lowercased; a duplicate maps to ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role) VALUES (?, ?, ?)`,
		email, hash, role)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 { // duplicate key
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.get(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

// GetByID fetches a user by account ID.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (User, error) {
	return r.get(ctx, `id = ?`, id)
}

func (r *UserRepo) get(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash, role, is_active, created_at, updated_at
		 FROM users WHERE `+where+` LIMIT 1`, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
