package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/auth-session/internal/model"
	"github.com/iliyamo/auth-session/internal/utils"
)

// mysqlDuplicateEntry is the server error number for a UNIQUE/PK violation.
const mysqlDuplicateEntry = 1062

// UserRepo is the credential store: it owns the `users` table and checks
// email/password pairs against stored bcrypt hashes.
type UserRepo struct {
	DB   *sql.DB
	cost int
	now  func() time.Time

	// dummyHash is compared against for unknown emails so they cost the
	// same bcrypt work as real ones.
	dummyHash string
}

func NewUserRepo(db *sql.DB, bcryptCost int) (*UserRepo, error) {
	cost := utils.NormalizeCost(bcryptCost)
	dummy, err := utils.HashPassword("timing-equalizer", cost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &UserRepo{DB: db, cost: cost, now: time.Now, dummyHash: dummy}, nil
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail fetches a user by normalized email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(ctx,
		"SELECT id,email,password_hash,role,created_at FROM users WHERE email=? LIMIT 1",
		NormalizeEmail(email))
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.scanOne(ctx,
		"SELECT id,email,password_hash,role,created_at FROM users WHERE id=? LIMIT 1",
		id)
}

func (r *UserRepo) scanOne(ctx context.Context, query string, arg any) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("query user: %w", err)
	}
	u.Role = model.Role(role)
	return u, nil
}

// VerifyCredentials returns the user whose email and password match.  An
// unknown email and a wrong password both yield ErrCredentialsMismatch, and
// both cost one bcrypt comparison so response time does not reveal which.
func (r *UserRepo) VerifyCredentials(ctx context.Context, email, password string) (model.User, error) {
	u, err := r.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utils.VerifyPassword(r.dummyHash, password)
			return model.User{}, fmt.Errorf("%w: unknown email", ErrCredentialsMismatch)
		}
		return model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, fmt.Errorf("%w: password mismatch", ErrCredentialsMismatch)
	}
	return u, nil
}

// UpsertBootstrapUser creates a fixed account unless one with the same email
// already exists, in which case the existing row is returned unchanged.  It
// is only meant for seeding non-production accounts.
func (r *UserRepo) UpsertBootstrapUser(ctx context.Context, id, email, plainPassword string, role model.Role) (model.User, error) {
	email = NormalizeEmail(email)
	if !role.Valid() {
		return model.User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	existing, err := r.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return model.User{}, err
	}

	hash, err := utils.HashPassword(plainPassword, r.cost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    r.now().UTC().Truncate(time.Microsecond),
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?,?,?,?,?)",
		u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			// another process seeded the same email first, or the id is
			// already taken by a different email
			winner, ferr := r.FindByEmail(ctx, email)
			if errors.Is(ferr, ErrNotFound) {
				return model.User{}, fmt.Errorf("%w: id %q belongs to another email", ErrIDTaken, id)
			}
			return winner, ferr
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}
