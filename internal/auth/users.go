package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrUserExists     = errors.New("username already taken")
	ErrUserNotFound   = errors.New("user not found")
)

var validRoles = map[string]bool{"student": true, "instructor": true, "admin": true}

type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	PlusSubscriber bool   `json:"plus_subscriber"`
	CreatedAt      int64  `json:"created_at"`
}

// UserStore manages accounts backed by the users table.
type UserStore struct{ db *sql.DB }

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) Create(ctx context.Context, username, password, role string) (User, error) {
	if !validRoles[role] {
		role = "student"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().Unix(),
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username=$1)`, username).Scan(&exists); err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrUserExists
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		u.ID, u.Username, string(hash), u.Role, false, u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate verifies a username/password pair.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, plus_subscriber, created_at
		   FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.Username, &hash, &u.Role, &u.PlusSubscriber, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrBadCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *UserStore) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, role, plus_subscriber, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Role, &u.PlusSubscriber, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// ChangePassword rotates a user's password after checking the current one.
func (s *UserStore) ChangePassword(ctx context.Context, id, current, next string) error {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE id=$1`, id).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(current)) != nil {
		return ErrBadCredentials
	}
	newHash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET password_hash=$1 WHERE id=$2`, string(newHash), id)
	return err
}

func (s *UserStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, role, plus_subscriber, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.PlusSubscriber, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// BulkEntry is one row of a roster import.
type BulkEntry struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=student instructor admin"`
}

// BulkUpsert imports a roster. Existing usernames get their password and role
// replaced; new ones are created.
func (s *UserStore) BulkUpsert(ctx context.Context, entries []BulkEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, e := range entries {
		role := e.Role
		if !validRoles[role] {
			role = "student"
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(e.Password), bcrypt.DefaultCost)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, username, password_hash, role, plus_subscriber, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (username) DO UPDATE SET password_hash=EXCLUDED.password_hash, role=EXCLUDED.role`,
			uuid.NewString(), e.Username, string(hash), role, false, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// SetPlusSubscriber toggles access to plus courses.
func (s *UserStore) SetPlusSubscriber(ctx context.Context, id string, plus bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET plus_subscriber=$1 WHERE id=$2`, plus, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}
