package accounts

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.ConnFromContext(ctx, r.pool)
}

const userCols = `id, email, password_hash, first_name, last_name, user_type,
	phone_number, profile_picture, is_active, is_staff, is_superuser,
	last_login, date_joined, created_at, updated_at`

var userFilters = map[string]db.Filter{
	"user_type":    {Column: "user_type", Type: db.FilterExact},
	"is_staff":     {Column: "is_staff", Type: db.FilterBool},
	"is_active":    {Column: "is_active", Type: db.FilterBool},
	"is_superuser": {Column: "is_superuser", Type: db.FilterBool},
	"date_joined":  {Column: "date_joined::date", Type: db.FilterDate},
}

var userOrdering = map[string]string{
	"email":       "email",
	"first_name":  "first_name",
	"last_name":   "last_name",
	"date_joined": "date_joined",
	"last_login":  "last_login",
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (
			id, email, password_hash, first_name, last_name, user_type,
			phone_number, profile_picture, is_active, is_staff, is_superuser
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING date_joined, created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.UserType,
		u.PhoneNumber, u.ProfilePicture, u.IsActive, u.IsStaff, u.IsSuperuser,
	).Scan(&u.DateJoined, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", db.MapError(err))
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET
			email=$2, first_name=$3, last_name=$4, user_type=$5, phone_number=$6,
			profile_picture=$7, is_active=$8, is_staff=$9, is_superuser=$10, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Email, u.FirstName, u.LastName, u.UserType, u.PhoneNumber,
		u.ProfilePicture, u.IsActive, u.IsStaff, u.IsSuperuser,
	).Scan(&u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", db.MapError(err))
	}
	return nil
}

func (r *userRepoPG) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return db.Affected(tag, err)
}

func (r *userRepoPG) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	return db.Affected(tag, err)
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return db.Affected(tag, err)
}

func (r *userRepoPG) Search(ctx context.Context, params url.Values, limit, offset int) ([]*User, int, error) {
	q := db.NewSearchQuery("users", userCols)
	if err := q.ApplyFilters(params, userFilters); err != nil {
		return nil, 0, err
	}
	q.Search(params.Get("search"), "email", "first_name", "last_name", "phone_number")
	q.ApplyOrdering(params.Get("ordering"), "email ASC", userOrdering)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, q.CountSQL(), q.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, q.DataSQL(), q.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.UserType,
		&u.PhoneNumber, &u.ProfilePicture, &u.IsActive, &u.IsStaff, &u.IsSuperuser,
		&u.LastLogin, &u.DateJoined, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, db.MapError(err)
	}
	return &u, nil
}
