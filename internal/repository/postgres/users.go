package postgres

import (
	"context"
	"fmt"

	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/lib/pq"
)

type userStore struct {
	q querier
}

const userColumns = `id, username, password_hash, roles, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		u     models.User
		roles []string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, pq.Array(&roles), &u.CreatedAt); err != nil {
		return models.User{}, err
	}
	u.Roles = make([]models.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, models.Role(r))
	}
	return u, nil
}

func roleStrings(roles []models.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}

// FindByID retrieves a user by id
func (r *userStore) FindByID(ctx context.Context, id int64) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE id = $1`
	u, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to find user %d: %w", id, translate(err))
	}
	return u, nil
}

// FindByUsername retrieves a user by exact username
func (r *userStore) FindByUsername(ctx context.Context, username string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM bank.users WHERE username = $1`
	u, err := scanUser(r.q.QueryRowContext(ctx, query, username))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to find user: %w", translate(err))
	}
	return u, nil
}

func (r *userStore) FindAll(ctx context.Context, page models.PageRequest) (models.Page[models.User], error) {
	page = page.Normalize()
	result := models.Page[models.User]{Items: []models.User{}, Page: page.Page, Size: page.Size}

	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank.users`).Scan(&result.Total); err != nil {
		return result, fmt.Errorf("failed to count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM bank.users ORDER BY id LIMIT $1 OFFSET $2`
	rows, err := r.q.QueryContext(ctx, query, page.Size, page.Offset())
	if err != nil {
		return result, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return result, fmt.Errorf("failed to scan user: %w", err)
		}
		result.Items = append(result.Items, u)
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("failed to list users: %w", err)
	}
	return result, nil
}

func (r *userStore) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", id, err)
	}
	return exists, nil
}

func (r *userStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bank.users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

// Save creates or updates a user
func (r *userStore) Save(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		query := `
			INSERT INTO bank.users (username, password_hash, roles, created_at)
			VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
			RETURNING id, created_at`
		err := r.q.QueryRowContext(ctx, query, user.Username, user.PasswordHash, pq.Array(roleStrings(user.Roles))).
			Scan(&user.ID, &user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", translate(err))
		}
		return nil
	}

	query := `
		UPDATE bank.users SET username = $2, password_hash = $3, roles = $4
		WHERE id = $1`
	res, err := r.q.ExecContext(ctx, query, user.ID, user.Username, user.PasswordHash, pq.Array(roleStrings(user.Roles)))
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, translate(err))
	}
	return requireAffected(res, "user", user.ID)
}

// DeleteByID removes a user; the foreign key cascades to owned cards
func (r *userStore) DeleteByID(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bank.users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	return requireAffected(res, "user", id)
}

func requireAffected(res interface{ RowsAffected() (int64, error) }, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, repository.ErrNotFound)
	}
	return nil
}
