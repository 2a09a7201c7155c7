package sqlxrepos

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

const userColumns = `id, name, username, email, roles, is_active, password_hash, lesson_hour, lesson_minute,
	created_at, updated_at, last_login`

type userRow struct {
	ID           int            `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	Roles        pq.StringArray `db:"roles"`
	IsActive     bool           `db:"is_active"`
	PasswordHash []byte         `db:"password_hash"`
	LessonHour   int            `db:"lesson_hour"`
	LessonMinute int            `db:"lesson_minute"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (row userRow) unwrap() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username.String,
		Email:        row.Email.String,
		Roles:        []string(row.Roles),
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		LessonHour:   row.LessonHour,
		LessonMinute: row.LessonMinute,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin,
	}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec}}
}

func (r userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs []int, exec ...core.DBExecutor) error {
	q := "SELECT " + userColumns + " FROM users WHERE (username = ? OR email = ?)"
	args := []interface{}{username, email}
	if len(excludedIDs) > 0 {
		q += " AND id NOT IN (?)"
		args = append(args, excludedIDs)
	}

	var rows []userRow
	if err := selectAll(ctx, r.getExec(exec), &rows, q, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := scalar(ctx, r.getExec(exec), &usr.ID, `INSERT INTO users
		(name, username, email, roles, is_active, password_hash, lesson_hour, lesson_minute, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		usr.Name, null.NewString(usr.Username, usr.Username != ""), null.NewString(usr.Email, usr.Email != ""),
		pq.StringArray(usr.Roles), usr.IsActive, usr.PasswordHash, usr.LessonHour, usr.LessonMinute,
		usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (r userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := "SELECT " + userColumns + " FROM users"
	var args []interface{}
	switch {
	case filter.ID != 0:
		q += " WHERE id = ?"
		args = append(args, filter.ID)
	case filter.UsernameOrEmail != "":
		q += " WHERE username = ? OR email = ?"
		args = append(args, filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var rows []userRow
	if err := selectAll(ctx, r.getExec(exec), &rows, q+" LIMIT 1", args...); err != nil {
		return user.User{}, errors.Wrap(err, "finding user")
	}
	if len(rows) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return rows[0].unwrap(), nil
}

func (r userRepository) QueryUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := selectAll(ctx, r.getExec(exec), &rows, "SELECT "+userColumns+" FROM users WHERE id IN (?)", ids); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.unwrap())
	}
	return users, nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	res, err := execute(ctx, r.getExec(exec), `UPDATE users SET
		name = ?, username = ?, email = ?, roles = ?, is_active = ?, password_hash = ?,
		lesson_hour = ?, lesson_minute = ?, updated_at = ?, last_login = ?
		WHERE id = ?`,
		usr.Name, null.NewString(usr.Username, usr.Username != ""), null.NewString(usr.Email, usr.Email != ""),
		pq.StringArray(usr.Roles), usr.IsActive, usr.PasswordHash, usr.LessonHour, usr.LessonMinute,
		usr.UpdatedAt.UTC(), usr.LastLogin, usr.ID,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (r userRepository) AddParent(ctx context.Context, studentID, parentID int, exec ...core.DBExecutor) error {
	_, err := execute(ctx, r.getExec(exec),
		"INSERT INTO parent_users (user_id, parent_id) VALUES (?, ?) ON CONFLICT (user_id, parent_id) DO NOTHING",
		studentID, parentID)
	return errors.Wrap(err, "linking parent")
}

func (r userRepository) QueryParentIDs(ctx context.Context, studentIDs []int, exec ...core.DBExecutor) ([]int, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var rows []struct {
		ID int `db:"parent_id"`
	}
	err := selectAll(ctx, r.getExec(exec), &rows,
		"SELECT DISTINCT parent_id FROM parent_users WHERE user_id IN (?) ORDER BY parent_id", studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "querying parents")
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r userRepository) QueryChildIDs(ctx context.Context, parentID int, exec ...core.DBExecutor) ([]int, error) {
	var rows []struct {
		ID int `db:"user_id"`
	}
	err := selectAll(ctx, r.getExec(exec), &rows,
		"SELECT user_id FROM parent_users WHERE parent_id = ? ORDER BY user_id", parentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying children")
	}
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
