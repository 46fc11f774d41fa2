package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/rzbill/listsync/internal/todo"
)

// SQLite implements Store on a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serializes writes anyway and a single
	// connection avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)
	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) stamp() (time.Time, int64) {
	t := s.now().Truncate(time.Millisecond)
	return t, t.UnixMilli()
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// classify maps driver errors onto the package sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("store: %s: %w", op, ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("store: %s: %w", op, ErrNotFound)
		}
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func (s *SQLite) MaxOrderKey(ctx context.Context, listID string) (string, error) {
	var maxKey sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(position) FROM items WHERE list_id = ?`, listID).Scan(&maxKey)
	if err != nil {
		return "", classify("max order key", err)
	}
	return maxKey.String, nil
}

func (s *SQLite) InsertItem(ctx context.Context, it NewItem) (todo.Item, error) {
	if it.Description == "" {
		it.Description = todo.DefaultDescription
	}
	now, ms := s.stamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO items(id, list_id, created_by, position, description, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.ListID, it.CreatedBy, it.Position, it.Description, string(todo.StatusPending), ms, ms)
	if err != nil {
		return todo.Item{}, classify("insert item", err)
	}
	return todo.Item{
		ID:          it.ID,
		ListID:      it.ListID,
		Position:    it.Position,
		Description: it.Description,
		Status:      todo.StatusPending,
		CreatedBy:   it.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// execOne runs an UPDATE and reports ErrNotFound when no row matched.
func (s *SQLite) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n != 1 {
		return fmt.Errorf("store: %s: %w", op, ErrNotFound)
	}
	return nil
}

func (s *SQLite) UpdateDescription(ctx context.Context, itemID, listID, text string) (time.Time, error) {
	now, ms := s.stamp()
	err := s.execOne(ctx, "update description",
		`UPDATE items SET description = ?, updated_at = ? WHERE id = ? AND list_id = ?`,
		text, ms, itemID, listID)
	return now, err
}

func (s *SQLite) CompareAndSetStatus(ctx context.Context, itemID, listID string, from, to todo.Status) (time.Time, error) {
	now, ms := s.stamp()
	err := s.execOne(ctx, "compare and set status",
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND list_id = ? AND status = ?`,
		string(to), ms, itemID, listID, string(from))
	return now, err
}

func (s *SQLite) UpdatePosition(ctx context.Context, itemID, listID, position string) (time.Time, error) {
	now, ms := s.stamp()
	err := s.execOne(ctx, "update position",
		`UPDATE items SET position = ?, updated_at = ? WHERE id = ? AND list_id = ?`,
		position, ms, itemID, listID)
	return now, err
}

const itemColumns = `id, list_id, position, description, status, created_by, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanItem(r scanner) (todo.Item, error) {
	var (
		it             todo.Item
		status         string
		created, updat int64
	)
	if err := r.Scan(&it.ID, &it.ListID, &it.Position, &it.Description, &status, &it.CreatedBy, &created, &updat); err != nil {
		return todo.Item{}, err
	}
	it.Status = todo.Status(status)
	it.CreatedAt = fromMillis(created)
	it.UpdatedAt = fromMillis(updat)
	return it, nil
}

func (s *SQLite) ListItems(ctx context.Context, listID string) ([]todo.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE list_id = ? ORDER BY position COLLATE BINARY ASC`, listID)
	if err != nil {
		return nil, classify("list items", err)
	}
	defer rows.Close()
	items := []todo.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, classify("list items", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list items", err)
	}
	return items, nil
}

func (s *SQLite) GetItem(ctx context.Context, itemID, listID string) (todo.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ? AND list_id = ?`, itemID, listID)
	it, err := scanItem(row)
	if err != nil {
		return todo.Item{}, classify("get item", err)
	}
	return it, nil
}

func (s *SQLite) CreateUser(ctx context.Context, username, passwordHash string) (todo.User, error) {
	now, ms := s.stamp()
	u := todo.User{ID: uuid.NewString(), Username: username, CreatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, username, passwordHash, ms)
	if err != nil {
		return todo.User{}, classify("create user", err)
	}
	return u, nil
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (todo.User, string, error) {
	var (
		u    todo.User
		hash string
		ms   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.ID, &u.Username, &hash, &ms)
	if err != nil {
		return todo.User{}, "", classify("user by username", err)
	}
	u.CreatedAt = fromMillis(ms)
	return u, hash, nil
}

func scanUser(r scanner) (todo.User, error) {
	var (
		u  todo.User
		ms int64
	)
	if err := r.Scan(&u.ID, &u.Username, &ms); err != nil {
		return todo.User{}, err
	}
	u.CreatedAt = fromMillis(ms)
	return u, nil
}

func (s *SQLite) GetUser(ctx context.Context, userID string) (todo.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, created_at FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if err != nil {
		return todo.User{}, classify("get user", err)
	}
	return u, nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]todo.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()
	users := []todo.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

func (s *SQLite) CreateList(ctx context.Context, ownerID, name string) (todo.List, error) {
	now, ms := s.stamp()
	l := todo.List{ID: uuid.NewString(), OwnerID: ownerID, Name: name, CreatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lists(id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		l.ID, ownerID, name, ms)
	if err != nil {
		return todo.List{}, classify("create list", err)
	}
	return l, nil
}

func scanList(r scanner) (todo.List, error) {
	var (
		l  todo.List
		ms int64
	)
	if err := r.Scan(&l.ID, &l.OwnerID, &l.Name, &ms); err != nil {
		return todo.List{}, err
	}
	l.CreatedAt = fromMillis(ms)
	return l, nil
}

func (s *SQLite) GetList(ctx context.Context, listID string) (todo.List, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, name, created_at FROM lists WHERE id = ?`, listID)
	l, err := scanList(row)
	if err != nil {
		return todo.List{}, classify("get list", err)
	}
	return l, nil
}

func (s *SQLite) ListsByOwner(ctx context.Context, ownerID string) ([]todo.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM lists WHERE user_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, classify("lists by owner", err)
	}
	defer rows.Close()
	lists := []todo.List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, classify("lists by owner", err)
		}
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("lists by owner", err)
	}
	return lists, nil
}
