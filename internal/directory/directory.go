package directory

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"time"

	"cattlecloud.net/go/bizdash/middles/identity"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound    = errors.New("directory: user not found")
	ErrDuplicate   = errors.New("directory: user already exists")
	ErrInvalidUser = errors.New("directory: user not valid")
)

const timeout = 3 * time.Second

// Directory stores dashboard users and their roles in SQLite.
type Directory struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies pending
// migrations.
func Open(path string) (*Directory, error) {
	if path == "" {
		path = "bizdash.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	// journal_mode is not supported for in-memory databases; ignore errors
	_, _ = db.Exec(`PRAGMA journal_mode=WAL`)
	if _, err = db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err = migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Directory{db: db}, nil
}

func (d *Directory) Close() error {
	return d.db.Close()
}

// Add inserts u into the directory.
func (d *Directory) Add(ctx context.Context, u identity.User) error {
	u.Email = strings.TrimSpace(u.Email)
	if !u.Valid() || u.Email == "" {
		return ErrInvalidUser
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, role) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.Role.String(),
	)
	if isConstraint(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, u.ID)
	}
	return err
}

// Lookup returns the user identified by id.
func (d *Directory) Lookup(ctx context.Context, id string) (*identity.User, error) {
	return d.one(ctx, `SELECT id, email, name, role FROM users WHERE id = ?`, id)
}

// ByEmail returns the user with the given email, compared case-insensitively.
func (d *Directory) ByEmail(ctx context.Context, email string) (*identity.User, error) {
	return d.one(ctx, `SELECT id, email, name, role FROM users WHERE email = ?`, strings.TrimSpace(email))
}

func (d *Directory) one(ctx context.Context, query string, arg string) (*identity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u, err := scan(d.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// List returns every user ordered by identifier.
func (d *Directory) List(ctx context.Context) ([]*identity.User, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT id, email, name, role FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*identity.User
	for rows.Next() {
		u, serr := scan(rows)
		if serr != nil {
			return nil, serr
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetRole changes the role of the user identified by id.
func (d *Directory) SetRole(ctx context.Context, id string, role identity.Role) error {
	if !role.Assignable() {
		return ErrInvalidUser
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, role.String(), id)
	return affected(res, err)
}

// Remove deletes the user identified by id.
func (d *Directory) Remove(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	switch {
	case err != nil:
		return err
	case n == 0:
		return ErrNotFound
	default:
		return nil
	}
}

type scanner interface {
	Scan(...any) error
}

func scan(row scanner) (*identity.User, error) {
	var (
		u    identity.User
		role string
	)

	if err := row.Scan(&u.ID, &u.Email, &u.Name, &role); err != nil {
		return nil, err
	}

	parsed, err := identity.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("directory: user %s: %w", u.ID, err)
	}
	u.Role = parsed

	return &u, nil
}

func isConstraint(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationRe = regexp.MustCompile(`^([0-9]{4})_(.+)\.up\.sql$`)

// migrate applies every embedded up migration not yet recorded in
// schema_migrations, in version order.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
	)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err = rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	files := make(map[int]string)
	for _, entry := range entries {
		m := migrationRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		var version int
		if _, err = fmt.Sscanf(m[1], "%04d", &version); err != nil {
			continue
		}
		files[version] = "migrations/" + entry.Name()
	}

	versions := make([]int, 0, len(files))
	for v := range files {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, v := range versions {
		if applied[v] {
			continue
		}

		text, rerr := migrationsFS.ReadFile(files[v])
		if rerr != nil {
			return rerr
		}

		tx, terr := db.Begin()
		if terr != nil {
			return terr
		}
		if _, err = tx.Exec(string(text)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("directory: migration %04d failed: %w", v, err)
		}
		if _, err = tx.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err = tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}
