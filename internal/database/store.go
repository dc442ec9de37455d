// Package database is the sqlx-backed store for the shop tables and
// the engine-owned challenge rows. Runs against sqlite3 in demo mode
// and postgres in shared deployments.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

var ErrNotFound = errors.New("record not found")

// MatchMode selects how content-scan terms combine.
type MatchMode int

const (
	// MatchAny counts rows containing at least one term.
	MatchAny MatchMode = iota
	// MatchAll counts rows containing every term.
	MatchAll
)

type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	log = log.WithComponent("database")

	start := time.Now()
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{db: db, log: log}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.LogDuration(context.Background(), "database.NewStore", start,
		"driver", cfg.Driver,
	)
	return store, nil
}

// DB exposes the underlying handle for seeding.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if s.db.DriverName() == "sqlite3" {
		if _, err := s.db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS challenges (
		key TEXT PRIMARY KEY,
		solved BOOLEAN NOT NULL DEFAULT FALSE,
		solved_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'customer',
		deluxe BOOLEAN NOT NULL DEFAULT FALSE,
		last_login_ip TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price REAL NOT NULL DEFAULT 0,
		image TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS baskets (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS basket_items (
		id INTEGER PRIMARY KEY,
		basket_id INTEGER NOT NULL REFERENCES baskets(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		comment TEXT NOT NULL,
		rating INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS complaints (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		message TEXT NOT NULL,
		file TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL REFERENCES products(id),
		author TEXT NOT NULL,
		message TEXT NOT NULL,
		liked_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wallets (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		balance REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS cards (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		full_name TEXT NOT NULL,
		card_num INTEGER NOT NULL,
		exp_month INTEGER NOT NULL,
		exp_year INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price REAL NOT NULL,
		deluxe_price REAL NOT NULL,
		eta INTEGER NOT NULL,
		icon TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS recycles (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		quantity INTEGER NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		pickup BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(product_id);
	CREATE INDEX IF NOT EXISTS idx_basket_items_basket ON basket_items(basket_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// --- challenge rows ---

// EnsureChallengeRow creates the durable row for a catalog key if it
// does not exist yet.
func (s *Store) EnsureChallengeRow(ctx context.Context, key string) error {
	query := s.db.Rebind(`INSERT INTO challenges (key, solved) VALUES (?, FALSE) ON CONFLICT (key) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to ensure challenge row %s: %w", key, err)
	}
	return nil
}

// MarkSolved records the solve transition. Implements
// challenge.SolvedStore.
func (s *Store) MarkSolved(ctx context.Context, key string, solvedAt time.Time) error {
	query := s.db.Rebind(`UPDATE challenges SET solved = TRUE, solved_at = ? WHERE key = ? AND solved = FALSE`)
	res, err := s.db.ExecContext(ctx, query, solvedAt, key)
	if err != nil {
		return fmt.Errorf("failed to mark challenge %s solved: %w", key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Row already solved (e.g. concurrent instance) or missing.
		// Either way the transition is durable, so not an error.
		s.log.Debugw("Solve transition already persisted", "challenge", key)
	}
	return nil
}

// LoadSolved returns the persisted solved timestamps keyed by challenge
// key, used to restore registry state after a restart.
func (s *Store) LoadSolved(ctx context.Context) (map[string]time.Time, error) {
	var rows []ChallengeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, solved, solved_at FROM challenges WHERE solved = TRUE`); err != nil {
		return nil, fmt.Errorf("failed to load solved challenges: %w", err)
	}

	solved := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if row.SolvedAt != nil {
			solved[row.Key] = *row.SolvedAt
		} else {
			solved[row.Key] = time.Now().UTC()
		}
	}
	return solved, nil
}

// --- content scanning ---

// CountTextMatching counts rows in the given free-text table whose text
// column contains the terms, combined per mode. Matching is
// case-insensitive substring containment, the same predicate the
// content-scan detectors are specified against.
func (s *Store) CountTextMatching(ctx context.Context, entity string, mode MatchMode, terms []string) (int, error) {
	if len(terms) == 0 {
		return 0, nil
	}

	var table, column string
	switch entity {
	case "feedback":
		table, column = "feedback", "comment"
	case "complaint":
		table, column = "complaints", "message"
	default:
		return 0, fmt.Errorf("unsupported content-scan entity: %s", entity)
	}

	conds := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms))
	for _, term := range terms {
		conds = append(conds, fmt.Sprintf("lower(%s) LIKE ?", column))
		args = append(args, "%"+strings.ToLower(term)+"%")
	}

	sep := " OR "
	if mode == MatchAll {
		sep = " AND "
	}

	query := s.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, strings.Join(conds, sep)))

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("content scan on %s failed: %w", table, err)
	}
	return count, nil
}

// --- products ---

// GetProduct always reads the row fresh from the store. The
// state-correlation detector relies on this: an out-of-band edit must
// be visible immediately.
func (s *Store) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	query := s.db.Rebind(`SELECT id, name, description, price, image FROM products WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*Product, error) {
	var p Product
	query := s.db.Rebind(`SELECT id, name, description, price, image FROM products WHERE name = ?`)
	if err := s.db.GetContext(ctx, &p, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product %q: %w", name, err)
	}
	return &p, nil
}

func (s *Store) UpdateProductDescription(ctx context.Context, id int64, description string) error {
	query := s.db.Rebind(`UPDATE products SET description = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, description, id); err != nil {
		return fmt.Errorf("failed to update product %d: %w", id, err)
	}
	return nil
}

// --- reviews ---

func (s *Store) ListProductReviews(ctx context.Context, productID int64) ([]Review, error) {
	reviews := []Review{}
	query := s.db.Rebind(`SELECT id, product_id, author, message, liked_by, created_at FROM reviews WHERE product_id = ? ORDER BY created_at`)
	if err := s.db.SelectContext(ctx, &reviews, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list reviews for product %d: %w", productID, err)
	}
	return reviews, nil
}

// --- users ---

func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	query := s.db.Rebind(`SELECT id, email, password, username, role, deluxe, last_login_ip, created_at FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	query := s.db.Rebind(`SELECT id, email, password, username, role, deluxe, last_login_ip, created_at FROM users WHERE email = ?`)
	if err := s.db.GetContext(ctx, &u, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %q: %w", email, err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	u.CreatedAt = time.Now().UTC()
	query := s.db.Rebind(`INSERT INTO users (email, password, username, role, deluxe, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	res, err := s.db.ExecContext(ctx, query, u.Email, u.Password, u.Username, u.Role, u.Deluxe, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user %q: %w", u.Email, err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		u.ID = id
	} else {
		// Drivers without LastInsertId support (postgres).
		created, err := s.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("failed to read back user %q: %w", u.Email, err)
		}
		u.ID = created.ID
	}

	// Every account gets a basket and an empty wallet, mirroring the
	// fixtures.
	basket := s.db.Rebind(`INSERT INTO baskets (id, user_id) VALUES (?, ?)`)
	if _, err := s.db.ExecContext(ctx, basket, u.ID, u.ID); err != nil {
		return fmt.Errorf("failed to create basket for user %d: %w", u.ID, err)
	}
	wallet := s.db.Rebind(`INSERT INTO wallets (user_id, balance) VALUES (?, 0)`)
	if _, err := s.db.ExecContext(ctx, wallet, u.ID); err != nil {
		return fmt.Errorf("failed to create wallet for user %d: %w", u.ID, err)
	}
	return nil
}

func (s *Store) UpdateUsername(ctx context.Context, id int64, username string) error {
	query := s.db.Rebind(`UPDATE users SET username = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, username, id); err != nil {
		return fmt.Errorf("failed to update username for user %d: %w", id, err)
	}
	return nil
}

func (s *Store) UpdateLastLoginIP(ctx context.Context, id int64, ip string) error {
	query := s.db.Rebind(`UPDATE users SET last_login_ip = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, query, ip, id); err != nil {
		return fmt.Errorf("failed to update login ip for user %d: %w", id, err)
	}
	return nil
}

// --- baskets ---

func (s *Store) GetBasket(ctx context.Context, id int64) (*Basket, error) {
	var b Basket
	query := s.db.Rebind(`SELECT id, user_id FROM baskets WHERE id = ?`)
	if err := s.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get basket %d: %w", id, err)
	}

	items := []BasketItem{}
	itemQuery := s.db.Rebind(`
		SELECT bi.id, bi.basket_id, bi.product_id, p.name, bi.quantity
		FROM basket_items bi
		JOIN products p ON p.id = bi.product_id
		WHERE bi.basket_id = ?`)
	if err := s.db.SelectContext(ctx, &items, itemQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get basket items for %d: %w", id, err)
	}
	b.Items = items
	return &b, nil
}

// --- feedback and complaints ---

func (s *Store) CreateFeedback(ctx context.Context, f *Feedback) error {
	f.CreatedAt = time.Now().UTC()
	query := s.db.Rebind(`INSERT INTO feedback (id, user_id, comment, rating, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, f.ID, f.UserID, f.Comment, f.Rating, f.CreatedAt); err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

func (s *Store) DeleteFeedback(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM feedback WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete feedback %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountFeedbackWithRating counts stored feedback entries carrying the
// given rating.
func (s *Store) CountFeedbackWithRating(ctx context.Context, rating int) (int, error) {
	var count int
	query := s.db.Rebind(`SELECT COUNT(*) FROM feedback WHERE rating = ?`)
	if err := s.db.GetContext(ctx, &count, query, rating); err != nil {
		return 0, fmt.Errorf("failed to count feedback with rating %d: %w", rating, err)
	}
	return count, nil
}

func (s *Store) CreateComplaint(ctx context.Context, c *Complaint) error {
	c.CreatedAt = time.Now().UTC()
	query := s.db.Rebind(`INSERT INTO complaints (id, user_id, message, file, created_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, c.ID, c.UserID, c.Message, c.File, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to create complaint: %w", err)
	}
	return nil
}

// --- wallets and cards ---

func (s *Store) GetWalletBalance(ctx context.Context, userID int64) (float64, error) {
	var balance float64
	query := s.db.Rebind(`SELECT balance FROM wallets WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &balance, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get wallet for user %d: %w", userID, err)
	}
	return balance, nil
}

func (s *Store) AddWalletBalance(ctx context.Context, userID int64, amount float64) (float64, error) {
	query := s.db.Rebind(`UPDATE wallets SET balance = balance + ? WHERE user_id = ?`)
	res, err := s.db.ExecContext(ctx, query, amount, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to add wallet balance for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}
	return s.GetWalletBalance(ctx, userID)
}

func (s *Store) GetCard(ctx context.Context, id, userID int64) (*Card, error) {
	var c Card
	query := s.db.Rebind(`SELECT id, user_id, full_name, card_num, exp_month, exp_year FROM cards WHERE id = ? AND user_id = ?`)
	if err := s.db.GetContext(ctx, &c, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card %d: %w", id, err)
	}
	return &c, nil
}

// --- deliveries and recycling ---

func (s *Store) ListDeliveryMethods(ctx context.Context) ([]DeliveryMethod, error) {
	methods := []DeliveryMethod{}
	if err := s.db.SelectContext(ctx, &methods, `SELECT id, name, price, deluxe_price, eta, icon FROM deliveries ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list delivery methods: %w", err)
	}
	return methods, nil
}

func (s *Store) GetDeliveryMethod(ctx context.Context, id int64) (*DeliveryMethod, error) {
	var m DeliveryMethod
	query := s.db.Rebind(`SELECT id, name, price, deluxe_price, eta, icon FROM deliveries WHERE id = ?`)
	if err := s.db.GetContext(ctx, &m, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get delivery method %d: %w", id, err)
	}
	return &m, nil
}

func (s *Store) GetRecycleItem(ctx context.Context, id int64) (*RecycleItem, error) {
	var item RecycleItem
	query := s.db.Rebind(`SELECT id, user_id, quantity, address, pickup FROM recycles WHERE id = ?`)
	if err := s.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recycle item %d: %w", id, err)
	}
	return &item, nil
}
