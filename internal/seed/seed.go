// Package seed loads the static challenge catalog into the registry and
// populates the demo shop records. The engine joins seeded records to
// detectors purely by stable string keys; it works against any
// pre-populated store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/challenge"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

//go:embed challenges.yaml
var challengesYAML []byte

// Fixture constants joined to detector parameters by the serve wiring.
const (
	TamperProductName = "OWASP SSL Advanced Forensic Tool (O-Saft)"
	TamperOriginalURL = "https://www.owasp.org/index.php/O-Saft"
	BlueprintFile     = "/hoverboard-blueprint.stl"
)

// PastebinKeywords must all appear in one stored comment to solve the
// leaked-product challenge.
var PastebinKeywords = []string{"hueteroneel", "eurogium edule"}

// LoadChallenges parses the embedded catalog and registers every entry.
// A malformed entry is logged and skipped; an unreadable catalog is
// fatal. Persisted solved state is restored afterwards so solves
// survive restarts.
func LoadChallenges(ctx context.Context, registry *challenge.Registry, store *database.Store, cfg config.ChallengesConfig, log *logger.Logger) error {
	log = log.WithComponent("seed")

	var defs []challenge.Definition
	if err := yaml.Unmarshal(challengesYAML, &defs); err != nil {
		return fmt.Errorf("failed to parse challenge catalog: %w", err)
	}

	for _, def := range defs {
		if cfg.SafetyOverride {
			def.DisabledEnv = ""
		}
		if !cfg.ShowHints {
			def.Hint = ""
			def.HintURL = ""
		}
		if !cfg.ShowMitigations {
			def.MitigationURL = ""
		}

		if _, err := registry.Register(def); err != nil {
			log.Errorw("Skipping malformed challenge definition",
				"key", def.Key,
				"error", err,
			)
			continue
		}
		if err := store.EnsureChallengeRow(ctx, def.Key); err != nil {
			log.Errorw("Failed to create challenge row",
				"key", def.Key,
				"error", err,
			)
		}
	}

	solved, err := store.LoadSolved(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore solved state: %w", err)
	}
	for key, solvedAt := range solved {
		if err := registry.RestoreSolved(key, solvedAt); err != nil {
			log.Warnw("Persisted solve for unknown challenge", "key", key)
		}
	}

	log.Infow("Challenge catalog loaded",
		"registered", len(registry.List()),
		"restored_solved", len(solved),
	)
	return nil
}

// LoadFixtures populates demo users, products, deliveries and reviews.
// Idempotent: an already-populated store is left alone.
func LoadFixtures(ctx context.Context, store *database.Store, log *logger.Logger) error {
	log = log.WithComponent("seed")
	db := store.DB()

	var userCount int
	if err := db.GetContext(ctx, &userCount, `SELECT COUNT(*) FROM users`); err != nil {
		return fmt.Errorf("failed to inspect users table: %w", err)
	}
	if userCount > 0 {
		log.Debugw("Store already populated, skipping fixtures")
		return nil
	}

	now := time.Now().UTC()

	users := []struct {
		id       int64
		email    string
		role     string
		deluxe   bool
		username string
	}{
		{1, "admin@crooked-cart.test", "admin", false, "admin"},
		{2, "jim@crooked-cart.test", "customer", false, "jim"},
		{3, "bender@crooked-cart.test", "customer", true, "bender"},
	}
	insertUser := db.Rebind(`INSERT INTO users (id, email, password, username, role, deluxe, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, u := range users {
		if _, err := db.ExecContext(ctx, insertUser, u.id, u.email, uuid.NewString(), u.username, u.role, u.deluxe, now); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", u.email, err)
		}
	}

	products := []struct {
		id          int64
		name        string
		description string
		price       float64
	}{
		{1, "Apple Juice (1000ml)", "The all-time classic.", 1.99},
		{2, "Banana Juice (1000ml)", "Monkeys love it the most.", 1.99},
		{3, TamperProductName, fmt.Sprintf(`O-Saft is an easy to use tool to show information about SSL certificates. <a href="%s" target="_blank">More...</a>`, TamperOriginalURL), 0.01},
		{4, "Hoverboard", "The exclusive board nobody can buy yet. Blueprint strictly confidential.", 9999.99},
	}
	insertProduct := db.Rebind(`INSERT INTO products (id, name, description, price) VALUES (?, ?, ?, ?)`)
	for _, p := range products {
		if _, err := db.ExecContext(ctx, insertProduct, p.id, p.name, p.description, p.price); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", p.name, err)
		}
	}

	insertBasket := db.Rebind(`INSERT INTO baskets (id, user_id) VALUES (?, ?)`)
	for _, u := range users {
		if _, err := db.ExecContext(ctx, insertBasket, u.id, u.id); err != nil {
			return fmt.Errorf("failed to seed basket for user %d: %w", u.id, err)
		}
	}
	insertItem := db.Rebind(`INSERT INTO basket_items (basket_id, product_id, quantity) VALUES (?, ?, ?)`)
	if _, err := db.ExecContext(ctx, insertItem, 2, 1, 2); err != nil {
		return fmt.Errorf("failed to seed basket items: %w", err)
	}

	insertWallet := db.Rebind(`INSERT INTO wallets (user_id, balance) VALUES (?, ?)`)
	for _, u := range users {
		if _, err := db.ExecContext(ctx, insertWallet, u.id, 100.0); err != nil {
			return fmt.Errorf("failed to seed wallet for user %d: %w", u.id, err)
		}
	}

	insertCard := db.Rebind(`INSERT INTO cards (user_id, full_name, card_num, exp_month, exp_year) VALUES (?, ?, ?, ?, ?)`)
	if _, err := db.ExecContext(ctx, insertCard, 2, "Jim Knopf", 4111111111111111, 12, 2099); err != nil {
		return fmt.Errorf("failed to seed card: %w", err)
	}

	deliveries := []struct {
		name        string
		price       float64
		deluxePrice float64
		eta         int
	}{
		{"One Day Delivery", 0.99, 0.5, 1},
		{"Fast Delivery", 0.5, 0, 3},
		{"Standard Delivery", 0, 0, 5},
	}
	insertDelivery := db.Rebind(`INSERT INTO deliveries (name, price, deluxe_price, eta, icon) VALUES (?, ?, ?, ?, ?)`)
	for _, d := range deliveries {
		if _, err := db.ExecContext(ctx, insertDelivery, d.name, d.price, d.deluxePrice, d.eta, "truck"); err != nil {
			return fmt.Errorf("failed to seed delivery method %s: %w", d.name, err)
		}
	}

	insertFeedback := db.Rebind(`INSERT INTO feedback (id, user_id, comment, rating, created_at) VALUES (?, ?, ?, ?, ?)`)
	feedbackEntries := []struct {
		userID  int64
		comment string
		rating  int
	}{
		{1, "This shop is really run competently!", 5},
		{2, "Great selection of drinks, could be cheaper though.", 4},
	}
	for _, f := range feedbackEntries {
		if _, err := db.ExecContext(ctx, insertFeedback, uuid.NewString(), f.userID, f.comment, f.rating, now); err != nil {
			return fmt.Errorf("failed to seed feedback: %w", err)
		}
	}

	insertRecycle := db.Rebind(`INSERT INTO recycles (user_id, quantity, address, pickup) VALUES (?, ?, ?, ?)`)
	if _, err := db.ExecContext(ctx, insertRecycle, 2, 800, "Morty's House", true); err != nil {
		return fmt.Errorf("failed to seed recycle item: %w", err)
	}

	insertReview := db.Rebind(`INSERT INTO reviews (product_id, author, message, liked_by, created_at) VALUES (?, ?, ?, ?, ?)`)
	reviews := []struct {
		productID int64
		author    string
		message   string
	}{
		{1, "jim@crooked-cart.test", "One of my favorites!"},
		{2, "bender@crooked-cart.test", "Fry liked it too."},
	}
	for _, r := range reviews {
		if _, err := db.ExecContext(ctx, insertReview, r.productID, r.author, r.message, "", now); err != nil {
			return fmt.Errorf("failed to seed review: %w", err)
		}
	}

	log.Infow("Demo fixtures seeded",
		"users", len(users),
		"products", len(products),
	)
	return nil
}
