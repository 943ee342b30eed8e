package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS tracked_wallets (
	address  TEXT PRIMARY KEY COLLATE NOCASE,
	added_by TEXT NOT NULL,
	added_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS push_subscriptions (
	user_id    TEXT PRIMARY KEY,
	push_key   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS push_sequential_sells_subscriptions (
	user_id    TEXT PRIMARY KEY,
	push_key   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_subscribers (
	user_id    TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
`

// TrackedWallet is a curated wallet address watched by the pipeline.
type TrackedWallet struct {
	Address string `db:"address" json:"address"`
	AddedBy string `db:"added_by" json:"added_by"`
	AddedAt int64  `db:"added_at" json:"added_at"`
}

// PushSubscription is a user's registered push credential in one class.
type PushSubscription struct {
	UserID    string `db:"user_id" json:"user_id"`
	PushKey   string `db:"push_key" json:"-"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// Registry owns the persistent record store for tracked wallets and
// notification subscriptions. Reads dominate; mutations come from the bot
// command surface.
type Registry struct {
	logger *zap.Logger
	db     *sqlx.DB
	now    func() time.Time
}

// OpenRegistry opens (and if needed creates) the sqlite-backed registry at
// path. WAL keeps concurrent readers off the writer's back.
func OpenRegistry(logger *zap.Logger, path string) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	// sqlite tolerates exactly one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(registrySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	return &Registry{
		logger: logger,
		db:     db,
		now:    time.Now,
	}, nil
}

// AddWallet inserts a wallet into the tracked set. Returns false when the
// address (case-insensitively) was already present.
func (r *Registry) AddWallet(address, addedBy string) (bool, error) {
	res, err := r.db.Exec(
		`INSERT OR IGNORE INTO tracked_wallets (address, added_by, added_at) VALUES (?, ?, ?)`,
		address, addedBy, r.now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("add wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add wallet: %w", err)
	}
	return n > 0, nil
}

// RemoveWallet deletes a wallet from the tracked set. Returns false when it
// was not tracked.
func (r *Registry) RemoveWallet(address string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM tracked_wallets WHERE address = ?`, address)
	if err != nil {
		return false, fmt.Errorf("remove wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove wallet: %w", err)
	}
	return n > 0, nil
}

// IsWalletTracked reports whether address is in the tracked set. An empty set
// means open tracking: every wallet matches, with a warning so the operator
// notices the fallback.
func (r *Registry) IsWalletTracked(address string) (bool, error) {
	count, err := r.WalletCount()
	if err != nil {
		return false, err
	}
	if count == 0 {
		r.logger.Warn("tracked wallet set is empty, open-tracking fallback active")
		return true, nil
	}

	var n int
	err = r.db.Get(&n, `SELECT COUNT(*) FROM tracked_wallets WHERE address = ?`, address)
	if err != nil {
		return false, fmt.Errorf("lookup wallet: %w", err)
	}
	return n > 0, nil
}

// ListWallets returns a page of tracked wallets ordered by insertion time.
func (r *Registry) ListWallets(skip, limit int) ([]TrackedWallet, error) {
	if limit <= 0 {
		limit = 50
	}
	var wallets []TrackedWallet
	err := r.db.Select(&wallets,
		`SELECT address, added_by, added_at FROM tracked_wallets ORDER BY added_at, address LIMIT ? OFFSET ?`,
		limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	return wallets, nil
}

// WalletCount returns the size of the tracked set.
func (r *Registry) WalletCount() (int, error) {
	var n int
	if err := r.db.Get(&n, `SELECT COUNT(*) FROM tracked_wallets`); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return n, nil
}

// SubscribeGeneral registers (or replaces) a user's general push credential.
func (r *Registry) SubscribeGeneral(userID, pushKey string) error {
	return r.subscribe("push_subscriptions", userID, pushKey)
}

// UnsubscribeGeneral removes a user's general push subscription.
func (r *Registry) UnsubscribeGeneral(userID string) (bool, error) {
	return r.unsubscribe("push_subscriptions", userID)
}

// SubscribersGeneral returns every general push subscriber.
func (r *Registry) SubscribersGeneral() ([]PushSubscription, error) {
	return r.subscribers("push_subscriptions")
}

// SubscribeSequentialSells registers a user's sequential-sells push credential.
func (r *Registry) SubscribeSequentialSells(userID, pushKey string) error {
	return r.subscribe("push_sequential_sells_subscriptions", userID, pushKey)
}

// UnsubscribeSequentialSells removes a user's sequential-sells subscription.
func (r *Registry) UnsubscribeSequentialSells(userID string) (bool, error) {
	return r.unsubscribe("push_sequential_sells_subscriptions", userID)
}

// SubscribersSequentialSells returns every sequential-sells push subscriber.
func (r *Registry) SubscribersSequentialSells() ([]PushSubscription, error) {
	return r.subscribers("push_sequential_sells_subscriptions")
}

func (r *Registry) subscribe(table, userID, pushKey string) error {
	_, err := r.db.Exec(
		`INSERT INTO `+table+` (user_id, push_key, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET push_key = excluded.push_key`,
		userID, pushKey, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", table, err)
	}
	return nil
}

func (r *Registry) unsubscribe(table, userID string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM `+table+` WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unsubscribe %s: %w", table, err)
	}
	return n > 0, nil
}

func (r *Registry) subscribers(table string) ([]PushSubscription, error) {
	var subs []PushSubscription
	err := r.db.Select(&subs, `SELECT user_id, push_key, created_at FROM `+table+` ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return subs, nil
}

// SubscribeChat opts a user into periodic summary DMs.
func (r *Registry) SubscribeChat(userID string) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO chat_subscribers (user_id, created_at) VALUES (?, ?)`,
		userID, r.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("subscribe chat: %w", err)
	}
	return nil
}

// UnsubscribeChat opts a user out of periodic summary DMs.
func (r *Registry) UnsubscribeChat(userID string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM chat_subscribers WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("unsubscribe chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unsubscribe chat: %w", err)
	}
	return n > 0, nil
}

// ChatSubscribers returns the user ids opted into periodic summaries.
func (r *Registry) ChatSubscribers() ([]string, error) {
	var ids []string
	err := r.db.Select(&ids, `SELECT user_id FROM chat_subscribers ORDER BY created_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("list chat subscribers: %w", err)
	}
	return ids, nil
}

// SubscriberCount returns the total number of push subscriptions across both
// classes.
func (r *Registry) SubscriberCount() (int, error) {
	var n int
	err := r.db.Get(&n, `
		SELECT (SELECT COUNT(*) FROM push_subscriptions)
		     + (SELECT COUNT(*) FROM push_sequential_sells_subscriptions)`)
	if err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}
