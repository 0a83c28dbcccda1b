// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/channel/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/2389/groupchat-gateway/internal/channel"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path. The schema is
// automatically created if it doesn't exist. Parent directories are created
// if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.createSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

var schemaCoreSQL = `
CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, username TEXT NOT NULL UNIQUE, created_at TEXT NOT NULL);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE TABLE IF NOT EXISTS channels (id TEXT PRIMARY KEY, name TEXT NOT NULL, version INTEGER NOT NULL DEFAULT 0, updated_at TEXT NOT NULL);
CREATE INDEX IF NOT EXISTS idx_channels_updated ON channels(updated_at);
CREATE TABLE IF NOT EXISTS channel_members (channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE, user_id TEXT NOT NULL REFERENCES users(id), username TEXT NOT NULL, PRIMARY KEY (channel_id, user_id));
CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id);
CREATE TABLE IF NOT EXISTS channel_invited (channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE, user_id TEXT NOT NULL REFERENCES users(id), username TEXT NOT NULL, PRIMARY KEY (channel_id, user_id));
CREATE INDEX IF NOT EXISTS idx_channel_invited_user ON channel_invited(user_id);
CREATE TABLE IF NOT EXISTS channel_messages (id TEXT PRIMARY KEY, channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE, from_user_id TEXT, from_username TEXT, kind TEXT NOT NULL, payload TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL);
CREATE INDEX IF NOT EXISTS idx_channel_messages_channel_created ON channel_messages(channel_id, created_at);
`

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(schemaCoreSQL)
	return err
}

// isConstraintViolation checks if the error is a SQLite constraint violation
// of any kind (UNIQUE included).
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateUser persists a new user. Returns ErrDuplicateUsername if the
// username is already taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user channel.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)`,
		user.ID.String(), user.Username, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	s.logger.Debug("created user", "id", user.ID, "username", user.Username)
	return nil
}

// GetUser returns ErrNotFound if no user exists with this id.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*channel.User, error) {
	var u channel.User
	var idStr string
	err := s.db.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = ?`, id.String()).
		Scan(&idStr, &u.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}
	return &u, nil
}

// FindChannelByID returns ErrNotFound if no channel exists with this id.
func (s *SQLiteStore) FindChannelByID(ctx context.Context, id uuid.UUID) (*channel.Channel, error) {
	ch := &channel.Channel{ID: id}
	var updatedAtStr string
	err := s.db.QueryRowContext(ctx, `SELECT name, version, updated_at FROM channels WHERE id = ?`, id.String()).
		Scan(&ch.Name, &ch.Version, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	ch.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing channel updated_at: %w", err)
	}

	if ch.Members, err = s.loadMembership(ctx, "channel_members", id); err != nil {
		return nil, err
	}
	if ch.Invited, err = s.loadMembership(ctx, "channel_invited", id); err != nil {
		return nil, err
	}
	if ch.Messages, err = s.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	if len(ch.Messages) > 0 {
		ch.LastMessage = &ch.Messages[len(ch.Messages)-1]
	}

	return ch, nil
}

func (s *SQLiteStore) loadMembership(ctx context.Context, table string, channelID uuid.UUID) (map[uuid.UUID]channel.User, error) {
	// table is always one of two package-internal constants, never caller input.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT user_id, username FROM %s WHERE channel_id = ?`, table), channelID.String())
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	out := map[uuid.UUID]channel.User{}
	for rows.Next() {
		var idStr, username string
		if err := rows.Scan(&idStr, &username); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing %s user id: %w", table, err)
		}
		out[id] = channel.User{ID: id, Username: username}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, channelID uuid.UUID) ([]channel.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, from_user_id, from_username, kind, payload, created_at FROM channel_messages WHERE channel_id = ? ORDER BY created_at ASC, id ASC`,
		channelID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []channel.Message
	for rows.Next() {
		var idStr, kindStr, payload, createdAtStr string
		var fromID, fromUsername sql.NullString
		if err := rows.Scan(&idStr, &fromID, &fromUsername, &kindStr, &payload, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message id: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		msg := channel.Message{
			ID:        id,
			ChannelID: channelID,
			Kind:      channel.MessageKind(kindStr),
			Payload:   payload,
			CreatedAt: createdAt,
		}
		if fromID.Valid {
			fid, err := uuid.Parse(fromID.String)
			if err != nil {
				return nil, fmt.Errorf("parsing message from_user_id: %w", err)
			}
			msg.FromUser = &channel.User{ID: fid, Username: fromUsername.String}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Save persists the channel aggregate atomically: membership sets are
// replaced wholesale and any messages not yet on record are inserted, gated
// by an optimistic version check on the channels row itself. Callers always
// load via FindChannelByID, mutate through the membership engine (which
// increments Version by exactly one per transition), then Save — so the
// version on record is expected to be ch.Version-1 for an existing channel.
func (s *SQLiteStore) Save(ctx context.Context, ch *channel.Channel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	exists, onRecordVersion, err := s.channelVersion(ctx, tx, ch.ID)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if !exists {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channels (id, name, version, updated_at) VALUES (?, ?, ?, ?)`,
			ch.ID.String(), ch.Name, ch.Version, now,
		); err != nil {
			return fmt.Errorf("inserting channel: %w", err)
		}
	} else {
		wantBase := ch.Version - 1
		result, err := tx.ExecContext(ctx,
			`UPDATE channels SET name = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
			ch.Name, ch.Version, now, ch.ID.String(), wantBase,
		)
		if err != nil {
			return fmt.Errorf("updating channel: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if rowsAffected == 0 {
			if onRecordVersion != wantBase {
				return ErrOptimisticConflict
			}
			return ErrNotFound
		}
	}

	if err := replaceMembership(ctx, tx, "channel_members", ch.ID, ch.Members); err != nil {
		return err
	}
	if err := replaceMembership(ctx, tx, "channel_invited", ch.ID, ch.Invited); err != nil {
		return err
	}
	if err := insertNewMessages(ctx, tx, ch); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing save: %w", err)
	}
	s.logger.Debug("saved channel", "id", ch.ID, "version", ch.Version)
	return nil
}

func (s *SQLiteStore) channelVersion(ctx context.Context, tx *sql.Tx, id uuid.UUID) (exists bool, version int64, err error) {
	err = tx.QueryRowContext(ctx, `SELECT version FROM channels WHERE id = ?`, id.String()).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("reading channel version: %w", err)
	}
	return true, version, nil
}

func replaceMembership(ctx context.Context, tx *sql.Tx, table string, channelID uuid.UUID, members map[uuid.UUID]channel.User) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE channel_id = ?`, table), channelID.String()); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	for id, u := range members {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (channel_id, user_id, username) VALUES (?, ?, ?)`, table),
			channelID.String(), id.String(), u.Username,
		); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}
	return nil
}

func insertNewMessages(ctx context.Context, tx *sql.Tx, ch *channel.Channel) error {
	for _, msg := range ch.Messages {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM channel_messages WHERE id = ?`, msg.ID.String()).Scan(&exists)
		if err == nil {
			continue // already persisted from a prior Save
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking existing message: %w", err)
		}

		var fromID, fromUsername sql.NullString
		if msg.FromUser != nil {
			fromID = sql.NullString{String: msg.FromUser.ID.String(), Valid: true}
			fromUsername = sql.NullString{String: msg.FromUser.Username, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channel_messages (id, channel_id, from_user_id, from_username, kind, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID.String(), ch.ID.String(), fromID, fromUsername, string(msg.Kind), msg.Payload,
			msg.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting message: %w", err)
		}
	}
	return nil
}

// FindByMembership returns channels where user is a current member and
// UpdatedAt >= since, ordered by UpdatedAt descending, paged. Channels with
// no members are never returned because channel_members has no row for them.
func (s *SQLiteStore) FindByMembership(ctx context.Context, user uuid.UUID, since time.Time, page PageRequest) (*Slice[*channel.Channel], error) {
	size := page.Size
	if size <= 0 {
		size = 20
	}
	offset := page.Page * size

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id AND m.user_id = ?
		WHERE c.updated_at >= ?
		ORDER BY c.updated_at DESC, c.id DESC
		LIMIT ? OFFSET ?
	`, user.String(), since.UTC().Format(time.RFC3339), size+1, offset)
	if err != nil {
		return nil, fmt.Errorf("querying membership: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning channel id: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing channel id: %w", err)
		}
		ids = append(ids, id)
	}
	rowErr := rows.Err()
	rows.Close()
	if rowErr != nil {
		return nil, fmt.Errorf("iterating membership rows: %w", rowErr)
	}

	hasNext := len(ids) > size
	if hasNext {
		ids = ids[:size]
	}

	items := make([]*channel.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := s.FindChannelByID(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, ch)
	}

	return &Slice[*channel.Channel]{
		CurrentPage: page.Page,
		PageSize:    size,
		HasNext:     hasNext,
		Items:       items,
	}, nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
