package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roomrelay/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the embedded schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// dsn appends the connection parameters to dbPath, keeping any query it has.
func dsn(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath + "&" + dsnParams
	}
	return dbPath + "?" + dsnParams
}

// ApplySchema creates the rooms and room_messages tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== RoomStore implementation ====

// CreateRoom inserts a room with the given code.
func (s *SQLiteStore) CreateRoom(ctx context.Context, code string) (*store.Room, error) {
	query := `
		INSERT INTO rooms (code, created_at)
		VALUES (?, ?)
	`
	createdAt := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, code, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrCodeTaken
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.Room{ID: id, Code: code, CreatedAt: createdAt}, nil
}

// GetRoomByCode retrieves a room by code.
func (s *SQLiteStore) GetRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	query := `
		SELECT id, code, created_at
		FROM rooms
		WHERE code = ?
	`
	var room store.Room
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&room.ID,
		&room.Code,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// ==== MessageStore implementation ====

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO room_messages (room_id, sender, content, created_at)
		VALUES (?, ?, ?, ?)
	`
	createdAt := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, msg.RoomID, msg.Sender, msg.Content, createdAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

// ListMessages retrieves messages from a room, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, room_id, sender, content, created_at
			FROM room_messages
			WHERE room_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{roomID, *beforeID, limit}
	} else {
		query = `
			SELECT id, room_id, sender, content, created_at
			FROM room_messages
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{roomID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, limit)
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.Sender, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
