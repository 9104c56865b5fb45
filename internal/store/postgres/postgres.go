package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vovakirdan/roomrelay/internal/store"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// PostgresStore implements store.Store for PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and applies the embedded schema.
// maxConns <= 0 keeps the pgxpool default.
func New(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases all pool connections.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateRoom inserts a room with the given code.
func (s *PostgresStore) CreateRoom(ctx context.Context, code string) (*store.Room, error) {
	query := `
		INSERT INTO rooms (code)
		VALUES ($1)
		RETURNING id, code, created_at
	`
	var room store.Room
	err := s.pool.QueryRow(ctx, query, code).Scan(&room.ID, &room.Code, &room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrCodeTaken
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}

	return &room, nil
}

// GetRoomByCode retrieves a room by code.
func (s *PostgresStore) GetRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	query := `
		SELECT id, code, created_at
		FROM rooms
		WHERE code = $1
		LIMIT 1
	`
	var room store.Room
	err := s.pool.QueryRow(ctx, query, code).Scan(&room.ID, &room.Code, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	return &room, nil
}

// SaveMessage persists a message; id and created_at come from the database.
func (s *PostgresStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	query := `
		INSERT INTO room_messages (room_id, sender, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := s.pool.QueryRow(ctx, query, msg.RoomID, msg.Sender, msg.Content).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages retrieves messages from a room, newest first.
func (s *PostgresStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	query := `
		SELECT id, room_id, sender, content, created_at
		FROM room_messages
		WHERE room_id = $1 AND ($2::BIGINT IS NULL OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, roomID, beforeID, limit)
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
