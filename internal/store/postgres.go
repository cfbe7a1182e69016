package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore is the durable ConversationStore backend. Rows older than the
// retention TTL are pruned opportunistically on append.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
}

// NewPostgresStore opens a PostgreSQL connection and runs migrations. A zero
// retention disables pruning.
func NewPostgresStore(connStr string, retention time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &PostgresStore{db: db, retention: retention}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agent_messages (
			id UUID PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq BIGSERIAL,
			role VARCHAR(20) NOT NULL,
			content TEXT NOT NULL,
			action_calls JSONB,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_messages_conversation ON agent_messages(conversation_id, seq)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, action_calls
		 FROM agent_messages
		 WHERE conversation_id = $1
		 ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var rawCalls []byte
		if err := rows.Scan(&msg.Role, &msg.Content, &rawCalls); err != nil {
			return nil, err
		}
		if len(rawCalls) > 0 {
			if err := json.Unmarshal(rawCalls, &msg.ActionCalls); err != nil {
				return nil, fmt.Errorf("failed to decode action calls: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range msgs {
		var rawCalls interface{}
		if len(msg.ActionCalls) > 0 {
			encoded, err := json.Marshal(msg.ActionCalls)
			if err != nil {
				return fmt.Errorf("failed to encode action calls: %w", err)
			}
			rawCalls = string(encoded)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agent_messages (id, conversation_id, role, content, action_calls)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), id, msg.Role, msg.Content, rawCalls,
		); err != nil {
			return err
		}
	}

	if s.retention > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM agent_messages WHERE created_at < NOW() - $1::interval`,
			fmt.Sprintf("%d seconds", int(s.retention.Seconds())),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresStore) Truncate(ctx context.Context, id string, keep int) error {
	if keep < 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_messages
		 WHERE conversation_id = $1
		   AND seq NOT IN (
			SELECT seq FROM agent_messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		 )`,
		id, keep,
	)
	return err
}
