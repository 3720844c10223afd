package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"turnstream/internal/domain"
	llmModels "turnstream/internal/domain/models/llm"
	llmRepo "turnstream/internal/domain/repositories/llm"
	"turnstream/internal/repository/postgres"
)

// PostgresMessageRepository implements the MessageRepository interface using PostgreSQL.
// History order is the insertion order (the seq column), not created_at.
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *postgres.RepositoryConfig) llmRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// ListMessagesByChat returns the chat history oldest first
func (r *PostgresMessageRepository) ListMessagesByChat(ctx context.Context, chatID string) ([]llmModels.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, role, parts, metadata, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY seq ASC
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []llmModels.Message{}
	for rows.Next() {
		var (
			msg          llmModels.Message
			partsJSON    []byte
			metadataJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &partsJSON, &metadataJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(partsJSON, &msg.Parts); err != nil {
			return nil, fmt.Errorf("decode parts of message %s: %w", msg.ID, err)
		}
		if len(metadataJSON) > 0 {
			msg.Metadata = &llmModels.MessageMetadata{}
			if err := json.Unmarshal(metadataJSON, msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// AppendMessages inserts messages in slice order with a single statement.
// Existing ids are skipped (ON CONFLICT DO NOTHING).
func (r *PostgresMessageRepository) AppendMessages(ctx context.Context, messages []llmModels.Message) error {
	if len(messages) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, role, parts, metadata, created_at)
		VALUES
	`, r.tables.Messages)

	// 6 parameters per message
	args := make([]interface{}, 0, len(messages)*6)
	for i := range messages {
		msg := &messages[i]
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now()
		}

		partsJSON, err := json.Marshal(msg.Parts)
		if err != nil {
			return fmt.Errorf("encode parts of message %s: %w", msg.ID, err)
		}
		var metadataJSON []byte
		if msg.Metadata != nil {
			if metadataJSON, err = json.Marshal(msg.Metadata); err != nil {
				return fmt.Errorf("encode metadata of message %s: %w", msg.ID, err)
			}
		}

		if i > 0 {
			query += ","
		}
		query += fmt.Sprintf(`
			($%d, $%d, $%d, $%d, $%d, $%d)
		`, i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6)

		args = append(args,
			msg.ID,
			msg.ChatID,
			msg.Role,
			partsJSON,
			metadataJSON, // nil becomes NULL
			msg.CreatedAt,
		)
	}
	query += " ON CONFLICT (id) DO NOTHING"

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, args...)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", messages[0].ChatID, domain.ErrNotFound)
		}
		return fmt.Errorf("append messages: %w", err)
	}

	if skipped := int64(len(messages)) - result.RowsAffected(); skipped > 0 {
		r.logger.Debug("skipped already persisted messages", "chat_id", messages[0].ChatID, "count", skipped)
	}
	return nil
}

// DeleteMessagesByIDs removes messages of a chat by id
func (r *PostgresMessageRepository) DeleteMessagesByIDs(ctx context.Context, chatID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE chat_id = $1 AND id = ANY($2)
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, chatID, ids)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	r.logger.Debug("messages deleted", "chat_id", chatID, "requested", len(ids), "deleted", result.RowsAffected())
	return nil
}

// CreateStreamID records a generation attempt for a chat
func (r *PostgresMessageRepository) CreateStreamID(ctx context.Context, record *llmModels.StreamRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, created_at)
		VALUES ($1, $2, $3)
	`, r.tables.StreamIDs)

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, record.ID, record.ChatID, record.CreatedAt); err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", record.ChatID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("stream '%s' already exists", record.ID),
				ResourceType: "stream",
				ResourceID:   record.ID,
			}
		}
		return fmt.Errorf("create stream id: %w", err)
	}

	return nil
}

// GetLatestStreamID returns the newest stream id recorded for a chat
func (r *PostgresMessageRepository) GetLatestStreamID(ctx context.Context, chatID string) (string, error) {
	query := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE chat_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT 1
	`, r.tables.StreamIDs)

	var id string
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, chatID).Scan(&id); err != nil {
		if postgres.IsPgNoRowsError(err) {
			return "", fmt.Errorf("stream for chat %s: %w", chatID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("get latest stream id: %w", err)
	}

	return id, nil
}
