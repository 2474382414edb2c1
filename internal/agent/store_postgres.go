package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/studyflow/internal/platform/database"
	"github.com/p-n-ai/studyflow/internal/progression"
)

const defaultDBTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed ConversationStore implementation.
type PostgresStore struct {
	pool    *pgxpool.Pool
	tx      *database.Transactor
	timeout time.Duration
}

// NewPostgresStore creates a conversation store on an already migrated pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool, tx: database.NewTransactor(pool), timeout: defaultDBTimeout}, nil
}

// SetTimeout changes the per-call timeout. Non-positive values are ignored.
func (s *PostgresStore) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

func (s *PostgresStore) ActiveConversation(ctx context.Context, userID, topicID string) (Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conv, err := s.active(ctx, userID, topicID)
	if err != nil {
		return Conversation{}, classify("get conversation", err)
	}
	return conv, nil
}

func (s *PostgresStore) StartConversation(ctx context.Context, userID, topicID string) (Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conv, err := s.active(ctx, userID, topicID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, classify("start conversation", err)
	}

	// A concurrent request may open it first; the partial unique index makes
	// that a no-op and the reload below picks up the winner.
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (user_id, topic_id)
		 VALUES ($1, $2::uuid)
		 ON CONFLICT (user_id, topic_id) WHERE ended_at IS NULL DO NOTHING`,
		userID, topicID,
	); err != nil {
		return Conversation{}, classify("start conversation", err)
	}

	conv, err = s.active(ctx, userID, topicID)
	if err != nil {
		return Conversation{}, classify("start conversation", err)
	}
	return conv, nil
}

func (s *PostgresStore) AddMessages(ctx context.Context, conversationID string, msgs ...StoredMessage) error {
	for _, msg := range msgs {
		if err := msg.validate(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, msg := range msgs {
			createdAt := msg.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO conversation_messages (conversation_id, role, content, model, input_tokens, output_tokens, created_at)
				 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)`,
				conversationID,
				msg.Role,
				msg.Content,
				nullIfEmpty(msg.Model),
				nullIfZero(msg.InputTokens),
				nullIfZero(msg.OutputTokens),
				createdAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify("add messages", err)
	}
	return nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, conversationID, summary string, compactedAt int) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE conversations SET summary = $2, compacted_at = $3 WHERE id = $1::uuid`,
		conversationID, summary, compactedAt,
	)
	if err != nil {
		return classify("set summary", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("set summary: conversation %s: %w", conversationID, progression.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) EndConversation(ctx context.Context, userID, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`UPDATE conversations SET ended_at = NOW()
		 WHERE user_id = $1 AND topic_id = $2::uuid AND ended_at IS NULL`,
		userID, topicID,
	); err != nil {
		return classify("end conversation", err)
	}
	return nil
}

func (s *PostgresStore) active(ctx context.Context, userID, topicID string) (Conversation, error) {
	var conv Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, user_id, topic_id::text, summary, compacted_at, started_at
		 FROM conversations
		 WHERE user_id = $1 AND topic_id = $2::uuid AND ended_at IS NULL`,
		userID, topicID,
	).Scan(&conv.ID, &conv.UserID, &conv.TopicID, &conv.Summary, &conv.CompactedAt, &conv.StartedAt)
	if err != nil {
		return Conversation{}, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT role, content, model, input_tokens, output_tokens, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1::uuid
		 ORDER BY id ASC`,
		conv.ID,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = []StoredMessage{}
	for rows.Next() {
		var (
			msg          StoredMessage
			model        *string
			inputTokens  *int
			outputTokens *int
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &model, &inputTokens, &outputTokens, &msg.CreatedAt); err != nil {
			return Conversation{}, fmt.Errorf("scan message: %w", err)
		}
		if model != nil {
			msg.Model = *model
		}
		if inputTokens != nil {
			msg.InputTokens = *inputTokens
		}
		if outputTokens != nil {
			msg.OutputTokens = *outputTokens
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return Conversation{}, fmt.Errorf("iterate messages: %w", err)
	}
	return conv, nil
}

// classify maps driver errors onto progression kinds.
func classify(op string, err error) error {
	if progression.KindOf(err) != progression.KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, progression.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22P02", "23503": // malformed uuid, missing parent row
			return fmt.Errorf("%s: %w", op, progression.ErrNotFound)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, progression.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullIfZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
