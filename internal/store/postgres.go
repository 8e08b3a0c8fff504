package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/aswatji/serverchat/internal/ids"
	"github.com/aswatji/serverchat/internal/metrics"
	"github.com/aswatji/serverchat/internal/models"
)

const chatColumns = `
	c.id, c.user1_id, c.user2_id, c.created_at,
	u1.name, u1.email, u2.name, u2.email`

const messageColumns = `
	m.id, m.chat_id, m.sender_id, m.content, m.sent_at, m.updated_at,
	u.name, u.email`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// classifyPostgres maps constraint violations onto the store sentinels.
func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrConstraint, pgErr.ConstraintName)
		}
	}
	return err
}

func observePostgres(start time.Time) {
	metrics.DatabaseLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	defer observePostgres(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, created_at, updated_at
	`, ids.NewUUIDv7(), name, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, classifyPostgres(err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	defer observePostgres(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// ListUsers retrieves the newest users.
func (s *PostgresStore) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser changes the non-nil fields of a user.
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, name, email *string) (*models.User, error) {
	defer observePostgres(time.Now())

	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($2, name), email = COALESCE($3, email), updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, email, created_at, updated_at
	`, id, name, email).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, classifyPostgres(err)
	}
	return user, nil
}

// DeleteUser removes a user; chats and messages cascade.
func (s *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateChat returns the chat between two users, inserting it when absent.
func (s *PostgresStore) CreateChat(ctx context.Context, userA, userB string) (*models.Chat, bool, error) {
	defer observePostgres(time.Now())

	user1, user2 := models.CanonicalPair(userA, userB)
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO chats (id, user1_id, user2_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, ids.NewUUIDv7(), user1, user2)
	if err != nil {
		return nil, false, classifyPostgres(err)
	}

	chat, err := scanChat(s.pool.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		WHERE c.user1_id = $1 AND c.user2_id = $2
	`, user1, user2))
	if err != nil {
		return nil, false, err
	}
	return chat, tag.RowsAffected() == 1, nil
}

// GetChat retrieves a chat and both participant profiles.
func (s *PostgresStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	defer observePostgres(time.Now())

	chat, err := scanChat(s.pool.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		WHERE c.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return chat, nil
}

// ListUserChats retrieves a user's chats, newest first, each with its last message.
func (s *PostgresStore) ListUserChats(ctx context.Context, userID string) ([]models.Chat, error) {
	defer observePostgres(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+`,
			m.id, m.sender_id, m.content, m.sent_at
		FROM chats c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE chat_id = c.id
			ORDER BY sent_at DESC, id DESC
			LIMIT 1
		)
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var (
			chat   models.Chat
			u1, u2 models.UserRef
			last   lastMessageRow
		)
		err := rows.Scan(
			&chat.ID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt,
			&u1.Name, &u1.Email, &u2.Name, &u2.Email,
			&last.ID, &last.SenderID, &last.Content, &last.SentAt,
		)
		if err != nil {
			return nil, err
		}
		u1.UID, u2.UID = chat.User1ID, chat.User2ID
		chat.User1, chat.User2 = &u1, &u2
		chat.Messages = last.messages(chat.ID)
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// DeleteChat removes a chat and its messages.
func (s *PostgresStore) DeleteChat(ctx context.Context, id string) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateMessage persists a message after checking the sender belongs to the chat.
func (s *PostgresStore) CreateMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, fmt.Errorf("user %s in chat %s: %w", senderID, chatID, ErrNotParticipant)
	}

	defer observePostgres(time.Now())

	msg := &models.Message{}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, sent_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, chat_id, sender_id, content, sent_at
	`, ids.NewMessageID(), chatID, senderID, content, time.Now().UTC()).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.Content,
		&msg.SentAt,
	)
	if err != nil {
		return nil, classifyPostgres(err)
	}
	return msg, nil
}

// GetMessage retrieves a message and its sender profile.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer observePostgres(time.Now())

	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return msg, nil
}

// ListChatMessages returns one page of a chat's history in ascending order.
// Page boundaries are taken from the newest end.
func (s *PostgresStore) ListChatMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	defer observePostgres(time.Now())

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.chat_id = $1
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT $2 OFFSET $3
		`, chatID, limit, offset)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.chat_id = $1
			ORDER BY m.sent_at DESC, m.id DESC
		`, chatID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Reverse(messages), nil
}

// UpdateMessage replaces the content of a message and stamps updated_at.
func (s *PostgresStore) UpdateMessage(ctx context.Context, id, content string) (*models.Message, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET content = $2, updated_at = $3 WHERE id = $1
	`, id, content, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.GetMessage(ctx, id)
}

// DeleteMessage removes a message.
func (s *PostgresStore) DeleteMessage(ctx context.Context, id string) error {
	defer observePostgres(time.Now())

	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
