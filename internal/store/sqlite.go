package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/aswatji/serverchat/internal/ids"
	"github.com/aswatji/serverchat/internal/metrics"
	"github.com/aswatji/serverchat/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/serverchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/serverchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user1_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user2_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		UNIQUE (user1_id, user2_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		updated_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_chats_user1 ON chats(user1_id);
	CREATE INDEX IF NOT EXISTS idx_chats_user2 ON chats(user2_id);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_sent ON messages(chat_id, sent_at, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classifySQLite maps constraint violations onto the store sentinels.
func classifySQLite(err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrConflict, sqlErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrConstraint, sqlErr.Error())
		}
	}
	return err
}

func observeSQLite(start time.Time) {
	metrics.DatabaseLatency.WithLabelValues("sqlite").Observe(time.Since(start).Seconds())
}

// now returns the timestamp written by the store. SQLite compares DATETIME
// values as text, so every row is stored in UTC.
func now() time.Time {
	return time.Now().UTC()
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	defer observeSQLite(time.Now())

	user := &models.User{
		ID:        ids.NewUUIDv7(),
		Name:      name,
		Email:     email,
		CreatedAt: now(),
	}
	user.UpdatedAt = user.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, user.ID, user.Name, user.Email, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, classifySQLite(err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	defer observeSQLite(time.Now())

	user := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// ListUsers retrieves the newest users.
func (s *SQLiteStore) ListUsers(ctx context.Context, limit int) ([]models.User, error) {
	defer observeSQLite(time.Now())

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users
		ORDER BY created_at DESC, id DESC
		LIMIT ?
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
func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, name, email *string) (*models.User, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE(?, name), email = COALESCE(?, email), updated_at = ?
		WHERE id = ?
	`, name, email, now(), id)
	observeSQLite(start)
	if err != nil {
		return nil, classifySQLite(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user; chats and messages cascade.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	defer observeSQLite(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateChat returns the chat between two users, inserting it when absent.
func (s *SQLiteStore) CreateChat(ctx context.Context, userA, userB string) (*models.Chat, bool, error) {
	defer observeSQLite(time.Now())

	user1, user2 := models.CanonicalPair(userA, userB)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user1_id, user2_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
	`, ids.NewUUIDv7(), user1, user2, now())
	if err != nil {
		return nil, false, classifySQLite(err)
	}

	chat, err := scanChat(s.db.QueryRowContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		WHERE c.user1_id = ? AND c.user2_id = ?
	`, user1, user2))
	if err != nil {
		return nil, false, err
	}

	n, _ := res.RowsAffected()
	return chat, n == 1, nil
}

// GetChat retrieves a chat and both participant profiles.
func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	defer observeSQLite(time.Now())

	chat, err := scanChat(s.db.QueryRowContext(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		JOIN users u1 ON u1.id = c.user1_id
		JOIN users u2 ON u2.id = c.user2_id
		WHERE c.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return chat, nil
}

// ListUserChats retrieves a user's chats, newest first, each with its last message.
func (s *SQLiteStore) ListUserChats(ctx context.Context, userID string) ([]models.Chat, error) {
	defer observeSQLite(time.Now())

	rows, err := s.db.QueryContext(ctx, `
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
		WHERE c.user1_id = ? OR c.user2_id = ?
		ORDER BY c.created_at DESC
	`, userID, userID)
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
func (s *SQLiteStore) DeleteChat(ctx context.Context, id string) error {
	defer observeSQLite(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateMessage persists a message after checking the sender belongs to the chat.
func (s *SQLiteStore) CreateMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, fmt.Errorf("user %s in chat %s: %w", senderID, chatID, ErrNotParticipant)
	}

	defer observeSQLite(time.Now())

	msg := &models.Message{
		ID:       ids.NewMessageID(),
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
		SentAt:   now(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.SentAt)
	if err != nil {
		return nil, classifySQLite(err)
	}
	return msg, nil
}

// GetMessage retrieves a message and its sender profile.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer observeSQLite(time.Now())

	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return msg, nil
}

// ListChatMessages returns one page of a chat's history in ascending order.
// Page boundaries are taken from the newest end.
func (s *SQLiteStore) ListChatMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error) {
	defer observeSQLite(time.Now())

	if limit <= 0 {
		limit, offset = -1, 0 // SQLite: negative LIMIT means no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT ? OFFSET ?
	`, chatID, limit, offset)
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
func (s *SQLiteStore) UpdateMessage(ctx context.Context, id, content string) (*models.Message, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, updated_at = ? WHERE id = ?
	`, content, now(), id)
	observeSQLite(start)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return s.GetMessage(ctx, id)
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	defer observeSQLite(time.Now())

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}
