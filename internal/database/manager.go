package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "debatehall/pkg/database"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Manager is the SQLite implementation of interfaces.Store.
// Reads run concurrently on the pool; every write goes through one goroutine.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

var _ interfaces.Store = (*Manager)(nil)

type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// Migrate applies pending schema migrations and validates the result
func (m *Manager) Migrate() error {
	migrations := dbconfig.NewMigrationManager(m.db, m.config.MigrationsPath)
	if err := migrations.ApplyMigrations(); err != nil {
		return err
	}
	return migrations.ValidateSchema()
}

func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(op.ctx, m.db)
			if isBusy(err) {
				log.Printf("Database busy, retrying write once: %v", err)
				time.Sleep(100 * time.Millisecond)
				err = op.operation(op.ctx, m.db)
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write for the writer goroutine and waits for its result
func (m *Manager) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("database manager is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(m.config.WriteTimeout)
	defer timer.Stop()

	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-timer.C:
		return fmt.Errorf("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return fmt.Errorf("database manager is shutting down")
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (m *Manager) CreateUser(ctx context.Context, user *types.User) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO users (id, username, role) VALUES (?, ?, ?)`,
			user.ID, user.Username, user.Role,
		)
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicateRow
		}
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
}

func (m *Manager) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	var user types.User
	err := m.db.QueryRowContext(ctx,
		`SELECT id, username, role FROM users WHERE id = ?`, userID,
	).Scan(&user.ID, &user.Username, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (m *Manager) CreateTopic(ctx context.Context, topic *types.DebateTopic) error {
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now()
	}
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO debate_topics (title, description, created_by, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			topic.Title, topic.Description, topic.CreatedBy, topic.IsActive, topic.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert topic: %w", err)
		}
		topic.ID, err = res.LastInsertId()
		return err
	})
}

func (m *Manager) GetTopic(ctx context.Context, topicID int64) (*types.DebateTopic, error) {
	var topic types.DebateTopic
	err := m.db.QueryRowContext(ctx,
		`SELECT id, title, description, created_by, is_active, created_at
		 FROM debate_topics WHERE id = ?`, topicID,
	).Scan(&topic.ID, &topic.Title, &topic.Description, &topic.CreatedBy, &topic.IsActive, &topic.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query topic: %w", err)
	}
	return &topic, nil
}

func (m *Manager) CreateSession(ctx context.Context, session *types.DebateSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO debate_sessions (topic_id, start_time, end_time, created_by, max_participants, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			session.TopicID, session.StartTime.UTC(), session.EndTime.UTC(), session.CreatedBy,
			session.MaxParticipants, session.IsActive, session.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session creation: %w", err)
		}
		session.ID = id
		return nil
	})
}

func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.DebateSession, error) {
	var session types.DebateSession
	err := m.db.QueryRowContext(ctx,
		`SELECT id, topic_id, start_time, end_time, created_by, max_participants, is_active, created_at
		 FROM debate_sessions WHERE id = ?`, sessionID,
	).Scan(
		&session.ID,
		&session.TopicID,
		&session.StartTime,
		&session.EndTime,
		&session.CreatedBy,
		&session.MaxParticipants,
		&session.IsActive,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return &session, nil
}

func (m *Manager) UpdateSessionWindow(ctx context.Context, sessionID int64, start, end time.Time) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE debate_sessions SET start_time = ?, end_time = ? WHERE id = ?`,
			start.UTC(), end.UTC(), sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session window: %w", err)
		}
		return requireRow(res, interfaces.ErrSessionNotFound)
	})
}

func (m *Manager) GetParticipant(ctx context.Context, sessionID, userID int64) (*types.Participant, error) {
	var p types.Participant
	err := m.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, joined_at, is_active
		 FROM participants WHERE session_id = ? AND user_id = ?`, sessionID, userID,
	).Scan(&p.SessionID, &p.UserID, &p.JoinedAt, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query participant: %w", err)
	}
	return &p, nil
}

func (m *Manager) CreateParticipant(ctx context.Context, participant *types.Participant) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO participants (session_id, user_id, joined_at, is_active) VALUES (?, ?, ?, ?)`,
			participant.SessionID, participant.UserID, participant.JoinedAt.UTC(), participant.IsActive,
		)
		if isUniqueViolation(err) {
			return interfaces.ErrDuplicateRow
		}
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		return nil
	})
}

func (m *Manager) SetParticipantActive(ctx context.Context, sessionID, userID int64, active bool) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE participants SET is_active = ? WHERE session_id = ? AND user_id = ?`,
			active, sessionID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update participant: %w", err)
		}
		return requireRow(res, interfaces.ErrParticipantNotFound)
	})
}

func (m *Manager) CountActiveParticipants(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participants WHERE session_id = ? AND is_active = 1`, sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func (m *Manager) ListActiveParticipants(ctx context.Context, sessionID int64) ([]*types.Participant, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT session_id, user_id, joined_at, is_active
		 FROM participants WHERE session_id = ? AND is_active = 1
		 ORDER BY joined_at ASC, user_id ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var participants []*types.Participant
	for rows.Next() {
		var p types.Participant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.JoinedAt, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		participants = append(participants, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

func (m *Manager) AppendMessage(ctx context.Context, message *types.Message) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO messages (session_id, user_id, content, timestamp, is_deleted) VALUES (?, ?, ?, ?, ?)`,
			message.SessionID, message.Sender.ID, message.Content, message.Timestamp.UTC(), message.IsDeleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		message.ID, err = res.LastInsertId()
		return err
	})
}

const selectMessage = `
	SELECT m.id, m.session_id, m.content, m.timestamp, m.is_deleted, u.id, u.username, u.role
	FROM messages m
	JOIN users u ON u.id = m.user_id`

func scanMessage(scan func(dest ...interface{}) error) (*types.Message, error) {
	var msg types.Message
	err := scan(
		&msg.ID,
		&msg.SessionID,
		&msg.Content,
		&msg.Timestamp,
		&msg.IsDeleted,
		&msg.Sender.ID,
		&msg.Sender.Username,
		&msg.Sender.Role,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *Manager) GetMessage(ctx context.Context, messageID int64) (*types.Message, error) {
	msg, err := scanMessage(m.db.QueryRowContext(ctx, selectMessage+` WHERE m.id = ?`, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return msg, nil
}

func (m *Manager) SetMessageDeleted(ctx context.Context, messageID int64, deleted bool) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`UPDATE messages SET is_deleted = ? WHERE id = ?`, deleted, messageID,
		)
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		return requireRow(res, interfaces.ErrMessageNotFound)
	})
}

func (m *Manager) ListMessages(ctx context.Context, sessionID int64, since time.Time) ([]*types.Message, error) {
	rows, err := m.db.QueryContext(ctx,
		selectMessage+`
		WHERE m.session_id = ? AND m.is_deleted = 0 AND m.timestamp >= ?
		ORDER BY m.timestamp ASC, m.id ASC`,
		sessionID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (m *Manager) LastMessageTime(ctx context.Context, sessionID int64) (time.Time, bool, error) {
	var last time.Time
	err := m.db.QueryRowContext(ctx,
		`SELECT timestamp FROM messages WHERE session_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		sessionID,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last message time: %w", err)
	}
	return last, true, nil
}

func (m *Manager) RecordModerationAction(ctx context.Context, action *types.ModerationAction) error {
	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			`INSERT INTO moderation_actions (session_id, participant_id, moderator_id, action, timestamp)
			 VALUES (?, ?, ?, ?, ?)`,
			action.SessionID, action.ParticipantID, action.ModeratorID, action.Action, action.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert moderation action: %w", err)
		}
		action.ID, err = res.LastInsertId()
		return err
	})
}

func (m *Manager) ListModerationActions(ctx context.Context, sessionID int64) ([]*types.ModerationAction, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, session_id, participant_id, moderator_id, action, timestamp
		 FROM moderation_actions WHERE session_id = ? ORDER BY timestamp ASC, id ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query moderation actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*types.ModerationAction
	for rows.Next() {
		var a types.ModerationAction
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ParticipantID, &a.ModeratorID, &a.Action, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan moderation row: %w", err)
		}
		actions = append(actions, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating moderation rows: %w", err)
	}
	return actions, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// HealthCheck validates connectivity and that the schema is readable
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM debate_sessions").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying handle for migrations and tests
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close stops the writer and closes the pool. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}
