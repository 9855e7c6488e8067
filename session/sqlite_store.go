package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SqliteStore is the default Store backend, grounded on srv/sqlite's raw
// database/sql + hand-written CRUD and INSERT OR REPLACE upsert style.
type SqliteStore struct {
	db *sql.DB
}

// Open opens (or creates) a sqlite database at path and migrates it.
// path may be ":memory:" for tests.
func Open(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time, matches teacher convention
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error { return s.db.Close() }

var _ Store = (*SqliteStore)(nil)

func (s *SqliteStore) CreateSession(ctx context.Context, title, model, workingDir, userId string) (Session, error) {
	now := time.Now().UTC()
	sess := Session{
		Id:             uuid.NewString(),
		Title:          title,
		Model:          model,
		WorkingDir:     workingDir,
		UserId:         userId,
		WorkMode:       WorkModeBuild,
		PermissionMode: PermissionSupervised,
		AgentState:     AgentStateIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, model, working_dir, user_id, token_count, work_mode, permission_mode, agent_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		sess.Id, sess.Title, sess.Model, sess.WorkingDir, nullable(sess.UserId),
		string(sess.WorkMode), string(sess.PermissionMode), string(sess.AgentState),
		sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *SqliteStore) scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var sess Session
	var parentId, userId sql.NullString
	var agentStartedAt, agentLastEventAt sql.NullString
	var workMode, permMode, agentState string
	var createdStr, updatedStr string

	err := row.Scan(
		&sess.Id, &sess.Title, &sess.Model, &sess.WorkingDir, &parentId, &userId,
		&sess.TokenCount, &workMode, &permMode, &agentState,
		&agentStartedAt, &agentLastEventAt, &createdStr, &updatedStr,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}

	sess.ParentSessionId = parentId.String
	sess.UserId = userId.String
	sess.WorkMode = StringToWorkMode(workMode)
	sess.PermissionMode = PermissionMode(permMode)
	sess.AgentState = AgentState(agentState)

	if sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr); err != nil {
		return Session{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedStr); err != nil {
		return Session{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if agentStartedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, agentStartedAt.String)
		if err == nil {
			sess.AgentStartedAt = &t
		}
	}
	if agentLastEventAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, agentLastEventAt.String)
		if err == nil {
			sess.AgentLastEventAt = &t
		}
	}

	return sess, nil
}

const selectSessionCols = `id, title, model, working_dir, parent_session_id, user_id, token_count, work_mode, permission_mode, agent_state, agent_started_at, agent_last_event_at, created_at, updated_at`

func (s *SqliteStore) GetSession(ctx context.Context, sessionId string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectSessionCols+` FROM sessions WHERE id = ?`, sessionId)
	return s.scanSession(row)
}

func (s *SqliteStore) VerifySessionOwnership(ctx context.Context, sessionId, userId string) error {
	sess, err := s.GetSession(ctx, sessionId)
	if err != nil {
		return err
	}
	if userId == "" {
		return nil
	}
	if sess.UserId != userId {
		return ErrOwnershipMismatch
	}
	return nil
}

func (s *SqliteStore) ListActiveSessions(ctx context.Context, userId string) ([]Session, error) {
	query := `SELECT ` + selectSessionCols + ` FROM sessions WHERE agent_state != 'idle'`
	args := []any{}
	if userId != "" {
		query += ` AND user_id = ?`
		args = append(args, userId)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession orphans children by nulling parent_session_id, deletes
// pinch metadata, file activity, and block UI state, then deletes
// its messages, then the row itself (spec.md §4.5).
func (s *SqliteStore) DeleteSession(ctx context.Context, sessionId string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET parent_session_id = NULL WHERE parent_session_id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to orphan child sessions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pinch WHERE session_id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to delete pinch metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_activity WHERE session_id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to delete file activity: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM block_ui_state WHERE session_id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to delete block ui state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionId); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return tx.Commit()
}

func (s *SqliteStore) touchUpdatedAt(ctx context.Context, sessionId string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339Nano), sessionId)
	return err
}

func (s *SqliteStore) UpdateSessionTitle(ctx context.Context, sessionId, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, time.Now().UTC().Format(time.RFC3339Nano), sessionId)
	return checkRowsAffected(res, err)
}

func (s *SqliteStore) UpdateTokenCount(ctx context.Context, sessionId string, tokenCount int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET token_count = ?, updated_at = ? WHERE id = ?`, tokenCount, time.Now().UTC().Format(time.RFC3339Nano), sessionId)
	return checkRowsAffected(res, err)
}

func (s *SqliteStore) UpdateSessionWorkMode(ctx context.Context, sessionId string, mode WorkMode) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET work_mode = ?, updated_at = ? WHERE id = ?`, string(mode), time.Now().UTC().Format(time.RFC3339Nano), sessionId)
	return checkRowsAffected(res, err)
}

func (s *SqliteStore) SetAgentState(ctx context.Context, sessionId string, state AgentState) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	switch state {
	case AgentStateStreaming:
		// entry from idle stamps agent_started_at; re-entry (streaming ->
		// tool_executing -> streaming) must not reset it, so only set it
		// when currently NULL.
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions
			SET agent_state = ?, agent_last_event_at = ?, updated_at = ?,
			    agent_started_at = COALESCE(agent_started_at, ?)
			WHERE id = ?`,
			string(state), now, now, now, sessionId)
		return checkRowsAffected(res, err)
	case AgentStateIdle:
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions
			SET agent_state = ?, agent_last_event_at = ?, updated_at = ?, agent_started_at = NULL
			WHERE id = ?`,
			string(state), now, now, sessionId)
		return checkRowsAffected(res, err)
	default:
		res, err := s.db.ExecContext(ctx, `
			UPDATE sessions SET agent_state = ?, agent_last_event_at = ?, updated_at = ? WHERE id = ?`,
			string(state), now, now, sessionId)
		return checkRowsAffected(res, err)
	}
}

func (s *SqliteStore) GetAgentState(ctx context.Context, sessionId string) (AgentState, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `SELECT agent_state FROM sessions WHERE id = ?`, sessionId).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return AgentState(state), nil
}

func (s *SqliteStore) TouchAgentEvent(ctx context.Context, sessionId string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET agent_last_event_at = ?, updated_at = ? WHERE id = ?`, now, now, sessionId)
	return checkRowsAffected(res, err)
}

func (s *SqliteStore) SaveMessage(ctx context.Context, sessionId, role string, contentJSON []byte) (StoredMessage, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content_json, created_at) VALUES (?, ?, ?, ?)`,
		sessionId, role, string(contentJSON), now.Format(time.RFC3339Nano))
	if err != nil {
		return StoredMessage{}, fmt.Errorf("failed to save message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StoredMessage{}, err
	}
	return StoredMessage{Id: id, SessionId: sessionId, Role: role, ContentJSON: contentJSON, CreatedAt: now}, nil
}

func (s *SqliteStore) LoadSessionMessages(ctx context.Context, sessionId string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content_json, created_at FROM messages WHERE session_id = ? ORDER BY id ASC`, sessionId)
	if err != nil {
		return nil, fmt.Errorf("failed to load session messages: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var contentStr, createdStr string
		if err := rows.Scan(&m.Id, &m.SessionId, &m.Role, &contentStr, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		m.ContentJSON = []byte(contentStr)
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse message created_at: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateLastMessage rewrites only the tail (highest id) row matching
// (sessionId, role); it is a no-op (not an insert) if no such row exists,
// matching the idempotent-merge contract in spec.md §4.7.
func (s *SqliteStore) UpdateLastMessage(ctx context.Context, sessionId, role string, contentJSON []byte) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET content_json = ?
		WHERE id = (
			SELECT id FROM messages WHERE session_id = ? AND role = ? ORDER BY id DESC LIMIT 1
		)`,
		string(contentJSON), sessionId, role)
	return err
}

func (s *SqliteStore) CreateLinkedSession(ctx context.Context, parentId string, pinch PinchContext, title, model, workingDir, userId string) (Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	child := Session{
		Id:              uuid.NewString(),
		Title:           title,
		Model:           model,
		WorkingDir:      workingDir,
		ParentSessionId: parentId,
		UserId:          userId,
		WorkMode:        WorkModeBuild,
		PermissionMode:  PermissionSupervised,
		AgentState:      AgentStateIdle,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, title, model, working_dir, parent_session_id, user_id, token_count, work_mode, permission_mode, agent_state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		child.Id, child.Title, child.Model, child.WorkingDir, nullable(child.ParentSessionId), nullable(child.UserId),
		string(child.WorkMode), string(child.PermissionMode), string(child.AgentState),
		child.CreatedAt.Format(time.RFC3339Nano), child.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create linked session: %w", err)
	}

	rankedFiles, _ := json.Marshal(pinch.RankedFiles)
	hints, _ := json.Marshal(pinch.PreservationHints)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pinch (session_id, work_summary, ranked_files, preservation_hints, direction) VALUES (?, ?, ?, ?, ?)`,
		child.Id, pinch.WorkSummary, string(rankedFiles), string(hints), pinch.Direction)
	if err != nil {
		return Session{}, fmt.Errorf("failed to persist pinch context: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, err
	}
	return child, nil
}

func (s *SqliteStore) GetPinchContext(ctx context.Context, sessionId string) (*PinchContext, error) {
	var pc PinchContext
	var rankedFiles, hints string
	err := s.db.QueryRowContext(ctx, `
		SELECT work_summary, ranked_files, preservation_hints, direction FROM pinch WHERE session_id = ?`, sessionId).
		Scan(&pc.WorkSummary, &rankedFiles, &hints, &pc.Direction)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load pinch context: %w", err)
	}
	_ = json.Unmarshal([]byte(rankedFiles), &pc.RankedFiles)
	_ = json.Unmarshal([]byte(hints), &pc.PreservationHints)
	return &pc, nil
}

func checkRowsAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
