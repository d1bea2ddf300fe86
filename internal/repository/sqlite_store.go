package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"leadflow/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS forms (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	form_id       TEXT NOT NULL,
	completed     INTEGER NOT NULL DEFAULT 0,
	last_activity INTEGER NOT NULL,
	version       INTEGER NOT NULL,
	doc           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_stale ON sessions(completed, last_activity);
CREATE TABLE IF NOT EXISTS responses (
	session_id    TEXT NOT NULL,
	question_id   TEXT NOT NULL,
	answer        TEXT NOT NULL,
	step          INTEGER NOT NULL,
	score_awarded INTEGER NOT NULL,
	ts            INTEGER NOT NULL,
	UNIQUE(session_id, question_id)
);
CREATE TABLE IF NOT EXISTS outcomes (
	session_id      TEXT PRIMARY KEY,
	form_id         TEXT NOT NULL,
	client_id       TEXT NOT NULL,
	completion_type TEXT NOT NULL,
	lead_status     TEXT NOT NULL,
	final_score     INTEGER NOT NULL,
	message         TEXT NOT NULL,
	completed_at    INTEGER NOT NULL
);
`

// SQLiteStore keeps forms, sessions, responses and outcomes in a single SQLite file
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent steps
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: conn}, nil
}

// Store exposes the repositories backed by this database
func (s *SQLiteStore) Store() *Store {
	return &Store{
		Forms:     sqliteForms{s.db},
		Sessions:  sqliteSessions{s.db},
		Responses: sqliteResponses{s.db},
		Outcomes:  sqliteOutcomes{s.db},
		Close:     func(context.Context) error { return s.db.Close() },
	}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteForms struct{ db *sql.DB }

func (r sqliteForms) GetByID(ctx context.Context, id string) (*model.Form, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM forms WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var form model.Form
	if err := json.Unmarshal([]byte(doc), &form); err != nil {
		return nil, fmt.Errorf("decode form %s: %w", id, err)
	}
	return &form, nil
}

func (r sqliteForms) Upsert(ctx context.Context, form *model.Form) error {
	now := time.Now()
	if form.CreatedAt.IsZero() {
		form.CreatedAt = now
	}
	form.UpdatedAt = now

	doc, err := json.Marshal(form)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO forms (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		form.ID, string(doc), form.CreatedAt.UnixNano(), form.UpdatedAt.UnixNano())
	return err
}

func (r sqliteForms) List(ctx context.Context) ([]*model.Form, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT doc FROM forms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []*model.Form
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var form model.Form
		if err := json.Unmarshal([]byte(doc), &form); err != nil {
			return nil, err
		}
		forms = append(forms, &form)
	}
	return forms, rows.Err()
}

type sqliteSessions struct{ db *sql.DB }

func (r sqliteSessions) Create(ctx context.Context, session *model.Session) error {
	session.Version = 1
	doc, err := json.Marshal(session)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, form_id, completed, last_activity, version, doc)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.FormID, session.Completed, session.Engagement.LastActivity.UnixNano(),
		session.Version, string(doc))
	return err
}

func (r sqliteSessions) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM sessions WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session model.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &session, nil
}

func (r sqliteSessions) Update(ctx context.Context, session *model.Session) error {
	expected := session.Version
	session.Version = expected + 1

	doc, err := json.Marshal(session)
	if err != nil {
		session.Version = expected
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET completed = ?, last_activity = ?, version = ?, doc = ?
		WHERE id = ? AND version = ?`,
		session.Completed, session.Engagement.LastActivity.UnixNano(), session.Version, string(doc),
		session.ID, expected)
	if err != nil {
		session.Version = expected
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		session.Version = expected
		return err
	}
	if n == 0 {
		session.Version = expected
		return ErrVersionConflict
	}
	return nil
}

func (r sqliteSessions) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc FROM sessions
		WHERE completed = 0 AND last_activity < ?
		ORDER BY last_activity LIMIT ?`, before.UnixNano(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var session model.Session
		if err := json.Unmarshal([]byte(doc), &session); err != nil {
			return nil, err
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

type sqliteResponses struct{ db *sql.DB }

func (r sqliteResponses) Save(ctx context.Context, response *model.Response) error {
	if response.Timestamp.IsZero() {
		response.Timestamp = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO responses (session_id, question_id, answer, step, score_awarded, ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		response.SessionID, response.QuestionID, response.Answer, response.Step,
		response.ScoreAwarded, response.Timestamp.UnixNano())
	return err
}

func (r sqliteResponses) GetBySessionID(ctx context.Context, sessionID string) ([]*model.Response, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, question_id, answer, step, score_awarded, ts
		FROM responses WHERE session_id = ? ORDER BY step, ts`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*model.Response
	for rows.Next() {
		var resp model.Response
		var ts int64
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.Answer, &resp.Step, &resp.ScoreAwarded, &ts); err != nil {
			return nil, err
		}
		resp.Timestamp = time.Unix(0, ts)
		responses = append(responses, &resp)
	}
	return responses, rows.Err()
}

type sqliteOutcomes struct{ db *sql.DB }

func (r sqliteOutcomes) CreateOnce(ctx context.Context, outcome *model.Outcome) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO outcomes
		(session_id, form_id, client_id, completion_type, lead_status, final_score, message, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		outcome.SessionID, outcome.FormID, outcome.ClientID, string(outcome.CompletionType),
		string(outcome.LeadStatus), outcome.FinalScore, outcome.Message, outcome.CompletedAt.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r sqliteOutcomes) GetBySessionID(ctx context.Context, sessionID string) (*model.Outcome, error) {
	var o model.Outcome
	var completionType, leadStatus string
	var completedAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, form_id, client_id, completion_type, lead_status, final_score, message, completed_at
		FROM outcomes WHERE session_id = ?`, sessionID).
		Scan(&o.SessionID, &o.FormID, &o.ClientID, &completionType, &leadStatus, &o.FinalScore, &o.Message, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.CompletionType = model.CompletionType(completionType)
	o.LeadStatus = model.LeadStatus(leadStatus)
	o.CompletedAt = time.Unix(0, completedAt)
	return &o, nil
}
