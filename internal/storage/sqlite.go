package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a session id has no row.
var ErrNotFound = errors.New("session not found")

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		goal           TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'in_progress',
		success        INTEGER NOT NULL DEFAULT 0,
		reason         TEXT NOT NULL DEFAULT '',
		planner_model  TEXT NOT NULL DEFAULT '',
		executor_model TEXT NOT NULL DEFAULT '',
		trace_dir      TEXT NOT NULL DEFAULT '',
		planner_steps  INTEGER NOT NULL DEFAULT 0,
		executor_steps INTEGER NOT NULL DEFAULT 0,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS todos (
		id         TEXT NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		content    TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending',
		priority   TEXT NOT NULL DEFAULT 'medium',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY(session_id, id)
	);

	CREATE TABLE IF NOT EXISTS scratchpad (
		key        TEXT NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		is_json    INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY(session_id, key)
	);

	CREATE TABLE IF NOT EXISTS steps (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		tier       TEXT NOT NULL,
		number     INTEGER NOT NULL,
		tools      TEXT NOT NULL DEFAULT '[]',
		status     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_todos_session ON todos(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_scratchpad_session ON scratchpad(session_id);
	CREATE INDEX IF NOT EXISTS idx_steps_session ON steps(session_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Session Operations ---

const sessionColumns = `id, goal, status, success, reason, planner_model, executor_model, trace_dir,
	planner_steps, executor_steps, created_at, updated_at`

func (s *SQLiteStore) CreateSession(meta SessionMeta) error {
	if strings.TrimSpace(meta.ID) == "" {
		return fmt.Errorf("session id is empty")
	}
	now := nowUTC()
	if strings.TrimSpace(meta.CreatedAt) == "" {
		meta.CreatedAt = now
	}
	if strings.TrimSpace(meta.UpdatedAt) == "" {
		meta.UpdatedAt = now
	}
	if strings.TrimSpace(meta.Status) == "" {
		meta.Status = "in_progress"
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Goal, meta.Status, boolToInt(meta.Success), meta.Reason,
		meta.PlannerModel, meta.ExecutorModel, meta.TraceDir,
		meta.PlannerSteps, meta.ExecutorSteps, meta.CreatedAt, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveSession(meta SessionMeta) error {
	meta.UpdatedAt = nowUTC()
	res, err := s.db.Exec(`
		UPDATE sessions SET goal=?, status=?, success=?, reason=?, planner_model=?, executor_model=?,
			trace_dir=?, planner_steps=?, executor_steps=?, updated_at=?
		WHERE id=?`,
		meta.Goal, meta.Status, boolToInt(meta.Success), meta.Reason,
		meta.PlannerModel, meta.ExecutorModel, meta.TraceDir,
		meta.PlannerSteps, meta.ExecutorSteps, meta.UpdatedAt, meta.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, meta.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionMeta, error) {
	var meta SessionMeta
	var success int
	err := row.Scan(&meta.ID, &meta.Goal, &meta.Status, &success, &meta.Reason,
		&meta.PlannerModel, &meta.ExecutorModel, &meta.TraceDir,
		&meta.PlannerSteps, &meta.ExecutorSteps, &meta.CreatedAt, &meta.UpdatedAt)
	meta.Success = success != 0
	return meta, err
}

func (s *SQLiteStore) LoadSession(id string) (SessionMeta, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionMeta{}, fmt.Errorf("session id is empty")
	}
	meta, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return SessionMeta{}, fmt.Errorf("load session: %w", err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		meta, err := scanSession(rows)
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// --- Todo Operations ---

func (s *SQLiteStore) ListTodos(sessionID string) ([]TodoItem, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is empty")
	}
	rows, err := s.db.Query(`
		SELECT id, content, status, priority FROM todos WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	var items []TodoItem
	for rows.Next() {
		var item TodoItem
		if err := rows.Scan(&item.ID, &item.Content, &item.Status, &item.Priority); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReplaceTodos 以事务方式整体替换 / Replaces the whole list in one transaction
func (s *SQLiteStore) ReplaceTodos(sessionID string, items []TodoItem) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM todos WHERE session_id=?", sessionID); err != nil {
		return fmt.Errorf("delete old todos: %w", err)
	}

	now := nowUTC()
	stmt, err := tx.Prepare(`
		INSERT INTO todos (id, session_id, seq, content, status, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, item := range items {
		content := strings.TrimSpace(item.Content)
		if content == "" {
			continue
		}
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = fmt.Sprintf("todo_%d", i+1)
		}
		if _, err := stmt.Exec(id, sessionID, i, content, normalizeStatus(item.Status), normalizePriority(item.Priority), now, now); err != nil {
			return fmt.Errorf("insert todo %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// --- Scratchpad Operations ---

func (s *SQLiteStore) ListScratchpad(sessionID string) ([]PadEntry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("session id is empty")
	}
	rows, err := s.db.Query(`
		SELECT key, title, body, is_json FROM scratchpad WHERE session_id=? ORDER BY key`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query scratchpad: %w", err)
	}
	defer rows.Close()

	var entries []PadEntry
	for rows.Next() {
		var e PadEntry
		var isJSON int
		if err := rows.Scan(&e.Key, &e.Title, &e.Text, &isJSON); err != nil {
			continue
		}
		e.IsJSON = isJSON != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ReplaceScratchpad(sessionID string, entries []PadEntry) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM scratchpad WHERE session_id=?", sessionID); err != nil {
		return fmt.Errorf("delete old scratchpad: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO scratchpad (key, session_id, title, body, is_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := nowUTC()
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		if _, err := stmt.Exec(key, sessionID, e.Title, e.Text, boolToInt(e.IsJSON), now); err != nil {
			return fmt.Errorf("insert scratchpad %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// --- Step index ---

func (s *SQLiteStore) AppendStep(sessionID string, step StepRecord) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	tools := "[]"
	if len(step.Tools) > 0 {
		if data, err := json.Marshal(step.Tools); err == nil {
			tools = string(data)
		}
	}
	if step.CreatedAt == "" {
		step.CreatedAt = nowUTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO steps (session_id, tier, number, tools, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, step.Tier, step.Number, tools, step.Status, step.CreatedAt)
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSteps(sessionID string) ([]StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT tier, number, tools, status, created_at FROM steps WHERE session_id=? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var st StepRecord
		var tools string
		if err := rows.Scan(&st.Tier, &st.Number, &tools, &st.Status, &st.CreatedAt); err != nil {
			continue
		}
		if tools != "" && tools != "[]" {
			_ = json.Unmarshal([]byte(tools), &st.Tools)
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// --- Helpers ---

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "in_progress", "completed":
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return "pending"
	}
}

func normalizePriority(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "medium", "low":
		return strings.ToLower(strings.TrimSpace(s))
	default:
		return "medium"
	}
}
