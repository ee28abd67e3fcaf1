package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/alienxp03/toron/internal/core"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Immediate transactions take the write lock up front so the chaining
	// transaction cannot deadlock against a concurrent claim.
	dsn := dbPath + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &SQLiteStorage{
		db:   db,
		path: dbPath,
	}, nil
}

// Initialize creates the database schema.
func (s *SQLiteStorage) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'idle',
		debate_topic TEXT,
		user_side TEXT,
		agent_side TEXT,
		debate_mode TEXT NOT NULL DEFAULT 'user-vs-ai',
		current_side TEXT,
		turn_count INTEGER NOT NULL DEFAULT 0,
		max_turns INTEGER NOT NULL DEFAULT 5,
		volume_id TEXT,
		sandbox_id TEXT,
		session_id TEXT,
		attempt_id TEXT,
		error_message TEXT,
		user_verdict TEXT,
		last_prompt_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS debate_turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		turn_number INTEGER NOT NULL,
		side TEXT NOT NULL,
		side_label TEXT NOT NULL,
		persona TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS votes (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		side TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		nickname TEXT NOT NULL,
		content TEXT NOT NULL,
		side TEXT,
		is_tag_in INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_debate_turns_conversation ON debate_turns(conversation_id, turn_number);
	CREATE INDEX IF NOT EXISTS idx_votes_conversation ON votes(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_comments_conversation ON comments(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at DESC);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

const conversationColumns = `id, status, debate_topic, user_side, agent_side, debate_mode, current_side,
	turn_count, max_turns, volume_id, sandbox_id, session_id, attempt_id, error_message,
	user_verdict, last_prompt_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var c core.Conversation
	var topic, userSide, agentSide, currentSide sql.NullString
	var volumeID, sandboxID, sessionID, attemptID, errMsg, verdict sql.NullString
	var lastPromptAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.Status, &topic, &userSide, &agentSide, &c.DebateMode, &currentSide,
		&c.TurnCount, &c.MaxTurns, &volumeID, &sandboxID, &sessionID, &attemptID, &errMsg,
		&verdict, &lastPromptAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.DebateTopic = topic.String
	c.UserSide = userSide.String
	c.AgentSide = agentSide.String
	c.CurrentSide = core.Side(currentSide.String)
	c.VolumeID = volumeID.String
	c.SandboxID = sandboxID.String
	c.SessionID = sessionID.String
	c.AttemptID = attemptID.String
	c.ErrorMessage = errMsg.String
	c.UserVerdict = verdict.String
	if lastPromptAt.Valid {
		t := lastPromptAt.Time
		c.LastPromptAt = &t
	}

	return &c, nil
}

// CreateConversation inserts a new conversation row.
func (s *SQLiteStorage) CreateConversation(c *core.Conversation) error {
	now := timestamp()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	if c.Status == "" {
		c.Status = core.StatusIdle
	}
	if c.DebateMode == "" {
		c.DebateMode = core.ModeUserVsAI
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = core.DefaultMaxTurns
	}

	query := `
	INSERT INTO conversations (` + conversationColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		c.ID,
		c.Status,
		nullString(c.DebateTopic),
		nullString(c.UserSide),
		nullString(c.AgentSide),
		c.DebateMode,
		nullString(string(c.CurrentSide)),
		c.TurnCount,
		c.MaxTurns,
		nullString(c.VolumeID),
		nullString(c.SandboxID),
		nullString(c.SessionID),
		nullString(c.AttemptID),
		nullString(c.ErrorMessage),
		nullString(c.UserVerdict),
		nullTime(c.LastPromptAt),
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID. It returns nil, nil when absent.
func (s *SQLiteStorage) GetConversation(id string) (*core.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`

	c, err := scanConversation(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	return c, nil
}

// SetVolume records the volume backing a conversation.
func (s *SQLiteStorage) SetVolume(id, volumeID string) error {
	return s.exec("set volume", id,
		`UPDATE conversations SET volume_id = ?, updated_at = ? WHERE id = ?`,
		volumeID, timestamp(), id)
}

// SetVerdict stores the user's closing verdict text.
func (s *SQLiteStorage) SetVerdict(id, verdict string) error {
	return s.exec("set verdict", id,
		`UPDATE conversations SET user_verdict = ?, updated_at = ? WHERE id = ?`,
		verdict, timestamp(), id)
}

// ClaimTurn moves a conversation into running, bumps its turn counter and
// stores the attempt of the agent about to be launched, in one conditional
// update. It fails with core.ErrConflict when a turn is already in flight.
func (s *SQLiteStorage) ClaimTurn(id, attemptID string) (*core.Conversation, error) {
	query := `
	UPDATE conversations
	SET status = ?, turn_count = turn_count + 1, error_message = NULL, attempt_id = ?, updated_at = ?
	WHERE id = ? AND status != ?
	`

	res, err := s.db.Exec(query, core.StatusRunning, nullString(attemptID), timestamp(), id, core.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to claim turn: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to claim turn: %w", err)
	}

	c, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, core.NotFound("conversation", id)
	}
	if n == 0 {
		return nil, core.ErrConflict
	}

	return c, nil
}

// RecordLaunch stores the sandbox of a launched agent. It returns
// ErrStaleAttempt when the attempt already finished or was superseded, in
// which case the sandbox is not recorded.
func (s *SQLiteStorage) RecordLaunch(id, sandboxID, attemptID string) error {
	res, err := s.db.Exec(`
	UPDATE conversations SET sandbox_id = ?, updated_at = ?
	WHERE id = ? AND status = ? AND attempt_id = ?
	`, nullString(sandboxID), timestamp(), id, core.StatusRunning, attemptID)
	if err != nil {
		return fmt.Errorf("failed to record launch: %w", err)
	}
	return s.checkTransition(res, id)
}

// MarkFailed puts a conversation into the error state after a failed launch.
func (s *SQLiteStorage) MarkFailed(id, message string) error {
	return s.exec("mark failed", id, `
	UPDATE conversations
	SET status = ?, error_message = ?, sandbox_id = NULL, attempt_id = NULL, updated_at = ?
	WHERE id = ?
	`, core.StatusError, nullString(message), timestamp(), id)
}

// MarkPromptSurfaced advances the audience comment watermark.
func (s *SQLiteStorage) MarkPromptSurfaced(id string, at time.Time) error {
	return s.exec("mark prompt surfaced", id,
		`UPDATE conversations SET last_prompt_at = ? WHERE id = ?`,
		at.UTC(), id)
}

// CompleteTurn applies the terminal state of a turn and clears the sandbox.
// A non-empty attempt must match the stored one, otherwise ErrStaleAttempt is returned.
func (s *SQLiteStorage) CompleteTurn(id string, c Completion) error {
	query := `
	UPDATE conversations
	SET status = ?, error_message = ?, session_id = COALESCE(?, session_id),
		sandbox_id = NULL, attempt_id = NULL, updated_at = ?
	WHERE id = ? AND (? = '' OR attempt_id = ?)
	`

	res, err := s.db.Exec(query,
		c.Status,
		nullString(c.ErrorMessage),
		nullString(c.SessionID),
		timestamp(),
		id,
		c.AttemptID,
		c.AttemptID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete turn: %w", err)
	}

	return s.checkTransition(res, id)
}

// ChainTurn records a finished ai-vs-ai turn and hands the debate to the next
// side in a single transaction. It returns the updated conversation and up to
// CommentLimit most recent comments, oldest first.
func (s *SQLiteStorage) ChainTurn(id string, ch Chain) (*core.Conversation, []*core.Comment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The turn number doubles as an optimistic version so a duplicate
	// callback cannot chain twice.
	res, err := tx.Exec(`
	UPDATE conversations
	SET turn_count = turn_count + 1, current_side = ?, status = ?,
		session_id = COALESCE(?, session_id), sandbox_id = NULL, attempt_id = ?, updated_at = ?
	WHERE id = ? AND turn_count = ? AND (? = '' OR attempt_id = ?)
	`,
		ch.NextSide,
		core.StatusRunning,
		nullString(ch.SessionID),
		nullString(ch.NextAttemptID),
		timestamp(),
		id,
		ch.Turn.TurnNumber,
		ch.AttemptID,
		ch.AttemptID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to advance conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to advance conversation: %w", err)
	}
	if n == 0 {
		return nil, nil, ErrStaleAttempt
	}

	turn := ch.Turn
	if turn.ID == "" {
		turn.ID = core.GenerateID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = timestamp()
	}
	turn.ConversationID = id

	_, err = tx.Exec(`
	INSERT INTO debate_turns (id, conversation_id, turn_number, side, side_label, persona, content, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		turn.ID,
		turn.ConversationID,
		turn.TurnNumber,
		turn.Side,
		turn.SideLabel,
		turn.Persona,
		turn.Content,
		turn.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert debate turn: %w", err)
	}

	var comments []*core.Comment
	if ch.CommentLimit > 0 {
		comments, err = queryComments(tx, `
		SELECT id, conversation_id, nickname, content, side, is_tag_in, created_at
		FROM comments WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
		`, id, ch.CommentLimit)
		if err != nil {
			return nil, nil, err
		}
		reverseComments(comments)
	}

	conv, err := scanConversation(tx.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit chain: %w", err)
	}

	return conv, comments, nil
}

// ListTurns returns the debate turns of a conversation in turn order.
func (s *SQLiteStorage) ListTurns(conversationID string) ([]*core.DebateTurn, error) {
	query := `
	SELECT id, conversation_id, turn_number, side, side_label, persona, content, created_at
	FROM debate_turns
	WHERE conversation_id = ?
	ORDER BY turn_number ASC, created_at ASC
	`

	rows, err := s.db.Query(query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query debate turns: %w", err)
	}
	defer rows.Close()

	var turns []*core.DebateTurn
	for rows.Next() {
		var t core.DebateTurn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.TurnNumber, &t.Side, &t.SideLabel, &t.Persona, &t.Content, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan debate turn: %w", err)
		}
		turns = append(turns, &t)
	}

	return turns, rows.Err()
}

// AddVote appends a vote.
func (s *SQLiteStorage) AddVote(v *core.Vote) error {
	if v.ID == "" {
		v.ID = core.GenerateID()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = timestamp()
	}

	_, err := s.db.Exec(`INSERT INTO votes (id, conversation_id, side, created_at) VALUES (?, ?, ?, ?)`,
		v.ID, v.ConversationID, v.Side, v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	return nil
}

// CountVotes tallies votes per side.
func (s *SQLiteStorage) CountVotes(conversationID string) (core.VoteTally, error) {
	var tally core.VoteTally

	rows, err := s.db.Query(`SELECT side, COUNT(*) FROM votes WHERE conversation_id = ? GROUP BY side`, conversationID)
	if err != nil {
		return tally, fmt.Errorf("failed to count votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var side string
		var n int
		if err := rows.Scan(&side, &n); err != nil {
			return tally, fmt.Errorf("failed to scan vote count: %w", err)
		}
		switch core.AudienceSide(side) {
		case core.AudienceUser:
			tally.User = n
		case core.AudienceAgent:
			tally.Agent = n
		}
	}

	return tally, rows.Err()
}

// AddComment appends a comment.
func (s *SQLiteStorage) AddComment(c *core.Comment) error {
	if c.ID == "" {
		c.ID = core.GenerateID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = timestamp()
	}
	if c.Nickname == "" {
		c.Nickname = core.DefaultNickname
	}

	_, err := s.db.Exec(`
	INSERT INTO comments (id, conversation_id, nickname, content, side, is_tag_in, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.ConversationID,
		c.Nickname,
		c.Content,
		nullString(string(c.Side)),
		c.IsTagIn,
		c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	return nil
}

// ListComments returns all comments of a conversation, oldest first.
func (s *SQLiteStorage) ListComments(conversationID string) ([]*core.Comment, error) {
	return queryComments(s.db, `
	SELECT id, conversation_id, nickname, content, side, is_tag_in, created_at
	FROM comments WHERE conversation_id = ?
	ORDER BY created_at ASC, rowid ASC
	`, conversationID)
}

// CommentsSince returns up to limit of the most recent comments created after
// since (all comments when since is nil), oldest first.
func (s *SQLiteStorage) CommentsSince(conversationID string, since *time.Time, limit int) ([]*core.Comment, error) {
	var comments []*core.Comment
	var err error

	if since == nil {
		comments, err = queryComments(s.db, `
		SELECT id, conversation_id, nickname, content, side, is_tag_in, created_at
		FROM comments WHERE conversation_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
		`, conversationID, limit)
	} else {
		comments, err = queryComments(s.db, `
		SELECT id, conversation_id, nickname, content, side, is_tag_in, created_at
		FROM comments WHERE conversation_id = ? AND created_at > ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
		`, conversationID, since.UTC(), limit)
	}
	if err != nil {
		return nil, err
	}

	reverseComments(comments)
	return comments, nil
}

// CountCommentSides tallies comments that declared a side.
func (s *SQLiteStorage) CountCommentSides(conversationID string) (core.CommentTally, error) {
	var tally core.CommentTally

	rows, err := s.db.Query(`
	SELECT side, COUNT(*) FROM comments
	WHERE conversation_id = ? AND side IS NOT NULL
	GROUP BY side
	`, conversationID)
	if err != nil {
		return tally, fmt.Errorf("failed to count comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var side string
		var n int
		if err := rows.Scan(&side, &n); err != nil {
			return tally, fmt.Errorf("failed to scan comment count: %w", err)
		}
		switch core.AudienceSide(side) {
		case core.AudienceUser:
			tally.User = n
		case core.AudienceAgent:
			tally.Agent = n
		}
	}

	return tally, rows.Err()
}

// ListConversations returns conversation summaries with child counts, most
// recently updated first.
func (s *SQLiteStorage) ListConversations(limit, offset int) ([]*core.ConversationSummary, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
	SELECT c.id, c.status, c.debate_topic, c.user_side, c.agent_side, c.debate_mode,
		c.turn_count, c.max_turns, c.sandbox_id,
		(SELECT COUNT(*) FROM votes v WHERE v.conversation_id = c.id),
		(SELECT COUNT(*) FROM comments m WHERE m.conversation_id = c.id),
		(SELECT COUNT(*) FROM debate_turns t WHERE t.conversation_id = c.id),
		c.created_at, c.updated_at
	FROM conversations c
	ORDER BY c.updated_at DESC, c.rowid DESC
	LIMIT ? OFFSET ?
	`

	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*core.ConversationSummary
	for rows.Next() {
		var sum core.ConversationSummary
		var topic, userSide, agentSide, sandboxID sql.NullString
		err := rows.Scan(
			&sum.ID, &sum.Status, &topic, &userSide, &agentSide, &sum.DebateMode,
			&sum.TurnCount, &sum.MaxTurns, &sandboxID,
			&sum.VoteCount, &sum.CommentCount, &sum.DebateTurns,
			&sum.CreatedAt, &sum.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation summary: %w", err)
		}
		sum.DebateTopic = topic.String
		sum.UserSide = userSide.String
		sum.AgentSide = agentSide.String
		sum.SandboxID = sandboxID.String
		summaries = append(summaries, &sum)
	}

	return summaries, rows.Err()
}

// ListGallery returns the most recently updated debates that have a topic.
func (s *SQLiteStorage) ListGallery(limit int) ([]*core.GalleryEntry, error) {
	query := `
	SELECT c.id, c.status, c.debate_topic, c.user_side, c.agent_side, c.debate_mode, c.turn_count,
		(SELECT COUNT(*) FROM votes v WHERE v.conversation_id = c.id AND v.side = 'user'),
		(SELECT COUNT(*) FROM votes v WHERE v.conversation_id = c.id AND v.side = 'agent'),
		c.created_at, c.updated_at
	FROM conversations c
	WHERE c.debate_topic IS NOT NULL AND c.debate_topic != ''
	ORDER BY c.updated_at DESC
	LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list gallery: %w", err)
	}
	defer rows.Close()

	entries := []*core.GalleryEntry{}
	for rows.Next() {
		var e core.GalleryEntry
		var userSide, agentSide sql.NullString
		err := rows.Scan(
			&e.ID, &e.Status, &e.DebateTopic, &userSide, &agentSide, &e.DebateMode, &e.TurnCount,
			&e.Votes.User, &e.Votes.Agent,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan gallery entry: %w", err)
		}
		e.UserSide = userSide.String
		e.AgentSide = agentSide.String
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// DeleteConversations removes conversations and their turns, comments and votes
// in one transaction. It returns how many conversations were deleted.
func (s *SQLiteStorage) DeleteConversations(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	for _, table := range []string{"debate_turns", "comments", "votes"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE conversation_id IN (`+placeholders+`)`, args...); err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	res, err := tx.Exec(`DELETE FROM conversations WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}

	return int(n), nil
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryComments(q querier, query string, args ...any) ([]*core.Comment, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	comments := []*core.Comment{}
	for rows.Next() {
		var c core.Comment
		var side sql.NullString
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Nickname, &c.Content, &side, &c.IsTagIn, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.Side = core.AudienceSide(side.String)
		comments = append(comments, &c)
	}

	return comments, rows.Err()
}

func reverseComments(comments []*core.Comment) {
	for i, j := 0, len(comments)-1; i < j; i, j = i+1, j-1 {
		comments[i], comments[j] = comments[j], comments[i]
	}
}

// exec runs a single-row update and maps zero affected rows to not found.
func (s *SQLiteStorage) exec(op, id, query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return core.NotFound("conversation", id)
	}
	return nil
}

func (s *SQLiteStorage) checkTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	c, err := s.GetConversation(id)
	if err != nil {
		return err
	}
	if c == nil {
		return core.NotFound("conversation", id)
	}
	return ErrStaleAttempt
}

func timestamp() time.Time {
	return time.Now().UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
