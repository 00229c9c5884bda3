package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/truemagic-coder/butterfly-bot-sub000/pkg/database"
)

// Message is one row of the append-only per-user chat log.
type Message struct {
	ID        int64
	UserID    string
	Role      string
	Content   string
	Timestamp int64
}

// SearchResult is one merged hit from MessageStore.Search, spanning both
// the FTS and (optionally) the semantic vector arms.
type SearchResult struct {
	Content string
	Source  string // "fts" or "semantic"
}

// Embedder is the minimal capability MessageStore needs from an LLM
// provider to run the semantic search arm; pkg/llm.Provider.Embed
// satisfies this.
type Embedder interface {
	Embed(ctx context.Context, inputs []string, model string) ([][]float32, error)
}

// Reranker reorders a candidate list via structured output, the
// capability pkg/llm.Provider.ParseStructuredOutput satisfies.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]int, error)
}

// MessageStore implements the C2 message/memory persistence contract:
// append-only history, FTS5 + vector search, and the fixed-order
// clear_history deletion.
type MessageStore struct {
	db       *database.Client
	Embedder Embedder
	Reranker Reranker
}

func NewMessageStore(db *database.Client) *MessageStore {
	return &MessageStore{db: db}
}

// Append inserts one message and returns its row id. The write gate
// (Client.WriteMu) linearizes appends so the returned id is strictly
// greater than any previously returned id for this database.
func (s *MessageStore) Append(ctx context.Context, userID, role, content string, timestamp int64) (int64, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO messages (user_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		userID, role, content, timestamp)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return res.LastInsertId()
}

// resetWatermark returns the reset_at tombstone for userID, or 0 if none.
func (s *MessageStore) resetWatermark(ctx context.Context, userID string) (int64, error) {
	var resetAt int64
	err := s.db.ReadDB().QueryRowContext(ctx, `SELECT reset_at FROM history_resets WHERE user_id = ?`, userID).Scan(&resetAt)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read reset watermark: %w", err)
	}
	return resetAt, nil
}

// GetHistory returns the most recent limit messages for userID newer
// than the reset watermark, oldest first (the order a prompt wants).
func (s *MessageStore) GetHistory(ctx context.Context, userID string, limit int) ([]Message, error) {
	resetAt, err := s.resetWatermark(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.ReadDB().QueryContext(ctx,
		`SELECT id, user_id, role, content, timestamp FROM messages
		 WHERE user_id = ? AND timestamp > ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		userID, resetAt, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// deleteOrder is the fixed dependent-table deletion order clear_history
// must follow.
var deleteOrder = []string{"memory_links", "messages", "memories", "entities", "events", "facts", "edges"}

// ClearHistory bumps the reset watermark and deletes per-user rows from
// every dependent table in the fixed order, rebuilding both FTS virtual
// tables around the messages delete. Lock/busy errors retry with
// exponential backoff; a "SQL logic error" on the messages step triggers
// an FTS repair before retrying.
func (s *MessageStore) ClearHistory(ctx context.Context, userID string) error {
	return withRetry(ctx, func() error {
		s.db.WriteMu.Lock()
		defer s.db.WriteMu.Unlock()

		tx, err := s.db.WriteDB().BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("clear history: begin tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS messages_fts`); err != nil {
			return fmt.Errorf("clear history: drop messages_fts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`CREATE VIRTUAL TABLE messages_fts USING fts5(content, user_id UNINDEXED, message_id UNINDEXED, content='messages', content_rowid='id')`); err != nil {
			return fmt.Errorf("clear history: recreate messages_fts: %w", err)
		}

		for _, table := range deleteOrder {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table), userID)
			if err != nil && isSQLLogicError(err) && table == "messages" {
				if _, rerr := tx.ExecContext(ctx, `DROP TABLE IF EXISTS messages_fts`); rerr != nil {
					return fmt.Errorf("clear history: repair messages_fts: %w", rerr)
				}
				if _, rerr := tx.ExecContext(ctx,
					`CREATE VIRTUAL TABLE messages_fts USING fts5(content, user_id UNINDEXED, message_id UNINDEXED, content='messages', content_rowid='id')`); rerr != nil {
					return fmt.Errorf("clear history: repair messages_fts: %w", rerr)
				}
				_, err = tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE user_id = ?`, table), userID)
			}
			if err != nil {
				return fmt.Errorf("clear history: delete %s: %w", table, err)
			}
		}

		now := nowFunc()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO history_resets (user_id, reset_at) VALUES (?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET reset_at = excluded.reset_at`,
			userID, now); err != nil {
			return fmt.Errorf("clear history: upsert watermark: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS memories_fts`); err != nil {
			return fmt.Errorf("clear history: drop memories_fts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`CREATE VIRTUAL TABLE memories_fts USING fts5(summary, user_id UNINDEXED, memory_id UNINDEXED, content='memories', content_rowid='id')`); err != nil {
			return fmt.Errorf("clear history: recreate memories_fts: %w", err)
		}

		return tx.Commit()
	})
}

// Search runs the FTS-then-semantic merge-and-rerank contract.
func (s *MessageStore) Search(ctx context.Context, userID, query string, k int) ([]SearchResult, error) {
	resetAt, err := s.resetWatermark(ctx, userID)
	if err != nil {
		return nil, err
	}

	ftsResults, err := s.searchFTS(ctx, userID, query, resetAt, k*2)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ftsResults))
	merged := make([]SearchResult, 0, len(ftsResults))
	for _, r := range ftsResults {
		if !seen[r.Content] {
			seen[r.Content] = true
			merged = append(merged, r)
		}
	}

	tokens := tokenPattern.FindAllString(query, -1)
	if s.Embedder != nil && len(tokens) >= 4 && len(query) >= 18 {
		semantic, err := s.searchSemantic(ctx, userID, query, resetAt, k*2)
		if err == nil {
			for _, r := range semantic {
				if !seen[r.Content] {
					seen[r.Content] = true
					merged = append(merged, r)
				}
			}
		}
	}

	if len(merged) > 2*k && s.Reranker != nil {
		candidates := make([]string, len(merged))
		for i, r := range merged {
			candidates[i] = r.Content
		}
		if order, err := s.Reranker.Rerank(ctx, query, candidates); err == nil && len(order) > 0 {
			reordered := make([]SearchResult, 0, len(merged))
			for _, idx := range order {
				if idx >= 0 && idx < len(merged) {
					reordered = append(reordered, merged[idx])
				}
			}
			merged = reordered
		}
	}

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

func (s *MessageStore) searchFTS(ctx context.Context, userID, query string, resetAt int64, limit int) ([]SearchResult, error) {
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT content FROM messages_fts
		WHERE messages_fts MATCH ? AND user_id = ? AND message_id IN (
			SELECT id FROM messages WHERE user_id = ? AND timestamp > ?
		)
		LIMIT ?`, sanitized, userID, userID, resetAt, limit)
	if err != nil {
		return nil, fmt.Errorf("search fts messages: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		out = append(out, SearchResult{Content: content, Source: "fts"})
	}

	memRows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT summary FROM memories_fts WHERE memories_fts MATCH ? AND user_id = ? LIMIT ?`,
		sanitized, userID, limit)
	if err != nil {
		return out, nil
	}
	defer memRows.Close()
	for memRows.Next() {
		var summary string
		if err := memRows.Scan(&summary); err != nil {
			continue
		}
		out = append(out, SearchResult{Content: summary, Source: "fts"})
	}
	return out, rows.Err()
}

func (s *MessageStore) searchSemantic(ctx context.Context, userID, query string, resetAt int64, limit int) ([]SearchResult, error) {
	vectors, err := s.Embedder.Embed(ctx, []string{query}, "")
	if err != nil || len(vectors) == 0 {
		return nil, err
	}
	queryVec := vectors[0]

	rows, err := s.db.ReadDB().QueryContext(ctx, `
		SELECT content, embedding FROM message_vectors
		WHERE user_id = ? AND timestamp > ? ORDER BY timestamp DESC LIMIT 200`, userID, resetAt)
	if err != nil {
		return nil, fmt.Errorf("search semantic: %w", err)
	}
	defer rows.Close()

	type scored struct {
		content string
		score   float64
	}
	var candidates []scored
	for rows.Next() {
		var content string
		var blob []byte
		if err := rows.Scan(&content, &blob); err != nil {
			continue
		}
		plain, err := s.db.Cipher.Decrypt(content)
		if err != nil {
			continue
		}
		vec := decodeEmbedding(blob)
		candidates = append(candidates, scored{content: plain, score: cosineSimilarity(queryVec, vec)})
	}

	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score > candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = SearchResult{Content: c.content, Source: "semantic"}
	}
	return out, rows.Err()
}

// WriteVector persists an embedding for a message, enforcing the
// embedding_dim invariant set on first write.
func (s *MessageStore) WriteVector(ctx context.Context, messageID int64, userID, role, content string, timestamp int64, embedding []float32) error {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	var dimStr string
	err := s.db.WriteDB().QueryRowContext(ctx, `SELECT value FROM message_vector_meta WHERE key = 'embedding_dim'`).Scan(&dimStr)
	if isNoRows(err) {
		_, err = s.db.WriteDB().ExecContext(ctx,
			`INSERT INTO message_vector_meta (key, value) VALUES ('embedding_dim', ?), ('schema_version', '1')`,
			fmt.Sprintf("%d", len(embedding)))
		if err != nil {
			return fmt.Errorf("write vector: init meta: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("write vector: read meta: %w", err)
	} else {
		var dim int
		fmt.Sscanf(dimStr, "%d", &dim)
		if dim != len(embedding) {
			return &dimensionMismatchError{expected: dim, actual: len(embedding)}
		}
	}

	// message_vectors.content duplicates messages.content for the
	// semantic search arm only; unlike messages.content it feeds no FTS5
	// table, so it is field-encrypted like every other store's payload
	// columns.
	encContent, err := s.db.Cipher.Encrypt(content)
	if err != nil {
		return fmt.Errorf("write vector: encrypt: %w", err)
	}

	blob := encodeEmbedding(embedding)
	_, err = s.db.WriteDB().ExecContext(ctx, `
		INSERT INTO message_vectors (message_id, user_id, role, content, timestamp, embedding)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET embedding = excluded.embedding`,
		messageID, userID, role, encContent, timestamp, blob)
	if err != nil {
		return fmt.Errorf("write vector: %w", err)
	}
	return nil
}

// CountAssistantMessages returns how many assistant-role rows exist for
// userID newer than the reset watermark, the signal persistTurn uses to
// decide whether an assistant-message count threshold has been crossed
// (spec.md §3 Lifecycles: "async summarization when the assistant-message
// count exceeds a threshold").
func (s *MessageStore) CountAssistantMessages(ctx context.Context, userID string) (int64, error) {
	resetAt, err := s.resetWatermark(ctx, userID)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.db.ReadDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = ? AND role = 'assistant' AND timestamp > ?`,
		userID, resetAt).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assistant messages: %w", err)
	}
	return n, nil
}

// InsertMemory appends one row to the memories table (and, via trigger,
// memories_fts), the durable form a periodic summarization writes.
func (s *MessageStore) InsertMemory(ctx context.Context, userID, summary, tags string, salience float64, createdAt int64) (int64, error) {
	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	res, err := s.db.WriteDB().ExecContext(ctx,
		`INSERT INTO memories (user_id, summary, tags, salience, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, summary, tags, salience, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}
	return res.LastInsertId()
}

// DeleteOlderThan implements the optional retention policy from spec.md
// §3: delete messages (and their vectors) older than olderThanDays for
// userID. A non-positive olderThanDays disables retention.
func (s *MessageStore) DeleteOlderThan(ctx context.Context, userID string, olderThanDays int, now int64) error {
	if olderThanDays <= 0 {
		return nil
	}
	cutoff := now - int64(olderThanDays)*86400

	s.db.WriteMu.Lock()
	defer s.db.WriteMu.Unlock()

	if _, err := s.db.WriteDB().ExecContext(ctx,
		`DELETE FROM message_vectors WHERE user_id = ? AND timestamp < ? AND message_id IN (SELECT id FROM messages WHERE user_id = ? AND timestamp < ?)`,
		userID, cutoff, userID, cutoff); err != nil {
		return fmt.Errorf("retention: delete vectors: %w", err)
	}
	if _, err := s.db.WriteDB().ExecContext(ctx,
		`DELETE FROM messages WHERE user_id = ? AND timestamp < ?`, userID, cutoff); err != nil {
		return fmt.Errorf("retention: delete messages: %w", err)
	}
	return nil
}

type dimensionMismatchError struct {
	expected, actual int
}

func (e *dimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension_mismatch: expected %d, got %d", e.expected, e.actual)
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
