package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendMessage appends a message to a project's log and assigns its
// ordering key. The sequence bump and the insert share one transaction, so
// concurrent appends for the same project always claim distinct,
// totally-ordered keys. Validation of body/attachment happens upstream.
func (db *DB) AppendMessage(projectID string, sender Sender, body string, att *Attachment) (*Message, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE projects SET last_seq = last_seq + 1 WHERE id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("claim seq: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrProjectNotFound
	}

	var seq int64
	if err := tx.QueryRow(`SELECT last_seq FROM projects WHERE id = ?`, projectID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("read seq: %w", err)
	}

	kind := KindText
	if att != nil {
		kind = KindFile
	}
	m := &Message{
		ID:         uuid.New().String(),
		ProjectID:  projectID,
		Seq:        seq,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Body:       body,
		Kind:       kind,
		Attachment: att,
		CreatedAt:  time.Now().UnixMilli(),
	}

	var attName, attMIME, attURL, attKey sql.NullString
	var attSize sql.NullInt64
	if att != nil {
		attName = sql.NullString{String: att.Filename, Valid: true}
		attMIME = sql.NullString{String: att.MIME, Valid: true}
		attSize = sql.NullInt64{Int64: att.Size, Valid: true}
		attURL = sql.NullString{String: att.URL, Valid: true}
		attKey = sql.NullString{String: att.StorageKey, Valid: true}
	}

	if _, err := tx.Exec(`
		INSERT INTO messages (project_id, id, seq, sender_id, sender_name, sender_role, body, kind,
			att_filename, att_mime, att_size, att_url, att_storage_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.ID, m.Seq, m.SenderID, m.SenderName, m.SenderRole, m.Body, m.Kind,
		attName, attMIME, attSize, attURL, attKey, m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// ListMessages returns up to limit messages for a project, oldest to newest.
// When beforeSeq is positive only messages with seq < beforeSeq are
// returned, which gives keyset pagination walking backwards through
// history. Unknown project ids yield ErrProjectNotFound.
func (db *DB) ListMessages(projectID string, limit int, beforeSeq int64) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	var exists int
	if err := db.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	if beforeSeq <= 0 {
		beforeSeq = int64(^uint64(0) >> 1)
	}
	rows, err := db.Query(`
		SELECT id, project_id, seq, sender_id, sender_name, sender_role, body, kind,
			att_filename, att_mime, att_size, att_url, att_storage_key, created_at
		FROM messages
		WHERE project_id = ? AND seq < ?
		ORDER BY seq DESC
		LIMIT ?`, projectID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var attName, attMIME, attURL, attKey sql.NullString
		var attSize sql.NullInt64
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Seq, &m.SenderID, &m.SenderName, &m.SenderRole,
			&m.Body, &m.Kind, &attName, &attMIME, &attSize, &attURL, &attKey, &m.CreatedAt); err != nil {
			return nil, err
		}
		if attName.Valid {
			m.Attachment = &Attachment{
				Filename:   attName.String,
				MIME:       attMIME.String,
				Size:       attSize.Int64,
				URL:        attURL.String,
				StorageKey: attKey.String,
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query walks newest-first to honor the cursor; callers get pages
	// in reading order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
