package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CreateProject registers a project room. The id may be supplied by the
// provisioning side; when empty a new one is generated.
func (db *DB) CreateProject(id, name string) (*Project, error) {
	if id == "" {
		id = uuid.New().String()
	}
	p := &Project{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err := db.Exec(`
		INSERT INTO projects (id, name, last_seq, created_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns a project or ErrProjectNotFound.
func (db *DB) GetProject(id string) (*Project, error) {
	var p Project
	err := db.QueryRow(`
		SELECT id, name, last_seq, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.LastSeq, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
