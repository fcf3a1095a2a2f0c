// Package inbox deduplicates consumed events by id.
package inbox

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicops/libs/db"
)

// Store records processed event ids. Record reports false when the id was seen before.
type Store interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	// Forget releases an id whose handling failed so a redelivery is processed again.
	Forget(ctx context.Context, eventID string) error
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}

	return false, err
}

func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}

// Memory is the in-process Store used with the memory storage driver.
type Memory struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]string)}
}

func (m *Memory) Record(_ context.Context, eventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = eventType
	return true, nil
}

func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}
