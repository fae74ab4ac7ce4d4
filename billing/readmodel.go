package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"corebank/app"
	"corebank/shared"
)

// ReadModel answers the fan-out's "who needs a billing cycle" query. It is a
// projection maintained off the event bus, not the journal itself.
type ReadModel interface {
	// ActiveAccountIDs returns active accounts whose last billing cycle is
	// unset or older than the cutoff.
	ActiveAccountIDs(ctx context.Context, cutoff time.Time) ([]shared.AccountID, error)
}

// PGReadModel queries the SQL projection.
type PGReadModel struct {
	pool *pgxpool.Pool
}

func NewPGReadModel(pool *pgxpool.Pool) *PGReadModel {
	return &PGReadModel{pool: pool}
}

func (m *PGReadModel) ActiveAccountIDs(ctx context.Context, cutoff time.Time) ([]shared.AccountID, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT id FROM accounts
		 WHERE status = 'Active'
		   AND (last_billing_cycle_date IS NULL OR last_billing_cycle_date < $1)`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("query active accounts: %w", err)
	}
	defer rows.Close()

	var ids []shared.AccountID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, shared.AccountID(id))
	}
	return ids, rows.Err()
}

// PGStatementStore persists monthly statements, lines as jsonb.
type PGStatementStore struct {
	pool *pgxpool.Pool
}

func NewPGStatementStore(pool *pgxpool.Pool) *PGStatementStore {
	return &PGStatementStore{pool: pool}
}

func (s *PGStatementStore) Append(ctx context.Context, st *app.Statement) error {
	lines, err := json.Marshal(st.Lines)
	if err != nil {
		return fmt.Errorf("marshal statement lines: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO billing_statements
		   (account_id, month, year, opening_balance, closing_balance, lines)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (account_id, month, year) DO NOTHING`,
		string(st.AccountID), st.Period.Month, st.Period.Year,
		st.OpeningBalance, st.ClosingBalance, lines)
	if err != nil {
		return fmt.Errorf("insert statement: %w", err)
	}
	return nil
}

// MemoryReadModel is the in-process projection used by tests and the demo
// wiring.
type MemoryReadModel struct {
	mu       sync.Mutex
	active   map[shared.AccountID]time.Time
	hasCycle map[shared.AccountID]bool
}

func NewMemoryReadModel() *MemoryReadModel {
	return &MemoryReadModel{
		active:   make(map[shared.AccountID]time.Time),
		hasCycle: make(map[shared.AccountID]bool),
	}
}

// SetActive records an active account and its last billing cycle date; a zero
// time means no cycle has run yet.
func (m *MemoryReadModel) SetActive(id shared.AccountID, lastCycle time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = lastCycle
	m.hasCycle[id] = !lastCycle.IsZero()
}

func (m *MemoryReadModel) Remove(id shared.AccountID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	delete(m.hasCycle, id)
}

func (m *MemoryReadModel) ActiveAccountIDs(_ context.Context, cutoff time.Time) ([]shared.AccountID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []shared.AccountID
	for id, last := range m.active {
		if !m.hasCycle[id] || last.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MemoryStatementStore collects statements per account.
type MemoryStatementStore struct {
	mu         sync.Mutex
	statements map[shared.AccountID][]*app.Statement
}

func NewMemoryStatementStore() *MemoryStatementStore {
	return &MemoryStatementStore{statements: make(map[shared.AccountID][]*app.Statement)}
}

func (s *MemoryStatementStore) Append(_ context.Context, st *app.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[st.AccountID] = append(s.statements[st.AccountID], st)
	return nil
}

func (s *MemoryStatementStore) Of(id shared.AccountID) []*app.Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*app.Statement(nil), s.statements[id]...)
}
