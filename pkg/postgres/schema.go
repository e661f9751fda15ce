package postgres

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. The descending composite index is what makes
// keyset pagination depth-independent.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	account_number TEXT NOT NULL UNIQUE,
	balance        BIGINT NOT NULL DEFAULT 0,
	currency       CHAR(3) NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL REFERENCES accounts(id),
	type        TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
	amount      BIGINT NOT NULL CHECK (amount > 0),
	currency    CHAR(3) NOT NULL,
	description TEXT,
	status      TEXT NOT NULL DEFAULT 'completed',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_created
	ON transactions (account_id, created_at DESC, id DESC);
`

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
