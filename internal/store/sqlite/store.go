// Package sqlite provides SQLite-backed session, prompt and customer stores
// with the same method set as the in-memory stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists records in one SQLite database file. The process opens one
// Store per logical store so sessions, prompts and customers never share a file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writers; every read-modify-write below runs
	// inside a transaction on it.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func fromNullable(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Sessions

const sessionColumns = `id, owner_id, phone, state, pairing_artifact, created_at, updated_at, deleted`

func scanSession(row rowScanner) (model.Session, error) {
	var (
		sess     model.Session
		state    string
		artifact sql.NullString
		deleted  int
	)
	if err := row.Scan(&sess.ID, &sess.OwnerID, &sess.Phone, &state, &artifact, &sess.CreatedAt, &sess.UpdatedAt, &deleted); err != nil {
		return model.Session{}, err
	}
	sess.State = model.SessionState(state)
	sess.PairingArtifact = fromNullable(artifact)
	sess.Deleted = deleted != 0
	return sess, nil
}

func (s *Store) CreateSession(ctx context.Context, ownerID, phone string, nowMillis int64) (model.Session, error) {
	if ownerID == "" {
		return model.Session{}, apperr.InvalidArgument("missing owner id")
	}
	if phone == "" {
		return model.Session{}, apperr.InvalidArgument("missing phone")
	}
	sess := model.Session{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Phone:     phone,
		State:     model.SessionPending,
		CreatedAt: nowMillis,
		UpdatedAt: nowMillis,
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, NULL, ?, ?, 0)`,
		sess.ID, sess.OwnerID, sess.Phone, string(sess.State), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	sess, err := s.LookupSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Deleted {
		return model.Session{}, apperr.NotFound("session not found")
	}
	return sess, nil
}

func (s *Store) LookupSession(ctx context.Context, sessionID string) (model.Session, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, apperr.NotFound("session not found")
		}
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *Store) querySessions(ctx context.Context, where string, args ...any) ([]model.Session, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE deleted = 0`+where+` ORDER BY updated_at DESC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	result := make([]model.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return result, nil
}

func (s *Store) ListSessions(ctx context.Context, ownerID string) ([]model.Session, error) {
	if ownerID == "" {
		return s.querySessions(ctx, "")
	}
	return s.querySessions(ctx, " AND owner_id = ?", ownerID)
}

func (s *Store) ListSessionsByPhone(ctx context.Context, phone string) ([]model.Session, error) {
	return s.querySessions(ctx, " AND phone = ?", phone)
}

func (s *Store) ListSessionsByState(ctx context.Context, states ...model.SessionState) ([]model.Session, error) {
	if len(states) == 0 {
		return []model.Session{}, nil
	}
	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}
	return s.querySessions(ctx, " AND state IN ("+strings.Join(placeholders, ", ")+")", args...)
}

func (s *Store) UpdateSession(ctx context.Context, sessionID string, mutate func(*model.Session) error, nowMillis int64) (model.Session, error) {
	var result model.Session
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ? AND deleted = 0`, sessionID)
		sess, err := scanSession(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("session not found")
			}
			return fmt.Errorf("load session: %w", err)
		}
		result = sess
		next := sess
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID = sess.ID
		next.UpdatedAt = nowMillis
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET owner_id = ?, phone = ?, state = ?, pairing_artifact = ?, updated_at = ? WHERE id = ?`,
			next.OwnerID, next.Phone, string(next.State), nullable(next.PairingArtifact), next.UpdatedAt, next.ID,
		); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		result = next
		return nil
	})
	return result, err
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string, guard func(model.Session) error, nowMillis int64) (model.Session, error) {
	var result model.Session
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
		sess, err := scanSession(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("session not found")
			}
			return fmt.Errorf("load session: %w", err)
		}
		result = sess
		if sess.Deleted {
			return nil
		}
		if guard != nil {
			if err := guard(sess); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET deleted = 1, pairing_artifact = NULL, updated_at = ? WHERE id = ?`,
			nowMillis, sessionID,
		); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		result.Deleted = true
		result.PairingArtifact = nil
		result.UpdatedAt = nowMillis
		return nil
	})
	return result, err
}

// Prompts

const promptColumns = `id, owner_id, phone, text, status, origin_id, created_at, updated_at`

func scanPrompt(row rowScanner) (model.Prompt, error) {
	var (
		p      model.Prompt
		status string
		origin sql.NullString
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Phone, &p.Text, &status, &origin, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Prompt{}, err
	}
	p.Status = model.PromptStatus(status)
	p.OriginID = fromNullable(origin)
	return p, nil
}

func (s *Store) CreatePrompt(ctx context.Context, p model.Prompt, nowMillis int64) (model.Prompt, error) {
	if p.OwnerID == "" || p.Phone == "" || p.Text == "" {
		return model.Prompt{}, apperr.InvalidArgument("owner, phone and text are required")
	}
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = model.PromptInactive
	}
	p.CreatedAt = nowMillis
	p.UpdatedAt = nowMillis
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO prompts (`+promptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Phone, p.Text, string(p.Status), nullable(p.OriginID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return model.Prompt{}, fmt.Errorf("insert prompt: %w", err)
	}
	return p, nil
}

func (s *Store) GetPrompt(ctx context.Context, promptID string) (model.Prompt, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, promptID)
	p, err := scanPrompt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Prompt{}, apperr.NotFound("prompt not found")
		}
		return model.Prompt{}, fmt.Errorf("get prompt: %w", err)
	}
	return p, nil
}

func (s *Store) ListPrompts(ctx context.Context, ownerID string) ([]model.Prompt, error) {
	query := `SELECT ` + promptColumns + ` FROM prompts`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY updated_at DESC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	result := make([]model.Prompt, 0)
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompts: %w", err)
	}
	return result, nil
}

func (s *Store) UpdatePrompt(ctx context.Context, promptID string, mutate func(*model.Prompt) error, nowMillis int64) (model.Prompt, error) {
	var result model.Prompt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, promptID)
		p, err := scanPrompt(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("prompt not found")
			}
			return fmt.Errorf("load prompt: %w", err)
		}
		result = p
		next := p
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID = p.ID
		next.UpdatedAt = nowMillis
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompts SET owner_id = ?, phone = ?, text = ?, status = ?, origin_id = ?, updated_at = ? WHERE id = ?`,
			next.OwnerID, next.Phone, next.Text, string(next.Status), nullable(next.OriginID), next.UpdatedAt, next.ID,
		); err != nil {
			return fmt.Errorf("update prompt: %w", err)
		}
		result = next
		return nil
	})
	return result, err
}

// ActivatePrompt deactivates the active siblings and activates the target in
// one transaction.
func (s *Store) ActivatePrompt(ctx context.Context, promptID string, nowMillis int64) (model.Prompt, error) {
	var result model.Prompt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, promptID)
		target, err := scanPrompt(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("prompt not found")
			}
			return fmt.Errorf("load prompt: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompts SET status = ?, updated_at = ?
			 WHERE owner_id = ? AND phone = ? AND status = ? AND id <> ?`,
			string(model.PromptInactive), nowMillis, target.OwnerID, target.Phone, string(model.PromptActive), target.ID,
		); err != nil {
			return fmt.Errorf("deactivate sibling prompts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompts SET status = ?, updated_at = ? WHERE id = ?`,
			string(model.PromptActive), nowMillis, target.ID,
		); err != nil {
			return fmt.Errorf("activate prompt: %w", err)
		}
		target.Status = model.PromptActive
		target.UpdatedAt = nowMillis
		result = target
		return nil
	})
	return result, err
}

func (s *Store) DeletePrompt(ctx context.Context, promptID string, guard func(model.Prompt) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+promptColumns+` FROM prompts WHERE id = ?`, promptID)
		p, err := scanPrompt(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("prompt not found")
			}
			return fmt.Errorf("load prompt: %w", err)
		}
		if guard != nil {
			if err := guard(p); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM prompts WHERE id = ?`, promptID); err != nil {
			return fmt.Errorf("delete prompt: %w", err)
		}
		return nil
	})
}

// Customers

const customerColumns = `id, payment_method_id, tokens_remaining, last_charge_at, created_at, updated_at`

func scanCustomer(row rowScanner) (model.Customer, error) {
	var c model.Customer
	if err := row.Scan(&c.ID, &c.PaymentMethodID, &c.TokensRemaining, &c.LastChargeAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

func (s *Store) GetCustomer(ctx context.Context, customerID string) (model.Customer, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = ?`, customerID)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Customer{}, apperr.NotFound("customer not found")
		}
		return model.Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	result := make([]model.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return result, nil
}

func (s *Store) SetPaymentMethod(ctx context.Context, customerID, paymentMethodID string, nowMillis int64) (model.Customer, error) {
	if customerID == "" {
		return model.Customer{}, apperr.InvalidArgument("missing customer id")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO customers (id, payment_method_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET payment_method_id = excluded.payment_method_id, updated_at = excluded.updated_at`,
		customerID, paymentMethodID, nowMillis, nowMillis,
	)
	if err != nil {
		return model.Customer{}, fmt.Errorf("set payment method: %w", err)
	}
	return s.GetCustomer(ctx, customerID)
}

func (s *Store) CreditTokens(ctx context.Context, customerID string, tokens int64, nowMillis int64) (model.Customer, error) {
	if customerID == "" {
		return model.Customer{}, apperr.InvalidArgument("missing customer id")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO customers (id, tokens_remaining, last_charge_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET tokens_remaining = tokens_remaining + excluded.tokens_remaining,
		   last_charge_at = excluded.last_charge_at, updated_at = excluded.updated_at`,
		customerID, tokens, nowMillis, nowMillis, nowMillis,
	)
	if err != nil {
		return model.Customer{}, fmt.Errorf("credit tokens: %w", err)
	}
	return s.GetCustomer(ctx, customerID)
}
