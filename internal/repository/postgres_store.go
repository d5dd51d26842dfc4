package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eaglebank/ledger-service/shared/apperr"
	"github.com/eaglebank/ledger-service/shared/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore is the PostgreSQL LedgerStore. WithUser holds a row lock on
// the user for the lifetime of one SQL transaction. An in-process lock per
// user also covers the commit hooks, so they run in commit order.
type PostgresStore struct {
	db    *sql.DB
	locks userLocks
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `
	id, name, email, password_hash, phone_number, address, currency, theme, is_admin,
	balance_checking, balance_savings, balance_usdt,
	id_document_ref, ssn, kyc_status, has_submitted_id_ssn,
	loan_offer, loan_submitted, loan_received,
	investments, notifications, transaction_ids,
	created_at, updated_at`

const transactionColumns = `
	id, user_id, type, amount, method, status, account, date, receipt_ref, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var address, investments, notifications []byte
	var loanOffer decimal.NullDecimal
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.PhoneNumber, &address, &u.Currency, &u.Theme, &u.IsAdmin,
		&u.Balance.Checking, &u.Balance.Savings, &u.Balance.USDT,
		&u.IDDocumentRef, &u.SSN, &u.KYCStatus, &u.HasSubmittedIDSSN,
		&loanOffer, &u.LoanSubmitted, &u.LoanReceived,
		&investments, &notifications, pq.Array(&u.TransactionIDs),
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if loanOffer.Valid {
		offer := loanOffer.Decimal
		u.LoanOffer = &offer
	}
	if err := unmarshalJSONB(address, &u.Address); err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	if err := unmarshalJSONB(investments, &u.Investments); err != nil {
		return nil, fmt.Errorf("failed to decode investments: %w", err)
	}
	if err := unmarshalJSONB(notifications, &u.Notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return &u, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		t       models.Transaction
		receipt sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Method, &t.Status, &t.Account,
		&t.Date, &receipt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("transaction")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if receipt.Valid {
		t.ReceiptRef = receipt.String
	}
	return &t, nil
}

func unmarshalJSONB(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func marshalJSONB(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte("[]"), nil
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	address, err := json.Marshal(u.Address)
	if err != nil {
		return fmt.Errorf("failed to encode address: %w", err)
	}
	query := `
		INSERT INTO users (id, name, email, password_hash, phone_number, address, currency, theme, is_admin,
			balance_checking, balance_savings, balance_usdt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.PhoneNumber, string(address), u.Currency, u.Theme, u.IsAdmin,
		u.Balance.Checking, u.Balance.Savings, u.Balance.USDT, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperr.Validation("email", "email already registered")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *PostgresStore) WithUser(ctx context.Context, userID string, fn func(tx LedgerTx) error) (err error) {
	lock := s.locks.get(userID)
	lock.Lock()
	defer lock.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	user, err := scanUser(sqlTx.QueryRowContext(ctx, query, userID))
	if err != nil {
		return err
	}

	tx := &postgresTx{tx: sqlTx, user: user}
	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	runHooks(tx.hooks)
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return nil, apperr.NotFound("user")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY date DESC, created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AppendNotification(ctx context.Context, userID string, n models.Notification) error {
	entry, err := json.Marshal([]models.Notification{n})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	query := `UPDATE users SET notifications = notifications || $2::jsonb WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, userID, string(entry))
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

type postgresTx struct {
	tx    *sql.Tx
	user  *models.User
	hooks []func()
}

func (t *postgresTx) User() *models.User { return t.user }

func (t *postgresTx) AfterCommit(fn func()) { t.hooks = append(t.hooks, fn) }

func (t *postgresTx) SaveUser(ctx context.Context) error {
	u := t.user
	address, err := json.Marshal(u.Address)
	if err != nil {
		return fmt.Errorf("failed to encode address: %w", err)
	}
	investments, err := marshalJSONB(u.Investments)
	if err != nil {
		return fmt.Errorf("failed to encode investments: %w", err)
	}
	notifications, err := marshalJSONB(u.Notifications)
	if err != nil {
		return fmt.Errorf("failed to encode notifications: %w", err)
	}
	ids := u.TransactionIDs
	if ids == nil {
		ids = []string{}
	}

	query := `
		UPDATE users SET
			name = $2, phone_number = $3, address = $4, currency = $5, theme = $6,
			balance_checking = $7, balance_savings = $8, balance_usdt = $9,
			id_document_ref = $10, ssn = $11, kyc_status = $12, has_submitted_id_ssn = $13,
			loan_offer = $14, loan_submitted = $15, loan_received = $16,
			investments = $17, notifications = $18, transaction_ids = $19,
			updated_at = $20
		WHERE id = $1
	`
	_, err = t.tx.ExecContext(ctx, query,
		u.ID, u.Name, u.PhoneNumber, string(address), u.Currency, u.Theme,
		u.Balance.Checking, u.Balance.Savings, u.Balance.USDT,
		u.IDDocumentRef, u.SSN, u.KYCStatus, u.HasSubmittedIDSSN,
		nullDecimal(u.LoanOffer), u.LoanSubmitted, u.LoanReceived,
		string(investments), string(notifications), pq.Array(ids),
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (t *postgresTx) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(t.tx.QueryRowContext(ctx, query, id))
}

func (t *postgresTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, type, amount, method, status, account, date, receipt_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := t.tx.ExecContext(ctx, query,
		txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Method, txn.Status, txn.Account,
		txn.Date, nullString(txn.ReceiptRef), txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateTransaction(ctx context.Context, txn *models.Transaction) error {
	query := `
		UPDATE transactions
		SET type = $2, amount = $3, method = $4, status = $5, account = $6, date = $7, receipt_ref = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query,
		txn.ID, txn.Type, txn.Amount, txn.Method, txn.Status, txn.Account,
		txn.Date, nullString(txn.ReceiptRef), txn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return expectOneRow(result, "transaction")
}

func (t *postgresTx) DeleteTransaction(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return expectOneRow(result, "transaction")
}

func expectOneRow(result sql.Result, resource string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return apperr.NotFound(resource)
	}
	return nil
}
