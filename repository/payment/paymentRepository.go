// repository/payment/repo.go
package paymentrepo

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/KittNeKit/BookWise/model"
)

type Repo interface {
	Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) error

	// BySessionID also reports the borrowing owner so confirmation can
	// build the notification text and callers can scope access.
	BySessionID(ctx context.Context, sessionID string) (*model.Payment, int64, error)
	MarkPaid(ctx context.Context, id int64) error

	List(ctx context.Context, scope model.Scope) ([]model.Payment, error)
	Detail(ctx context.Context, id int64) (*model.Payment, int64, error)
	ByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (status, type, borrowing_id, session_id, session_url, to_pay)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`
	return tx.QueryRowContext(ctx, q,
		p.Status, p.Type, p.BorrowingID, p.SessionID, p.SessionURL, p.ToPay,
	).Scan(&p.ID)
}

const selectPayment = `
SELECT p.id, p.status, p.type, p.borrowing_id, p.session_id, p.session_url, p.to_pay, br.user_id
FROM payments p
JOIN borrowings br ON br.id = p.borrowing_id`

func (r *repo) BySessionID(ctx context.Context, sessionID string) (*model.Payment, int64, error) {
	q := selectPayment + "\nWHERE p.session_id = $1"
	return r.scanOne(ctx, q, sessionID)
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Payment, int64, error) {
	q := selectPayment + "\nWHERE p.id = $1"
	return r.scanOne(ctx, q, id)
}

func (r *repo) scanOne(ctx context.Context, q string, arg any) (*model.Payment, int64, error) {
	var p model.Payment
	var ownerID int64
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&p.ID, &p.Status, &p.Type, &p.BorrowingID, &p.SessionID, &p.SessionURL, &p.ToPay, &ownerID,
	)
	if err != nil {
		return nil, 0, err
	}
	return &p, ownerID, nil
}

// MarkPaid flips PENDING to PAID; a paid payment never goes back.
func (r *repo) MarkPaid(ctx context.Context, id int64) error {
	const q = `
UPDATE payments
SET status = 'PAID'
WHERE id = $1
AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) List(ctx context.Context, scope model.Scope) ([]model.Payment, error) {
	q := selectPayment
	var args []any

	if scope.Staff {
		if scope.FilterUserID > 0 {
			args = append(args, scope.FilterUserID)
			q += "\nWHERE br.user_id = $" + strconv.Itoa(len(args))
		}
	} else {
		args = append(args, scope.UserID)
		q += "\nWHERE br.user_id = $" + strconv.Itoa(len(args))
	}
	q += "\nORDER BY p.id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		var ownerID int64
		if err := rows.Scan(
			&p.ID, &p.Status, &p.Type, &p.BorrowingID, &p.SessionID, &p.SessionURL, &p.ToPay, &ownerID,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) ByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
	const q = `
SELECT id, status, type, borrowing_id, session_id, session_url, to_pay
FROM payments
WHERE borrowing_id = $1
ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, borrowingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.Status, &p.Type, &p.BorrowingID, &p.SessionID, &p.SessionURL, &p.ToPay); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
