// repository/borrowing/repo.go
package borrowingrepo

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/KittNeKit/BookWise/model"
)

// Row is a borrowing joined with the book and borrower fields the API and
// the overdue sweep render.
type Row struct {
	model.Borrowing
	BookTitle string `json:"book_title"`
	UserEmail string `json:"user_email"`
}

type Repo interface {
	Insert(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)
	MarkReturned(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error

	List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error)
	Detail(ctx context.Context, id int64) (*Row, error)

	// ListDueBy feeds the overdue sweep: open borrowings whose expected
	// return date is at or before the deadline.
	ListDueBy(ctx context.Context, deadline time.Time) ([]Row, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Insert(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error) {
	const q = `
INSERT INTO borrowings (user_id, book_id, borrow_date, expected_return_date)
VALUES ($1,$2,$3,$4)
RETURNING id`
	var id int64
	if err := tx.QueryRowContext(ctx, q, userID, bookID, borrowDate, expected).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetForUpdate locks the borrowing row so a concurrent return sees the
// first caller's actual_return_date instead of racing it.
func (r *repo) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
	const q = `
SELECT id, user_id, book_id, borrow_date, expected_return_date, actual_return_date
FROM borrowings
WHERE id = $1
FOR UPDATE`
	var b model.Borrowing
	err := tx.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.UserID, &b.BookID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) MarkReturned(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	const q = `
UPDATE borrowings
SET actual_return_date = $2
WHERE id = $1
AND actual_return_date IS NULL`
	res, err := tx.ExecContext(ctx, q, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const selectRow = `
SELECT br.id, br.user_id, br.book_id, br.borrow_date, br.expected_return_date, br.actual_return_date,
       b.title AS book_title, u.email AS user_email
FROM borrowings br
JOIN books b ON b.id = br.book_id
JOIN users u ON u.id = br.user_id`

func (r *repo) List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error) {
	q := selectRow
	var args []any
	var conds []string

	if scope.Staff {
		if scope.FilterUserID > 0 {
			args = append(args, scope.FilterUserID)
			conds = append(conds, "br.user_id = $"+strconv.Itoa(len(args)))
		}
	} else {
		args = append(args, scope.UserID)
		conds = append(conds, "br.user_id = $"+strconv.Itoa(len(args)))
	}
	if onlyActive {
		conds = append(conds, "br.actual_return_date IS NULL")
	}
	for i, c := range conds {
		if i == 0 {
			q += "\nWHERE " + c
		} else {
			q += "\nAND " + c
		}
	}
	q += "\nORDER BY br.id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (r *repo) Detail(ctx context.Context, id int64) (*Row, error) {
	q := selectRow + "\nWHERE br.id = $1"
	var row Row
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&row.ID, &row.UserID, &row.BookID, &row.BorrowDate, &row.ExpectedReturnDate, &row.ActualReturnDate,
		&row.BookTitle, &row.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) ListDueBy(ctx context.Context, deadline time.Time) ([]Row, error) {
	q := selectRow + `
WHERE br.actual_return_date IS NULL
AND br.expected_return_date <= $1
ORDER BY br.expected_return_date`
	rows, err := r.db.QueryContext(ctx, q, deadline)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(
			&row.ID, &row.UserID, &row.BookID, &row.BorrowDate, &row.ExpectedReturnDate, &row.ActualReturnDate,
			&row.BookTitle, &row.UserEmail,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
