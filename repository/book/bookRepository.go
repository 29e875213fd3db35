package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KittNeKit/BookWise/model"
)

// ErrInventory is returned when an adjust would push inventory below zero.
var ErrInventory = errors.New("inventory would go negative")

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)

	// Transactional pieces used by the borrowing lifecycle.
	LockForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
	AdjustInventory(ctx context.Context, tx *sql.Tx, id, delta int64) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
INSERT INTO books (title, author, cover, inventory, daily_fee)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`
	return r.db.QueryRowContext(ctx, q, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee).Scan(&b.ID)
}

func (r *repo) Update(ctx context.Context, b *model.Book) error {
	const q = `
UPDATE books
SET title=$2, author=$3, cover=$4, inventory=$5, daily_fee=$6
WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, b.ID, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	// borrowings and their payments go with the book (ON DELETE CASCADE)
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
WHERE id=$1`
	var b model.Book
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
		return nil, err
	}
	return &b, nil
}

// LockForUpdate serializes concurrent borrow/return writers on one book row.
func (r *repo) LockForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	const q = `
SELECT id, title, author, cover, inventory, daily_fee
FROM books
WHERE id=$1
FOR UPDATE`
	var b model.Book
	if err := tx.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
		return nil, err
	}
	return &b, nil
}

// AdjustInventory applies delta with a never-below-zero guard in the UPDATE
// itself, so the check and the write are one statement.
func (r *repo) AdjustInventory(ctx context.Context, tx *sql.Tx, id, delta int64) error {
	const q = `
UPDATE books
SET inventory = inventory + $2
WHERE id = $1
AND inventory + $2 >= 0`
	res, err := tx.ExecContext(ctx, q, id, delta)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInventory
	}
	return nil
}
