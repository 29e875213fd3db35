package borrowingsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KittNeKit/BookWise/model"
	bookrepo "github.com/KittNeKit/BookWise/repository/book"
	borrowingrepo "github.com/KittNeKit/BookWise/repository/borrowing"
	telegramrepo "github.com/KittNeKit/BookWise/repository/telegram"
	paymentsvc "github.com/KittNeKit/BookWise/service/payment"
)

// errors used by controllers

type ErrCode string

const (
	ErrNoInventory     ErrCode = "INSUFFICIENT_INVENTORY"
	ErrBookNotFound    ErrCode = "BOOK_NOT_FOUND"
	ErrBadExpectedDate ErrCode = "BAD_EXPECTED_DATE"
	ErrAlreadyReturned ErrCode = "ALREADY_RETURNED"
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrPaymentSession  ErrCode = "PAYMENT_SESSION_FAILED"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// A late return costs double the daily fee per overdue day.
const fineMultiplier = 2

// dto

type Created struct {
	Borrowing model.Borrowing `json:"borrowing"`
	Payment   model.Payment   `json:"payment"`
}

// Row = repository shape
type Row = borrowingrepo.Row

// Detail nests the book and every payment of the borrowing.
type Detail struct {
	Row
	Book     *model.Book     `json:"book,omitempty"`
	Payments []model.Payment `json:"payments"`
}

type Books interface {
	LockForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
	AdjustInventory(ctx context.Context, tx *sql.Tx, id, delta int64) error
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type Borrowings interface {
	Insert(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)
	MarkReturned(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error)
	Detail(ctx context.Context, id int64) (*Row, error)
}

type Payments interface {
	Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	ByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error)
}

type Users interface {
	EmailByID(ctx context.Context, id int64) (string, error)
}

type Service interface {
	// Create: borrow a book, charging for the planned period up front.
	Create(ctx context.Context, userID, bookID int64, expected time.Time) (*Created, error)

	// Return: close the borrowing, restock the book, fine a late return.
	Return(ctx context.Context, borrowingID int64) error

	List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error)
	Detail(ctx context.Context, scope model.Scope, id int64) (*Detail, error)
}

// ----- Service implementation -----

type service struct {
	db         *sql.DB
	borrowings Borrowings
	books      Books
	payments   Payments
	users      Users
	sessions   paymentsvc.SessionOpener
	notifier   telegramrepo.Notifier
	log        *slog.Logger
}

func New(
	db *sql.DB,
	borrowings Borrowings,
	books Books,
	payments Payments,
	users Users,
	sessions paymentsvc.SessionOpener,
	notifier telegramrepo.Notifier,
	log *slog.Logger,
) Service {
	return &service{
		db:         db,
		borrowings: borrowings,
		books:      books,
		payments:   payments,
		users:      users,
		sessions:   sessions,
		notifier:   notifier,
		log:        log,
	}
}

// wholeDays truncates a duration to full 24h days, toward zero.
func wholeDays(d time.Duration) int64 {
	return int64(d / (24 * time.Hour))
}

// Create decrements inventory, inserts the borrowing and opens the checkout
// session for the borrow charge, all in one transaction. A gateway failure
// rolls everything back; only the notification runs outside.
func (s *service) Create(ctx context.Context, userID, bookID int64, expected time.Time) (*Created, error) {
	now := time.Now().UTC()

	days := wholeDays(expected.Sub(now))
	if days < 1 {
		return nil, makeErr(ErrBadExpectedDate)
	}

	email, err := s.users.EmailByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	book, err := s.books.LockForUpdate(ctx, tx, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrBookNotFound)
		}
		return nil, err
	}

	if err = s.books.AdjustInventory(ctx, tx, bookID, -1); err != nil {
		if errors.Is(err, bookrepo.ErrInventory) {
			return nil, makeErr(ErrNoInventory)
		}
		return nil, err
	}

	borrowingID, err := s.borrowings.Insert(ctx, tx, userID, bookID, now, expected)
	if err != nil {
		return nil, err
	}

	amount := book.DailyFee.Mul(decimal.NewFromInt(days))
	sess, err := s.sessions.Open(ctx, paymentsvc.OpenSessionReq{
		BorrowingID: borrowingID,
		BookTitle:   book.Title,
		UserEmail:   email,
		Amount:      amount,
		Kind:        model.TypePayment,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", makeErr(ErrPaymentSession), err)
		return nil, err
	}

	payment := model.Payment{
		Status:      model.PaymentPending,
		Type:        model.TypePayment,
		BorrowingID: borrowingID,
		SessionID:   sess.ID,
		SessionURL:  sess.URL,
		ToPay:       sess.ToPay,
	}
	if err = s.payments.Insert(ctx, tx, &payment); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	s.notifyCreated(ctx, email, book, expected)

	return &Created{
		Borrowing: model.Borrowing{
			ID:                 borrowingID,
			BorrowDate:         now,
			ExpectedReturnDate: expected,
			BookID:             bookID,
			UserID:             userID,
		},
		Payment: payment,
	}, nil
}

func (s *service) notifyCreated(ctx context.Context, email string, book *model.Book, expected time.Time) {
	text := fmt.Sprintf(
		"New borrowing created by %s: \nBook: %s, \nbook left: %d, \nExpected return date: %s.",
		email, book.Title, book.Inventory-1, expected.Format(time.DateOnly),
	)
	if err := s.notifier.Send(ctx, text); err != nil {
		s.log.Warn("borrowing created notification failed", "err", err)
	}
}

// Return closes the borrowing exactly once. The FOR UPDATE read serializes
// concurrent returns, so the loser observes ALREADY_RETURNED and the
// inventory increment happens a single time.
func (s *service) Return(ctx context.Context, borrowingID int64) (err error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	b, err := s.borrowings.GetForUpdate(ctx, tx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	if b.ActualReturnDate != nil {
		return makeErr(ErrAlreadyReturned)
	}

	if err = s.borrowings.MarkReturned(ctx, tx, borrowingID, now); err != nil {
		return err
	}

	book, err := s.books.LockForUpdate(ctx, tx, b.BookID)
	if err != nil {
		return err
	}
	if err = s.books.AdjustInventory(ctx, tx, b.BookID, +1); err != nil {
		return err
	}

	// strict greater-than: a return on the expected day costs nothing extra
	if overdue := wholeDays(now.Sub(b.ExpectedReturnDate)); overdue > 0 {
		var email string
		email, err = s.users.EmailByID(ctx, b.UserID)
		if err != nil {
			return err
		}

		amount := book.DailyFee.
			Mul(decimal.NewFromInt(overdue)).
			Mul(decimal.NewFromInt(fineMultiplier))
		var sess *paymentsvc.OpenedSession
		sess, err = s.sessions.Open(ctx, paymentsvc.OpenSessionReq{
			BorrowingID: borrowingID,
			BookTitle:   book.Title,
			UserEmail:   email,
			Amount:      amount,
			Kind:        model.TypeFine,
		})
		if err != nil {
			err = fmt.Errorf("%w: %w", makeErr(ErrPaymentSession), err)
			return err
		}

		fine := model.Payment{
			Status:      model.PaymentPending,
			Type:        model.TypeFine,
			BorrowingID: borrowingID,
			SessionID:   sess.ID,
			SessionURL:  sess.URL,
			ToPay:       sess.ToPay,
		}
		if err = s.payments.Insert(ctx, tx, &fine); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *service) List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error) {
	return s.borrowings.List(ctx, scope, onlyActive)
}

func (s *service) Detail(ctx context.Context, scope model.Scope, id int64) (*Detail, error) {
	row, err := s.borrowings.Detail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	// hidden rows look absent, not forbidden
	if !scope.Visible(row.UserID) {
		return nil, makeErr(ErrNotFound)
	}

	book, err := s.books.Detail(ctx, row.BookID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	payments, err := s.payments.ByBorrowing(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Row: *row, Book: book, Payments: payments}, nil
}
