package paymentsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/KittNeKit/BookWise/model"
	borrowingrepo "github.com/KittNeKit/BookWise/repository/borrowing"
	paymentrepo "github.com/KittNeKit/BookWise/repository/payment"
	striperepo "github.com/KittNeKit/BookWise/repository/stripe"
	telegramrepo "github.com/KittNeKit/BookWise/repository/telegram"
)

// errors used by controllers

type ErrCode string

const (
	ErrUnknownSession ErrCode = "UNKNOWN_SESSION"
	ErrNotConfirmed   ErrCode = "PAYMENT_NOT_CONFIRMED"
	ErrNotFound       ErrCode = "NOT_FOUND"
	ErrSessionFailed  ErrCode = "PAYMENT_SESSION_FAILED"
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

var minorUnits = decimal.NewFromInt(100)

// OpenSessionReq asks the correlator for an external checkout session tied
// to one borrowing event (the initial charge or a fine).
type OpenSessionReq struct {
	BorrowingID int64
	BookTitle   string
	UserEmail   string
	Amount      decimal.Decimal
	Kind        model.PaymentType
}

// OpenedSession carries the gateway identifiers plus the gateway-confirmed
// total converted back to the two-decimal domain amount.
type OpenedSession struct {
	ID    string
	URL   string
	ToPay decimal.Decimal
}

type SessionOpener interface {
	Open(ctx context.Context, req OpenSessionReq) (*OpenedSession, error)
}

// Detail nests the owning borrowing the way the borrowing detail nests its book.
type Detail struct {
	model.Payment
	Borrowing *borrowingrepo.Row `json:"borrowing,omitempty"`
}

type Service interface {
	SessionOpener

	// Confirm resolves a success callback: checks the gateway and flips the
	// payment to PAID. Safe to call again for an already paid session.
	Confirm(ctx context.Context, sessionID string) error

	// Cancel acknowledges a cancel callback; the session stays payable.
	Cancel(ctx context.Context, sessionID string) error

	List(ctx context.Context, scope model.Scope) ([]model.Payment, error)
	Detail(ctx context.Context, scope model.Scope, id int64) (*Detail, error)
}

type service struct {
	payments   paymentrepo.Repo
	borrowings borrowingrepo.Repo
	stripe     striperepo.Repo
	notifier   telegramrepo.Notifier
	siteURL    string
	log        *slog.Logger
}

func New(
	payments paymentrepo.Repo,
	borrowings borrowingrepo.Repo,
	stripe striperepo.Repo,
	notifier telegramrepo.Notifier,
	siteURL string,
	log *slog.Logger,
) Service {
	return &service{
		payments:   payments,
		borrowings: borrowings,
		stripe:     stripe,
		notifier:   notifier,
		siteURL:    siteURL,
		log:        log,
	}
}

func (s *service) Open(ctx context.Context, req OpenSessionReq) (*OpenedSession, error) {
	label := "Borrowing"
	if req.Kind == model.TypeFine {
		label = "Fine"
	}

	// The gateway resolves {CHECKOUT_SESSION_ID} itself on redirect.
	callback := fmt.Sprintf("%s/v1/borrowings/%d", s.siteURL, req.BorrowingID)
	sess, err := s.stripe.CreateSession(ctx, striperepo.CreateSessionReq{
		Name:        fmt.Sprintf("%s of %s by %s", label, req.BookTitle, req.UserEmail),
		AmountMinor: req.Amount.Mul(minorUnits).IntPart(),
		SuccessURL:  callback + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   callback + "/cancel?session_id={CHECKOUT_SESSION_ID}",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", makeErr(ErrSessionFailed), err)
	}

	return &OpenedSession{
		ID:    sess.ID,
		URL:   sess.URL,
		ToPay: decimal.NewFromInt(sess.AmountTotal).Div(minorUnits),
	}, nil
}

func (s *service) Confirm(ctx context.Context, sessionID string) error {
	p, _, err := s.payments.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrUnknownSession)
		}
		return err
	}
	if p.Status == model.PaymentPaid {
		return nil
	}

	sess, err := s.stripe.RetrieveSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %w", makeErr(ErrSessionFailed), err)
	}
	if sess.PaymentStatus != "paid" {
		return makeErr(ErrNotConfirmed)
	}

	if err := s.payments.MarkPaid(ctx, p.ID); err != nil {
		// another confirm won the race, nothing left to do
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	text := fmt.Sprintf("Payment %d (%s) for borrowing %d was paid: %s USD.",
		p.ID, p.Type, p.BorrowingID, p.ToPay.StringFixed(2))
	if err := s.notifier.Send(ctx, text); err != nil {
		s.log.Warn("payment paid notification failed", "payment_id", p.ID, "err", err)
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, sessionID string) error {
	_, _, err := s.payments.BySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrUnknownSession)
		}
		return err
	}
	// payment stays PENDING, the session can still be paid later
	return nil
}

func (s *service) List(ctx context.Context, scope model.Scope) ([]model.Payment, error) {
	return s.payments.List(ctx, scope)
}

func (s *service) Detail(ctx context.Context, scope model.Scope, id int64) (*Detail, error) {
	p, ownerID, err := s.payments.Detail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	// hidden rows look absent, not forbidden
	if !scope.Visible(ownerID) {
		return nil, makeErr(ErrNotFound)
	}

	row, err := s.borrowings.Detail(ctx, p.BorrowingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &Detail{Payment: *p, Borrowing: row}, nil
}
