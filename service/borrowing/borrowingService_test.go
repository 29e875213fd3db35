package borrowingsvc

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/KittNeKit/BookWise/model"
	bookrepo "github.com/KittNeKit/BookWise/repository/book"
	paymentsvc "github.com/KittNeKit/BookWise/service/payment"
)

// --- mocks ---

type booksMock struct {
	lockFn   func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error)
	adjustFn func(ctx context.Context, tx *sql.Tx, id, delta int64) error
	detailFn func(ctx context.Context, id int64) (*model.Book, error)

	adjusts []int64
}

func (m *booksMock) LockForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
	return m.lockFn(ctx, tx, id)
}
func (m *booksMock) AdjustInventory(ctx context.Context, tx *sql.Tx, id, delta int64) error {
	m.adjusts = append(m.adjusts, delta)
	if m.adjustFn != nil {
		return m.adjustFn(ctx, tx, id, delta)
	}
	return nil
}
func (m *booksMock) Detail(ctx context.Context, id int64) (*model.Book, error) {
	return m.detailFn(ctx, id)
}

type borrowingsMock struct {
	insertFn func(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error)
	getFn    func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error)
	markFn   func(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	listFn   func(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error)
	detailFn func(ctx context.Context, id int64) (*Row, error)

	returned int
}

func (m *borrowingsMock) Insert(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error) {
	return m.insertFn(ctx, tx, userID, bookID, borrowDate, expected)
}
func (m *borrowingsMock) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
	return m.getFn(ctx, tx, id)
}
func (m *borrowingsMock) MarkReturned(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	m.returned++
	if m.markFn != nil {
		return m.markFn(ctx, tx, id, at)
	}
	return nil
}
func (m *borrowingsMock) List(ctx context.Context, scope model.Scope, onlyActive bool) ([]Row, error) {
	return m.listFn(ctx, scope, onlyActive)
}
func (m *borrowingsMock) Detail(ctx context.Context, id int64) (*Row, error) {
	return m.detailFn(ctx, id)
}

type paymentsMock struct {
	insertFn func(ctx context.Context, tx *sql.Tx, p *model.Payment) error
	byBorFn  func(ctx context.Context, borrowingID int64) ([]model.Payment, error)

	inserted []model.Payment
}

func (m *paymentsMock) Insert(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	if m.insertFn != nil {
		if err := m.insertFn(ctx, tx, p); err != nil {
			return err
		}
	}
	p.ID = int64(len(m.inserted) + 1)
	m.inserted = append(m.inserted, *p)
	return nil
}
func (m *paymentsMock) ByBorrowing(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
	if m.byBorFn == nil {
		return nil, nil
	}
	return m.byBorFn(ctx, borrowingID)
}

type usersMock struct{ email string }

func (m *usersMock) EmailByID(ctx context.Context, id int64) (string, error) {
	return m.email, nil
}

type sessionsMock struct {
	openFn func(ctx context.Context, req paymentsvc.OpenSessionReq) (*paymentsvc.OpenedSession, error)

	opened []paymentsvc.OpenSessionReq
}

func (m *sessionsMock) Open(ctx context.Context, req paymentsvc.OpenSessionReq) (*paymentsvc.OpenedSession, error) {
	m.opened = append(m.opened, req)
	return m.openFn(ctx, req)
}

type notifierMock struct {
	sent []string
	err  error
}

func (m *notifierMock) Send(ctx context.Context, text string) error {
	m.sent = append(m.sent, text)
	return m.err
}

// echoSession answers with the requested amount, like a gateway that
// agrees with our math.
func echoSession(ctx context.Context, req paymentsvc.OpenSessionReq) (*paymentsvc.OpenedSession, error) {
	return &paymentsvc.OpenedSession{
		ID:    "cs_test_1",
		URL:   "https://checkout.test/cs_test_1",
		ToPay: req.Amount,
	}, nil
}

func fee(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc        Service
	db         *sql.DB
	mock       sqlmock.Sqlmock
	books      *booksMock
	borrowings *borrowingsMock
	payments   *paymentsMock
	sessions   *sessionsMock
	notifier   *notifierMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:         db,
		mock:       mock,
		books:      &booksMock{},
		borrowings: &borrowingsMock{},
		payments:   &paymentsMock{},
		sessions:   &sessionsMock{openFn: echoSession},
		notifier:   &notifierMock{},
	}
	f.svc = New(
		db, f.borrowings, f.books, f.payments, &usersMock{email: "reader@example.com"},
		f.sessions, f.notifier, slog.New(slog.NewTextHandler(os.Stderr, nil)),
	)
	return f
}

// --- Create ---

func TestCreate_Success(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 1, DailyFee: fee("0.50")}, nil
	}
	f.borrowings.insertFn = func(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error) {
		require.Equal(t, int64(5), userID)
		require.Equal(t, int64(3), bookID)
		return 11, nil
	}

	expected := time.Now().UTC().Add(3*24*time.Hour + time.Minute)
	out, err := f.svc.Create(context.Background(), 5, 3, expected)
	require.NoError(t, err)

	require.Equal(t, []int64{-1}, f.books.adjusts)
	require.Equal(t, int64(11), out.Borrowing.ID)

	// exactly one PENDING payment of type PAYMENT, charged for 3 whole days
	require.Len(t, f.payments.inserted, 1)
	p := f.payments.inserted[0]
	require.Equal(t, model.PaymentPending, p.Status)
	require.Equal(t, model.TypePayment, p.Type)
	require.Equal(t, int64(11), p.BorrowingID)
	require.Equal(t, "cs_test_1", p.SessionID)
	require.True(t, p.ToPay.Equal(fee("1.50")), "to_pay = %s", p.ToPay)

	// one best-effort notification after commit
	require.Len(t, f.notifier.sent, 1)
	require.Contains(t, f.notifier.sent[0], "reader@example.com")
	require.Contains(t, f.notifier.sent[0], "Kobzar")

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_InsufficientInventory(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 0, DailyFee: fee("0.50")}, nil
	}
	f.books.adjustFn = func(ctx context.Context, tx *sql.Tx, id, delta int64) error {
		return bookrepo.ErrInventory
	}

	_, err := f.svc.Create(context.Background(), 5, 3, time.Now().UTC().Add(48*time.Hour))
	require.Error(t, err)
	require.Equal(t, ErrNoInventory, Code(err))

	require.Empty(t, f.payments.inserted)
	require.Empty(t, f.sessions.opened)
	require.Empty(t, f.notifier.sent)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_BookNotFound(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return nil, sql.ErrNoRows
	}

	_, err := f.svc.Create(context.Background(), 5, 99, time.Now().UTC().Add(48*time.Hour))
	require.Equal(t, ErrBookNotFound, Code(err))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_BadExpectedDate(t *testing.T) {
	f := newFixture(t)

	// same day and past dates are rejected before anything is touched
	for _, expected := range []time.Time{
		time.Now().UTC(),
		time.Now().UTC().Add(5 * time.Hour),
		time.Now().UTC().Add(-24 * time.Hour),
	} {
		_, err := f.svc.Create(context.Background(), 5, 3, expected)
		require.Equal(t, ErrBadExpectedDate, Code(err))
	}
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreate_SessionFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 4, DailyFee: fee("0.50")}, nil
	}
	f.borrowings.insertFn = func(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrowDate, expected time.Time) (int64, error) {
		return 11, nil
	}
	f.sessions.openFn = func(ctx context.Context, req paymentsvc.OpenSessionReq) (*paymentsvc.OpenedSession, error) {
		return nil, errors.New("gateway down")
	}

	_, err := f.svc.Create(context.Background(), 5, 3, time.Now().UTC().Add(48*time.Hour))
	require.Equal(t, ErrPaymentSession, Code(err))

	require.Empty(t, f.payments.inserted)
	require.Empty(t, f.notifier.sent)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

// --- Return ---

func openBorrowing(expected time.Time) *model.Borrowing {
	return &model.Borrowing{
		ID:                 11,
		UserID:             5,
		BookID:             3,
		BorrowDate:         expected.Add(-3 * 24 * time.Hour),
		ExpectedReturnDate: expected,
	}
}

func TestReturn_OnTime(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// due in an hour, so zero overdue days
	f.borrowings.getFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(time.Now().UTC().Add(time.Hour)), nil
	}
	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 0, DailyFee: fee("0.50")}, nil
	}

	require.NoError(t, f.svc.Return(context.Background(), 11))

	require.Equal(t, 1, f.borrowings.returned)
	require.Equal(t, []int64{1}, f.books.adjusts)
	require.Empty(t, f.payments.inserted, "no fine for an on-time return")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReturn_LateCreatesFine(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// one whole day overdue
	f.borrowings.getFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(time.Now().UTC().Add(-25 * time.Hour)), nil
	}
	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 0, DailyFee: fee("0.50")}, nil
	}

	require.NoError(t, f.svc.Return(context.Background(), 11))

	require.Equal(t, []int64{1}, f.books.adjusts)
	require.Len(t, f.payments.inserted, 1)
	p := f.payments.inserted[0]
	require.Equal(t, model.TypeFine, p.Type)
	require.Equal(t, model.PaymentPending, p.Status)
	// 1 overdue day x 0.50 daily fee x 2 multiplier
	require.True(t, p.ToPay.Equal(fee("1.00")), "to_pay = %s", p.ToPay)

	require.Len(t, f.sessions.opened, 1)
	require.Equal(t, model.TypeFine, f.sessions.opened[0].Kind)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReturn_AlreadyReturned(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	done := time.Now().UTC().Add(-time.Hour)
	f.borrowings.getFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
		b := openBorrowing(time.Now().UTC())
		b.ActualReturnDate = &done
		return b, nil
	}

	err := f.svc.Return(context.Background(), 11)
	require.Equal(t, ErrAlreadyReturned, Code(err))

	require.Zero(t, f.borrowings.returned)
	require.Empty(t, f.books.adjusts, "inventory must not change twice")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReturn_NotFound(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	f.borrowings.getFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
		return nil, sql.ErrNoRows
	}

	require.Equal(t, ErrNotFound, Code(f.svc.Return(context.Background(), 404)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReturn_FineSessionFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	f.borrowings.getFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Borrowing, error) {
		return openBorrowing(time.Now().UTC().Add(-48 * time.Hour)), nil
	}
	f.books.lockFn = func(ctx context.Context, tx *sql.Tx, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar", Inventory: 0, DailyFee: fee("0.50")}, nil
	}
	f.sessions.openFn = func(ctx context.Context, req paymentsvc.OpenSessionReq) (*paymentsvc.OpenedSession, error) {
		return nil, errors.New("gateway down")
	}

	err := f.svc.Return(context.Background(), 11)
	require.Equal(t, ErrPaymentSession, Code(err))
	require.Empty(t, f.payments.inserted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

// --- Detail scoping ---

func TestDetail_HiddenForOtherUsers(t *testing.T) {
	f := newFixture(t)
	f.borrowings.detailFn = func(ctx context.Context, id int64) (*Row, error) {
		row := &Row{}
		row.ID = id
		row.UserID = 5
		return row, nil
	}

	_, err := f.svc.Detail(context.Background(), model.Scope{UserID: 6}, 11)
	require.Equal(t, ErrNotFound, Code(err))
}

func TestDetail_StaffSeesAll(t *testing.T) {
	f := newFixture(t)
	f.borrowings.detailFn = func(ctx context.Context, id int64) (*Row, error) {
		row := &Row{}
		row.ID = id
		row.UserID = 5
		row.BookID = 3
		return row, nil
	}
	f.books.detailFn = func(ctx context.Context, id int64) (*model.Book, error) {
		return &model.Book{ID: id, Title: "Kobzar"}, nil
	}
	f.payments.byBorFn = func(ctx context.Context, borrowingID int64) ([]model.Payment, error) {
		return []model.Payment{{ID: 1, BorrowingID: borrowingID}}, nil
	}

	out, err := f.svc.Detail(context.Background(), model.Scope{UserID: 9, Staff: true}, 11)
	require.NoError(t, err)
	require.Equal(t, "Kobzar", out.Book.Title)
	require.Len(t, out.Payments, 1)
}

// wholeDays backs both the borrow charge and the fine; fractional days
// truncate toward zero.
func TestWholeDays(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{23 * time.Hour, 0},
		{24 * time.Hour, 1},
		{71 * time.Hour, 2},
		{72 * time.Hour, 3},
		{-25 * time.Hour, -1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, wholeDays(tc.d), "wholeDays(%s)", tc.d)
	}
}
