package overduesvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	borrowingrepo "github.com/KittNeKit/BookWise/repository/borrowing"
	telegramrepo "github.com/KittNeKit/BookWise/repository/telegram"
)

// The sweep warns a day ahead: anything due within this window (or already
// past due) is reported.
const dueWindow = 24 * time.Hour

type Borrowings interface {
	ListDueBy(ctx context.Context, deadline time.Time) ([]borrowingrepo.Row, error)
}

type Service interface {
	// Run scans open borrowings and notifies; it never mutates state.
	Run(ctx context.Context) error
}

type service struct {
	borrowings Borrowings
	notifier   telegramrepo.Notifier
	log        *slog.Logger
}

func New(borrowings Borrowings, notifier telegramrepo.Notifier, log *slog.Logger) Service {
	return &service{borrowings: borrowings, notifier: notifier, log: log}
}

func (s *service) Run(ctx context.Context) error {
	rows, err := s.borrowings.ListDueBy(ctx, time.Now().UTC().Add(dueWindow))
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		s.send(ctx, "No borrowings overdue today!")
		return nil
	}

	s.send(ctx, "Here some overdue borrowings!!")
	for _, row := range rows {
		s.send(ctx, fmt.Sprintf(
			"Overdue borrowing: \nId: %d,\nEmail: %s,\nBook: %s\nExpected return date: %s\n",
			row.ID, row.UserEmail, row.BookTitle, row.ExpectedReturnDate.Format(time.DateOnly),
		))
	}
	s.log.Info("overdue sweep finished", "overdue", len(rows))
	return nil
}

func (s *service) send(ctx context.Context, text string) {
	if err := s.notifier.Send(ctx, text); err != nil {
		s.log.Warn("overdue notification failed", "err", err)
	}
}
