package telegramrepo

import "context"

// Notifier is fire-and-forget: callers log failures and move on, the
// borrowing contract never depends on a message landing.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
