package striperepo

import "context"

type CreateSessionReq struct {
	Name        string // line item label, e.g. "Borrowing of <title> by <email>"
	AmountMinor int64  // unit amount in cents
	SuccessURL  string
	CancelURL   string
}

type Session struct {
	ID            string
	URL           string
	AmountTotal   int64 // cents, gateway-confirmed
	PaymentStatus string
}

type Repo interface {
	CreateSession(ctx context.Context, req CreateSessionReq) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}
