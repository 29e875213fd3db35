// model/borrowing.go
package model

import "time"

type Borrowing struct {
	ID                 int64      `json:"id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
	BookID             int64      `json:"book_id"`
	UserID             int64      `json:"user_id"`
}

// Active reports whether the borrowing is still open.
func (b Borrowing) Active() bool { return b.ActualReturnDate == nil }

// Scope narrows borrowing and payment listings to what the caller may see.
// Staff see everything, optionally filtered to one user; everyone else sees
// only their own rows and FilterUserID is ignored.
type Scope struct {
	UserID       int64
	Staff        bool
	FilterUserID int64
}

// Visible reports whether a row owned by ownerID passes the scope.
func (s Scope) Visible(ownerID int64) bool {
	if s.Staff {
		return s.FilterUserID == 0 || s.FilterUserID == ownerID
	}
	return s.UserID == ownerID
}
