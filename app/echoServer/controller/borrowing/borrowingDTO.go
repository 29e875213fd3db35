package borrowing

import "time"

type CreateBorrowingReq struct {
	BookID             int64     `json:"book_id" validate:"required,gt=0"`
	ExpectedReturnDate time.Time `json:"expected_return_date" validate:"required"`
}
