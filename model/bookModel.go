// model/book.go
package model

import "github.com/shopspring/decimal"

type CoverType string

const (
	CoverHard CoverType = "Hard"
	CoverSoft CoverType = "Soft"
)

type Book struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Cover     CoverType       `json:"cover"`
	Inventory int64           `json:"inventory"`
	DailyFee  decimal.Decimal `json:"daily_fee"`
}
