package model

import "github.com/shopspring/decimal"

// LineItem описывает одну позицию корзины. Идентичность позиции задаётся парой (ProductID, Size).
type LineItem struct {
	ProductID int64           `json:"id"`
	Size      string          `json:"size,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
}

// Matches сообщает, совпадает ли позиция с указанной идентичностью.
func (l LineItem) Matches(productID int64, size string) bool {
	return l.ProductID == productID && l.Size == size
}

// Total возвращает стоимость позиции.
func (l LineItem) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
