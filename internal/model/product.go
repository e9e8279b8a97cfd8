package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога. Цена хранится в тысячах единиц валюты и не пересчитывается.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Image       []string        `json:"image"`
	Category    string          `json:"category"`
	SubCategory string          `json:"subCategory"`
	Sizes       []string        `json:"sizes"`
	Date        json.RawMessage `json:"date,omitempty"`
	Bestseller  bool            `json:"bestseller,omitempty"`
	NewProduct  bool            `json:"newproduct,omitempty"`
}

// Cover возвращает первое изображение товара.
func (p Product) Cover() string {
	if len(p.Image) == 0 {
		return ""
	}
	return p.Image[0]
}
