package catalog

import (
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
)

// Коллекции витрины.
const (
	CollectionAll        = "all"
	CollectionBestseller = "bestseller"
	CollectionNew        = "newproduct"
)

// Filter возвращает товары, у которых название, описание, категория или подкатегория
// содержат запрос без учёта регистра. Пустой запрос возвращает все товары.
func Filter(products []model.Product, query string) []model.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return products
	}

	var res []model.Product
	for _, p := range products {
		for _, field := range []string{p.Name, p.Description, p.Category, p.SubCategory} {
			if strings.Contains(strings.ToLower(field), q) {
				res = append(res, p)
				break
			}
		}
	}
	return res
}

// FilterCollection оставляет товары указанной коллекции. Неизвестная коллекция
// трактуется как CollectionAll.
func FilterCollection(products []model.Product, kind string) []model.Product {
	var keep func(model.Product) bool
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case CollectionBestseller:
		keep = func(p model.Product) bool { return p.Bestseller }
	case CollectionNew:
		keep = func(p model.Product) bool { return p.NewProduct }
	default:
		return products
	}

	var res []model.Product
	for _, p := range products {
		if keep(p) {
			res = append(res, p)
		}
	}
	return res
}
