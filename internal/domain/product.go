package domain

import "github.com/shopspring/decimal"

// Product — товар каталога. Ядро изменяет только Quantity и только через
// ProductStore.IncrementQuantity.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Image    string
	Quantity int
}

// Snapshot возвращает поля товара для отображения в позиции заказа.
func (p Product) Snapshot() *ProductSnapshot {
	return &ProductSnapshot{
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Quantity: p.Quantity,
	}
}

// StockDelta — атомарное изменение остатка: отрицательное списывает, положительное возвращает.
type StockDelta struct {
	ProductID string
	Delta     int
}

// StockFailure описывает неудачное изменение остатка по одному товару.
type StockFailure struct {
	ProductID string
	Delta     int
	Err       error
}

func (f StockFailure) Error() string {
	if f.Err == nil {
		return "stock adjustment failed for product " + f.ProductID
	}
	return f.Err.Error()
}

// MergeDeltas складывает изменения по одинаковым товарам, сохраняя порядок первого появления.
func MergeDeltas(deltas []StockDelta) []StockDelta {
	index := make(map[string]int, len(deltas))
	merged := make([]StockDelta, 0, len(deltas))
	for _, d := range deltas {
		if i, ok := index[d.ProductID]; ok {
			merged[i].Delta += d.Delta
			continue
		}
		index[d.ProductID] = len(merged)
		merged = append(merged, d)
	}
	return merged
}
