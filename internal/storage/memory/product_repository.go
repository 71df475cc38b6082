package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// ProductStore — in-memory каталог. Остатки меняются под мьютексом, поэтому
// проверка на отрицательный остаток и запись атомарны.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewProductStore создаёт каталог с начальным набором товаров.
func NewProductStore(products ...domain.Product) *ProductStore {
	s := &ProductStore{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Upsert добавляет или заменяет товар.
func (s *ProductStore) Upsert(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

func (s *ProductStore) FindByID(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFound(id)
	}
	return product, nil
}

func (s *ProductStore) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (s *ProductStore) IncrementQuantity(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return domain.NewProductNotFound(id)
	}
	if product.Quantity+delta < 0 {
		return &domain.InsufficientStockError{
			ProductID:   id,
			ProductName: product.Name,
			Requested:   -delta,
			Available:   product.Quantity,
		}
	}
	product.Quantity += delta
	s.products[id] = product
	return nil
}

var _ domain.ProductStore = (*ProductStore)(nil)
