package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

type storedOrder struct {
	order domain.Order
	seq   uint64
}

// orderStoreInMemory — простая in-memory реализация OrderStore.
type orderStoreInMemory struct {
	mu    sync.RWMutex
	seq   uint64
	items map[string]storedOrder
}

// NewOrderStore возвращает in-memory хранилище заказов для локальной разработки и тестов.
func NewOrderStore() domain.OrderStore {
	return &orderStoreInMemory{
		items: make(map[string]storedOrder),
	}
}

// Create сохраняет новый заказ, присваивая идентификатор, если он не задан.
func (s *orderStoreInMemory) Create(_ context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.items[order.ID]; exists {
		return domain.Order{}, fmt.Errorf("%w: order %s already exists", domain.ErrStorage, order.ID)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	s.seq++
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	s.items[order.ID] = storedOrder{order: cloneOrder(order), seq: s.seq}
	return cloneOrder(order), nil
}

// FindByID возвращает заказ или ErrOrderNotFound, если его нет.
func (s *orderStoreInMemory) FindByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.items[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(stored.order), nil
}

// FindAll возвращает заказы по фильтру, новые первыми.
func (s *orderStoreInMemory) FindAll(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]storedOrder, 0, len(s.items))
	for _, stored := range s.items {
		if filter.UserID != "" && stored.order.UserID != filter.UserID {
			continue
		}
		matched = append(matched, stored)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.order.CreatedAt.Equal(b.order.CreatedAt) {
			return a.order.CreatedAt.After(b.order.CreatedAt)
		}
		return a.seq > b.seq
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]domain.Order, 0, len(matched))
	for _, stored := range matched {
		result = append(result, cloneOrder(stored.order))
	}
	return result, nil
}

// UpdateStatus меняет статус под блокировкой и возвращает предыдущий.
func (s *orderStoreInMemory) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, checks ...domain.StatusCheck) (domain.Order, domain.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[id]
	if !ok {
		return domain.Order{}, "", domain.ErrOrderNotFound
	}

	previous := stored.order.Status
	for _, check := range checks {
		if err := check(previous); err != nil {
			return domain.Order{}, previous, err
		}
	}
	stored.order.Status = status
	stored.order.UpdatedAt = time.Now().UTC()
	s.items[id] = stored

	return cloneOrder(stored.order), previous, nil
}

// DeleteByID удаляет заказ.
func (s *orderStoreInMemory) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.items, id)
	return nil
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = make([]domain.OrderItem, len(src.Items))
	for i, item := range src.Items {
		item.Product = nil
		dst.Items[i] = item
	}
	return dst
}

var _ domain.OrderStore = (*orderStoreInMemory)(nil)
