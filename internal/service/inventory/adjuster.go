// Package inventory применяет изменения остатков через ProductStore.
package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

const defaultConcurrency = 8

// Adjuster параллельно применяет атомарные инкременты остатков.
// Ошибка по одному товару не останавливает остальные: уже применённые изменения не откатываются.
type Adjuster struct {
	products    domain.ProductStore
	concurrency int
	logger      *log.Entry
}

// Option настраивает Adjuster.
type Option func(*Adjuster)

// WithConcurrency ограничивает число одновременных обращений к хранилищу.
func WithConcurrency(n int) Option {
	return func(a *Adjuster) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(a *Adjuster) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdjuster создаёт Adjuster поверх каталога.
func NewAdjuster(products domain.ProductStore, opts ...Option) *Adjuster {
	a := &Adjuster{
		products:    products,
		concurrency: defaultConcurrency,
		logger:      log.WithField("component", "inventory-adjuster"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply применяет изменения и возвращает все неудачные позиции в порядке входа.
// Изменения одного товара предварительно суммируются.
func (a *Adjuster) Apply(ctx context.Context, deltas []domain.StockDelta) []domain.StockFailure {
	merged := domain.MergeDeltas(deltas)
	results := make([]error, len(merged))

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for i, d := range merged {
		if d.Delta == 0 {
			continue
		}
		g.Go(func() error {
			results[i] = a.products.IncrementQuantity(ctx, d.ProductID, d.Delta)
			return nil
		})
	}
	_ = g.Wait()

	var failures []domain.StockFailure
	for i, err := range results {
		if err == nil {
			continue
		}
		d := merged[i]
		a.logger.WithError(err).WithFields(log.Fields{
			"product_id": d.ProductID,
			"delta":      d.Delta,
		}).Warn("stock adjustment failed")
		failures = append(failures, domain.StockFailure{ProductID: d.ProductID, Delta: d.Delta, Err: err})
	}
	return failures
}

// Restock применяет одно внешнее изменение остатка, например из Kafka.
func (a *Adjuster) Restock(ctx context.Context, productID string, delta int) error {
	if productID == "" {
		return fmt.Errorf("restock: %w", domain.ErrItemProductRequired)
	}
	if failures := a.Apply(ctx, []domain.StockDelta{{ProductID: productID, Delta: delta}}); len(failures) > 0 {
		return fmt.Errorf("restock product %s: %w", productID, failures[0].Err)
	}
	return nil
}
