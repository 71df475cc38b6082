package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// Restocker применяет внешнее изменение остатка.
type Restocker interface {
	Restock(ctx context.Context, productID string, delta int) error
}

// NewRestockHandler возвращает обработчик topic shop.inventory.restock.
// Неизвестный товар и уход остатка в минус не лечатся повтором и считаются некорректным сообщением.
func NewRestockHandler(restocker Restocker) MessageHandler {
	logger := log.WithField("component", "kafka-restock")
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		msg, err := ParseRestock(message.Value)
		if err != nil {
			return err
		}

		if err := restocker.Restock(ctx, msg.ProductID, msg.Delta); err != nil {
			if errors.Is(err, domain.ErrProductNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
				return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
			return err
		}

		logger.WithFields(log.Fields{
			"product_id": msg.ProductID,
			"delta":      msg.Delta,
			"reason":     msg.Reason,
		}).Info("stock adjusted from kafka")
		return nil
	}
}
