package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/messaging/kafka"
)

// parseBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// initKafkaProducer создаёт producer, если brokers не пустой.
// Ошибка подключения не фатальна: сервис работает без публикации событий.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := parseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initRestockConsumer подписывается на внешние изменения остатков.
// Без producer сообщения, которые не удалось применить, не попадают в DLQ, а только логируются.
func initRestockConsumer(brokers, group string, restocker kafka.Restocker, producer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	brokerList := parseBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	var opts []kafka.ConsumerOption
	if producer != nil {
		opts = append(opts, kafka.WithDLQ(producer, kafka.TopicDeadLetterQueue))
	}
	consumer, err := kafka.NewConsumer(brokerList, group, []string{kafka.TopicInventoryRestock}, kafka.NewRestockHandler(restocker), opts...)
	if err != nil {
		logger.WithError(err).Warn("failed to create restock consumer, continuing without it")
		return nil, err
	}
	return consumer, nil
}

// closeKafkaProducer закрывает producer, если он был создан.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopRestockConsumer останавливает consumer, если он был запущен.
func stopRestockConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop restock consumer")
	}
}
