// Package kafka provides topic bootstrap, a readiness check and the publisher of reviewer decisions
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avast/retry-go"
	kafkago "github.com/segmentio/kafka-go"
)

// InitKafkaTopics создает топики; уже существующий топик - не ошибка
func InitKafkaTopics(ctx context.Context, brokerAddr string, attempts uint, delay time.Duration, topics ...string) error {
	client := &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}

	req := kafkago.CreateTopicsRequest{Topics: make([]kafkago.TopicConfig, 0, len(topics))}
	for _, t := range topics {
		req.Topics = append(req.Topics, kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
	}

	return retry.Do(
		func() error {
			resp, err := client.CreateTopics(ctx, &req)
			if err != nil {
				return fmt.Errorf("create topics request: %w", err)
			}
			var errs []error
			for topic, tErr := range resp.Errors {
				if tErr != nil && !errors.Is(tErr, kafkago.TopicAlreadyExists) {
					errs = append(errs, fmt.Errorf("topic %q: %w", topic, tErr))
				}
			}
			return errors.Join(errs...)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Failed to init Kafka topics: %v\nWait %v before next try...", err, delay)
		}),
	)
}

// WaitKafkaReady reports whether the broker accepted a TCP connection within the given attempts
func WaitKafkaReady(ctx context.Context, brokerAddr string, attempts uint, delay time.Duration) bool {
	err := retry.Do(
		func() error {
			conn, err := kafkago.DialContext(ctx, "tcp", brokerAddr)
			if err != nil {
				return err
			}
			if errConn := conn.Close(); errConn != nil {
				log.Println("Failed to close connection after testing Kafka readiness:", errConn)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Kafka not ready, retrying in %v...", delay)
		}),
	)
	return err == nil
}
