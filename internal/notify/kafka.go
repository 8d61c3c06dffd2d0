package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes events as JSON keyed by reservation id so all
// events of one reservation land on one partition in order. A circuit
// breaker stops hammering the brokers while they are down.
type KafkaNotifier struct {
	writer  MessageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaNotifier(w MessageWriter) *KafkaNotifier {
	st := gobreaker.Settings{
		Name:        "kafka-notify",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state change")
		},
	}
	return &KafkaNotifier{
		writer:  w,
		breaker: gobreaker.NewCircuitBreaker[struct{}](st),
		timeout: 5 * time.Second,
	}
}

type payload struct {
	Event         Kind      `json:"event"`
	At            time.Time `json:"at"`
	ReservationID string    `json:"reservation_id"`
	TableID       *int64    `json:"table_id,omitempty"`
	Date          string    `json:"date"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	Guests        int       `json:"guests"`
	Status        string    `json:"status"`
	CustomerEmail string    `json:"customer_email"`
}

func encode(ev Event) ([]byte, error) {
	r := ev.Reservation
	return json.Marshal(payload{
		Event:         ev.Kind,
		At:            ev.At,
		ReservationID: r.ID.String(),
		TableID:       r.TableID,
		Date:          r.Date.String(),
		StartAt:       r.StartAt,
		EndAt:         r.EndAt,
		Guests:        r.Guests,
		Status:        string(r.Status),
		CustomerEmail: r.Customer.Email,
	})
}

func (k *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	value, err := encode(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Kind, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Reservation.ID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Kind)},
		},
	}
	_, err = k.breaker.Execute(func() (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, k.timeout)
		defer cancel()
		return struct{}{}, k.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
