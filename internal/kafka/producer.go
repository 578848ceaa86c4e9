package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/codescrafter/luxury-backend-sub000/internal/models"
)

type Producer struct {
	Writer       *kafka.Writer
	BookingTopic string
	QrTopic      string
}

func NewProducer(brokers []string, bookingTopic, qrTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
	}
	return &Producer{
		Writer:       writer,
		BookingTopic: bookingTopic,
		QrTopic:      qrTopic,
	}
}

func (p *Producer) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// PublishBookingEvent streams a booking lifecycle change, keyed by booking
// id so downstream consumers see per-booking ordering.
func (p *Producer) PublishBookingEvent(action string, booking *models.Booking) error {
	event := models.BookingEvent{
		Action:        action,
		BookingID:     booking.BookingID,
		ConsumerID:    booking.ConsumerID,
		PartnerID:     booking.PartnerID,
		ProductID:     booking.ProductID,
		ProductType:   booking.ProductType,
		Status:        booking.Status,
		PaymentStatus: booking.PaymentStatus,
		OccurredAt:    time.Now(),
	}
	return p.publish(p.BookingTopic, booking.BookingID, event)
}

func (p *Producer) PublishQrEvent(action string, qr *models.BookingQr) error {
	event := models.QrEvent{
		Action:     action,
		QrID:       qr.ID,
		BookingID:  qr.BookingID,
		RedeemedBy: qr.RedeemedBy,
		OccurredAt: time.Now(),
	}
	return p.publish(p.QrTopic, qr.BookingID, event)
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
