package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/incident-risk-service/internal/domain"
)

// Writer publishes risk forecasts to a Kafka topic, one message per cell.
// It implements service.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the forecast topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishForecast serializes every cell of the prediction and writes them in
// a single WriteMessages call. Cells are keyed by cell ID so successive
// forecasts for the same cell land on the same partition.
func (w *Writer) PublishForecast(ctx context.Context, pred domain.Prediction) error {
	if len(pred.Cells) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(pred.Cells))
	for i := range pred.Cells {
		msg, err := serializeToMessage(pred, pred.Cells[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish forecast: %w", err)
	}
	w.logger.Debug("forecast published",
		"topic", w.writer.Topic,
		"cells", len(msgs),
		"store_version", pred.StoreVersion,
	)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// forecastMessage is the wire form of one published cell.
type forecastMessage struct {
	domain.RiskCell
	StoreVersion  uint64    `json:"store_version"`
	HorizonDays   int       `json:"horizon_days"`
	ReferenceTime time.Time `json:"reference_time"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// serializeToMessage marshals one forecast cell into a Kafka message.
func serializeToMessage(pred domain.Prediction, cell domain.RiskCell) (kafkago.Message, error) {
	data, err := json.Marshal(forecastMessage{
		RiskCell:      cell,
		StoreVersion:  pred.StoreVersion,
		HorizonDays:   pred.HorizonDays,
		ReferenceTime: pred.ReferenceTime,
		GeneratedAt:   pred.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast cell %d: %w", cell.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(int(cell.ID))),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "store_version", Value: []byte(strconv.FormatUint(pred.StoreVersion, 10))},
			{Key: "horizon_days", Value: []byte(strconv.Itoa(pred.HorizonDays))},
			{Key: "reference_time", Value: []byte(pred.ReferenceTime.Format(time.RFC3339))},
		},
	}, nil
}
