package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/ushcn-etl/internal/config"
	"github.com/couchcryptid/ushcn-etl/internal/domain"
)

// ReportPublisher produces coverage reports to a Kafka topic.
// It implements pipeline.ReportPublisher.
type ReportPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewReportPublisher creates a Kafka producer for the configured report topic.
func NewReportPublisher(cfg *config.Config, logger *slog.Logger) *ReportPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaReportTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &ReportPublisher{writer: w, logger: logger}
}

// Publish writes one report, keyed by variant so reports of the same variant
// stay ordered within a partition.
func (p *ReportPublisher) Publish(ctx context.Context, r domain.CoverageReport) error {
	msg, err := serializeToMessage(r)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report %s: %w", r.Variant, err)
	}
	p.logger.Debug("coverage report published", "variant", r.Variant, "run_id", r.RunID)
	return nil
}

func (p *ReportPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a CoverageReport into a Kafka message.
func serializeToMessage(r domain.CoverageReport) (kafkago.Message, error) {
	data, err := domain.SerializeReport(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize coverage report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Variant),
		Value: data,
		Time:  r.FinishedAt,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(r.RunID)},
			{Key: "full_coverage", Value: []byte(fmt.Sprint(r.FullCoverage()))},
			{Key: "finished_at", Value: []byte(r.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
