// Package ingest feeds detection events from Kafka into the event logger.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/Nekit-S/drowsiness-detection/internal/config"
	apperrors "github.com/Nekit-S/drowsiness-detection/internal/errors"
	"github.com/Nekit-S/drowsiness-detection/internal/metrics"
	"github.com/Nekit-S/drowsiness-detection/internal/model"
	"github.com/Nekit-S/drowsiness-detection/internal/service"
)

type EventIngester interface {
	Ingest(ctx context.Context, in model.DetectionEvent) (*service.IngestResult, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer reads one detection event per message. Producers should key
// messages by driver ID so that a driver's events stay ordered.
//
// Offsets are committed once a message is settled: stored, skipped, or
// rejected as invalid. Store failures are retried with backoff and the
// offset stays uncommitted until the event lands or the consumer stops.
type KafkaConsumer struct {
	reader   messageReader
	ingester EventIngester
	topic    string
	backoff  func() retry.Backoff
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewKafkaConsumer(cfg KafkaConfig, ingester EventIngester) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(reader, ingester, cfg.Topic)
}

func newKafkaConsumer(reader messageReader, ingester EventIngester, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:   reader,
		ingester: ingester,
		topic:    topic,
		backoff:  defaultBackoff,
	}
}

func defaultBackoff() retry.Backoff {
	return retry.WithCappedDuration(config.KafkaRetryMaxDelay, retry.NewExponential(config.KafkaRetryBaseDelay))
}

func (c *KafkaConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx)
	}()
	log.Info().Str("topic", c.topic).Msg("kafka consumer started")
}

func (c *KafkaConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	log.Info().Msg("kafka consumer stopped")
}

// Run consumes until ctx is done, then closes the reader.
func (c *KafkaConsumer) Run(ctx context.Context) {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close kafka reader")
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("kafka fetch error")
			continue
		}

		if !c.handle(ctx, m) {
			return
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).
				Int("partition", m.Partition).
				Int64("offset", m.Offset).
				Msg("failed to commit kafka offset")
		}
	}
}

// handle reports whether the message is settled and its offset may be
// committed. It returns false only when ctx ends before a store failure
// clears.
func (c *KafkaConsumer) handle(ctx context.Context, m kafka.Message) bool {
	in, err := decodeMessage(m)
	if err != nil {
		metrics.KafkaMessages.WithLabelValues("decode_error").Inc()
		log.Warn().Err(err).
			Int("partition", m.Partition).
			Int64("offset", m.Offset).
			Msg("skipping undecodable kafka message")
		return true
	}

	var res *service.IngestResult
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var ingestErr error
		res, ingestErr = c.ingester.Ingest(ctx, in)
		if ingestErr != nil && apperrors.GetCode(ingestErr) == apperrors.ErrCodeDatabase {
			metrics.KafkaMessages.WithLabelValues("retry").Inc()
			log.Warn().Err(ingestErr).
				Str("driverId", in.DriverID).
				Int64("offset", m.Offset).
				Msg("kafka event not stored, retrying")
			return retry.RetryableError(ingestErr)
		}
		return ingestErr
	})

	switch {
	case err == nil:
		metrics.KafkaMessages.WithLabelValues("ok").Inc()
		log.Debug().
			Str("driverId", in.DriverID).
			Str("outcome", string(res.Outcome)).
			Msg("kafka event ingested")
		return true
	case ctx.Err() != nil:
		return false
	default:
		metrics.KafkaMessages.WithLabelValues("rejected").Inc()
		log.Warn().Err(err).
			Str("driverId", in.DriverID).
			Int64("offset", m.Offset).
			Msg("kafka event rejected")
		return true
	}
}

// decodeMessage parses the JSON payload. The message key supplies the
// driver ID when the payload omits it.
func decodeMessage(m kafka.Message) (model.DetectionEvent, error) {
	var in model.DetectionEvent
	if err := json.Unmarshal(m.Value, &in); err != nil {
		return in, fmt.Errorf("decode detection event: %w", err)
	}
	if in.DriverID == "" && len(m.Key) > 0 {
		in.DriverID = string(m.Key)
	}
	return in, nil
}
