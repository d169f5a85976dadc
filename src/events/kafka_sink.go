package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// KafkaSink publishes Envelopes to a Kafka topic. Messages are keyed by
// identity so that the decisions concerning one voter stay ordered within a
// partition.
type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
}

// NewKafkaSink connects a SyncProducer to the brokers.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewKafkaSinkWithProducer(p, topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p}
}

// Close implements the Sink interface.
func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Emit implements the Sink interface.
func (s *KafkaSink) Emit(ctx context.Context, typ string, v interface{}) error {
	// SyncProducer does not take a context.
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	env := Envelope{
		Type: typ,
		TS:   time.Now().UnixMilli(),
		Data: data,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(b),
	}
	if key := identityOf(v); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	_, _, err = s.p.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	return nil
}

func identityOf(v interface{}) string {
	switch e := v.(type) {
	case *vote.VoteAttempt:
		return e.IdentityID
	case *vote.FraudRecord:
		return e.IdentityID
	}
	return ""
}
