// Package redpanda publishes detection events to a Redpanda/Kafka topic.
//
// The stream is an outbound notification hook: collaborating systems
// subscribe to high- and medium-confidence detections, but the detection
// row in Postgres stays the system of record. Delivery is therefore
// best-effort; a produce failure is logged by the caller and never fails
// an analyzer run.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/fairyhunter13/smurfguard/internal/domain"
)

// TopicDetections carries one JSON event per published detection, keyed by
// PUUID so a consumer sees each player's verdicts in order.
const TopicDetections = "smurf.detections"

// Producer wraps a Kafka client and implements domain.DetectionPublisher.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the given seed brokers and ensures the detection
// topic exists. Constructed only when brokers are configured; the rest of
// the system runs without a stream.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=events.connect: no seed brokers")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("op=events.connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := createTopicIfNotExists(ctx, client, TopicDetections, 1, 1); err != nil {
		// a broker without topic-create rights still serves an existing topic
		slog.Warn("detection topic ensure failed",
			slog.String("topic", TopicDetections),
			slog.Any("error", err))
	}

	slog.Info("detection event producer ready",
		slog.Any("brokers", brokers),
		slog.String("topic", TopicDetections))
	return &Producer{client: client, topic: TopicDetections}, nil
}

// PublishDetection produces one event and waits for the broker ack so the
// caller can log a definite outcome.
func (p *Producer) PublishDetection(ctx domain.Context, ev domain.DetectionEvent) error {
	rec, err := detectionRecord(p.topic, ev)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("op=events.publish: %w", err)
	}
	return nil
}

// Close flushes and releases the client.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

func detectionRecord(topic string, ev domain.DetectionEvent) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("op=events.encode: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.PUUID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "confidence", Value: []byte(ev.Confidence)},
			{Key: "analysis_version", Value: []byte(ev.AnalysisVersion)},
		},
	}, nil
}

// createTopicIfNotExists issues a CreateTopics request and tolerates the
// topic already being there (Kafka error code 36).
func createTopicIfNotExists(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000

	topicReq := kmsg.NewCreateTopicsRequestTopic()
	topicReq.Topic = topic
	topicReq.NumPartitions = partitions
	topicReq.ReplicationFactor = replication
	req.Topics = append(req.Topics, topicReq)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("create topics request: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", resp)
	}
	for _, tr := range created.Topics {
		if tr.ErrorCode == 0 || tr.ErrorCode == 36 {
			continue
		}
		msg := ""
		if tr.ErrorMessage != nil {
			msg = *tr.ErrorMessage
		}
		return fmt.Errorf("create topic %s: %s (code %d)", tr.Topic, msg, tr.ErrorCode)
	}
	return nil
}
