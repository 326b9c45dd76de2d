package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"
)

// Job topics. Delivery is at-least-once; handlers must be idempotent.
const (
	TopicIngest            = "newskeep.article.ingest"
	TopicPersonalRecommend = "newskeep.recommend.personal"
	TopicExploreRecommend  = "newskeep.recommend.explore"
	TopicProfileRefresh    = "newskeep.profile.refresh"
)

// IngestJob asks a worker to run the ingestion pipeline for one article.
type IngestJob struct {
	ArticleID int64 `json:"article_id"`
}

// UserJob asks a worker to run a per-user unit of work (recommendation or
// profile refresh).
type UserJob struct {
	UserID int64 `json:"user_id"`
}

// Producer publishes jobs to Kafka. Enqueues are fire-and-forget from the
// caller's perspective: the broker acknowledges, a worker picks up later.
type Producer struct {
	producer sarama.SyncProducer
}

// NewProducer connects a synchronous producer to the brokers.
func NewProducer(brokers []string) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{producer: producer}, nil
}

// Close shuts the producer down.
func (p *Producer) Close() error {
	return p.producer.Close()
}

// EnqueueIngest queues the ingestion pipeline for one article.
func (p *Producer) EnqueueIngest(articleID int64) error {
	return p.send(TopicIngest, strconv.FormatInt(articleID, 10), IngestJob{ArticleID: articleID})
}

// EnqueueIngestAfter re-queues an ingest job after the given delay, for the
// transient-failure retry backoff. Best-effort: a lost delayed enqueue is
// recovered by the periodic failed-link requeue sweep.
func (p *Producer) EnqueueIngestAfter(articleID int64, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := p.EnqueueIngest(articleID); err != nil {
			log.Printf("[queue] delayed re-enqueue of article %d failed: %v", articleID, err)
		}
	})
}

// EnqueuePersonalRecommend queues a personalized recommendation run.
func (p *Producer) EnqueuePersonalRecommend(userID int64) error {
	return p.send(TopicPersonalRecommend, strconv.FormatInt(userID, 10), UserJob{UserID: userID})
}

// EnqueueExploreRecommend queues an exploratory recommendation run.
func (p *Producer) EnqueueExploreRecommend(userID int64) error {
	return p.send(TopicExploreRecommend, strconv.FormatInt(userID, 10), UserJob{UserID: userID})
}

// EnqueueProfileRefresh queues an interest-vector recompute.
func (p *Producer) EnqueueProfileRefresh(userID int64) error {
	return p.send(TopicProfileRefresh, strconv.FormatInt(userID, 10), UserJob{UserID: userID})
}

func (p *Producer) send(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	return nil
}
