// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotel-rag-go/internal/config"
	"hotel-rag-go/pkg/events"
	"hotel-rag-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是一条消息允许处理的最大次数，超过后提交 offset 放弃重试。
const maxAttempts = 3

// defaultRetryBackoff 是第一次重试前的等待时间，之后每次翻倍。
const defaultRetryBackoff = 500 * time.Millisecond

// TurnProcessor defines the interface for any service that can archive a turn event.
type TurnProcessor interface {
	Process(ctx context.Context, ev events.TurnEvent) error
}

// Producer 向 Kafka 发送对话轮次事件。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return &Producer{writer: w}
}

// PublishTurn 发送一个轮次事件，按 session 分区以保持同一会话内的顺序。
func (p *Producer) PublishTurn(ctx context.Context, ev events.TurnEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SessionID),
		Value: value,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录消息的失败次数。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisAttempts 使用 Redis 计数失败次数，计数 24 小时后过期。
type RedisAttempts struct {
	RDB *redis.Client
}

func (a RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.RDB.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = a.RDB.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (a RedisAttempts) Reset(ctx context.Context, key string) error {
	return a.RDB.Del(ctx, key).Err()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费轮次事件并交给 TurnProcessor 处理。
type Consumer struct {
	reader    messageReader
	attempts  AttemptCounter
	processor TurnProcessor
	backoff   time.Duration
}

// NewConsumer 创建一个消费者组成员。
func NewConsumer(cfg config.KafkaConfig, attempts AttemptCounter, processor TurnProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, attempts: attempts, processor: processor, backoff: defaultRetryBackoff}
}

// Run 循环消费直到 ctx 结束或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}
		if !c.handle(ctx, m) {
			// 停止时消息未提交，重启后从该 offset 继续
			return nil
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handle 处理单条消息，失败时原地退避重试，返回是否应提交 offset。
// kafka-go 不会重新投递未提交的消息，且提交后续 offset 会越过它，
// 所以在放弃之前不能去取下一条消息。ctx 结束时返回 false，消息在重启后重新消费。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) bool {
	var ev events.TurnEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, offset: %d", err, m.Offset)
		return true
	}

	attemptsKey := fmt.Sprintf("kafka:attempts:%s", ev.ID)
	backoff := c.backoff
	var local int64
	for {
		err := c.processor.Process(ctx, ev)
		if err == nil {
			_ = c.attempts.Reset(ctx, attemptsKey)
			log.Infow("轮次事件归档成功", "event_id", ev.ID, "session_id", ev.SessionID)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Errorw("归档轮次事件失败", "event_id", ev.ID, "session_id", ev.SessionID, "error", err)

		// Redis 中的计数跨进程重启累计；Redis 不可用时退回本地计数
		local++
		attempts, incErr := c.attempts.Incr(ctx, attemptsKey)
		if incErr != nil {
			log.Warnw("记录失败次数出错，使用本地计数", "event_id", ev.ID, "error", incErr)
		}
		attempts = max(attempts, local)
		if attempts >= maxAttempts {
			log.Errorf("轮次事件多次失败(>=%d)，提交 offset 终止重试: %s", maxAttempts, ev.ID)
			_ = c.attempts.Reset(ctx, attemptsKey)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
