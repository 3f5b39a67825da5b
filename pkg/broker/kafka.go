package broker

import (
	"context"
	"fmt"
	"marketplace/pkg/config"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const (
	_defaultConsumerGroup = "marketplace-saga"
)

// KafkaBroker owns the sarama clients of the event bus. Every event kind goes
// to one topic and is read back by one consumer group per deployment.
type KafkaBroker struct {
	Topic         string
	Group         string
	ConsumerGroup sarama.ConsumerGroup
	SyncProducer  sarama.SyncProducer
	Brokers       []string
	conf          config.Kafka
	logger        *zap.SugaredLogger
}

func NewKafkaBroker(conf config.Kafka, logger *zap.SugaredLogger) (*KafkaBroker, error) {
	if conf.Topic == "" {
		return nil, fmt.Errorf("kafka topic is not configured")
	}
	group := conf.ConsumerGroup
	if group == "" {
		group = _defaultConsumerGroup
	}
	brokers := strings.Split(conf.Brokers, ",")

	logger.Debugf("creating consumer group %s for brokers %s", group, conf.Brokers)
	consumerGroup, err := newConsumerGroup(brokers, group, conf)
	if err != nil {
		return nil, err
	}

	logger.Debugf("creating sync producer for brokers %s", conf.Brokers)
	syncProducer, err := newSyncProducer(brokers, conf)
	if err != nil {
		_ = consumerGroup.Close()
		return nil, err
	}

	kb := &KafkaBroker{
		Topic:         conf.Topic,
		Group:         group,
		ConsumerGroup: consumerGroup,
		SyncProducer:  syncProducer,
		Brokers:       brokers,
		conf:          conf,
		logger:        logger,
	}
	logger.Infof("kafka broker ready, topic=%s group=%s", kb.Topic, kb.Group)
	return kb, nil
}

// HealthCheck confirms the producer and consumer group exist and that at least
// one broker answers. It avoids client.Partitions(): that needs Describe in the
// ACL, which the reader and writer accounts may not have.
func (kb *KafkaBroker) HealthCheck(ctx context.Context) error {
	if kb.SyncProducer == nil {
		return fmt.Errorf("kafka producer is not initialized")
	}
	if kb.ConsumerGroup == nil {
		return fmt.Errorf("kafka consumer group is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := sarama.NewConfig()
	cfg.Net.DialTimeout = 2 * time.Second
	cfg.Net.ReadTimeout = 2 * time.Second
	cfg.Net.WriteTimeout = 2 * time.Second
	cfg.Metadata.Timeout = 2 * time.Second
	cfg.Metadata.Retry.Max = 1
	applySASLConfig(cfg, kb.conf, kb.conf.WriterUsr != "" && kb.conf.WriterUsrPwd != "")

	client, err := sarama.NewClient(kb.Brokers, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka brokers: %w", err)
	}
	defer client.Close()

	if len(client.Brokers()) == 0 {
		return fmt.Errorf("no kafka brokers available")
	}
	return nil
}

func (kb *KafkaBroker) Close() error {
	var errs []string
	if kb.ConsumerGroup != nil {
		if err := kb.ConsumerGroup.Close(); err != nil {
			errs = append(errs, "consumer group: "+err.Error())
		}
	}
	if kb.SyncProducer != nil {
		if err := kb.SyncProducer.Close(); err != nil {
			errs = append(errs, "producer: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close kafka: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applySASLConfig enables SASL/PLAIN with the writer account (useWriterCreds) or the reader account.
func applySASLConfig(cfg *sarama.Config, conf config.Kafka, useWriterCreds bool) {
	usr, pwd := conf.ReaderUsr, conf.ReaderUsrPwd
	if useWriterCreds {
		usr, pwd = conf.WriterUsr, conf.WriterUsrPwd
	}
	if usr == "" || pwd == "" {
		return
	}
	cfg.Net.SASL.User = usr
	cfg.Net.SASL.Password = pwd
	cfg.Net.SASL.Enable = true
	cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
}

func EnableSaramaZapLogs(base *zap.SugaredLogger) {
	logger := base.Named("sarama")
	sarama.Logger = &zapSarama{logger}
	logger.Info("sarama logger initialized")
}

type zapSarama struct{ l *zap.SugaredLogger }

func (z *zapSarama) Print(v ...interface{})                 { z.l.Debug(v...) }
func (z *zapSarama) Printf(format string, v ...interface{}) { z.l.Debugf(format, v...) }
func (z *zapSarama) Println(v ...interface{})               { z.l.Debug(v...) }

func newConsumerGroup(brokers []string, group string, conf config.Kafka) (sarama.ConsumerGroup, error) {
	kafkaConfig := sarama.NewConfig()
	// offsets are committed only for messages the dispatcher finished with
	kafkaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	kafkaConfig.Consumer.Offsets.AutoCommit.Enable = true
	kafkaConfig.Consumer.Return.Errors = true
	applySASLConfig(kafkaConfig, conf, false)

	consumer, err := sarama.NewConsumerGroup(brokers, group, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return consumer, nil
}

func newSyncProducer(brokers []string, conf config.Kafka) (sarama.SyncProducer, error) {
	kafkaConfig := sarama.NewConfig()

	kafkaConfig.Net.DialTimeout = 10 * time.Second
	kafkaConfig.Net.ReadTimeout = 15 * time.Second
	kafkaConfig.Net.WriteTimeout = 15 * time.Second
	kafkaConfig.Net.KeepAlive = 30 * time.Second

	kafkaConfig.Metadata.Timeout = 10 * time.Second
	kafkaConfig.Metadata.Retry.Max = 1
	kafkaConfig.Metadata.Retry.Backoff = 1 * time.Second
	kafkaConfig.Metadata.RefreshFrequency = 1 * time.Minute

	kafkaConfig.Producer.RequiredAcks = sarama.WaitForAll
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.Retry.Max = 0
	kafkaConfig.Producer.Timeout = 10 * time.Second
	kafkaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	applySASLConfig(kafkaConfig, conf, true)

	producer, err := sarama.NewSyncProducer(brokers, kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka sync producer: %w", err)
	}
	return producer, nil
}
