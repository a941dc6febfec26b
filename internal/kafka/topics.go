package kafka

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"

	"github.com/segmentio/kafka-go"
)

const (
	TopicAIInteractions  = "helpdesk.ai-interactions"
	TopicKnowledgeChunks = "helpdesk.knowledge-chunks"
)

// TopicConfig defines Kafka topic configuration
type TopicConfig struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
	CleanupPolicy     string
	KeyField          string
}

// Topics defines all Kafka topics the service writes to
var Topics = map[string]TopicConfig{
	// Audit stream of every answer, ingest and suggestion
	TopicAIInteractions: {
		Name:              TopicAIInteractions,
		Partitions:        6,
		ReplicationFactor: 3,
		RetentionMs:       2592000000, // 30 days
		CleanupPolicy:     "delete",
		KeyField:          "session_id",
	},
	// Chunk lifecycle, keyed by chunk so events stay ordered per chunk
	TopicKnowledgeChunks: {
		Name:              TopicKnowledgeChunks,
		Partitions:        3,
		ReplicationFactor: 3,
		RetentionMs:       604800000, // 7 days
		CleanupPolicy:     "delete",
		KeyField:          "chunk_id",
	},
}

// TopicManager handles Kafka topic creation and management
type TopicManager struct {
	brokers []string
	logger  *slog.Logger
}

func NewTopicManager(brokers []string, logger *slog.Logger) *TopicManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicManager{brokers: brokers, logger: logger}
}

// CreateTopics creates the configured topics on the controller. Topics that
// already exist are logged and skipped.
func (tm *TopicManager) CreateTopics() error {
	if len(tm.brokers) == 0 {
		return ErrInvalidBrokers
	}
	conn, err := kafka.Dial("tcp", tm.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka broker: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}
	defer controllerConn.Close()

	for _, name := range TopicNames() {
		config := Topics[name]
		err := controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             config.Name,
			NumPartitions:     config.Partitions,
			ReplicationFactor: config.ReplicationFactor,
			ConfigEntries: []kafka.ConfigEntry{
				{ConfigName: "retention.ms", ConfigValue: strconv.FormatInt(config.RetentionMs, 10)},
				{ConfigName: "cleanup.policy", ConfigValue: config.CleanupPolicy},
			},
		})
		if err != nil {
			tm.logger.Warn("topic not created", "topic", name, "error", err)
			continue
		}
		tm.logger.Info("created topic", "topic", name, "partitions", config.Partitions)
	}
	return nil
}

// TopicNames returns the configured topic names in sorted order
func TopicNames() []string {
	names := make([]string, 0, len(Topics))
	for name := range Topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTopicConfig retrieves the configuration for a specific topic
func GetTopicConfig(topicName string) (TopicConfig, error) {
	config, exists := Topics[topicName]
	if !exists {
		return TopicConfig{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topicName)
	}
	return config, nil
}
