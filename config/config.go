package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	TrackHub TrackHubConfig `yaml:"trackhub"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	NotificationIntentTopicName string `yaml:"notification_intent_topic_name"`
	ImportCandidatesTopicName   string `yaml:"import_candidates_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TrackHubConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	CurrentStatusTTLSeconds int `yaml:"current_status_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`

	CarrierRateLimitPerMinute int `yaml:"carrier_rate_limit_per_minute"`
	CDEKRateLimitPerMinute    int `yaml:"cdek_rate_limit_per_minute"`
	PochtaRateLimitPerMinute  int `yaml:"pochta_rate_limit_per_minute"`

	// Расписание проверок (опционально). Нули — прод-дефолты планировщика:
	// активные статусы 30..120 минут, остальное 90 минут, логин — сутки,
	// backoff 5/15/30/60 минут.
	NextCheckActiveMinSeconds int `yaml:"next_check_active_min_seconds"`
	NextCheckActiveMaxSeconds int `yaml:"next_check_active_max_seconds"`
	NextCheckIdleSeconds      int `yaml:"next_check_idle_seconds"`
	NextCheckLoginSeconds     int `yaml:"next_check_login_seconds"`
	NextCheckArchivedSeconds  int `yaml:"next_check_archived_seconds"`
	Backoff1Seconds           int `yaml:"backoff_1_seconds"`
	Backoff2Seconds           int `yaml:"backoff_2_seconds"`
	Backoff3Seconds           int `yaml:"backoff_3_seconds"`
	Backoff4Seconds           int `yaml:"backoff_4_seconds"`

	NotificationsEnabled       bool   `yaml:"notifications_enabled"`
	NotificationsOnlyImportant bool   `yaml:"notifications_only_important"`
	QuietHoursStart            string `yaml:"quiet_hours_start"`
	QuietHoursEnd              string `yaml:"quiet_hours_end"`

	AggregatorBaseURL string `yaml:"aggregator_base_url"`
	AggregatorAPIKey  string `yaml:"aggregator_api_key"`
	AggregatorSlug    string `yaml:"aggregator_slug"`

	MerchantBaseURL string `yaml:"merchant_base_url"`

	CDEKBaseURL   string `yaml:"cdek_base_url"`
	PochtaBaseURL string `yaml:"pochta_base_url"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
