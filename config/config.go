package config

import (
	"fmt"
	"net/url"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	ParcelBox ParcelBoxConfig `yaml:"parcelbox"`
	Countries []CountryConfig `yaml:"countries"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds a pgx connection string. SSL is disabled unless configured.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

type KafkaConfig struct {
	Host                          string `yaml:"host"`
	Port                          int    `yaml:"port"`
	OrderCreatedTopicName         string `yaml:"order_created_topic_name"`
	TrackingNumberIssuedTopicName string `yaml:"tracking_number_issued_topic_name"`
}

func (k KafkaConfig) Addr() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ParcelBoxConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	CountryCacheTTLSeconds int `yaml:"country_cache_ttl_seconds"`
	RateLimitPerMinute     int `yaml:"rate_limit_per_minute"`
	IdempotencyTTLSeconds  int `yaml:"idempotency_ttl_seconds"`
	ConflictRetryAttempts  int `yaml:"conflict_retry_attempts"`
	TrackingNumberAttempts int `yaml:"tracking_number_attempts"`
	SlugSuffixAttempts     int `yaml:"slug_suffix_attempts"`

	RelayHTTPAddr            string `yaml:"relay_http_addr"`
	RelayPollIntervalSeconds int    `yaml:"relay_poll_interval_seconds"`
	RelayBatchSize           int    `yaml:"relay_batch_size"`
	RelayConcurrency         int    `yaml:"relay_concurrency"`
	RelayLeaseSeconds        int    `yaml:"relay_lease_seconds"`

	// Relay retry schedule (optional). Defaults: 5/15/30/60 seconds.
	RelayBackoff1Seconds int `yaml:"relay_backoff_1_seconds"`
	RelayBackoff2Seconds int `yaml:"relay_backoff_2_seconds"`
	RelayBackoff3Seconds int `yaml:"relay_backoff_3_seconds"`
	RelayBackoff4Seconds int `yaml:"relay_backoff_4_seconds"`
	RelayMaxJitterMillis int `yaml:"relay_max_jitter_millis"`
}

type CountryConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
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
