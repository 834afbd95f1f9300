package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"iot-tier-pipeline/src/utils"
)

const (
	StorageS3     = "s3"
	StorageMinio  = "minio"
	StorageMemory = "memory"

	MetricsCloudWatch = "cloudwatch"
	MetricsLog        = "log"
	MetricsNone       = "none"

	StageAuto       = "auto"
	StageClassifier = "classifier"
	StageAggregator = "aggregator"
)

type Config struct {
	AWS       AWSConfig       `mapstructure:"aws"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Listeners ListenersConfig `mapstructure:"listeners"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

// StorageConfig selects the object store holding the four tiers.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type MetricsConfig struct {
	Backend   string `mapstructure:"backend"`
	Namespace string `mapstructure:"namespace"`
}

type PipelineConfig struct {
	Stage            string  `mapstructure:"stage"`
	AnomalyThreshold float64 `mapstructure:"anomaly_threshold"`
}

type ListenersConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

type WebhookConfig struct {
	Addr string `mapstructure:"addr"`
}

type AMQPConfig struct {
	URL        string `mapstructure:"url"`
	Queue      string `mapstructure:"queue"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
}

type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

var envBindings = map[string]string{
	"aws.region":                 "AWS_REGION",
	"storage.backend":            "STORAGE_BACKEND",
	"storage.endpoint":           "STORAGE_ENDPOINT",
	"storage.access_key":         "STORAGE_ACCESS_KEY",
	"storage.secret_key":         "STORAGE_SECRET_KEY",
	"storage.use_ssl":            "STORAGE_USE_SSL",
	"storage.bucket":             "STORAGE_BUCKET",
	"metrics.backend":            "METRICS_BACKEND",
	"metrics.namespace":          "METRICS_NAMESPACE",
	"pipeline.stage":             "PIPELINE_STAGE",
	"pipeline.anomaly_threshold": "PIPELINE_ANOMALY_THRESHOLD",
	"listeners.webhook.addr":     "WEBHOOK_ADDR",
	"listeners.amqp.url":         "AMQP_URL",
	"listeners.amqp.queue":       "AMQP_QUEUE",
	"listeners.amqp.exchange":    "AMQP_EXCHANGE",
	"listeners.amqp.routing_key": "AMQP_ROUTING_KEY",
	"listeners.mqtt.broker":      "MQTT_BROKER",
	"listeners.mqtt.topic":       "MQTT_TOPIC",
	"listeners.mqtt.client_id":   "MQTT_CLIENT_ID",
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		AWS: AWSConfig{Region: "us-east-1"},
		Storage: StorageConfig{
			Backend: StorageS3,
		},
		Metrics: MetricsConfig{
			Backend:   MetricsCloudWatch,
			Namespace: "IoTPipeline",
		},
		Pipeline: PipelineConfig{
			Stage:            StageAuto,
			AnomalyThreshold: utils.AnomalyThreshold,
		},
		Listeners: ListenersConfig{
			AMQP: AMQPConfig{
				Queue:      "bucketevents",
				Exchange:   "bucketevents",
				RoutingKey: "bucketlogs",
			},
			MQTT: MQTTConfig{
				Topic:    "minio/events",
				ClientID: "iot-tier-pipeline",
			},
		},
	}
}

// Load reads defaults, then an optional config.yaml under path, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("aws.region", d.AWS.Region)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("metrics.backend", d.Metrics.Backend)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("pipeline.stage", d.Pipeline.Stage)
	v.SetDefault("pipeline.anomaly_threshold", d.Pipeline.AnomalyThreshold)
	v.SetDefault("listeners.webhook.addr", d.Listeners.Webhook.Addr)
	v.SetDefault("listeners.amqp.url", d.Listeners.AMQP.URL)
	v.SetDefault("listeners.amqp.queue", d.Listeners.AMQP.Queue)
	v.SetDefault("listeners.amqp.exchange", d.Listeners.AMQP.Exchange)
	v.SetDefault("listeners.amqp.routing_key", d.Listeners.AMQP.RoutingKey)
	v.SetDefault("listeners.mqtt.broker", d.Listeners.MQTT.Broker)
	v.SetDefault("listeners.mqtt.topic", d.Listeners.MQTT.Topic)
	v.SetDefault("listeners.mqtt.client_id", d.Listeners.MQTT.ClientID)

	if path != "" {
		v.AddConfigPath(path)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Println("No config file found, using environment variables and defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Pipeline.AnomalyThreshold != utils.AnomalyThreshold {
		log.Printf("Warning: pipeline.anomaly_threshold=%v replaces the standard cutoff %v; silver, anomalies and gold outputs will not match other deployments",
			cfg.Pipeline.AnomalyThreshold, utils.AnomalyThreshold)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageS3, StorageMemory:
	case StorageMinio:
		if c.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for the %s backend", StorageMinio)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Metrics.Backend {
	case MetricsCloudWatch, MetricsLog, MetricsNone:
	default:
		return fmt.Errorf("unknown metrics.backend %q", c.Metrics.Backend)
	}

	switch c.Pipeline.Stage {
	case StageAuto, StageClassifier, StageAggregator:
	default:
		return fmt.Errorf("unknown pipeline.stage %q", c.Pipeline.Stage)
	}

	if c.Pipeline.AnomalyThreshold < 0 || c.Pipeline.AnomalyThreshold > 1 {
		return fmt.Errorf("pipeline.anomaly_threshold must be within [0,1], got %v", c.Pipeline.AnomalyThreshold)
	}

	return nil
}

// StageNamespace is the metrics namespace of one stage.
func (c *Config) StageNamespace(stage string) string {
	return c.Metrics.Namespace + "/" + stage
}
