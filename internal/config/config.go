package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for a telemetry-fabric process. Every
// binary (probe, agent, central, pmds) loads the same shape and reads
// only the sections it needs.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Server ServerConfig `mapstructure:"server"`
	K8s    K8sConfig    `mapstructure:"k8s"`

	Agent   AgentConfig   `mapstructure:"agent"`
	Central CentralConfig `mapstructure:"central"`
	Probe   ProbeConfig   `mapstructure:"probe"`

	Mongo  MongoConfig  `mapstructure:"mongo"`
	Influx InfluxConfig `mapstructure:"influx"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// ServerConfig holds HTTP server configuration shared by every process.
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// K8sConfig selects how a process talks to the Kubernetes API.
type K8sConfig struct {
	ConfigPath string `mapstructure:"config_path"`
	InCluster  bool   `mapstructure:"in_cluster"`
	Namespace  string `mapstructure:"namespace"`
}

// AgentConfig holds Enhanced Telemetry Agent (C2-C7) settings. Field
// names follow spec.md §6; query_interval is the canonical poll-period
// key (the original source also carries a misspelled duplicate which we
// do not reproduce).
type AgentConfig struct {
	AgentUUID        string `mapstructure:"agent_uuid"`
	ExposedService   string `mapstructure:"exposed_service"`
	CentralURL       string `mapstructure:"central_url"`
	QueryInterval    int    `mapstructure:"query_interval"`
	QueryTimeout     int    `mapstructure:"query_timeout"`
	RetainDataPeriod int    `mapstructure:"retain_data_period"`
	ActiveMonitoring bool   `mapstructure:"active_monitoring"`
}

func (a AgentConfig) PollInterval() time.Duration {
	return time.Duration(a.QueryInterval) * time.Second
}

func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.QueryTimeout) * time.Second
}

func (a AgentConfig) Retention() time.Duration {
	return time.Duration(a.RetainDataPeriod) * time.Second
}

// CentralConfig holds Central Telemetry Handler (C8-C9) settings.
type CentralConfig struct {
	QueryTimeout int `mapstructure:"query_timeout"`
}

func (c CentralConfig) Timeout() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Second
}

// ProbeConfig holds probe (C1) settings; which fields apply depends on
// the probe kind the binary was built for.
type ProbeConfig struct {
	ProbeUUID            string `mapstructure:"probe_uuid"`
	Kind                  string `mapstructure:"kind"` // "k8s" | "hpc" | "edge_storage"
	ClusterUUID           string `mapstructure:"cluster_uuid"`
	NodeExporterService   string `mapstructure:"node_exporter_service"`
	NodeExporterPort      int    `mapstructure:"node_exporter_port"`
	EdgeStorageNamespace  string `mapstructure:"edge_storage_namespace"`
	EdgeStorageSelector   string `mapstructure:"edge_storage_selector"`
	EdgeStorageMetricPort int    `mapstructure:"edge_storage_metric_port"`
	HPCGatewayURL         string `mapstructure:"hpc_gateway_url"`
}

// MongoConfig holds the operational document store connection (C5/C9).
type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

// InfluxConfig holds the PMDS time-series store connection (C6/C10).
type InfluxConfig struct {
	URL                     string `mapstructure:"url"`
	Token                   string `mapstructure:"token"`
	Org                     string `mapstructure:"org"`
	BucketRetentionSeconds  int64  `mapstructure:"bucket_retention_seconds"`
}

// KafkaConfig holds the notification bus connection (C7).
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig holds the agent's shared liveness-flag cache (C4).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/serrano")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("log_level", "INFO")

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("k8s.in_cluster", true)
	viper.SetDefault("k8s.namespace", "serrano")

	viper.SetDefault("agent.query_interval", 60)
	viper.SetDefault("agent.query_timeout", 5)
	viper.SetDefault("agent.retain_data_period", 1800)
	viper.SetDefault("agent.active_monitoring", true)

	viper.SetDefault("central.query_timeout", 5)

	viper.SetDefault("probe.node_exporter_service", "node-exporter")
	viper.SetDefault("probe.node_exporter_port", 9100)
	viper.SetDefault("probe.edge_storage_namespace", "serrano")
	viper.SetDefault("probe.edge_storage_selector", "app=minio")
	viper.SetDefault("probe.edge_storage_metric_port", 7000)

	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "serrano_telemetry")

	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.org", "serrano")
	viper.SetDefault("influx.bucket_retention_seconds", 315360000)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "serrano_telemetry_notifications")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
}

// Validate validates configuration common to every process.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Mongo.URI == "" {
		return fmt.Errorf("mongo uri is required")
	}
	return nil
}
