package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Log        LogConfig        `mapstructure:"log"`
	Business   BusinessConfig   `mapstructure:"business"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Properties PropertiesConfig `mapstructure:"properties"`
}

type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	AdminToken string `mapstructure:"admin_token"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CommissionSettled string `mapstructure:"commission_settled"`
}

type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	VHost    string `mapstructure:"vhost"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
	Workers  int    `mapstructure:"workers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	MaxRetryCount    int `mapstructure:"max_retry_count"`
	ReferralMaxDepth int `mapstructure:"referral_max_depth"`
	LockTTLSeconds   int `mapstructure:"lock_ttl_seconds"`
	LockMaxRetries   int `mapstructure:"lock_max_retries"`
	DecayBatchSize   int `mapstructure:"decay_batch_size"`
}

type JobsConfig struct {
	PointDecayHour          int `mapstructure:"point_decay_hour"`
	FulfillmentRetrySeconds int `mapstructure:"fulfillment_retry_seconds"`
}

// PropertiesConfig 运营参数，支持运行时重新加载
type PropertiesConfig struct {
	DefaultGoodsPointRate   float64 `mapstructure:"default_goods_point_rate"`
	VIPThreshold            float64 `mapstructure:"vip_threshold"`
	ManagerCommission       float64 `mapstructure:"manager_commission"`
	GuideManagerCommission  float64 `mapstructure:"guide_manager_commission"`
	DirectorCommission      float64 `mapstructure:"director_commission"`
	GuideDirectorCommission float64 `mapstructure:"guide_director_commission"`
	AgentCommission         float64 `mapstructure:"agent_commission"`
	DefaultPointDumpRate    float64 `mapstructure:"default_point_dump_rate"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.referral_max_depth", 64)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.lock_max_retries", 3)
	v.SetDefault("business.decay_batch_size", 200)
	v.SetDefault("jobs.point_decay_hour", 3)
	v.SetDefault("jobs.fulfillment_retry_seconds", 60)
	v.SetDefault("kafka.topic.commission_settled", "commission_settled")
	v.SetDefault("rabbitmq.queue", "order.received")
	v.SetDefault("rabbitmq.prefetch", 10)
	v.SetDefault("rabbitmq.workers", 4)
}

// LoadConfig 加载配置文件，环境变量 HGNC_* 可覆盖文件中的配置
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HGNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	GlobalConfig = cfg
	return cfg, nil
}
