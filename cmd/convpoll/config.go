package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arloliu/go-converse/logger"
	"github.com/arloliu/go-converse/protodef"
	"github.com/arloliu/go-converse/publish"
)

type Config struct {
	LogLevel   string `mapstructure:"log_level"`
	LogBackend string `mapstructure:"log_backend"`
	// Definitions is the YAML or TOML protocol definition file.
	Definitions        string                  `mapstructure:"definitions"`
	PollIntervalMillis uint32                  `mapstructure:"poll_interval_millis"`
	RetryCount         int                     `mapstructure:"retry_count"`
	Port               uint                    `mapstructure:"port"`
	HttpLog            bool                    `mapstructure:"http_log"`
	MQTT               MQTTConfig              `mapstructure:"mqtt"`
	Devices            map[string]DeviceConfig `mapstructure:"devices"`
}

type MQTTConfig struct {
	Enable               bool
	Host                 string
	Port                 int
	Username             string
	Password             string
	ClientID             string `mapstructure:"client_id"`
	BaseTopic            string `mapstructure:"base_topic"`
	QoS                  byte   `mapstructure:"qos"`
	Retain               bool
	PublishTimeoutMillis uint32 `mapstructure:"publish_timeout_millis"`
}

// DeviceConfig overrides the link settings of a device in the definitions file.
type DeviceConfig struct {
	Link     string
	BaudRate int `mapstructure:"baud_rate"`
	Disabled bool
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_backend", "slog")
	v.SetDefault("definitions", "convpoll.yaml")
	v.SetDefault("poll_interval_millis", 30000)
	v.SetDefault("retry_count", 2)
	v.SetDefault("port", 8080)
	v.SetDefault("http_log", false)
	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.base_topic", publish.DefaultBaseTopic)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.publish_timeout_millis", 2000)
}

func loadConfig(v *viper.Viper) (*Config, error) {
	// alias PORT => CONVPOLL_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("CONVPOLL_PORT", port)
	}

	setConfigDefaults(v)

	v.SetEnvPrefix("convpoll")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", cfgFile, err)
		}
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("config param log_level: unknown level %q", c.LogLevel)
	}
	switch c.LogBackend {
	case "slog", "zap":
	default:
		return fmt.Errorf("config param log_backend: must be slog or zap, got %q", c.LogBackend)
	}
	if c.Definitions == "" {
		return errors.New("config param definitions is required")
	}
	if c.PollIntervalMillis < 100 {
		return errors.New("config param poll_interval_millis should be >= 100")
	}
	if c.RetryCount < 0 {
		return errors.New("config param retry_count should be >= 0")
	}
	if c.MQTT.Enable {
		if c.MQTT.Host == "" {
			return errors.New("config param mqtt.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			return errors.New("config param mqtt.qos should be 0, 1 or 2")
		}
		if strings.ContainsAny(c.MQTT.BaseTopic, "+#") {
			return errors.New("config param mqtt.base_topic cannot contain wildcards")
		}
	}

	return nil
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c *Config) newLogger() (logger.Logger, error) {
	level, _ := logger.ParseLevel(c.LogLevel)
	if c.LogBackend == "zap" {
		return logger.NewZap(level, os.Getenv("ENV") == "development")
	}

	return logger.NewSlog(level, false), nil
}

func (c *Config) publisherConfig() publish.MQTTConfig {
	return publish.MQTTConfig{
		Broker:         fmt.Sprintf("tcp://%s:%d", c.MQTT.Host, c.MQTT.Port),
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		BaseTopic:      c.MQTT.BaseTopic,
		QoS:            c.MQTT.QoS,
		Retain:         c.MQTT.Retain,
		PublishTimeout: time.Duration(c.MQTT.PublishTimeoutMillis) * time.Millisecond,
	}
}

// applyDeviceOverrides applies the devices.<name> settings to the definitions.
// Disabled devices are removed.
func (c *Config) applyDeviceOverrides(defs *protodef.Definitions) {
	devices := defs.Devices[:0]
	for _, d := range defs.Devices {
		o, ok := c.Devices[strings.ToLower(d.Name)]
		if ok {
			if o.Disabled {
				continue
			}
			if o.Link != "" {
				d.Link = o.Link
			}
			if o.BaudRate > 0 {
				d.BaudRate = o.BaudRate
			}
		}
		if d.RetryCount == nil {
			n := c.RetryCount
			d.RetryCount = &n
		}
		devices = append(devices, d)
	}
	defs.Devices = devices
}

func safePrintConfig(cfg Config, l logger.Logger) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	l.Info("using config", "config", cfg)
}
