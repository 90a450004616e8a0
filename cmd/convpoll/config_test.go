package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-converse/protodef"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORT", "")
	t.Setenv("CONFIG_FILE", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "slog", cfg.LogBackend)
	assert.Equal(t, "convpoll.yaml", cfg.Definitions)
	assert.Equal(t, 30*time.Second, cfg.PollInterval())
	assert.Equal(t, 2, cfg.RetryCount)
	assert.Equal(t, uint(8080), cfg.Port)
	assert.False(t, cfg.MQTT.Enable)
	assert.Equal(t, "convpoll", cfg.MQTT.BaseTopic)

	pc := cfg.publisherConfig()
	assert.Equal(t, "tcp://localhost:1883", pc.Broker)
	assert.Equal(t, 2*time.Second, pc.PublishTimeout)
}

func TestLoadConfig_EnvAndFile(t *testing.T) {
	clearEnv(t)

	file := filepath.Join(t.TempDir(), "convpoll.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log_level: warn
definitions: /etc/convpoll/devices.toml
mqtt:
  enable: true
  host: broker
  base_topic: solar
devices:
  inv1:
    link: /dev/ttyUSB1
    baud_rate: 9600
  Inv2:
    disabled: true
`), 0o600))

	t.Setenv("CONFIG_FILE", file)
	t.Setenv("PORT", "9090")
	t.Setenv("CONVPOLL_LOG_BACKEND", "zap")
	t.Setenv("CONVPOLL_MQTT_PORT", "8883")

	cfg, err := loadConfig(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "zap", cfg.LogBackend)
	assert.Equal(t, uint(9090), cfg.Port)
	assert.Equal(t, "/etc/convpoll/devices.toml", cfg.Definitions)
	assert.True(t, cfg.MQTT.Enable)
	assert.Equal(t, "tcp://broker:8883", cfg.publisherConfig().Broker)
	assert.Equal(t, "solar", cfg.MQTT.BaseTopic)
	assert.Equal(t, DeviceConfig{Link: "/dev/ttyUSB1", BaudRate: 9600}, cfg.Devices["inv1"])
	assert.True(t, cfg.Devices["inv2"].Disabled)

	l, err := cfg.newLogger()
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"log level", map[string]string{"CONVPOLL_LOG_LEVEL": "loud"}},
		{"log backend", map[string]string{"CONVPOLL_LOG_BACKEND": "logrus"}},
		{"poll interval", map[string]string{"CONVPOLL_POLL_INTERVAL_MILLIS": "10"}},
		{"retry count", map[string]string{"CONVPOLL_RETRY_COUNT": "-1"}},
		{"mqtt qos", map[string]string{"CONVPOLL_MQTT_ENABLE": "true", "CONVPOLL_MQTT_QOS": "3"}},
		{"mqtt topic", map[string]string{"CONVPOLL_MQTT_ENABLE": "true", "CONVPOLL_MQTT_BASE_TOPIC": "pv/#"}},
		{"missing file", map[string]string{"CONFIG_FILE": "/nonexistent/convpoll.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := loadConfig(viper.New())
			require.Error(t, err)
		})
	}
}

func TestApplyDeviceOverrides(t *testing.T) {
	three := 3
	defs := &protodef.Definitions{Devices: []protodef.Device{
		{Name: "Inv1", Link: "socket://a:1", BaudRate: 19200},
		{Name: "inv2", Link: "socket://b:1"},
		{Name: "inv3", Link: "socket://c:1", RetryCount: &three},
	}}
	cfg := &Config{
		RetryCount: 1,
		Devices: map[string]DeviceConfig{
			"inv1": {Link: "/dev/ttyS0"},
			"inv2": {Disabled: true},
		},
	}

	cfg.applyDeviceOverrides(defs)

	require.Len(t, defs.Devices, 2)
	assert.Equal(t, "/dev/ttyS0", defs.Devices[0].Link)
	assert.Equal(t, 19200, defs.Devices[0].BaudRate)
	assert.Equal(t, 1, *defs.Devices[0].RetryCount)
	assert.Equal(t, "inv3", defs.Devices[1].Name)
	assert.Equal(t, 3, *defs.Devices[1].RetryCount)
}
