// Package config loads the process's environment-variable bindings into a
// typed Settings struct. It is deliberately small: the configuration
// store's schema/migrations and the REST CRUD surface over it are external
// collaborators, not this package's concern.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"scadalink/internal/logging"
)

// Oracle holds the historian connection and pool settings.
type Oracle struct {
	Host        string
	Port        int
	ServiceName string
	Username    string
	Password    string
	PoolMin     int
	PoolMax     int
}

// Buffer holds the CircularBuffer and OracleWriter tuning settings.
type Buffer struct {
	MaxSize         int
	BatchSize       int
	BatchSizeMax    int
	WriteInterval   time.Duration
	RetryCount      int
	BackupFilePath  string
}

// Polling holds the scheduler and broadcast tuning settings.
type Polling struct {
	MaxPollingGroups          int
	DataQueueSize             int
	WebsocketBroadcastInterval time.Duration
}

// PLC holds the wire-client and pool tuning settings.
type PLC struct {
	ConnectionTimeout time.Duration
	ReadTimeout       time.Duration
	PoolSizePerPLC    int
	IdleTimeout       time.Duration
}

// Republish holds the optional MQTT/Kafka/Valkey sink settings (domain
// stack expansion; all are optional and independently disableable by
// leaving the corresponding *URL/*Addr/*Brokers variable unset).
type Republish struct {
	Namespace string

	MQTTBrokerURL string
	MQTTClientID  string

	KafkaBrokers []string
	KafkaTopic   string

	ValkeyAddr          string
	ValkeyChannelPrefix string
}

// Console holds the optional operator SSH+TUI console settings.
type Console struct {
	SSHAddr        string
	SSHPassword    string
	SSHHostKeyPath string
}

// Websocket holds the monitor/status broadcast HTTP listener settings.
type Websocket struct {
	Addr string
}

// Settings is the full set of process bindings the core consumes.
type Settings struct {
	Oracle    Oracle
	Buffer    Buffer
	Polling   Polling
	PLC       PLC
	Republish Republish
	Console   Console
	Websocket Websocket

	ConfigStorePath string
	BackendDebugLog string
}

// Load reads a local .env overlay (if present) then layers real process
// environment variables on top of it, and returns the parsed Settings.
func Load() *Settings {
	_ = godotenv.Load()

	return &Settings{
		Oracle: Oracle{
			Host:        getEnv("ORACLE_HOST", "localhost"),
			Port:        getEnvInt("ORACLE_PORT", 1521),
			ServiceName: getEnv("ORACLE_SERVICE_NAME", ""),
			Username:    getEnv("ORACLE_USERNAME", ""),
			Password:    getEnv("ORACLE_PASSWORD", ""),
			PoolMin:     getEnvInt("ORACLE_POOL_MIN", 2),
			PoolMax:     getEnvInt("ORACLE_POOL_MAX", 5),
		},
		Buffer: Buffer{
			MaxSize:        getEnvInt("BUFFER_MAX_SIZE", 100_000),
			BatchSize:      clamp(getEnvInt("BUFFER_BATCH_SIZE", 500), 100, 1000),
			BatchSizeMax:   getEnvInt("BUFFER_BATCH_SIZE_MAX", 1000),
			WriteInterval:  getEnvSeconds("BUFFER_WRITE_INTERVAL", 1.0),
			RetryCount:     getEnvInt("BUFFER_RETRY_COUNT", 3),
			BackupFilePath: getEnv("BACKUP_FILE_PATH", "./backups"),
		},
		Polling: Polling{
			MaxPollingGroups:           getEnvInt("MAX_POLLING_GROUPS", 10),
			DataQueueSize:              getEnvInt("DATA_QUEUE_SIZE", 10_000),
			WebsocketBroadcastInterval: getEnvSeconds("WEBSOCKET_BROADCAST_INTERVAL", 1.0),
		},
		PLC: PLC{
			ConnectionTimeout: getEnvSeconds("CONNECTION_TIMEOUT", 5),
			ReadTimeout:       getEnvSeconds("READ_TIMEOUT", 3),
			PoolSizePerPLC:    getEnvInt("POOL_SIZE_PER_PLC", 5),
			IdleTimeout:       getEnvSeconds("IDLE_TIMEOUT", 600),
		},
		Republish: Republish{
			Namespace:           getEnv("NAMESPACE", "scada"),
			MQTTBrokerURL:       getEnv("MQTT_BROKER_URL", ""),
			MQTTClientID:        getEnv("MQTT_CLIENT_ID", "scadalink"),
			KafkaBrokers:        splitNonEmpty(getEnv("KAFKA_BROKERS", "")),
			KafkaTopic:          getEnv("KAFKA_TOPIC", ""),
			ValkeyAddr:          getEnv("VALKEY_ADDR", ""),
			ValkeyChannelPrefix: getEnv("VALKEY_CHANNEL_PREFIX", "scada"),
		},
		Console: Console{
			SSHAddr:        getEnv("CONSOLE_SSH_ADDR", ""),
			SSHPassword:    getEnv("CONSOLE_SSH_PASSWORD", ""),
			SSHHostKeyPath: getEnv("CONSOLE_SSH_HOST_KEY_PATH", ""),
		},
		Websocket: Websocket{
			Addr: getEnv("WEBSOCKET_ADDR", ""),
		},
		ConfigStorePath: getEnv("CONFIG_STORE_PATH", "./configstore.yaml"),
		BackendDebugLog: getEnv("DEBUG_LOG_PATH", ""),
	}
}

// clamp warns on an out-of-range value but returns it unchanged: an
// operator-supplied batch size outside [lo,hi] is surfaced, not silently
// rewritten or rejected at startup.
func clamp(v, lo, hi int) int {
	if v < lo || v > hi {
		logging.Debug("CONFIG", "value %d outside recommended range [%d,%d]", v, lo, hi)
	}
	return v
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

// getEnvSeconds parses a float number of seconds (BUFFER_WRITE_INTERVAL and
// CONNECTION_TIMEOUT are both plain-number env vars) into a time.Duration.
func getEnvSeconds(key string, defSeconds float64) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return time.Duration(defSeconds * float64(time.Second))
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return time.Duration(defSeconds * float64(time.Second))
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}
