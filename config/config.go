package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	DB           DBConfig           `mapstructure:"db"`
	API          APIConfig          `mapstructure:"api"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Cache        CacheConfig        `mapstructure:"cache"`
	MQTT         MQTTConfig         `mapstructure:"mqtt"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Cleanup      CleanupConfig      `mapstructure:"cleanup"`
}

// ServerConfig enthält Einstellungen für die lokale Steuer-API
type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	DataDir     string   `mapstructure:"data_dir"`
	Timezone    string   `mapstructure:"timezone"`
	Language    string   `mapstructure:"language"`     // Standardsprache der API-Fehlermeldungen
	CORSOrigins []string `mapstructure:"cors_origins"` // leer = alle Origins erlaubt
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" oder "json"
	File   string `mapstructure:"file"`
}

// DBConfig enthält Datenbankeinstellungen für die persistente Warteschlange
type DBConfig struct {
	File string `mapstructure:"file"`
}

// APIConfig beschreibt die entfernte Fiskal-API
type APIConfig struct {
	BaseURL string            `mapstructure:"base_url"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Headers map[string]string `mapstructure:"headers"`
}

// QueueConfig enthält die Stellschrauben der Warteschlange und der Synchronisation.
// Die Werte sind für die Lebensdauer einer Engine-Instanz unveränderlich.
type QueueConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxQueueSize      int           `mapstructure:"max_queue_size"`
	BatchSize         int           `mapstructure:"batch_size"`
	SyncInterval      time.Duration `mapstructure:"sync_interval"`
}

// DefaultQueueConfig liefert die Standardwerte der Warteschlange
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries:        3,
		RetryDelay:        time.Second,
		MaxRetryDelay:     30 * time.Second,
		BackoffMultiplier: 2,
		MaxQueueSize:      1000,
		BatchSize:         10,
		SyncInterval:      30 * time.Second,
	}
}

// CacheResourceConfig beschreibt die Cache-Politik einer Ressource
type CacheResourceConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	CacheList bool          `mapstructure:"cache_list"`
	CacheItem bool          `mapstructure:"cache_item"`
}

// CacheConfig enthält Cache-Einstellungen
type CacheConfig struct {
	MaxEntries    int                            `mapstructure:"max_entries"`
	SweepInterval time.Duration                  `mapstructure:"sweep_interval"`
	SnapshotURL   string                         `mapstructure:"snapshot_url"` // z.B. file:///data/cache.json
	Resources     map[string]CacheResourceConfig `mapstructure:"resources"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	Topic           string `mapstructure:"topic"`
	HomeAssistant   bool   `mapstructure:"home_assistant"`   // Discovery-Konfiguration für Home Assistant veröffentlichen
	DiscoveryPrefix string `mapstructure:"discovery_prefix"` // Standard "homeassistant"
}

// ConnectivityConfig steuert die Erkennung des Online-Status
type ConnectivityConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	StartOnline   bool          `mapstructure:"start_online"`
}

// CleanupConfig enthält Bereinigungseinstellungen für abgeschlossene Operationen
type CleanupConfig struct {
	Retention time.Duration `mapstructure:"retention"`
	Interval  time.Duration `mapstructure:"interval"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Standardwerte festlegen
	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.SetEnvPrefix("FISCAL_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Queue.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft die Warteschlangen-Parameter auf offensichtliche Fehler
func (q QueueConfig) Validate() error {
	switch {
	case q.MaxRetries < 0:
		return fmt.Errorf("queue.max_retries must not be negative")
	case q.MaxQueueSize <= 0:
		return fmt.Errorf("queue.max_queue_size must be positive")
	case q.BatchSize <= 0:
		return fmt.Errorf("queue.batch_size must be positive")
	case q.BackoffMultiplier < 1:
		return fmt.Errorf("queue.backoff_multiplier must be >= 1")
	case q.RetryDelay < 0 || q.MaxRetryDelay < 0:
		return fmt.Errorf("queue retry delays must not be negative")
	}
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server-Standardwerte
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.language", "en")

	// Log-Standardwerte
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	// DB-Standardwerte
	v.SetDefault("db.file", "./data/queue.db")

	// API-Standardwerte
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", "30s")

	// Warteschlange
	q := DefaultQueueConfig()
	v.SetDefault("queue.max_retries", q.MaxRetries)
	v.SetDefault("queue.retry_delay", q.RetryDelay.String())
	v.SetDefault("queue.max_retry_delay", q.MaxRetryDelay.String())
	v.SetDefault("queue.backoff_multiplier", q.BackoffMultiplier)
	v.SetDefault("queue.max_queue_size", q.MaxQueueSize)
	v.SetDefault("queue.batch_size", q.BatchSize)
	v.SetDefault("queue.sync_interval", q.SyncInterval.String())

	// Cache
	v.SetDefault("cache.max_entries", 5000)
	v.SetDefault("cache.sweep_interval", "1m")
	v.SetDefault("cache.snapshot_url", "")

	// MQTT-Standardwerte
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "fiscal-offline-go")
	v.SetDefault("mqtt.topic", "fiscal/sync")
	v.SetDefault("mqtt.home_assistant", false)
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")

	// Konnektivität
	v.SetDefault("connectivity.probe_interval", "15s")
	v.SetDefault("connectivity.start_online", true)

	// Aufbewahrung abgeschlossener Operationen
	v.SetDefault("cleanup.retention", "24h")
	v.SetDefault("cleanup.interval", "1h")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (für SQLite)
	if cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
