// Package config loads quakeview.cfg.json through viper and exposes the
// typed settings each component reads.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "quakeview.cfg.json"

// LoaderConfig holds asset decoding options.
type LoaderConfig struct {
	TextureIndex          string `json:"textureIndex" mapstructure:"textureIndex"`
	ExcludeTargetedLights bool   `json:"excludeTargetedLights" mapstructure:"excludeTargetedLights"`
	ModelFlags            string `json:"modelFlags" mapstructure:"modelFlags"`
	Liquid                bool   `json:"liquid" mapstructure:"liquid"`
}

// StreamConfig holds live stream settings.
type StreamConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Level      string        `json:"level" mapstructure:"level"`
	TickRate   time.Duration `json:"tickRate" mapstructure:"tickRate"`
	SendBuffer int           `json:"sendBuffer" mapstructure:"sendBuffer"`
}

// SQLiteConfig holds sqlite cache settings.
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DBConfig holds postgres connection settings.
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects the persistent asset cache.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	DB     DBConfig     `json:"db" mapstructure:"db"`
}

// CacheConfig sizes the in-process response cache.
type CacheConfig struct {
	MaxCost     int64 `json:"maxCost" mapstructure:"maxCost"`
	NumCounters int64 `json:"numCounters" mapstructure:"numCounters"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
	Gzip bool   `json:"gzip" mapstructure:"gzip"`
	// StaticDir is served under /static when set.
	StaticDir   string   `json:"staticDir" mapstructure:"staticDir"`
	CORSOrigins []string `json:"corsOrigins" mapstructure:"corsOrigins"`
}

// EnvPrefix prefixes environment overrides: QUAKEVIEW_HTTP_ADDR sets
// http.addr.
const EnvPrefix = "QUAKEVIEW"

// LoadDotEnv exports the variables of an env file so they override the
// config file. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error reading env file: %w", err)
	}
	return nil
}

// Load sets defaults and reads FileName from configDir.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./quakeview-logs")
	viper.SetDefault("logMaxSizeMB", 50)
	viper.SetDefault("logMaxBackups", 5)
	viper.SetDefault("paks", []string{"id1/pak0.pak"})

	viper.SetDefault("http.addr", ":8000")
	viper.SetDefault("http.gzip", true)
	viper.SetDefault("http.staticDir", "static")
	viper.SetDefault("http.corsOrigins", []string{"*"})

	viper.SetDefault("loader.textureIndex", "absolute")
	viper.SetDefault("loader.excludeTargetedLights", true)
	viper.SetDefault("loader.modelFlags", "raw")
	viper.SetDefault("loader.liquid", true)

	viper.SetDefault("stream.enabled", true)
	viper.SetDefault("stream.level", "start")
	viper.SetDefault("stream.tickRate", "100ms")
	viper.SetDefault("stream.sendBuffer", 32)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "./quakeview-cache.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "quakeview")

	viper.SetDefault("cache.maxCost", 256<<20)
	viper.SetDefault("cache.numCounters", 10_000)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "quakeview")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "quakeview")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetPaks returns the archives to mount, in lookup order.
func GetPaks() []string {
	return viper.GetStringSlice("paks")
}

func GetLoaderConfig() LoaderConfig {
	return LoaderConfig{
		TextureIndex:          viper.GetString("loader.textureIndex"),
		ExcludeTargetedLights: viper.GetBool("loader.excludeTargetedLights"),
		ModelFlags:            viper.GetString("loader.modelFlags"),
		Liquid:                viper.GetBool("loader.liquid"),
	}
}

func GetStreamConfig() StreamConfig {
	return StreamConfig{
		Enabled:    viper.GetBool("stream.enabled"),
		Level:      viper.GetString("stream.level"),
		TickRate:   viper.GetDuration("stream.tickRate"),
		SendBuffer: viper.GetInt("stream.sendBuffer"),
	}
}

// GetStorageConfig returns the storage settings; postgres reads the
// top-level db block.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:   viper.GetString("storage.type"),
		SQLite: SQLiteConfig{Path: viper.GetString("storage.sqlite.path")},
		DB: DBConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

func GetCacheConfig() CacheConfig {
	return CacheConfig{
		MaxCost:     viper.GetInt64("cache.maxCost"),
		NumCounters: viper.GetInt64("cache.numCounters"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

func GetHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Addr: viper.GetString("http.addr"),
		Gzip: viper.GetBool("http.gzip"),

		StaticDir:   viper.GetString("http.staticDir"),
		CORSOrigins: viper.GetStringSlice("http.corsOrigins"),
	}
}
