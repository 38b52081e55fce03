package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"paks": ["id1/pak0.pak", "id1/pak1.pak"],
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, []string{"id1/pak0.pak", "id1/pak1.pak"}, GetPaks())
	assert.Equal(t, "10.0.0.1", GetString("db.host"))
	assert.Equal(t, "5433", GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", GetString("logLevel"))
	assert.Equal(t, "./quakeview-logs", GetString("logsDir"))
	assert.Equal(t, []string{"id1/pak0.pak"}, GetPaks())
	assert.Equal(t, false, GetBool("influx.enabled"))
	assert.Equal(t, "quakeview", GetString("influx.org"))
	assert.Equal(t, false, GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", GetString("graylog.address"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)

	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestTypedConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, LoaderConfig{
		TextureIndex:          "absolute",
		ExcludeTargetedLights: true,
		ModelFlags:            "raw",
		Liquid:                true,
	}, GetLoaderConfig())

	assert.Equal(t, StreamConfig{
		Enabled:    true,
		Level:      "start",
		TickRate:   100 * time.Millisecond,
		SendBuffer: 32,
	}, GetStreamConfig())

	sc := GetStorageConfig()
	assert.Equal(t, "memory", sc.Type)
	assert.Equal(t, "./quakeview-cache.db", sc.SQLite.Path)
	assert.Equal(t, DBConfig{Host: "localhost", Port: "5432", Username: "postgres", Password: "postgres", Database: "quakeview"}, sc.DB)

	assert.Equal(t, CacheConfig{MaxCost: 256 << 20, NumCounters: 10_000}, GetCacheConfig())
	assert.Equal(t, HTTPConfig{Addr: ":8000", Gzip: true, StaticDir: "static", CORSOrigins: []string{"*"}}, GetHTTPConfig())

	oc := GetOTelConfig()
	assert.Equal(t, false, oc.Enabled)
	assert.Equal(t, "quakeview", oc.ServiceName)
	assert.Equal(t, 5*time.Second, oc.BatchTimeout)
	assert.Equal(t, "", oc.Endpoint)
	assert.Equal(t, true, oc.Insecure)
}

func TestTypedConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"http": { "addr": "127.0.0.1:9000", "gzip": false, "staticDir": "", "corsOrigins": ["http://viewer.local"] },
		"loader": { "textureIndex": "compact", "modelFlags": "autorotate", "liquid": false },
		"stream": { "tickRate": "50ms", "sendBuffer": 4, "level": "e1m1" },
		"storage": { "type": "sqlite", "sqlite": { "path": "/tmp/cache.db" } },
		"otel": { "enabled": true, "serviceName": "viewer", "batchTimeout": "30s", "endpoint": "localhost:4317", "insecure": false }
	}`)))

	lc := GetLoaderConfig()
	assert.Equal(t, "compact", lc.TextureIndex)
	assert.Equal(t, "autorotate", lc.ModelFlags)
	assert.False(t, lc.Liquid)
	assert.True(t, lc.ExcludeTargetedLights)

	st := GetStreamConfig()
	assert.Equal(t, 50*time.Millisecond, st.TickRate)
	assert.Equal(t, 4, st.SendBuffer)
	assert.Equal(t, "e1m1", st.Level)

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/cache.db", sc.SQLite.Path)

	assert.Equal(t, HTTPConfig{Addr: "127.0.0.1:9000", CORSOrigins: []string{"http://viewer.local"}}, GetHTTPConfig())

	oc := GetOTelConfig()
	assert.True(t, oc.Enabled)
	assert.Equal(t, "viewer", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4317", oc.Endpoint)
	assert.False(t, oc.Insecure)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("QUAKEVIEW_STREAM_LEVEL", "e2m1")

	require.NoError(t, Load(writeConfig(t, `{ "stream": { "level": "e1m1" } }`)))
	assert.Equal(t, "e2m1", GetStreamConfig().Level)
}

func TestLoadDotEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { os.Unsetenv("QUAKEVIEW_HTTP_ADDR") })

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUAKEVIEW_HTTP_ADDR=127.0.0.1:7000\n"), 0644))
	require.NoError(t, LoadDotEnv(path))

	require.NoError(t, Load(writeConfig(t, `{}`)))
	assert.Equal(t, "127.0.0.1:7000", GetHTTPConfig().Addr)
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}
