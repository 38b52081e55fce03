package influx

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakeview/server/internal/stream"
)

func readBackup(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestConnect_Disabled(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("influx.enabled", false)

	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "backup.gz"))
	assert.EqualError(t, m.Connect(), "influx.enabled is false")
}

func TestWritePoint_NoSink(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	err := m.WritePoint(BucketStream, nil)
	assert.ErrorContains(t, err, "backup writer not available")
}

func TestBackup_RecordsStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(zerolog.Nop(), path)
	require.NoError(t, m.OpenBackup())
	require.NoError(t, m.OpenBackup())

	var sink stream.StatsSink = m
	sink.RecordTick(stream.TickStats{Tick: 7, Recipients: 2, Messages: 2, Bytes: 96, Values: 59, Duration: 250 * time.Microsecond})
	m.RecordLoad("level", "e1m1", 3*time.Millisecond, false, nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	out := readBackup(t, path)
	require.True(t, strings.HasSuffix(out, "\n"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)

	assert.True(t, strings.HasPrefix(lines[0], "stream_tick tick=7i,"), lines[0])
	assert.Contains(t, lines[0], "recipients=2i")
	assert.Contains(t, lines[0], "bytes=96i")
	assert.Contains(t, lines[0], "duration_us=250i")
	assert.True(t, strings.HasPrefix(lines[1], "asset_load,cached=false,kind=level,name=e1m1 duration_us=3000i,ok=true "), lines[1])
}

func TestLineProtocol(t *testing.T) {
	ts := time.Unix(0, 42)
	tests := []struct {
		name  string
		point *influxdb2_write.Point
		want  string
	}{
		{
			name:  "no tags",
			point: influxdb2_write.NewPointWithMeasurement("stream_tick").AddField("tick", int64(1)).SetTime(ts),
			want:  "stream_tick tick=1i 42\n",
		},
		{
			name: "tags sorted",
			point: influxdb2_write.NewPointWithMeasurement("asset_load").
				AddTag("name", "e1m1").AddTag("cached", "true").
				AddField("ok", true).SetTime(ts),
			want: "asset_load,cached=true,name=e1m1 ok=true 42\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lineProtocol(tt.point))
		})
	}
}
