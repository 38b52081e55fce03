package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakeview/server/internal/dispatcher"
	"github.com/quakeview/server/pkg/delta"
)

type transportFixture struct {
	hub  *Hub
	conn *ws.Conn
}

func newTransportFixture(t *testing.T, cfg Config) *transportFixture {
	t.Helper()
	h := newTestHub(t, newTestWorld(t), cfg)

	d, err := dispatcher.New(discardLogger())
	require.NoError(t, err)
	t.Cleanup(d.Close)
	RegisterControls(d, h)

	srv := httptest.NewServer(NewTransport(h, d, discardLogger()))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.joins.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, h.Tick(DefaultTickRate))
	return &transportFixture{hub: h, conn: conn}
}

func (f *transportFixture) read(t *testing.T) []byte {
	t.Helper()
	require.NoError(t, f.conn.SetReadDeadline(time.Now().Add(time.Second)))
	kind, msg, err := f.conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, ws.BinaryMessage, kind)
	return msg
}

func TestTransport_StreamsDeltas(t *testing.T) {
	f := newTransportFixture(t, Config{})

	var dec delta.Decoder
	got, err := dec.Decode(f.read(t))
	require.NoError(t, err)
	assert.Equal(t, delta.Str("*1"), got[entityBase(2)])

	require.NoError(t, f.hub.Tick(DefaultTickRate))
	assert.Equal(t, make([]byte, 8), f.read(t))
}

func TestTransport_ResyncCommand(t *testing.T) {
	f := newTransportFixture(t, Config{})
	first := f.read(t)
	require.NoError(t, f.hub.Tick(DefaultTickRate))
	f.read(t)

	require.NoError(t, f.conn.WriteMessage(ws.TextMessage, []byte(`{"cmd":"resync"}`)))
	require.Eventually(t, func() bool { return f.hub.resyncs.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.hub.Tick(DefaultTickRate))
	assert.Equal(t, first, f.read(t))
}

func TestTransport_IgnoresBadControlMessages(t *testing.T) {
	f := newTransportFixture(t, Config{})
	f.read(t)

	require.NoError(t, f.conn.WriteMessage(ws.TextMessage, []byte(`{"cmd":`)))
	require.NoError(t, f.conn.WriteMessage(ws.TextMessage, []byte("teleport")))
	require.NoError(t, f.conn.WriteMessage(ws.BinaryMessage, []byte{1, 2, 3}))

	// The connection stays up and keeps streaming.
	require.NoError(t, f.hub.Tick(DefaultTickRate))
	assert.Equal(t, make([]byte, 8), f.read(t))
}

func TestTransport_ClientCloseLeaves(t *testing.T) {
	f := newTransportFixture(t, Config{})
	assert.Equal(t, 1, f.hub.Recipients())

	require.NoError(t, f.conn.Close())
	require.Eventually(t, func() bool { return f.hub.leaves.Len() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, f.hub.Tick(DefaultTickRate))
	assert.Equal(t, 0, f.hub.Recipients())
}

func TestTransport_ReleasedViewerGetsClosed(t *testing.T) {
	f := newTransportFixture(t, Config{})
	require.Len(t, f.hub.members, 1)
	for id := range f.hub.members {
		f.hub.Leave(id)
	}
	require.NoError(t, f.hub.Tick(DefaultTickRate))

	require.NoError(t, f.conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		_, _, err := f.conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *ws.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, ws.CloseTryAgainLater, closeErr.Code)
		return
	}
}
