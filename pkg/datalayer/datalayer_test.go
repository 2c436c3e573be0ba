package datalayer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/dronebridge/pkg/codec"
)

// companionServer accepts one websocket and forwards every decoded frame to
// the returned channel.
func companionServer(t *testing.T) (string, <-chan Item) {
	t.Helper()

	items := make(chan Item, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			var it Item
			if err := codec.Unmarshal(data, &it); err != nil {
				continue
			}
			items <- it
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), items
}

func receive(t *testing.T, ch <-chan Item) Item {
	t.Helper()
	select {
	case it := <-ch:
		return it
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for item")
		return Item{}
	}
}

func TestClient_PutAndSend(t *testing.T) {
	url, items := companionServer(t)

	c, err := Dial(context.Background(), url, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Put(context.Background(), "/vehicle/data/battery", []byte{1, 2, 3}))
	require.NoError(t, c.Send(context.Background(), "/notification/show", nil))

	first := receive(t, items)
	assert.Equal(t, OpPut, first.Op)
	assert.Equal(t, "/vehicle/data/battery", first.Path)
	assert.Equal(t, []byte{1, 2, 3}, first.Payload)

	second := receive(t, items)
	assert.Equal(t, OpMessage, second.Op)
	assert.Equal(t, "/notification/show", second.Path)
	assert.Empty(t, second.Payload)
}

func TestClient_PutAfterClose(t *testing.T) {
	url, _ := companionServer(t)

	c, err := Dial(context.Background(), url, Options{})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	err = c.Put(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_DialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/none", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datalayer: dial")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "/a", []byte{1}))
	require.NoError(t, r.Send(ctx, "/b", nil))

	boom := errors.New("boom")
	r.Fail(boom)
	assert.ErrorIs(t, r.Put(ctx, "/c", nil), boom)

	assert.Equal(t, []string{"/a", "/c"}, r.Paths(OpPut))
	assert.Equal(t, []string{"/b"}, r.Paths(OpMessage))
	assert.Len(t, r.Items(), 3)

	r.Reset()
	assert.Empty(t, r.Items())
}

func TestLogSink(t *testing.T) {
	var s LogSink
	assert.NoError(t, s.Put(context.Background(), "/a", []byte{1}))
	assert.NoError(t, s.Send(context.Background(), "/b", nil))
}
