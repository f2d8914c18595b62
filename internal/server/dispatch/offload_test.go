package dispatch

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dmitrijs2005/clipsync/internal/history"
	"github.com/dmitrijs2005/clipsync/internal/logging"
	"github.com/dmitrijs2005/clipsync/internal/protocol"
	"github.com/dmitrijs2005/clipsync/internal/server/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobStore struct {
	objects map[string][]byte
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, content []byte) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = append([]byte(nil), content...)
	return nil
}

func (f *fakeBlobStore) PresignGet(ctx context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func TestDispatcher_LargeContentOffloaded(t *testing.T) {
	store := history.NewMemoryStore(0)
	engine := history.NewEngine(store, 0)
	blobs := &fakeBlobStore{}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	h := &harness{
		d:      New(engine, &fakeAuth{}, session.NewRegistry(), blobs, 16, "test", logger),
		store:  store,
		engine: engine,
	}

	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	big := make([]byte, 64)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindFile, Content: big},
	}))
	ack := tc.recv(t).Payload.(*protocol.ClipboardPushAckPayload)

	require.NotEmpty(t, ack.Entry.StorageKey)
	assert.Empty(t, ack.Entry.Content, "content lives in the blob store, not inline")
	assert.Equal(t, "https://blobs.test/"+ack.Entry.StorageKey, ack.Entry.ContentURL)
	assert.NotEmpty(t, ack.Entry.ContentHash)
	assert.Equal(t, big, blobs.objects[ack.Entry.StorageKey])
}

func TestDispatcher_SmallContentStaysInline(t *testing.T) {
	store := history.NewMemoryStore(0)
	engine := history.NewEngine(store, 0)
	blobs := &fakeBlobStore{}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	h := &harness{
		d:      New(engine, &fakeAuth{}, session.NewRegistry(), blobs, 16, "test", logger),
		store:  store,
		engine: engine,
	}

	tc := newClient(t)
	h.connect(t, tc, "d1")
	h.login(t, tc, "alice")

	require.NoError(t, h.dispatch(t, tc, &protocol.ClipboardPushPayload{
		Entry: protocol.Entry{Kind: protocol.EntryKindText, Content: []byte("small")},
	}))
	ack := tc.recv(t).Payload.(*protocol.ClipboardPushAckPayload)

	assert.Empty(t, ack.Entry.StorageKey)
	assert.Equal(t, []byte("small"), ack.Entry.Content)
	assert.Empty(t, blobs.objects)
}
