package redis

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venmux/internal/types"
)

func testClient(t *testing.T) *goredis.Client {
	mr := miniredis.RunT(t)
	return goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
}

func TestVendorStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewVendorStore(testClient(t))

	records := []types.VendorRecord{
		{ID: "a", Name: "store-a", PhoneNumber: "521", Status: types.StatusConnected, LastConnection: 1700000000, Port: 4000},
		{ID: "b", Name: "store-b", AssignedNumber: "522", Status: types.StatusPending, Port: 4001},
	}
	require.NoError(t, store.Snapshot(ctx, records))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, records, loaded)
}

func TestVendorStorePrunesStaleKeys(t *testing.T) {
	ctx := context.Background()
	store := NewVendorStore(testClient(t))

	require.NoError(t, store.Snapshot(ctx, []types.VendorRecord{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, store.Snapshot(ctx, []types.VendorRecord{{ID: "b"}}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ID)
}

func TestVendorStoreSkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	cli := testClient(t)
	store := NewVendorStore(cli)

	require.NoError(t, store.Snapshot(ctx, []types.VendorRecord{{ID: "a", Name: "good"}}))
	require.NoError(t, cli.Set(ctx, getVendorKey("bad"), "{nope", 0).Err())

	loaded, err := store.Load(ctx)
	require.NoError(t, err, "one corrupt record never fails the load")
	require.Len(t, loaded, 1)
	assert.Equal(t, "a", loaded[0].ID)
}

func TestConversationLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	clog := NewConversationLog(testClient(t))

	first := types.ConversationEntry{Sender: types.SenderUser, Message: "hi", Timestamp: 100}
	second := types.ConversationEntry{Sender: types.SenderBot, Message: "hello", VendorNumber: "521", Timestamp: 101}
	require.NoError(t, clog.Append(ctx, "v1", "600", first))
	require.NoError(t, clog.Append(ctx, "v1", "600", second))

	entries, err := clog.History(ctx, "v1", "600")
	require.NoError(t, err)
	assert.Equal(t, []types.ConversationEntry{first, second}, entries)
}

func TestConversationLogMissingIsEmpty(t *testing.T) {
	clog := NewConversationLog(testClient(t))
	entries, err := clog.History(context.Background(), "v1", "600")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConversationLogValuesAreCompressed(t *testing.T) {
	ctx := context.Background()
	cli := testClient(t)
	clog := NewConversationLog(cli)

	// Small payloads may be stored as raw literals inside the frame, so use
	// one repetitive enough to actually shrink.
	message := strings.Repeat("order ready for pickup at the counter ", 120)
	require.NoError(t, clog.Append(ctx, "v1", "600", types.ConversationEntry{Message: message}))

	raw, err := cli.Get(ctx, getConvKey("v1", "600")).Result()
	require.NoError(t, err)

	// zstd frame magic
	require.GreaterOrEqual(t, len(raw), 4)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, []byte(raw[:4]))
	assert.Less(t, len(raw), len(message), "stored blob is smaller than the message alone")
}
