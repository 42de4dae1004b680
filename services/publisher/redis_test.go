package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisPublisher(t *testing.T) {
	ctx := context.Background()
	stream := "test_listings_" + time.Now().Format("150405.000")

	pub := NewRedisPublisher("localhost:6379", 0, stream, 100)
	defer pub.Close()

	if err := pub.Ping(ctx); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 0})
	defer client.Close()
	defer client.Del(ctx, stream)

	event := ListingEvent{
		ID:         "https://www.ebay.com/itm/1",
		Site:       "ebay",
		Query:      "macbook pro",
		Price:      "400",
		Opened:     true,
		CycleID:    "cycle-1",
		DetectedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(ctx, event))

	msgs, err := client.XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ebay", msgs[0].Values["site"])

	var got ListingEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["listing"].(string)), &got))
	assert.Equal(t, event, got)
}

func TestListingEventEncoding(t *testing.T) {
	data, err := json.Marshal(ListingEvent{ID: "a", Site: "avito"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"price"`)
	assert.Contains(t, string(data), `"opened":false`)
}
