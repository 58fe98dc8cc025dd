package feed

import (
	"context"
	"math/big"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominichackett/alphaoptions-sub000/internal/fixedmath"
	"github.com/dominichackett/alphaoptions-sub000/pkg/utils/errors"
)

func TestSetAndGetPrice(t *testing.T) {
	c := NewCache()
	now := time.Now()

	c.Set("ETH", fixedmath.FromInt(3200), now)

	price, asOf, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, fixedmath.FromInt(3200), price)
	assert.Equal(t, now, asOf)
}

func TestGetPriceUnknownSymbol(t *testing.T) {
	c := NewCache()

	_, _, err := c.GetPrice(context.Background(), "ETH")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPriceUnavailable))
}

func TestSetIgnoresOutOfOrderTicks(t *testing.T) {
	c := NewCache()
	now := time.Now()

	c.Set("ETH", fixedmath.FromInt(3200), now)
	c.Set("ETH", fixedmath.FromInt(3100), now.Add(-time.Second))

	price, asOf, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, fixedmath.FromInt(3200), price)
	assert.Equal(t, now, asOf)

	// A newer tick does replace the quote.
	c.Set("ETH", fixedmath.FromInt(3300), now.Add(time.Second))
	price, _, err = c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, fixedmath.FromInt(3300), price)
}

func TestSetRejectsNonPositivePrice(t *testing.T) {
	c := NewCache()
	now := time.Now()

	c.Set("ETH", nil, now)
	c.Set("ETH", new(big.Int), now)
	c.Set("ETH", fixedmath.FromInt(-1), now)

	_, _, err := c.GetPrice(context.Background(), "ETH")
	assert.Error(t, err)
}

func TestGetPriceReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Set("ETH", fixedmath.FromInt(3200), time.Now())

	price, _, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	price.SetInt64(0)

	again, _, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, fixedmath.FromInt(3200), again)
}

func TestSymbols(t *testing.T) {
	c := NewCache()
	now := time.Now()
	c.Set("ETH", fixedmath.FromInt(3200), now)
	c.Set("BTC", fixedmath.FromInt(60_000), now)

	assert.ElementsMatch(t, []string{"ETH", "BTC"}, c.Symbols())
}

func TestHandleTick(t *testing.T) {
	c := NewCache()
	now := time.Now().UTC().Truncate(time.Millisecond)

	msg := kafkago.Message{
		Value: []byte(`{"symbol":"ETH","price":3200000000000000000000,"timestamp":"` + now.Format(time.RFC3339Nano) + `"}`),
	}
	require.NoError(t, c.HandleTick(context.Background(), msg))

	price, asOf, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, fixedmath.FromInt(3200), price)
	assert.True(t, asOf.Equal(now))
}

func TestHandleTickFallsBackToMessageTime(t *testing.T) {
	c := NewCache()
	kafkaTime := time.Now().Add(-time.Minute)

	msg := kafkago.Message{
		Value: []byte(`{"symbol":"ETH","price":3200000000000000000000}`),
		Time:  kafkaTime,
	}
	require.NoError(t, c.HandleTick(context.Background(), msg))

	_, asOf, err := c.GetPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.True(t, asOf.Equal(kafkaTime))
}

func TestHandleTickRejectsBadRecords(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	err := c.HandleTick(ctx, kafkago.Message{Value: []byte(`not json`)})
	assert.Error(t, err)

	err = c.HandleTick(ctx, kafkago.Message{Value: []byte(`{"price":1}`)})
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))

	err = c.HandleTick(ctx, kafkago.Message{Value: []byte(`{"symbol":"ETH","price":-5}`)})
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))

	assert.Empty(t, c.Symbols())
}
