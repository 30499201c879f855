package trade

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTx = "0x00000000000000000000000000000000000000000000000000000000000000aa"

func TestNewOrder(t *testing.T) {
	a := NewOrder(SideBuy, "0xabc", testTx)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, SideBuy, a.Side)
	assert.Equal(t, testTx, a.TxHash)
	assert.NotZero(t, a.TsMs)
}

func TestOrderID_StableAcrossReplays(t *testing.T) {
	first := NewOrder(SideBuy, "0xabc", testTx)
	assert.Equal(t, first.ID, OrderID(SideBuy, "0xabc", testTx))
	assert.Equal(t, first.ID, NewOrder(SideBuy, "0xabc", testTx).ID)

	_, err := uuid.Parse(first.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, OrderID(SideSell, "0xabc", testTx), "side is part of the key")
	assert.NotEqual(t, first.ID, OrderID(SideBuy, "0xdef", testTx), "wallet is part of the key")
	assert.NotEqual(t, first.ID, OrderID(SideBuy, "0xabc", "0x01"), "tx is part of the key")
	assert.Equal(t, first.ID, OrderID(SideBuy, "0xABC", strings.ToUpper(testTx)), "case does not matter")
}

func TestWebhook_PostsOrderWithIdempotencyKey(t *testing.T) {
	var got Order
	var gotKey, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, "s3cret")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	order := NewOrder(SideSell, "0xabc", testTx)
	order.Symbol = "BAR"
	require.NoError(t, wh.PlaceOrder(ctx, order))

	assert.Equal(t, order.ID, gotKey)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, SideSell, got.Side)
	assert.Equal(t, "BAR", got.Symbol)
}

func TestWebhook_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusBadRequest)
	}))
	defer srv.Close()

	wh, err := NewWebhook(srv.URL, "")
	require.NoError(t, err)

	err = wh.PlaceOrder(context.Background(), NewOrder(SideBuy, "0xabc", testTx))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "insufficient balance")
}

func TestNewWebhook_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewWebhook("", "")
	require.Error(t, err)
	_, err = NewWebhook("ftp://example.com", "")
	require.Error(t, err)
}

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka_KeysByWallet(t *testing.T) {
	rw := &recordingWriter{}
	k := &Kafka{writer: rw}

	order := NewOrder(SideBuy, "0xabc", testTx)
	require.NoError(t, k.PlaceOrder(context.Background(), order))
	require.Len(t, rw.msgs, 1)

	msg := rw.msgs[0]
	assert.Equal(t, "0xabc", string(msg.Key))

	var decoded Order
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, order.ID, decoded.ID)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, order.ID, headers["idempotency-key"])
	assert.Equal(t, "buy", headers["side"])

	require.NoError(t, k.Close())
	assert.True(t, rw.closed)
}

func TestKafka_WriteErrorWrapped(t *testing.T) {
	k := &Kafka{writer: &recordingWriter{err: errors.New("broker down")}}
	err := k.PlaceOrder(context.Background(), NewOrder(SideSell, "0xabc", testTx))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewKafka_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewKafka(nil, "orders")
	require.Error(t, err)
	_, err = NewKafka([]string{"localhost:9092"}, " ")
	require.Error(t, err)
}

type countingTrader struct {
	n   int
	err error
}

func (c *countingTrader) PlaceOrder(context.Context, Order) error {
	c.n++
	return c.err
}

func TestMulti_CallsAllAndJoinsErrors(t *testing.T) {
	ok := &countingTrader{}
	bad := &countingTrader{err: errors.New("nope")}

	err := Multi{ok, bad, ok}.PlaceOrder(context.Background(), NewOrder(SideBuy, "0xabc", testTx))
	require.Error(t, err)
	assert.Equal(t, 2, ok.n)
	assert.Equal(t, 1, bad.n)
}

func TestNew(t *testing.T) {
	t.Run("default dry", func(t *testing.T) {
		tr, closeFn, err := New(Config{})
		require.NoError(t, err)
		assert.IsType(t, DryRun{}, tr)
		require.NoError(t, closeFn())
	})

	t.Run("fan out", func(t *testing.T) {
		tr, closeFn, err := New(Config{Kinds: ParseKinds("dry, webhook"), WebhookURL: "http://localhost:8081/orders"})
		require.NoError(t, err)
		m, ok := tr.(Multi)
		require.True(t, ok)
		assert.Len(t, m, 2)
		require.NoError(t, closeFn())
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := New(Config{Kinds: []string{"clob"}})
		require.Error(t, err)
	})

	t.Run("webhook missing url", func(t *testing.T) {
		_, _, err := New(Config{Kinds: []string{"webhook"}})
		require.Error(t, err)
	})
}

func TestParseKinds(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"dry", "kafka"}, ParseKinds(" DRY,,kafka "))
	assert.Nil(t, ParseKinds(""))
}
