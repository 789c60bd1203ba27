package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientCreateIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/intents", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req intentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b-1", req.BookingID)
		assert.EqualValues(t, 4500, req.AmountCents)

		_ = json.NewEncoder(w).Encode(Intent{Handle: "pi_123", ClientSecret: "cs"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "secret", time.Second)
	intent, err := c.CreateIntent(context.Background(), "b-1", 4500)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.Handle)
}

func TestHTTPClientServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", time.Second)
	_, err := c.CreateIntent(context.Background(), "b-1", 100)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = c.RequestRefund(context.Background(), "b-1", 100)
	assert.ErrorIs(t, err, ErrUnavailable)
}

type capture struct {
	key string
	v   any
}

func (c *capture) PublishJSON(_ context.Context, key string, v any) error {
	c.key, c.v = key, v
	return nil
}

func TestBrokerRefunder(t *testing.T) {
	pub := &capture{}
	require.NoError(t, NewBrokerRefunder(pub).RequestRefund(context.Background(), "b-9", 700))

	assert.Equal(t, "refund.requested", pub.key)
	msg, ok := pub.v.(refundRequested)
	require.True(t, ok)
	assert.Equal(t, "b-9", msg.Data.BookingID)
	assert.EqualValues(t, 700, msg.Data.AmountCents)
}
