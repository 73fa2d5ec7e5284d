package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/provider"
	"github.com/oggyb/outreach-campaigns/internal/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(url string) *provider.HTTPClient {
	return provider.NewHTTPClient(url, time.Second, zap.NewNop())
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+919876543210", provider.NormalizePhone("919876543210"))
	assert.Equal(t, "+919876543210", provider.NormalizePhone(" +919876543210 "))
	assert.Equal(t, "", provider.NormalizePhone("  "))
}

func TestHTTPClient_SendNormalizesPhone(t *testing.T) {
	fake := providertest.New(t)
	client := newClient(fake.URL())

	res := client.Send(context.Background(), "919876543210", "Hello Asha")

	assert.Equal(t, provider.StatusQueued, res.Status)
	assert.NotEmpty(t, res.MessageID)
	assert.Empty(t, res.Error)
	assert.True(t, res.Accepted())

	sends := fake.Sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "+919876543210", sends[0].To)
	assert.Equal(t, "Hello Asha", sends[0].Body)
}

func TestHTTPClient_SendInvalidPayload(t *testing.T) {
	fake := providertest.New(t)
	fake.RejectPhone("+100")
	client := newClient(fake.URL())

	res := client.Send(context.Background(), "100", "x")

	assert.Equal(t, provider.StatusInvalidPayload, res.Status)
	assert.Empty(t, res.MessageID)
	assert.Contains(t, res.Error, "malformed")
}

func TestHTTPClient_SendServerError(t *testing.T) {
	fake := providertest.New(t)
	fake.FailSends(true)
	client := newClient(fake.URL())

	res := client.Send(context.Background(), "+1", "x")

	assert.Equal(t, provider.StatusFailed, res.Status)
	assert.False(t, res.Accepted())
	assert.NotEmpty(t, res.Error)
}

func TestHTTPClient_SendTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := provider.NewHTTPClient(srv.URL, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	res := client.Send(context.Background(), "+1", "x")

	assert.Equal(t, provider.StatusFailed, res.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPClient_SendMissingMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	res := newClient(srv.URL).Send(context.Background(), "+1", "x")

	assert.Equal(t, provider.StatusFailed, res.Status)
}

func TestHTTPClient_StatusAndReply(t *testing.T) {
	fake := providertest.New(t)
	client := newClient(fake.URL())
	ctx := context.Background()

	sent := client.Send(ctx, "+1", "x")
	require.NotEmpty(t, sent.MessageID)

	st, err := client.Status(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusQueued, st)

	fake.SetStatus(sent.MessageID, "sent")
	st, err = client.Status(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, provider.StatusSent, st)

	reply, err := client.Reply(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Empty(t, reply.Reply)

	fake.SetReply(sent.MessageID, "Can you tell me about costs?", "2026-03-14 10:00:00")
	reply, err = client.Reply(ctx, sent.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "Can you tell me about costs?", reply.Reply)
	assert.Equal(t, "2026-03-14 10:00:00", reply.Timestamp)
}

func TestHTTPClient_UnknownID(t *testing.T) {
	fake := providertest.New(t)
	client := newClient(fake.URL())
	ctx := context.Background()

	st, err := client.Status(ctx, "NOPE")
	assert.ErrorIs(t, err, provider.ErrUnknownMessage)
	assert.Equal(t, provider.StatusUnknown, st)

	_, err = client.Reply(ctx, "NOPE")
	assert.ErrorIs(t, err, provider.ErrUnknownMessage)
}

func TestHTTPClient_StatusTransportFailure(t *testing.T) {
	fake := providertest.New(t)
	client := newClient(fake.URL())
	fake.Close()

	st, err := client.Status(context.Background(), "MSG0000001")
	assert.Error(t, err)
	assert.Equal(t, provider.StatusUnknown, st)
}

func TestHTTPClient_Health(t *testing.T) {
	fake := providertest.New(t)
	assert.NoError(t, newClient(fake.URL()).Health(context.Background()))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	assert.ErrorIs(t, newClient(srv.URL).Health(context.Background()), provider.ErrUnexpectedResponse)
}
