package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient() *Client {
	return NewClient(logrus.New(), 5*time.Second, RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     50 * time.Millisecond,
	})
}

func TestCall_RetriesTransportFailureThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"0x10","id":1}`))
	}))
	defer server.Close()

	client := newTestClient()
	resp, err := client.Call(context.Background(), &Endpoint{Name: "stub", URL: server.URL}, "starknet_blockNumber", nil)

	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCall_DoesNotRetryJSONRPCError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":24,"message":"Block not found"},"id":1}`))
	}))
	defer server.Close()

	client := newTestClient()
	resp, err := client.Call(context.Background(), &Endpoint{Name: "stub", URL: server.URL}, "starknet_getBlockWithTxs", []any{"latest"})

	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, 24, resp.Error.Code)
	assert.Equal(t, int64(1), calls.Load(), "error responses must not be retried")
}

func TestCall_ExhaustedRetriesReturnTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient()
	_, err := client.Call(context.Background(), &Endpoint{Name: "stub", URL: server.URL}, "starknet_chainId", nil)

	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestCall_AssignsMonotonicIDs(t *testing.T) {
	t.Parallel()

	var ids []uint64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"0x1","id":` + jsonID(req.ID) + `}`))
	}))
	defer server.Close()

	client := newTestClient()
	endpoint := &Endpoint{Name: "stub", URL: server.URL}

	for i := 0; i < 3; i++ {
		_, err := client.Call(context.Background(), endpoint, "starknet_chainId", nil)
		require.NoError(t, err)
	}

	require.Len(t, ids, 3)
	assert.Less(t, ids[0], ids[1])
	assert.Less(t, ids[1], ids[2])
}

func TestCall_SurfacesDivergenceHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(DivergenceHeader, "2/3 targets diverged")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","result":"0x1","id":1}`))
	}))
	defer server.Close()

	client := newTestClient()
	resp, err := client.Call(context.Background(), &Endpoint{Name: "stub", URL: server.URL}, "starknet_chainId", nil)

	require.NoError(t, err)
	assert.Equal(t, "2/3 targets diverged", resp.Divergence)
}

func jsonID(id uint64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
