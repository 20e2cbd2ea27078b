package custody_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/atombot/internal/adapters/custody"
	"github.com/alejandrodnm/atombot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_NormalizesToATOM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cosmos/bank/v1beta1/balances/cosmos1abc/by_denom", r.URL.Path)
		assert.Equal(t, "uatom", r.URL.Query().Get("denom"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"balance": {"denom": "uatom", "amount": "1500000000"}}`)
	}))
	defer srv.Close()

	client := custody.NewClient(srv.URL, "channel-141")
	bal, err := client.Balance(context.Background(), "cosmos1abc")

	require.NoError(t, err)
	assert.InDelta(t, 1500, bal, 0.0001)
}

func TestBalance_EmptyIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"balance": {"denom": "uatom", "amount": ""}}`)
	}))
	defer srv.Close()

	client := custody.NewClient(srv.URL, "channel-141")
	bal, err := client.Balance(context.Background(), "cosmos1abc")

	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestTransfer_ConfirmedAfterPolling(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "channel-141", payload["source_channel"])
			token := payload["token"].(map[string]any)
			assert.Equal(t, "250000000", token["amount"], "250 ATOM en uatom")
			fmt.Fprint(w, `{"tx_response": {"txhash": "ABC123", "code": 0}}`)
		case strings.HasSuffix(r.URL.Path, "/txs/ABC123"):
			// Primer poll: aún no indexado. Segundo: confirmado.
			if polls.Add(1) == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, `{"tx_response": {"height": "12345", "code": 0}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	client := custody.NewClient(srv.URL, "channel-141")
	err := client.Transfer(context.Background(), domain.BridgeRequest{
		FromAddress: "cosmos1abc",
		ToAddress:   "inj1abc",
		Amount:      250,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestTransfer_RejectedTxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tx_response": {"txhash": "", "code": 5, "raw_log": "insufficient funds"}}`)
	}))
	defer srv.Close()

	client := custody.NewClient(srv.URL, "channel-141")
	err := client.Transfer(context.Background(), domain.BridgeRequest{
		FromAddress: "cosmos1abc", ToAddress: "inj1abc", Amount: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestTransfer_FailedOnChainIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"tx_response": {"txhash": "DEAD01", "code": 0}}`)
			return
		}
		fmt.Fprint(w, `{"tx_response": {"height": "99", "code": 11, "raw_log": "out of gas"}}`)
	}))
	defer srv.Close()

	client := custody.NewClient(srv.URL, "channel-141")
	err := client.Transfer(context.Background(), domain.BridgeRequest{
		FromAddress: "cosmos1abc", ToAddress: "inj1abc", Amount: 10,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of gas")
}

func TestTransfer_NonPositiveAmount(t *testing.T) {
	client := custody.NewClient("http://unused", "channel-141")
	err := client.Transfer(context.Background(), domain.BridgeRequest{Amount: 0})
	assert.Error(t, err)
}
