package sentiment_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alejandrodnm/atombot/internal/adapters/sentiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newScoringServer simula el API de noticias y el endpoint de chat en el
// mismo servidor, devolviendo el score dado por el modelo.
func newScoringServer(t *testing.T, llmReply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/posts/":
			fmt.Fprint(w, `{"results": [{"title": "ATOM rallies on upgrade news"}, {"title": "Cosmos TVL grows"}]}`)
		case "/tweets/search/recent":
			fmt.Fprint(w, `{"data": [{"text": "atom looking strong"}]}`)
		case "/v1/chat/completions":
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req["model"])
			fmt.Fprintf(w, `{"choices": [{"message": {"content": %q}}]}`, llmReply)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestWebSentiment_NormalizesScore(t *testing.T) {
	srv := newScoringServer(t, "4")
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	score, err := client.WebSentiment(context.Background(), "atom")

	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 0.0001)
}

func TestSocialSentiment_NegativeScore(t *testing.T) {
	srv := newScoringServer(t, "The sentiment is -3 overall.")
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	score, err := client.SocialSentiment(context.Background(), "atom")

	require.NoError(t, err)
	assert.InDelta(t, -0.6, score, 0.0001)
}

func TestWebSentiment_ClampsOutOfRange(t *testing.T) {
	srv := newScoringServer(t, "9")
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	score, err := client.WebSentiment(context.Background(), "atom")

	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 0.0001)
}

func TestWebSentiment_NoHeadlinesIsNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	score, err := client.WebSentiment(context.Background(), "atom")

	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestWebSentiment_GibberishReplyIsError(t *testing.T) {
	srv := newScoringServer(t, "I cannot rate this.")
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	_, err := client.WebSentiment(context.Background(), "atom")
	assert.Error(t, err)
}

func TestWebSentiment_NewsAPIDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := sentiment.NewClient(srv.URL, "test-key", "test-model", srv.URL, srv.URL)
	_, err := client.WebSentiment(context.Background(), "atom")
	assert.Error(t, err)
}
