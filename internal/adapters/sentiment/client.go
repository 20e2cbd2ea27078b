package sentiment

// client.go — scoring de sentimiento vía LLM. Recoge texto reciente
// (titulares de noticias o posts sociales) sobre un activo y le pide al
// modelo un score entero en [-5, 5], que normalizamos a [-1, 1]. El que
// llama trata cualquier error como score neutro: la señal de
// sentimiento nunca debe tumbar un ciclo de evaluación.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	scoreScale  = 5.0 // el modelo puntúa en [-5, 5]
	maxTexts    = 10  // textos por consulta al modelo
	llmTimeout  = 30 * time.Second
	ratePerSec  = 2
	promptIntro = "You are a crypto market sentiment analyst. " +
		"Rate the overall sentiment of the following texts about %s " +
		"on an integer scale from -5 (extremely bearish) to 5 (extremely bullish). " +
		"Reply with only the number.\n\n%s"
)

// Client implementa ports.SentimentProvider contra un endpoint de chat
// compatible con OpenAI y dos fuentes de texto.
type Client struct {
	http       *http.Client
	apiBase    string
	apiKey     string
	model      string
	newsBase   string
	socialBase string
	limiter    *rate.Limiter
}

// NewClient crea un Client de sentimiento.
func NewClient(apiBase, apiKey, model, newsBase, socialBase string) *Client {
	return &Client{
		http:       &http.Client{Timeout: llmTimeout},
		apiBase:    apiBase,
		apiKey:     apiKey,
		model:      model,
		newsBase:   newsBase,
		socialBase: socialBase,
		limiter:    rate.NewLimiter(ratePerSec, 2),
	}
}

// WebSentiment puntúa titulares de noticias recientes sobre el activo.
func (c *Client) WebSentiment(ctx context.Context, asset string) (float64, error) {
	headlines, err := c.fetchHeadlines(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("sentiment.WebSentiment: %s: %w", asset, err)
	}
	if len(headlines) == 0 {
		return 0, nil // sin noticias, neutro
	}
	score, err := c.scoreTexts(ctx, asset, headlines)
	if err != nil {
		return 0, fmt.Errorf("sentiment.WebSentiment: %s: %w", asset, err)
	}
	return score, nil
}

// SocialSentiment puntúa posts recientes en redes sobre el activo.
func (c *Client) SocialSentiment(ctx context.Context, asset string) (float64, error) {
	posts, err := c.fetchPosts(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("sentiment.SocialSentiment: %s: %w", asset, err)
	}
	if len(posts) == 0 {
		return 0, nil
	}
	score, err := c.scoreTexts(ctx, asset, posts)
	if err != nil {
		return 0, fmt.Errorf("sentiment.SocialSentiment: %s: %w", asset, err)
	}
	return score, nil
}

type newsResponse struct {
	Results []struct {
		Title string `json:"title"`
	} `json:"results"`
}

func (c *Client) fetchHeadlines(ctx context.Context, asset string) ([]string, error) {
	var resp newsResponse
	url := fmt.Sprintf("%s/posts/?currencies=%s&kind=news", c.newsBase, strings.ToUpper(asset))
	if err := c.getJSON(ctx, url, "", &resp); err != nil {
		return nil, fmt.Errorf("fetch headlines: %w", err)
	}

	titles := make([]string, 0, maxTexts)
	for _, r := range resp.Results {
		if r.Title == "" {
			continue
		}
		titles = append(titles, r.Title)
		if len(titles) == maxTexts {
			break
		}
	}
	return titles, nil
}

type socialResponse struct {
	Data []struct {
		Text string `json:"text"`
	} `json:"data"`
}

func (c *Client) fetchPosts(ctx context.Context, asset string) ([]string, error) {
	var resp socialResponse
	url := fmt.Sprintf("%s/tweets/search/recent?query=%s&max_results=%d",
		c.socialBase, strings.ToLower(asset), maxTexts)
	if err := c.getJSON(ctx, url, c.apiKey, &resp); err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	texts := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.Text != "" {
			texts = append(texts, d.Text)
		}
	}
	return texts, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// scoreRe extrae el primer número (posiblemente negativo) de la
// respuesta del modelo, que a veces añade texto alrededor.
var scoreRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// scoreTexts manda los textos al modelo y normaliza el score a [-1, 1].
func (c *Client) scoreTexts(ctx context.Context, asset string, texts []string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	prompt := fmt.Sprintf(promptIntro, strings.ToUpper(asset), strings.Join(texts, "\n"))
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.apiBase + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("llm status %d: %s", resp.StatusCode, string(raw))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return 0, fmt.Errorf("decode llm response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return 0, fmt.Errorf("llm returned no choices")
	}

	return parseScore(chat.Choices[0].Message.Content)
}

// parseScore convierte la respuesta del modelo en un score en [-1, 1].
func parseScore(content string) (float64, error) {
	match := scoreRe.FindString(content)
	if match == "" {
		return 0, fmt.Errorf("no score in llm reply %q", content)
	}
	raw, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", match, err)
	}

	score := raw / scoreScale
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	return score, nil
}

// getJSON hace un GET simple con bearer token opcional.
func (c *Client) getJSON(ctx context.Context, url, bearer string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
