package embeddings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client calls an external embedding provider over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
}

// ClientConfig holds embedding provider connection settings.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewClient creates an embedding client. An empty BaseURL is allowed and
// produces a client that always degrades to empty vectors.
func NewClient(cfg ClientConfig, log *logrus.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the provider's vector for the text, or an empty slice on
// empty input, misconfiguration, timeout or any provider failure. The
// failure is logged with enough context to diagnose, never propagated.
func (c *Client) Embed(text string) []float32 {
	if text == "" {
		return nil
	}
	if c.baseURL == "" {
		c.log.WithField("module", "embeddings").Debug("no embedding provider configured")
		return nil
	}

	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		c.logFailure(err, "marshal request")
		return nil
	}

	url := fmt.Sprintf("%s/embed", c.baseURL)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.logFailure(err, "build request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logFailure(err, "call provider")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logFailure(fmt.Errorf("provider returned status %d", resp.StatusCode), "call provider")
		return nil
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logFailure(err, "decode response")
		return nil
	}

	return decoded.Embedding
}

func (c *Client) logFailure(err error, context string) {
	c.log.WithFields(logrus.Fields{
		"module":  "embeddings",
		"context": context,
	}).WithError(err).Warn("embedding unavailable, degrading to empty vector")
}
