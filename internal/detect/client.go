// Package detect talks to the object-detection sidecar that analyses
// report images. Detected labels feed the semantic signal for reports
// with photos but sparse text.
package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Detection is one detected object in a frame.
type Detection struct {
	ClassName    string  `json:"className"`
	Confidence   float64 `json:"confidence"`
	BBox         []int   `json:"bbox"`
	CroppedImage string  `json:"croppedImage,omitempty"`
}

// Client calls the detection sidecar.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger

	// MinConfidence filters detections below this confidence.
	MinConfidence float64
}

// NewClient creates a detection client. An empty baseURL disables
// detection; calls return no labels.
func NewClient(baseURL string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:           log,
		MinConfidence: 0.3,
	}
}

type detectRequest struct {
	Image         string   `json:"image"`
	TargetClasses []string `json:"targetClasses,omitempty"`
}

type detectResponse struct {
	Success    bool        `json:"success"`
	Detections []Detection `json:"detections"`
	Count      int         `json:"count"`
	Error      string      `json:"error,omitempty"`
}

// Detect runs detection on a base64-encoded image and returns detections
// above the confidence floor.
func (c *Client) Detect(imageB64 string, targetClasses []string) ([]Detection, error) {
	if c.baseURL == "" {
		return nil, nil
	}

	body, err := json.Marshal(detectRequest{Image: imageB64, TargetClasses: targetClasses})
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/detect", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("call detection sidecar: %w", err)
	}
	defer resp.Body.Close()

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.Success {
		return nil, fmt.Errorf("detection sidecar error: status=%d %s", resp.StatusCode, decoded.Error)
	}

	var kept []Detection
	for _, d := range decoded.Detections {
		if d.Confidence >= c.MinConfidence {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

// Labels runs detection and returns the distinct class names found, for
// enriching embedding text. Failures are logged and yield no labels so a
// broken sidecar never blocks scoring.
func (c *Client) Labels(imageB64 string) []string {
	detections, err := c.Detect(imageB64, nil)
	if err != nil {
		c.log.WithField("module", "detect").WithError(err).Warn("detection unavailable, skipping image labels")
		return nil
	}

	seen := make(map[string]bool)
	var labels []string
	for _, d := range detections {
		if !seen[d.ClassName] {
			seen[d.ClassName] = true
			labels = append(labels, d.ClassName)
		}
	}
	return labels
}

// Health checks the sidecar is up and its model is loaded.
func (c *Client) Health() error {
	if c.baseURL == "" {
		return fmt.Errorf("detection sidecar not configured")
	}

	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return fmt.Errorf("detection sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection sidecar unhealthy: status=%d", resp.StatusCode)
	}
	return nil
}
