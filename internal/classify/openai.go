package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "sjsage522/srpauditor/pkg/errors"
)

const visionName = "openai"

const visionPrompt = "Is this image a placeholder such as \"coming soon\" or \"photo coming soon\" " +
	"instead of a real photo of a vehicle? Answer only true or false."

// VisionClassifier asks an OpenAI compatible vision model about the image
type VisionClassifier struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

// NewVisionClassifier creates a vision classifier. client may be nil.
func NewVisionClassifier(apiKey, endpoint, model string, client *http.Client) *VisionClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &VisionClassifier{apiKey: apiKey, endpoint: endpoint, model: model, client: client}
}

// Name returns the provider name
func (v *VisionClassifier) Name() string { return visionName }

// CheckReady fails when no API key is configured
func (v *VisionClassifier) CheckReady() error {
	if strings.TrimSpace(v.apiKey) == "" {
		return apperrors.NewConfiguration("OPENAI_API_KEY is required for image classification", nil)
	}
	return nil
}

type chatContent struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Classify sends the image and parses the model's answer
func (v *VisionClassifier) Classify(ctx context.Context, imageURL string) (bool, error) {
	if err := v.CheckReady(); err != nil {
		return false, err
	}

	payload, err := json.Marshal(chatRequest{
		Model: v.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
			},
		}},
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		return false, apperrors.NewClassification(visionName, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, apperrors.NewClassification(visionName, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return false, apperrors.NewClassification(visionName, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperrors.NewClassification(visionName, "failed to read response", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, apperrors.NewClassification(visionName, fmt.Sprintf("malformed response (status %d)", resp.StatusCode), err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg += ": " + parsed.Error.Message
		}
		return false, apperrors.NewClassification(visionName, msg, nil)
	}
	if len(parsed.Choices) == 0 {
		return false, apperrors.NewClassification(visionName, "response has no choices", nil)
	}

	return ParseVerdict(parsed.Choices[0].Message.Content)
}

// ParseVerdict reads a free-text true/false answer. "true" without "false"
// wins; when both or neither appear the leading token decides.
func ParseVerdict(answer string) (bool, error) {
	lower := strings.ToLower(strings.TrimSpace(answer))
	hasTrue := strings.Contains(lower, "true")
	hasFalse := strings.Contains(lower, "false")

	switch {
	case hasTrue && !hasFalse:
		return true, nil
	case hasFalse && !hasTrue:
		return false, nil
	}

	lead := strings.TrimLeft(lower, " \t\n\"'`*.")
	switch {
	case strings.HasPrefix(lead, "true"):
		return true, nil
	case strings.HasPrefix(lead, "false"):
		return false, nil
	}
	return false, apperrors.NewClassification(visionName, fmt.Sprintf("unrecognized answer %q", answer), nil)
}
