package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "sjsage522/srpauditor/pkg/errors"
)

const ocrName = "ocr"

// OCRClassifier reads text off the image with an ocr.space compatible API
// and flags images that say "coming soon"
type OCRClassifier struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewOCRClassifier creates an OCR classifier. client may be nil.
func NewOCRClassifier(apiKey, endpoint string, client *http.Client) *OCRClassifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &OCRClassifier{apiKey: apiKey, endpoint: endpoint, client: client}
}

// Name returns the provider name
func (o *OCRClassifier) Name() string { return ocrName }

// CheckReady fails when no API key is configured
func (o *OCRClassifier) CheckReady() error {
	if strings.TrimSpace(o.apiKey) == "" {
		return apperrors.NewConfiguration("OCR_API_KEY is required for image classification", nil)
	}
	return nil
}

type ocrResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// Classify submits the image URL and searches the parsed text
func (o *OCRClassifier) Classify(ctx context.Context, imageURL string) (bool, error) {
	if err := o.CheckReady(); err != nil {
		return false, err
	}

	form := url.Values{}
	form.Set("apikey", o.apiKey)
	form.Set("url", imageURL)
	form.Set("language", "eng")
	form.Set("isOverlayRequired", "false")
	form.Set("OCREngine", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, apperrors.NewClassification(ocrName, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, apperrors.NewClassification(ocrName, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperrors.NewClassification(ocrName, "failed to read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, apperrors.NewClassification(ocrName, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, apperrors.NewClassification(ocrName, "malformed response", err)
	}
	if parsed.IsErroredOnProcessing {
		return false, apperrors.NewClassification(ocrName, "processing failed: "+ocrErrorText(parsed.ErrorMessage), nil)
	}

	var text strings.Builder
	for _, r := range parsed.ParsedResults {
		text.WriteString(r.ParsedText)
		text.WriteString(" ")
	}
	return ContainsSoonMarker(text.String()), nil
}

// ContainsSoonMarker reports whether OCR text announces a coming photo.
// "soon" alone also matches "coming soon".
func ContainsSoonMarker(text string) bool {
	return strings.Contains(strings.ToLower(text), "soon")
}

// ErrorMessage is a string or a list of strings depending on the failure
func ocrErrorText(raw json.RawMessage) string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return string(raw)
}
