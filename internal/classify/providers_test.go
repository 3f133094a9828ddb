package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "sjsage522/srpauditor/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCRClassifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "key", r.PostForm.Get("apikey"))

		text := "2021 CIVIC EX"
		if r.PostForm.Get("url") == "https://cdn/placeholder.jpg" {
			text = "PHOTOS\nCOMING\nSOON"
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ParsedResults":         []map[string]string{{"ParsedText": text}},
			"IsErroredOnProcessing": false,
		})
	}))
	defer server.Close()

	ocr := NewOCRClassifier("key", server.URL, nil)
	require.NoError(t, ocr.CheckReady())

	verdict, err := ocr.Classify(context.Background(), "https://cdn/placeholder.jpg")
	require.NoError(t, err)
	assert.True(t, verdict)

	verdict, err = ocr.Classify(context.Background(), "https://cdn/real.jpg")
	require.NoError(t, err)
	assert.False(t, verdict)
}

func TestOCRClassifierFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["File failed validation"]}`))
	}))
	defer server.Close()

	_, err := NewOCRClassifier("key", server.URL, nil).Classify(context.Background(), "https://cdn/x.jpg")
	require.Error(t, err)
	assert.True(t, apperrors.IsClassification(err))
	assert.Contains(t, err.Error(), "File failed validation")

	missing := NewOCRClassifier("", server.URL, nil)
	assert.True(t, apperrors.IsConfiguration(missing.CheckReady()))
}

func TestVisionClassifier(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req.Model)
		if assert.Len(t, req.Messages, 1) && assert.Len(t, req.Messages[0].Content, 2) {
			assert.Equal(t, "https://cdn/x.jpg", req.Messages[0].Content[1].ImageURL.URL)
		}

		w.Write([]byte(`{"choices":[{"message":{"content":"True."}}]}`))
	}))
	defer server.Close()

	vision := NewVisionClassifier("key", server.URL, "gpt-4o-mini", nil)
	verdict, err := vision.Classify(context.Background(), "https://cdn/x.jpg")
	require.NoError(t, err)
	assert.True(t, verdict)
}

func TestVisionClassifierHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	_, err := NewVisionClassifier("key", server.URL, "m", nil).Classify(context.Background(), "https://cdn/x.jpg")
	require.Error(t, err)
	assert.True(t, apperrors.IsClassification(err))
	assert.Contains(t, err.Error(), "invalid api key")

	assert.True(t, apperrors.IsConfiguration(NewVisionClassifier("", server.URL, "m", nil).CheckReady()))
}

func TestParseVerdict(t *testing.T) {
	testCases := []struct {
		answer string
		want   bool
		err    bool
	}{
		{"true", true, false},
		{"TRUE", true, false},
		{"The answer is true.", true, false},
		{"false", false, false},
		{"False, it is a real photo", false, false},
		{"true, not false", true, false},
		{"false rather than true", false, false},
		{"maybe", false, true},
	}

	for _, tc := range testCases {
		got, err := ParseVerdict(tc.answer)
		if tc.err {
			assert.Error(t, err, tc.answer)
			continue
		}
		require.NoError(t, err, tc.answer)
		assert.Equal(t, tc.want, got, tc.answer)
	}
}

func TestContainsSoonMarker(t *testing.T) {
	assert.True(t, ContainsSoonMarker("Photo Coming Soon"))
	assert.True(t, ContainsSoonMarker("SOON"))
	assert.False(t, ContainsSoonMarker("2021 Honda Civic"))
}
