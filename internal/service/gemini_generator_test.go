package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	"leadflow/internal/model"
)

func geminiServer(t *testing.T, status int, text string) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		body := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": text}},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func geminiConfig(baseURL string) config.AIConfig {
	cfg := config.DefaultAIConfig()
	cfg.APIKey = "k"
	cfg.BaseURL = baseURL
	cfg.Models.Rephrase = "fast"
	cfg.Models.Closing = "good"
	return cfg
}

func TestNewTextGeneratorWithoutKey(t *testing.T) {
	gen := NewTextGenerator(config.DefaultAIConfig(), discardLogger())
	assert.IsType(t, StaticGenerator{}, gen)

	out, err := gen.Rephrase(context.Background(), []model.Question{{ID: "a", Text: "A?"}}, RephraseContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A?"}, out)
}

func TestGeminiRephrase(t *testing.T) {
	srv, paths := geminiServer(t, http.StatusOK, `{"questions": ["Where do you live?", "What breed?"]}`)
	gen := NewGeminiGenerator(geminiConfig(srv.URL), discardLogger())

	out, err := gen.Rephrase(context.Background(), []model.Question{
		{ID: "location", Text: "Location?"},
		{ID: "breed", Text: "Breed?"},
	}, RephraseContext{BusinessName: "Happy Paws"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Where do you live?", "What breed?"}, out)
	assert.Equal(t, []string{"/fast:generateContent"}, *paths)
}

func TestGeminiComposeClosing(t *testing.T) {
	srv, paths := geminiServer(t, http.StatusOK, `{"message": "See you soon, Alex!"}`)
	gen := NewGeminiGenerator(geminiConfig(srv.URL), discardLogger())

	msg, err := gen.ComposeClosing(context.Background(), ClosingContext{BusinessName: "Happy Paws", VisitorName: "Alex"})
	require.NoError(t, err)
	assert.Equal(t, "See you soon, Alex!", msg)
	assert.Equal(t, []string{"/good:generateContent"}, *paths)
}

func TestGeminiErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"not json", http.StatusOK, "Sure! Here you go"},
		{"empty message", http.StatusOK, `{"message": "  "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := geminiServer(t, tt.status, tt.text)
			gen := NewGeminiGenerator(geminiConfig(srv.URL), discardLogger())

			_, err := gen.ComposeClosing(context.Background(), ClosingContext{})
			assert.Error(t, err)
		})
	}
}

func TestGeminiRespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	gen := NewGeminiGenerator(geminiConfig(srv.URL), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := gen.Rephrase(ctx, []model.Question{{ID: "a", Text: "A?"}}, RephraseContext{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "deadline") || strings.Contains(err.Error(), "canceled"), fmt.Sprint(err))
}
