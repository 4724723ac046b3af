package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, reply string) (*httptest.Server, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func completion(t *testing.T, content string) string {
	t.Helper()
	b, err := json.Marshal(ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
	})
	require.NoError(t, err)
	return string(b)
}

func TestDetectFaces(t *testing.T) {
	reply := completion(t, "```json\n{\"faces\":[{\"confidence\":0.92,\"box\":{\"x\":0.3,\"y\":0.2,\"w\":0.4,\"h\":0.5}}],\"description\":\"one person\"}\n```")
	srv, got := newTestServer(t, http.StatusOK, reply)

	c := NewClient(srv.URL+"/", time.Second)
	analysis, err := c.DetectFaces(context.Background(), "qwen2.5-vl", "find faces", "aGVsbG8=")
	require.NoError(t, err)

	require.Len(t, analysis.Faces, 1)
	assert.InDelta(t, 0.92, analysis.Faces[0].Confidence, 1e-9)
	assert.InDelta(t, 0.4, analysis.Faces[0].Box.W, 1e-9)
	assert.Equal(t, "one person", analysis.Description)

	assert.Equal(t, "qwen2.5-vl", got.Model)
	require.Len(t, got.Messages, 1)
	parts, ok := got.Messages[0].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})["image_url"].(map[string]interface{})
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", image["url"])
}

func TestDetectFacesServerError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusServiceUnavailable, "model loading")

	c := NewClient(srv.URL, time.Second)
	_, err := c.DetectFaces(context.Background(), "m", "p", "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model loading")
}

func TestDetectFacesNonJSONReply(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, completion(t, "I do not see a face."))

	c := NewClient(srv.URL, time.Second)
	_, err := c.DetectFaces(context.Background(), "m", "p", "aGVsbG8=")
	require.Error(t, err)
}

func TestDetectFacesNoChoices(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"id":"x","choices":[]}`)

	c := NewClient(srv.URL, time.Second)
	_, err := c.DetectFaces(context.Background(), "m", "p", "aGVsbG8=")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestMessageTextContentParts(t *testing.T) {
	m := Message{Content: []interface{}{
		map[string]interface{}{"type": "text", "text": ""},
		map[string]interface{}{"type": "text", "text": "{\"faces\":[]}"},
	}}
	assert.Equal(t, "{\"faces\":[]}", messageText(m))
	assert.Equal(t, "", messageText(Message{Content: 42.0}))
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 2*time.Minute, c.httpClient.Timeout)
}
