package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"tastebalance"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	status int
	body   string
	err    error
	req    wireRequest
	url    string
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.url = req.URL.String()
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(b, &m.req)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Status:     http.StatusText(m.status),
		Body:       io.NopCloser(strings.NewReader(m.body)),
	}, nil
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ClientOpts{})
	assert.Error(t, err)

	c, err := NewClient(ClientOpts{BaseEndpoint: "http://localhost:11434/", ModelID: "llava:13b"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/api/chat", c.endpoint)
	assert.Equal(t, "llava:13b", c.model)
	assert.Equal(t, "llava:13b", c.liteModel)
}

func TestClient_EstimatePhoto(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		err     error
		want    string
		wantErr bool
	}{
		{
			name:   "content returned verbatim",
			status: http.StatusOK,
			body:   `{"message":{"role":"assistant","content":"{\"items\":[]}"}}`,
			want:   `{"items":[]}`,
		},
		{
			name:   "undecodable body returned raw",
			status: http.StatusOK,
			body:   `not json`,
			want:   `not json`,
		},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantErr: true},
		{name: "transport error", err: errors.New("refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &mockHTTPClient{status: tt.status, body: tt.body, err: tt.err}
			c, err := NewClient(ClientOpts{BaseEndpoint: "http://ollama", ModelID: "big", LiteModelID: "small", HTTPClient: hc})
			require.NoError(t, err)

			got, err := c.EstimatePhoto(context.Background(), []byte("jpg"), tastebalance.TierLite)

			assert.Equal(t, "http://ollama/api/chat", hc.url)
			assert.Equal(t, "small", hc.req.Model)
			assert.Equal(t, "json", hc.req.Format)
			require.Len(t, hc.req.Messages, 1)
			assert.Equal(t, []string{"anBn"}, hc.req.Messages[0].Images)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_EstimateText(t *testing.T) {
	hc := &mockHTTPClient{status: http.StatusOK, body: `{"message":{"content":"{}"}}`}
	c, err := NewClient(ClientOpts{BaseEndpoint: "http://ollama", ModelID: "big", LiteModelID: "small", HTTPClient: hc})
	require.NoError(t, err)

	_, err = c.EstimateText(context.Background(), "pancakes", tastebalance.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, "big", hc.req.Model)
	assert.Empty(t, hc.req.Messages[0].Images)
	assert.Contains(t, hc.req.Messages[0].Content, "pancakes")
}
