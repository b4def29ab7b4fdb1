package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wibi/internal/backend"
	"wibi/internal/testsupport"
	"wibi/internal/visitors"
)

func visitorData() visitors.Data {
	return visitors.Data{Token: "utk-1"}
}

func TestFetchWidgetConfig(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, backend.OptionsPath, r.URL.Path)
		gotQuery = map[string]string{
			"id":  r.URL.Query().Get("id"),
			"pg":  r.URL.Query().Get("pg"),
			"utk": r.URL.Query().Get("utk"),
		}
		json.NewEncoder(w).Encode(backend.WidgetConfig{
			ColorCode: "#112233",
			PhoneShow: true,
			PNumber:   "27115550100",
		})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "site-1", testsupport.GetLogger())

	config, err := client.FetchWidgetConfig(context.Background(),
		"https://example.com/", "utk-1", map[string]string{"source": "DIRECT_TRAFFIC"},
		backend.ClientData{ScreenResolution: "1920x1080"})
	require.NoError(t, err)

	assert.Equal(t, "site-1", gotQuery["id"])
	assert.Equal(t, "https://example.com/", gotQuery["pg"])
	assert.Equal(t, "utk-1", gotQuery["utk"])
	assert.Equal(t, "#112233", config.ColorCode)
	assert.True(t, config.PhoneShow)
	assert.Equal(t, "27115550100", config.PNumber)
}

func TestFetchWidgetConfigErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "site-1", testsupport.GetLogger())

	_, err := client.FetchWidgetConfig(context.Background(), "https://example.com/", "utk", nil, backend.ClientData{})
	require.Error(t, err)

	var fetchErr *backend.ConfigFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, "site-1", fetchErr.WebsiteID)
}

func TestFetchWidgetConfigNetworkError(t *testing.T) {
	client := backend.NewClient("http://unreachable.invalid", "site-1", testsupport.GetLogger())

	_, err := client.FetchWidgetConfig(context.Background(), "https://example.com/", "utk", nil, backend.ClientData{})

	var fetchErr *backend.ConfigFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.NotNil(t, fetchErr.Unwrap())
}

func TestFetchGTMContainerID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, backend.GTMIDPath, r.URL.Path)
		assert.Equal(t, "example.com", r.URL.Query().Get("url"))
		json.NewEncoder(w).Encode(map[string]string{"gtm_container_id": "GTM-ABC123"})
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "site-1", testsupport.GetLogger())

	id, err := client.FetchGTMContainerID(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "GTM-ABC123", id)
}

func TestFetchGTMContainerIDRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "lowercase", id: "GTM-abc123"},
		{name: "script injection", id: "GTM-X\"><script>"},
		{name: "wrong prefix", id: "UA-123456"},
		{name: "empty", id: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"gtm_container_id": tt.id})
			}))
			defer server.Close()

			client := backend.NewClient(server.URL, "site-1", testsupport.GetLogger())

			id, err := client.FetchGTMContainerID(context.Background(), "example.com")
			require.NoError(t, err)
			assert.Empty(t, id)
		})
	}
}

func TestFetchGTMContainerIDErrorStatusIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := backend.NewClient(server.URL, "site-1", testsupport.GetLogger())

	id, err := client.FetchGTMContainerID(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestReportErrorSwallowsFailures(t *testing.T) {
	client := backend.NewClient("http://unreachable.invalid", "site-1", testsupport.GetLogger())

	// Must not panic or block on an unreachable backend.
	client.ReportError(context.Background(), "boom", "stack", "https://example.com/")
}

func TestPageViewRequest(t *testing.T) {
	client := backend.NewClient("https://api.example.com", "site-1", testsupport.GetLogger())

	req := client.PageViewRequest("https://example.com/pricing", "https://google.com/", visitorData(), nil)

	assert.Equal(t, "https://api.example.com"+backend.PageViewPath, req.URL)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.NotZero(t, req.Timestamp)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "site-1", payload["websiteId"])
	assert.Equal(t, "https://example.com/pricing", payload["url"])
	assert.Equal(t, "https://google.com/", payload["referrer"])
	assert.NotContains(t, payload, "sessionId")
}

func TestInteractionRequest(t *testing.T) {
	client := backend.NewClient("https://api.example.com", "site-1", testsupport.GetLogger())

	req := client.InteractionRequest("whatsapp", "https://example.com/", "utk-1", nil,
		map[string]any{"channel": "whatsapp"})

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "whatsapp", payload["action"])
	assert.Equal(t, "utk-1", payload["utk"])
	detail, ok := payload["detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "whatsapp", detail["channel"])
}

func TestSourceAttributionRequest(t *testing.T) {
	client := backend.NewClient("https://api.example.com", "site-1", testsupport.GetLogger())

	req := client.SourceAttributionRequest("utk-1", "https://example.com/",
		map[string]string{"source": "ORGANIC_SEARCH"})

	assert.Equal(t, "https://api.example.com"+backend.SourceAttributionPath, req.URL)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	source, ok := payload["source"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ORGANIC_SEARCH", source["source"])
}

func TestConsentRequest(t *testing.T) {
	client := backend.NewClient("https://api.example.com", "site-1", testsupport.GetLogger())

	req := client.ConsentRequest("utk-1", map[string]bool{"granted": true})

	assert.Equal(t, "https://api.example.com"+backend.ConsentPath, req.URL)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &payload))
	assert.Equal(t, "utk-1", payload["utk"])
}
