package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectClient_List(t *testing.T) {
	var gotPath string
	var gotQuery map[string]string
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		_ = json.NewEncoder(w).Encode(ListResult{
			Records: []Record{
				{ID: "rec1", Fields: map[string]any{"word": "apple", "No": float64(1)}},
				{ID: "rec2", Fields: map[string]any{"word": "banana", "No": float64(2)}},
			},
			Offset: "cursor-2",
		})
	}))
	defer server.Close()

	client := NewDirectClient(server.URL, "appBase", "secret-key")
	result, err := client.List(context.Background(), "tblWords", ListOptions{
		FilterFormula: `{No} > 10`,
		SortField:     "No",
		PageSize:      100,
		Offset:        "cursor-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "/appBase/tblWords", gotPath)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, `{No} > 10`, gotQuery["filterByFormula"])
	assert.Equal(t, "100", gotQuery["pageSize"])
	assert.Equal(t, "cursor-1", gotQuery["offset"])
	assert.Equal(t, "No", gotQuery["sort[0][field]"])
	assert.Equal(t, "asc", gotQuery["sort[0][direction]"])

	require.Len(t, result.Records, 2)
	assert.Equal(t, "rec1", result.Records[0].ID)
	assert.Equal(t, "apple", result.Records[0].Fields["word"])
	assert.Equal(t, "cursor-2", result.Offset)
}

func TestDirectClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantAuth   bool
		wantKind   string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantAuth: true},
		{name: "server error is transient", status: http.StatusBadGateway, wantKind: "transient"},
		{name: "unprocessable is permanent", status: http.StatusUnprocessableEntity, wantKind: "permanent"},
		{name: "not found is permanent", status: http.StatusNotFound, wantKind: "permanent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewDirectClient(server.URL, "appBase", "key")
			_, err := client.Get(context.Background(), "tblWords", "rec1")
			require.Error(t, err)

			if tt.wantAuth {
				assert.ErrorIs(t, err, ErrAuthFailed)
				return
			}
			switch tt.wantKind {
			case "transient":
				var transient *TransientError
				assert.ErrorAs(t, err, &transient)
			case "permanent":
				var request *RequestError
				require.ErrorAs(t, err, &request)
				assert.Equal(t, tt.status, request.Status)
			}
		})
	}
}

func TestDirectClient_CreateAndUpdate(t *testing.T) {
	type captured struct {
		method string
		path   string
		fields map[string]any
	}
	var got captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = captured{method: r.Method, path: r.URL.Path, fields: body.Fields}
		_ = json.NewEncoder(w).Encode(Record{ID: "rec9", Fields: body.Fields})
	}))
	defer server.Close()

	client := NewDirectClient(server.URL, "appBase", "key")

	record, err := client.Create(context.Background(), "tblUsers", map[string]any{"phone": "010"})
	require.NoError(t, err)
	assert.Equal(t, "rec9", record.ID)
	assert.Equal(t, captured{method: "POST", path: "/appBase/tblUsers", fields: map[string]any{"phone": "010"}}, got)

	_, err = client.Update(context.Background(), "tblUsers", "rec9", map[string]any{"study_count": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, "PATCH", got.method)
	assert.Equal(t, "/appBase/tblUsers/rec9", got.path)
}

func TestDirectClient_NetworkErrorIsTransient(t *testing.T) {
	client := NewDirectClient("http://127.0.0.1:1", "appBase", "key")
	_, err := client.Get(context.Background(), "tblWords", "rec1")
	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestProxyClient_ForwardsURLAndMethod(t *testing.T) {
	var got proxyRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(ListResult{Records: []Record{{ID: "rec1"}}})
	}))
	defer server.Close()

	client := NewProxyClient(server.URL, "appBase")
	result, err := client.List(context.Background(), "tblWords", ListOptions{PageSize: 100})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	assert.Equal(t, "GET", got.Method)
	assert.Contains(t, got.URL, "https://api.airtable.com/v0/appBase/tblWords")
	assert.Contains(t, got.URL, "pageSize=100")
	assert.Nil(t, got.Body)
}

func TestProxyClient_UnwrapsUpstreamStatus(t *testing.T) {
	tests := []struct {
		name      string
		proxyCode int
		body      string
		wantAuth  bool
	}{
		{
			name:      "upstream auth failure wrapped by proxy",
			proxyCode: http.StatusBadGateway,
			body:      `{"error":"unauthorized","status":401}`,
			wantAuth:  true,
		},
		{
			name:      "proxy failure without wrapped status",
			proxyCode: http.StatusBadGateway,
			body:      `upstream exploded`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.proxyCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewProxyClient(server.URL, "appBase")
			_, err := client.Get(context.Background(), "tblWords", "rec1")
			require.Error(t, err)

			if tt.wantAuth {
				assert.ErrorIs(t, err, ErrAuthFailed)
			} else {
				var transient *TransientError
				assert.ErrorAs(t, err, &transient)
			}
		})
	}
}

func TestJoinProxyURL(t *testing.T) {
	got, err := JoinProxyURL("https://app.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/functions/airtable-proxy", got)
}
