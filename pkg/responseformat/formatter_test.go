package responseformat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type status struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

func TestWriteResponseNegotiation(t *testing.T) {
	f := NewFormatter()
	data := status{Status: "ok", Pending: 3}

	tests := []struct {
		name    string
		target  string
		accept  string
		wantMsg bool
	}{
		{"default json", "/healthz", "", false},
		{"query parameter", "/healthz?format=msgpack", "", true},
		{"accept header", "/healthz", ContentTypeMsgPack, true},
		{"other accept", "/healthz", "text/html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, f.WriteResponse(rec, req, http.StatusAccepted, data))
			assert.Equal(t, http.StatusAccepted, rec.Code)

			var got status
			if tt.wantMsg {
				assert.Equal(t, ContentTypeMsgPack, rec.Header().Get("Content-Type"))
				dec := msgpack.NewDecoder(rec.Body)
				dec.SetCustomStructTag("json")
				require.NoError(t, dec.Decode(&got))
			} else {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			}
			assert.Equal(t, data, got)
		})
	}
}

func TestDecodeBody(t *testing.T) {
	f := NewFormatter()

	raw, err := msgpack.Marshal(map[string]any{"dateTime": 1700000000, "outTemp": 72.5})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/loop", bytes.NewReader(raw))
	req.Header.Set("Content-Type", ContentTypeMsgPack)

	var packet map[string]any
	require.NoError(t, f.DecodeBody(req, req.Body, &packet))
	assert.Equal(t, 72.5, packet["outTemp"])

	req = httptest.NewRequest(http.MethodPost, "/v1/loop", bytes.NewBufferString(`{"outTemp": `))
	req.Header.Set("Content-Type", "application/json")
	assert.Error(t, f.DecodeBody(req, req.Body, &packet))
}
