/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8261/api/v1/workers", URL("127.0.0.1:8261", nil, APIWorkerPath))
	assert.Equal(t, "http://master:8261/api/v1/exports/t%2F1/orders/play",
		URL("http://master:8261", nil, APIExportPath, "t/1", "orders", APIOperatePlay))
	assert.Equal(t, "http://master:8261/api/v1/tasks?status=ERROR&transaction=t1",
		URL("master:8261", url.Values{"transaction": {"t1"}, "status": {"ERROR"}}, APITaskPath))
}

func TestRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/ok":
			_, _ = w.Write([]byte(`{"code":200,"data":{"alive":3}}`))
		default:
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"code":409,"error":"scale pass already in flight"}`))
		}
	}))
	defer srv.Close()

	var data struct {
		Alive int `json:"alive"`
	}
	require.NoError(t, Request(context.Background(), RequestGETMethod, URL(srv.URL, nil, "ok"), nil, &data))
	assert.Equal(t, 3, data.Alive)

	err := Request(context.Background(), RequestPOSTMethod, URL(srv.URL, nil, APIScalePath), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[409]")
	assert.Contains(t, err.Error(), "scale pass already in flight")

	assert.Error(t, DecodeResponse(http.StatusOK, []byte("not json"), nil))
}
