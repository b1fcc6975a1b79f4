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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wentaojin/docwh/utils/stringutil"
)

const (
	// DebugAPIBasePath api debug base path
	DebugAPIBasePath = "/debug"
	// APIBasePath api docwh api base path
	APIBasePath = "/api/v1/"
)

const (
	APIWorkerPath   = "workers"
	APIScalePath    = "scale"
	APIExportPath   = "exports"
	APISchedulePath = "schedule"
	APIEventPath    = "events"
	APITaskPath     = "tasks"
)

const (
	APIOperatePlay  = "play"
	APIOperatePause = "pause"
	APIOperateError = "error"
)

const (
	RequestPUTMethod    = "PUT"
	RequestPOSTMethod   = "POST"
	RequestGETMethod    = "GET"
	RequestDELETEMethod = "DELETE"
)

const DefaultRequestTimeout = 60 * time.Second

// Response is the envelope of every api response, Code mirrors the http status
type Response struct {
	Code  int         `json:"code"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// TaskErrorRequest is the body of a manual task error transition
type TaskErrorRequest struct {
	Worker string `json:"worker"`
	Error  string `json:"error"`
	Epoch  int64  `json:"epoch"`
}

// URL joins the server addr, the api base path, the path elements and query
func URL(addr string, query url.Values, elems ...string) string {
	var escaped []string
	for _, e := range elems {
		escaped = append(escaped, url.PathEscape(e))
	}
	u := stringutil.StringBuilder(stringutil.WrapScheme(addr, false), APIBasePath, stringutil.StringJoin(escaped, "/"))
	if len(query) > 0 {
		u = stringutil.StringBuilder(u, "?", query.Encode())
	}
	return u
}

// Request sends the api request and decodes the response envelope, data
// receives the envelope data when non-nil
func Request(ctx context.Context, method, url string, body []byte, data interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return DecodeResponse(resp.StatusCode, respBody, data)
}

// DecodeResponse unwraps the response envelope
func DecodeResponse(status int, body []byte, data interface{}) error {
	r := &Response{Data: data}
	if err := json.Unmarshal(body, r); err != nil {
		return fmt.Errorf("request http status [%d] response decode failed: %v", status, err)
	}
	if status != http.StatusOK || r.Code != http.StatusOK {
		return fmt.Errorf("request http status [%d] failed: %s", status, r.Error)
	}
	return nil
}
