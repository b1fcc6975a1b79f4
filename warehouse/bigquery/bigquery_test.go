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
package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/warehouse"
	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	assert.True(t, warehouse.IsNotFound(classify(&googleapi.Error{Code: http.StatusNotFound}, "dataset [%s]", "shop")))
	assert.True(t, warehouse.IsAlreadyExists(classify(&googleapi.Error{Code: http.StatusConflict}, "dataset [%s]", "shop")))
	assert.True(t, warehouse.IsTransient(classify(&googleapi.Error{Code: http.StatusServiceUnavailable}, "x")))
	assert.True(t, warehouse.IsTransient(classify(
		fmt.Errorf("get: %w", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}), "x")))

	denied := &googleapi.Error{Code: http.StatusForbidden, Message: "access denied"}
	err := classify(denied, "dataset [%s] create", "shop")
	assert.False(t, warehouse.IsTransient(err))
	assert.True(t, errors.Is(err, denied))

	plain := errors.New("dial tcp: i/o timeout")
	assert.ErrorIs(t, classify(plain, "x"), plain)
}

func TestTableSchema(t *testing.T) {
	schema := TableSchema(warehouse.StagingSchema)
	require.Len(t, schema, 4)
	assert.Equal(t, "row_id", schema[0].Name)
	assert.Equal(t, bigquery.StringFieldType, schema[0].Type)
	assert.Equal(t, bigquery.TimestampFieldType, schema[1].Type)
	for _, f := range schema {
		assert.True(t, f.Required)
	}
}
