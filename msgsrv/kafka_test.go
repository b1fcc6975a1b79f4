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
package msgsrv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestNotifyKeysByExport(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{topic: "exports", writer: w}
	event := &export.Event{
		Transaction:       "9b1c",
		Export:            "orders",
		Kind:              constant.ExportEventError,
		FailedCollections: []string{"carts"},
		TaskCount:         3,
	}
	require.NoError(t, n.Notify(context.Background(), event))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "9b1c/orders", string(w.msgs[0].Key))

	var got export.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, constant.ExportEventError, got.Kind)
	assert.Equal(t, []string{"carts"}, got.FailedCollections)

	w.err = errors.New("leader not available")
	require.Error(t, n.Notify(context.Background(), event))
}

func TestNewKafkaNotifierRequiresConfig(t *testing.T) {
	_, err := NewKafkaNotifier(context.Background(), &configutil.KafkaOptions{Brokers: " , ", Topic: "exports"})
	require.Error(t, err)
	_, err = NewKafkaNotifier(context.Background(), &configutil.KafkaOptions{Brokers: "127.0.0.1:9092"})
	require.Error(t, err)
}
