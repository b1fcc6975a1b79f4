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
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wentaojin/docwh/logger"
	"github.com/wentaojin/docwh/model/export"
	"github.com/wentaojin/docwh/utils/configutil"
	"github.com/wentaojin/docwh/utils/constant"
	"github.com/wentaojin/docwh/utils/stringutil"
	"go.uber.org/zap"
)

// NewKafkaConn dials the first reachable broker
func NewKafkaConn(ctx context.Context, addrs []string) (*kafka.Conn, error) {
	var dialer kafka.Dialer
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		logger.Warn("the kafka broker dial failed, try the next one", zap.String("broker", addr), zap.Error(err))
	}
	return nil, fmt.Errorf("the kafka connection ping lost, please check the connectivity and whether there is any problem with the network address [%v] configuration", stringutil.StringJoin(addrs, constant.StringSeparatorComma))
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes export events, one message per event keyed by
// transaction/export so the events of one export keep their partition
type KafkaNotifier struct {
	topic  string
	writer messageWriter
}

func NewKafkaNotifier(ctx context.Context, opts *configutil.KafkaOptions) (*KafkaNotifier, error) {
	var brokers []string
	for _, b := range stringutil.StringSplit(opts.Brokers, constant.StringSeparatorComma) {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 || opts.Topic == "" {
		return nil, fmt.Errorf("the kafka notifier requires brokers and topic, brokers [%s] topic [%s]", opts.Brokers, opts.Topic)
	}
	conn, err := NewKafkaConn(ctx, brokers)
	if err != nil {
		return nil, err
	}
	if err = conn.Close(); err != nil {
		return nil, err
	}
	return &KafkaNotifier{
		topic: opts.Topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        opts.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
	}, nil
}

// Notify writes the event, it blocks until the brokers acknowledged it
func (k *KafkaNotifier) Notify(ctx context.Context, event *export.Event) error {
	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	if err = k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("the kafka topic [%s] write export [%s] event failed: %w", k.topic, event.Key().String(), err)
	}
	logger.Info("export event published",
		zap.String("topic", k.topic),
		zap.String("export", event.Key().String()),
		zap.String("kind", event.Kind))
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// EventMessage encodes the event as a keyed JSON message
func EventMessage(event *export.Event) (kafka.Message, error) {
	value, err := stringutil.MarshalJSON(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("the export [%s] event marshal failed: %w", event.Key().String(), err)
	}
	return kafka.Message{
		Key:   []byte(event.Key().String()),
		Value: []byte(value),
		Time:  event.CreatedAt,
	}, nil
}
