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
package warehouse

import (
	"context"
	"time"

	"github.com/wentaojin/docwh/logger"
	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
}

// Until calls fn until it reports done, at most MaxRetries times with a fixed
// Delay in between. Transient errors count as not done, any other error is
// returned at once. Exhaustion is a CatalogTimeout error.
func (r *RetryConfig) Until(ctx context.Context, op string, fn func(ctx context.Context) (bool, error)) error {
	var lastErr error
	for attempt := 1; attempt <= r.MaxRetries; attempt++ {
		done, err := fn(ctx)
		switch {
		case err == nil && done:
			return nil
		case err != nil && !IsTransient(err):
			return err
		case err != nil:
			lastErr = err
			logger.Warn("warehouse catalog call transient failed, waiting retry",
				zap.String("operate", op),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		if attempt == r.MaxRetries {
			break
		}
		timer := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		return CatalogTimeout.Wrap(lastErr, "%s not settled after %d attempts", op, r.MaxRetries)
	}
	return CatalogTimeout.New("%s not settled after %d attempts", op, r.MaxRetries)
}
