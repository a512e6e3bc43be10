// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/teradata-labs/pgmcp/pkg/postgres"
)

// connectRetryMin and connectRetryMax bound the delay between connect attempts.
const (
	connectRetryMin = 500 * time.Millisecond
	connectRetryMax = 10 * time.Second
)

// connectWithRetry connects manager, retrying retryable failures up to
// retries times with exponential backoff.
func connectWithRetry(ctx context.Context, manager *postgres.ConnectionManager, retries int, logger *zap.Logger) error {
	b := &backoff.Backoff{
		Min:    connectRetryMin,
		Max:    connectRetryMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		_, err := manager.Connect(ctx)
		if err == nil {
			return nil
		}
		if !postgres.IsRetryable(err) || b.Attempt() >= float64(retries) {
			return err
		}

		delay := b.Duration()
		logger.Warn("failed to connect to postgres, retrying after backoff",
			zap.Duration("backoff", delay),
			zap.Float64("attempt", b.Attempt()),
			zap.Int("retries", retries),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
