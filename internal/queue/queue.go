// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue bridges ingestion and enrichment over a Redis list.
// The orchestrator publishes one task per newly persisted email; the
// enrichment worker consumes them. Losing a task is harmless — the
// periodic sweep over unprocessed emails recovers it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/displayintel/pipeline/internal/models"
)

// EnrichmentTask is the JSON envelope on the enrichment queue.
type EnrichmentTask struct {
	ID         string `json:"id"`
	EmailID    int64  `json:"email_id"`
	DedupeHash string `json:"dedupe_hash"`
	EnqueuedAt string `json:"enqueued_at"`
}

// Publisher sends enrichment tasks to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{rdb: rdb, queueName: queueName}
}

// PublishEmail enqueues an enrichment task for a newly persisted email.
func (p *Publisher) PublishEmail(ctx context.Context, email *models.Email) error {
	task := EnrichmentTask{
		ID:         uuid.New().String(),
		EmailID:    email.ID,
		DedupeHash: email.DedupeHash,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal enrichment task: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Debug("enrichment task published",
		"task_id", task.ID,
		"email_id", email.ID,
		"queue", p.queueName,
	)
	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

// Consumer pops enrichment tasks from Redis.
type Consumer struct {
	rdb       *redis.Client
	queueName string
	popWait   time.Duration
}

// NewConsumer creates a consumer for the specified queue.
func NewConsumer(rdb *redis.Client, queueName string) *Consumer {
	return &Consumer{rdb: rdb, queueName: queueName, popWait: 5 * time.Second}
}

// Next blocks for up to the pop wait and returns the next task, or nil
// when the queue stayed empty. Malformed envelopes are dropped with a
// warning rather than wedging the queue.
func (c *Consumer) Next(ctx context.Context) (*EnrichmentTask, error) {
	res, err := c.rdb.BRPop(ctx, c.popWait, c.queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	var task EnrichmentTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		slog.Warn("dropping malformed enrichment task", "error", err)
		return nil, nil
	}
	return &task, nil
}
