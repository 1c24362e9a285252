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

// Package queue consumes email events from Redis. The ingestion service
// publishes them as Celery-compatible task messages; this consumer decodes
// that envelope so either a Python worker or this service can drain the
// same queue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/analysis/internal/models"
)

// ErrEmpty is returned by Next when the queue had no message within the
// poll window.
var ErrEmpty = errors.New("queue: no message")

// Consumer pops email events from a Redis list.
type Consumer struct {
	rdb       *redis.Client
	queueName string
	pollWait  time.Duration
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(rdb *redis.Client, queueName string) *Consumer {
	return &Consumer{
		rdb:       rdb,
		queueName: queueName,
		pollWait:  5 * time.Second,
	}
}

// celeryTask mirrors the Celery task body published by the ingestion
// service. Args[0] carries the email event as a JSON string.
type celeryTask struct {
	ID      string            `json:"id"`
	Task    string            `json:"task"`
	Args    []json.RawMessage `json:"args"`
	Kwargs  interface{}       `json:"kwargs"`
	Retries int               `json:"retries"`
	ETA     *string           `json:"eta"`
}

// celeryMessage is the transport envelope around a task.
type celeryMessage struct {
	Body            string                 `json:"body"`
	ContentEncoding string                 `json:"content-encoding"`
	ContentType     string                 `json:"content-type"`
	Headers         map[string]interface{} `json:"headers"`
	Properties      map[string]interface{} `json:"properties"`
}

// Next blocks for up to the poll window and returns the oldest queued
// event. It returns ErrEmpty on timeout so callers can loop and re-check
// their context.
func (c *Consumer) Next(ctx context.Context) (models.EmailEvent, string, error) {
	res, err := c.rdb.BRPop(ctx, c.pollWait, c.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return models.EmailEvent{}, "", ErrEmpty
	}
	if err != nil {
		return models.EmailEvent{}, "", fmt.Errorf("redis BRPOP: %w", err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return models.EmailEvent{}, "", fmt.Errorf("redis BRPOP: unexpected reply length %d", len(res))
	}
	return DecodeTask([]byte(res[1]))
}

// DecodeTask unwraps a Celery message envelope and returns the email event
// plus the task ID for correlation.
func DecodeTask(payload []byte) (models.EmailEvent, string, error) {
	var msg celeryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.EmailEvent{}, "", fmt.Errorf("decode celery message: %w", err)
	}

	var task celeryTask
	if err := json.Unmarshal([]byte(msg.Body), &task); err != nil {
		return models.EmailEvent{}, "", fmt.Errorf("decode celery task body: %w", err)
	}
	if len(task.Args) == 0 {
		return models.EmailEvent{}, task.ID, errors.New("celery task has no args")
	}

	// Args[0] is a JSON string containing the event document.
	var eventJSON string
	if err := json.Unmarshal(task.Args[0], &eventJSON); err != nil {
		return models.EmailEvent{}, task.ID, fmt.Errorf("decode task arg: %w", err)
	}

	var event models.EmailEvent
	if err := json.Unmarshal([]byte(eventJSON), &event); err != nil {
		return models.EmailEvent{}, task.ID, fmt.Errorf("decode email event: %w", err)
	}
	if event.MessageID == "" {
		return models.EmailEvent{}, task.ID, errors.New("email event missing message_id")
	}
	return event, task.ID, nil
}

// Ping checks the Redis connection.
func (c *Consumer) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
