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

package queue

import (
	"encoding/json"
	"testing"

	"github.com/bcem/analysis/internal/models"
)

// encodeTask builds a Celery message the way the ingestion publisher does.
func encodeTask(t *testing.T, event models.EmailEvent, taskID string) []byte {
	t.Helper()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"id":      taskID,
		"task":    "analysis.tasks.analyze_email",
		"args":    []interface{}{string(eventJSON)},
		"kwargs":  map[string]interface{}{},
		"retries": 0,
		"eta":     nil,
	})
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}
	msg, err := json.Marshal(map[string]interface{}{
		"body":             string(body),
		"content-encoding": "utf-8",
		"content-type":     "application/json",
		"headers":          map[string]interface{}{"lang": "py", "id": taskID},
		"properties":       map[string]interface{}{"correlation_id": taskID},
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return msg
}

// TestDecodeTask verifies the Celery envelope published by ingestion round-trips
// into an email event.
func TestDecodeTask(t *testing.T) {
	want := models.EmailEvent{
		MessageID:   "msg-123",
		UserID:      "alice@corp.example",
		TenantID:    "tenant-1",
		TenantAlias: "corp",
		From:        models.EmailAddress{Address: "security@example-bank.com", Name: "Security"},
		To:          []models.EmailAddress{{Address: "alice@corp.example"}},
		Subject:     "URGENT: verify your account",
		Body:        models.EmailBody{ContentType: "text/html", Content: "<p>click here</p>"},
		URLs:        []string{"https://evil.example/login"},
	}

	event, taskID, err := DecodeTask(encodeTask(t, want, "task-abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if taskID != "task-abc" {
		t.Errorf("task ID = %q, want task-abc", taskID)
	}
	if event.MessageID != want.MessageID {
		t.Errorf("message_id = %q", event.MessageID)
	}
	if event.From.Address != want.From.Address {
		t.Errorf("from = %q", event.From.Address)
	}
	if len(event.URLs) != 1 || event.URLs[0] != want.URLs[0] {
		t.Errorf("urls = %v", event.URLs)
	}
	if event.Body.Content != want.Body.Content {
		t.Errorf("body = %q", event.Body.Content)
	}
}

// TestDecodeTask_Malformed verifies the failure modes: bad envelope, empty
// args, and a missing message ID.
func TestDecodeTask_Malformed(t *testing.T) {
	if _, _, err := DecodeTask([]byte("not json")); err == nil {
		t.Error("expected error for a non-JSON payload")
	}

	noArgs, _ := json.Marshal(map[string]interface{}{
		"body": `{"id":"t1","task":"analysis.tasks.analyze_email","args":[]}`,
	})
	if _, _, err := DecodeTask(noArgs); err == nil {
		t.Error("expected error for a task with no args")
	}

	event := models.EmailEvent{From: models.EmailAddress{Address: "x@example.com"}}
	if _, _, err := DecodeTask(encodeTask(t, event, "t2")); err == nil {
		t.Error("expected error for a missing message_id")
	}
}
