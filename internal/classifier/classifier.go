// Package classifier turns raw user text into a queue.InputItem with
// the correct priority and retry policy, then submits it to the
// Priority Queue, tracking aggregate statistics (SPEC_FULL §4.2).
package classifier

import (
	"strings"
	"time"

	"github.com/hrygo/agentshell/internal/queue"
)

// urgentVerbs is the urgent command set from spec.md §4.2.
var urgentVerbs = map[string]bool{
	"stop":      true,
	"kill":      true,
	"status":    true,
	"jobs":      true,
	"interrupt": true,
	"abort":     true,
	"emergency": true,
}

const (
	commandRetryLimit = 1 // commands are intentional; silent retries are undesired
	messageRetryLimit = 3
)

// Classify parses raw text into an InputItem and determines the
// priority and retry limit it should be enqueued with, following the
// classification and priority rules in spec.md §4.2 plus the reflex
// supplement in SPEC_FULL §4.2.
func Classify(raw string, sessionID string) (queue.InputItem, queue.Priority, int) {
	now := time.Now()
	trimmed := strings.TrimSpace(raw)

	reflex := false
	if strings.HasPrefix(trimmed, "!") {
		reflex = true
		trimmed = strings.TrimPrefix(trimmed, "!")
		trimmed = strings.TrimSpace(trimmed)
	}

	switch {
	case strings.HasPrefix(trimmed, "/"):
		verb, args := splitCommand(trimmed)
		item := queue.InputItem{
			Kind:      queue.KindCommand,
			Content:   trimmed,
			Verb:      verb,
			Args:      args,
			Raw:       raw,
			Timestamp: now,
			SessionID: sessionID,
			Reflex:    reflex,
		}
		if urgentVerbs[verb] {
			return item, queue.Urgent, commandRetryLimit
		}
		return item, queue.Normal, commandRetryLimit

	case strings.HasPrefix(trimmed, "system:"):
		body := strings.TrimSpace(strings.TrimPrefix(trimmed, "system:"))
		item := queue.InputItem{
			Kind:      queue.KindSystem,
			Content:   body,
			Raw:       raw,
			Timestamp: now,
			SessionID: sessionID,
		}
		return item, queue.Urgent, commandRetryLimit

	default:
		item := queue.InputItem{
			Kind:      queue.KindMessage,
			Content:   trimmed,
			Raw:       raw,
			Timestamp: now,
			SessionID: sessionID,
			Reflex:    reflex,
		}
		return item, queue.Normal, messageRetryLimit
	}
}

// Background builds the InputItem for LOW-priority maintenance work —
// work not produced directly by a user (spec.md §4.2).
func Background(content string) (queue.InputItem, queue.Priority, int) {
	return queue.InputItem{
		Kind:      queue.KindMessage,
		Content:   content,
		Raw:       content,
		Timestamp: time.Now(),
	}, queue.Low, messageRetryLimit
}

// splitCommand splits a leading-slash command into its verb (without
// the slash) and argument tail.
func splitCommand(s string) (verb, args string) {
	s = strings.TrimPrefix(s, "/")
	parts := strings.SplitN(s, " ", 2)
	verb = parts[0]
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return verb, args
}
