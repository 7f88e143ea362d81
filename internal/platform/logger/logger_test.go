package logger

import (
	"strings"
	"testing"
)

func TestScrubberRedactsSecretsAndHashesIdentity(t *testing.T) {
	s := &scrubber{enabled: true, salt: "pepper"}
	out := s.kvs([]interface{}{
		"api_key", "sk-live-123",
		"user_id", "user-42",
		"path", "/api/jobs",
		"header", "Bearer abc.def.ghi",
	})

	if out[1] != "[REDACTED]" {
		t.Fatalf("api_key: want redacted got=%v", out[1])
	}
	hashed, _ := out[3].(string)
	if !strings.HasPrefix(hashed, "hash:") || strings.Contains(hashed, "user-42") {
		t.Fatalf("user_id: want hashed got=%v", out[3])
	}
	if out[5] != "/api/jobs" {
		t.Fatalf("path: want passthrough got=%v", out[5])
	}
	if out[7] != "[REDACTED]" {
		t.Fatalf("bearer header: want redacted got=%v", out[7])
	}
}

func TestScrubberHashIsStableForSalt(t *testing.T) {
	a := &scrubber{enabled: true, salt: "x"}
	b := &scrubber{enabled: true, salt: "y"}
	if a.hash("u1") != a.hash("u1") {
		t.Fatalf("hash must be deterministic")
	}
	if a.hash("u1") == b.hash("u1") {
		t.Fatalf("salt must change the hash")
	}
}

func TestScrubberDisabledPassesThrough(t *testing.T) {
	s := &scrubber{}
	kv := []interface{}{"token", "raw"}
	out := s.kvs(kv)
	if out[1] != "raw" {
		t.Fatalf("disabled scrubber changed value: %v", out[1])
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := NewWithOptions(Options{Mode: "dev", Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
