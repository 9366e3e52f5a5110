package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"
)

type fieldRule int

const (
	ruleKeep fieldRule = iota
	ruleRedact
	ruleSummarize
	ruleHash
)

// Substrings that mark credentials anywhere in a key.
var secretMarkers = []string{"token", "authorization", "password", "secret", "api_key", "apikey"}

// Exact keys that carry chapter prose or prompts. Only length and a short
// hash are logged.
var proseKeys = map[string]bool{
	"content":       true,
	"text":          true,
	"candidate":     true,
	"prompt":        true,
	"system_prompt": true,
	"directive":     true,
}

// Substrings of tenant identifiers that are logged as salted hashes.
var hashedMarkers = []string{"project_id", "owner_id"}

var (
	redactOnce sync.Once
	redactOn   bool
	hashSalt   string
)

// loadRedaction reads LOG_REDACTION_ENABLED (default on) and LOG_HASH_SALT once.
func loadRedaction() bool {
	redactOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			redactOn = false
		default:
			redactOn = true
		}
		hashSalt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return redactOn
}

func ruleFor(key string) fieldRule {
	if key == "" {
		return ruleKeep
	}
	for _, m := range secretMarkers {
		if strings.Contains(key, m) {
			return ruleRedact
		}
	}
	if proseKeys[key] {
		return ruleSummarize
	}
	for _, m := range hashedMarkers {
		if strings.Contains(key, m) {
			return ruleHash
		}
	}
	return ruleKeep
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 || !loadRedaction() {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		key := toString(kv[i])
		out = append(out, key, sanitizeValue(normKey(key), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func sanitizeValue(key string, val interface{}) interface{} {
	switch ruleFor(key) {
	case ruleRedact:
		return "[REDACTED]"
	case ruleSummarize:
		return summarizeProse(val)
	case ruleHash:
		return hashValue(val)
	}
	switch v := val.(type) {
	case map[string]interface{}:
		if v == nil {
			return v
		}
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = sanitizeValue(normKey(k), inner)
		}
		return out
	case []interface{}:
		if v == nil {
			return v
		}
		out := make([]interface{}, len(v))
		for i, inner := range v {
			out[i] = sanitizeValue("", inner)
		}
		return out
	default:
		return val
	}
}

func normKey(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

func summarizeProse(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return "len:0"
	}
	return fmt.Sprintf("len:%d %s", utf8.RuneCountInString(raw), hashValue(raw))
}

func hashValue(val interface{}) string {
	raw := toString(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(hashSalt + raw))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
