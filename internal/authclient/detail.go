package authclient

import (
	"encoding/json"
	"strings"
)

const (
	// FallbackLoginReason is shown when a login failure carries no usable detail.
	FallbackLoginReason = "login failed"
	// FallbackVerifyReason is shown when a verification failure carries no usable detail.
	FallbackVerifyReason = "verification failed"
)

// NormalizeDetail turns the `detail` field of an error body into one
// display string. It understands a plain string, an array of {msg}
// objects and a nested object with msg. Anything else yields fallback.
func NormalizeDetail(body []byte, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return fallback
	}
	if text := detailText(payload.Detail); text != "" {
		return text
	}
	return fallback
}

func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if msg := detailText(item); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Msg json.RawMessage `json:"msg"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Msg) > 0 {
		var msg string
		if err := json.Unmarshal(obj.Msg, &msg); err == nil {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}
