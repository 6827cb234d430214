// Package router classifies incoming messages and dispatches their side
// effects. Classification is a pure function so routing policy stays
// testable without any transport.
package router

import (
	"strings"

	"github.com/knowbase/knowbot/internal/database"
)

// Decision is the routing outcome for one incoming message.
type Decision int

const (
	// DecisionIgnore drops messages without usable text.
	DecisionIgnore Decision = iota
	// DecisionStoreOnly keeps group messages for transcripts and digests
	// without replying.
	DecisionStoreOnly
	// DecisionNotAllowed marks private messages from users outside the
	// allow-list.
	DecisionNotAllowed
	// DecisionInstantDigest triggers an on-demand activity digest.
	DecisionInstantDigest
	// DecisionAnswer routes the message into the answering pipeline.
	DecisionAnswer
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionIgnore:
		return "ignore"
	case DecisionStoreOnly:
		return "store_only"
	case DecisionNotAllowed:
		return "not_allowed"
	case DecisionInstantDigest:
		return "instant_digest"
	case DecisionAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// Config holds the routing policy inputs.
type Config struct {
	AdminUserID    int64
	TriggerWord    string
	AllowedUserIDs []int64
}

// Decide classifies a message. Checks run in a fixed order: textless
// messages are ignored, group messages are stored only, users outside the
// allow-list are rejected, the admin's trigger word requests an instant
// digest, and everything else is answered. An empty allow-list admits
// everyone; the admin is always admitted.
func Decide(msg database.Message, cfg Config) Decision {
	if strings.TrimSpace(msg.Content) == "" {
		return DecisionIgnore
	}
	if msg.IsGroup {
		return DecisionStoreOnly
	}
	if !allowed(msg.UserID, cfg) {
		return DecisionNotAllowed
	}
	if msg.UserID == cfg.AdminUserID && cfg.TriggerWord != "" &&
		strings.Contains(strings.ToLower(msg.Content), strings.ToLower(cfg.TriggerWord)) {
		return DecisionInstantDigest
	}
	return DecisionAnswer
}

func allowed(userID int64, cfg Config) bool {
	if userID == cfg.AdminUserID {
		return true
	}
	if len(cfg.AllowedUserIDs) == 0 {
		return true
	}
	for _, id := range cfg.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
