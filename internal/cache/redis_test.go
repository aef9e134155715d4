package cache

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRateLimitKey(t *testing.T) {
	room := uuid.New()
	user := uuid.New()

	key := rateLimitKey(room, user)

	if !strings.HasPrefix(key, "rl:post:") {
		t.Fatalf("unexpected key prefix: %s", key)
	}
	if !strings.Contains(key, room.String()) || !strings.Contains(key, user.String()) {
		t.Errorf("key %s must contain room and user ids", key)
	}
	if rateLimitKey(user, room) == key {
		t.Error("key must depend on argument order")
	}
}
