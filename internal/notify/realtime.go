package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/workorder-service/internal/domain"
)

const presenceTTL = 90 * time.Second

// RealtimeHub tracks which accounts have a live session and pushes rendered
// notifications to them over Redis pub/sub. The realtime gateway process
// subscribes to `notify:<account_id>` and `unread:<account_id>`; presence is
// kept both in a local concurrency-safe map and as a TTL key in Redis so any
// instance can answer "is this account connected".
type RealtimeHub struct {
	sessions sync.Map
	redis    *redis.Client
	logger   *zap.Logger
}

// NewRealtimeHub constructs the hub.
func NewRealtimeHub(client *redis.Client, logger *zap.Logger) *RealtimeHub {
	return &RealtimeHub{redis: client, logger: logger}
}

// Connect registers a live session for the account.
func (h *RealtimeHub) Connect(ctx context.Context, accountID string) {
	h.sessions.Store(accountID, struct{}{})
	if h.redis != nil {
		if err := h.redis.Set(ctx, presenceKey(accountID), "1", presenceTTL).Err(); err != nil {
			h.logger.Warn("presence write failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}
}

// Heartbeat extends the presence TTL for a connected account.
func (h *RealtimeHub) Heartbeat(ctx context.Context, accountID string) {
	if _, ok := h.sessions.Load(accountID); !ok {
		return
	}
	if h.redis != nil {
		_ = h.redis.Expire(ctx, presenceKey(accountID), presenceTTL).Err()
	}
}

// Disconnect removes the session.
func (h *RealtimeHub) Disconnect(ctx context.Context, accountID string) {
	h.sessions.Delete(accountID)
	if h.redis != nil {
		_ = h.redis.Del(ctx, presenceKey(accountID)).Err()
	}
}

// IsConnected reports whether the account has a live session on any instance.
func (h *RealtimeHub) IsConnected(ctx context.Context, accountID string) bool {
	if _, ok := h.sessions.Load(accountID); ok {
		return true
	}
	if h.redis == nil {
		return false
	}
	exists, err := h.redis.Exists(ctx, presenceKey(accountID)).Result()
	if err != nil {
		h.logger.Warn("presence read failed", zap.String("account_id", accountID), zap.Error(err))
		return false
	}
	return exists > 0
}

// PushNotification publishes the rendered notification to the account's channel.
func (h *RealtimeHub) PushNotification(ctx context.Context, notification *domain.Notification) error {
	if h.redis == nil {
		return nil
	}
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, "notify:"+notification.AccountID, payload).Err()
}

// PushUnreadCount publishes the account's current unread total.
func (h *RealtimeHub) PushUnreadCount(ctx context.Context, accountID string, count int64) error {
	if h.redis == nil {
		return nil
	}
	return h.redis.Publish(ctx, "unread:"+accountID, strconv.FormatInt(count, 10)).Err()
}

func presenceKey(accountID string) string {
	return "presence:" + accountID
}
