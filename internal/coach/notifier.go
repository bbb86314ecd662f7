package coach

import (
	"context"

	"gymstudio.app/internal/ids"
	"gymstudio.app/internal/obs"
)

// Publisher pushes a notification to live subscribers.
type Publisher interface {
	Publish(n Notification)
}

// Notifier persists in-app notifications and publishes them. Errors are logged only.
type Notifier struct {
	store Store
	pub   Publisher
}

func NewNotifier(store Store, pub Publisher) *Notifier {
	return &Notifier{store: store, pub: pub}
}

func (n *Notifier) Notify(ctx context.Context, note Notification) {
	if note.ID == "" {
		note.ID = ids.New()
	}
	if err := n.store.InsertNotification(ctx, note); err != nil {
		obs.Warn(ctx, "notification insert failed", map[string]any{"user_id": note.UserID, "type": note.Type, "error": err.Error()})
		return
	}
	if n.pub != nil {
		n.pub.Publish(note)
	}
}

// Notifications lists a user's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit)
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return s.store.MarkNotificationRead(ctx, userID, id)
}
