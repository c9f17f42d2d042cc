package realtime

import (
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ActivityTracker remembers the last reply time per root comment and
// broadcasts comment_activity. State is ephemeral and bounded.
type ActivityTracker struct {
	publisher Publisher
	hub       *Hub
	now       func() time.Time

	mu   sync.Mutex
	last *lru.Cache[uint, time.Time]
}

type CommentActivityPayload struct {
	CommentID     uint      `json:"comment_id"`
	LastActivity  time.Time `json:"last_activity"`
	ActiveViewers int       `json:"active_viewers"`
}

func NewActivityTracker(publisher Publisher, hub *Hub, size int) *ActivityTracker {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[uint, time.Time](size)
	if err != nil {
		log.Fatalf("Failed to create activity cache: %v", err)
	}
	return &ActivityTracker{
		publisher: publisher,
		hub:       hub,
		now:       time.Now,
		last:      cache,
	}
}

// Touch records activity under rootCommentID and publishes it on the post topic.
func (a *ActivityTracker) Touch(postID, rootCommentID uint) CommentActivityPayload {
	now := a.now().UTC()

	a.mu.Lock()
	a.last.Add(rootCommentID, now)
	a.mu.Unlock()

	payload := CommentActivityPayload{
		CommentID:    rootCommentID,
		LastActivity: now,
	}
	if a.hub != nil {
		payload.ActiveViewers = a.hub.Viewers(postID)
	}

	if err := a.publisher.Publish(TopicForPost(postID), NewEvent(EventCommentActivity, payload)); err != nil && err != ErrBrokerClosed {
		log.Printf("⚠️ [activity] failed to publish activity for comment %d: %v", rootCommentID, err)
	}
	return payload
}

func (a *ActivityTracker) LastActivity(rootCommentID uint) (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last.Get(rootCommentID)
}
