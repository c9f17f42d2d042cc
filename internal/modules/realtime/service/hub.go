package realtime

import (
	"log"
	"sync"
)

// Hub tracks who is watching each topic. Anonymous connections count as
// viewers; only authenticated ones enter the active-user set.
type Hub struct {
	publisher Publisher

	mu      sync.Mutex
	viewers map[string]int
	users   map[string]map[uint]int
}

func NewHub(publisher Publisher) *Hub {
	return &Hub{
		publisher: publisher,
		viewers:   make(map[string]int),
		users:     make(map[string]map[uint]int),
	}
}

type ActiveUsersPayload struct {
	PostID      uint `json:"post_id"`
	ActiveUsers int  `json:"active_users"`
	Viewers     int  `json:"viewers"`
}

// Join registers a connection on postID's topic and broadcasts the new
// active-user count when userID is set.
func (h *Hub) Join(postID uint, userID *uint) {
	name := TopicForPost(postID)

	h.mu.Lock()
	h.viewers[name]++
	if userID != nil {
		set, ok := h.users[name]
		if !ok {
			set = make(map[uint]int)
			h.users[name] = set
		}
		set[*userID]++
	}
	payload := h.snapshot(postID, name)
	h.mu.Unlock()

	if userID != nil {
		h.broadcast(name, payload)
	}
}

// Leave reverses Join. A user with several open connections stays active
// until the last one leaves.
func (h *Hub) Leave(postID uint, userID *uint) {
	name := TopicForPost(postID)

	h.mu.Lock()
	if h.viewers[name] > 1 {
		h.viewers[name]--
	} else {
		delete(h.viewers, name)
	}
	if userID != nil {
		if set, ok := h.users[name]; ok {
			if set[*userID] > 1 {
				set[*userID]--
			} else {
				delete(set, *userID)
			}
			if len(set) == 0 {
				delete(h.users, name)
			}
		}
	}
	payload := h.snapshot(postID, name)
	h.mu.Unlock()

	if userID != nil {
		h.broadcast(name, payload)
	}
}

// snapshot must be called with h.mu held.
func (h *Hub) snapshot(postID uint, name string) ActiveUsersPayload {
	return ActiveUsersPayload{
		PostID:      postID,
		ActiveUsers: len(h.users[name]),
		Viewers:     h.viewers[name],
	}
}

func (h *Hub) broadcast(name string, payload ActiveUsersPayload) {
	if err := h.publisher.Publish(name, NewEvent(EventActiveUsers, payload)); err != nil && err != ErrBrokerClosed {
		log.Printf("⚠️ [hub] failed to publish active users for %s: %v", name, err)
	}
}

func (h *Hub) ActiveUsers(postID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users[TopicForPost(postID)])
}

func (h *Hub) Viewers(postID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewers[TopicForPost(postID)]
}
