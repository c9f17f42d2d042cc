package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"anoa.com/threadline/internal/middleware"
	commentDto "anoa.com/threadline/internal/modules/comment/dto"
	comment "anoa.com/threadline/internal/modules/comment/service"
	postRepo "anoa.com/threadline/internal/modules/post/repository"
	realtimeDto "anoa.com/threadline/internal/modules/realtime/dto"
	realtime "anoa.com/threadline/internal/modules/realtime/service"
	userService "anoa.com/threadline/internal/modules/user/service"
	"anoa.com/threadline/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const directQueueSize = 16

type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessage     int64
	AllowedOrigins []string
}

func (o *Options) defaults() {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessage <= 0 {
		o.MaxMessage = 16 * 1024
	}
}

type WebSocketHandler struct {
	broker    *realtime.Broker
	publisher realtime.Publisher
	hub       *realtime.Hub
	posts     postRepo.PostRepository
	comments  comment.CommentService
	display   userService.DisplayService
	auth      middleware.Authenticator
	opts      Options
	upgrader  websocket.Upgrader
}

// NewWebSocketHandler builds the post channel endpoint. Subscriptions come
// from broker; outbound broadcasts go through publisher, which may be a
// relay wrapping the same broker.
func NewWebSocketHandler(
	broker *realtime.Broker,
	publisher realtime.Publisher,
	hub *realtime.Hub,
	posts postRepo.PostRepository,
	comments comment.CommentService,
	display userService.DisplayService,
	auth middleware.Authenticator,
	opts Options,
) *WebSocketHandler {
	opts.defaults()
	h := &WebSocketHandler{
		broker:    broker,
		publisher: publisher,
		hub:       hub,
		posts:     posts,
		comments:  comments,
		display:   display,
		auth:      auth,
		opts:      opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

type client struct {
	id     string
	conn   *websocket.Conn
	sub    *realtime.Subscription
	postID uint
	token  string
	userID *uint
	direct chan []byte
	quit   chan struct{}
}

// ServePost upgrades GET /api/ws/posts/:post_id. The post must exist; a
// valid token is optional and only unlocks mutating messages.
func (h *WebSocketHandler) ServePost(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("post_id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post_id"})
		return
	}
	postID := uint(id)

	exists, err := h.posts.Exists(c.Request.Context(), postID)
	if err != nil {
		log.Printf("[Internal Error]: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": apperror.ErrInternal.Error()})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": apperror.ErrPostNotFound.Error()})
		return
	}

	token := middleware.ExtractToken(c)
	var userID *uint
	if token != "" {
		if uid, err := h.auth.Authenticate(token); err == nil {
			userID = &uid
		} else {
			log.Printf("⚠️ [ws] rejected token on post %d, continuing anonymously: %v", postID, err)
		}
	}

	// Subscribing before the upgrade means nothing published after the
	// handshake completes can be missed.
	sub, err := h.broker.Subscribe(realtime.TopicForPost(postID))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.broker.Unsubscribe(sub)
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	cl := &client{
		id:     uuid.NewString(),
		conn:   conn,
		sub:    sub,
		postID: postID,
		token:  token,
		userID: userID,
		direct: make(chan []byte, directQueueSize),
		quit:   make(chan struct{}),
	}

	h.hub.Join(postID, userID)
	log.Printf("🔌 [ws] %s joined post %d (authenticated=%t)", cl.id, postID, userID != nil)

	defer func() {
		close(cl.quit)
		h.broker.Unsubscribe(sub)
		h.hub.Leave(postID, userID)
		_ = conn.Close()
		log.Printf("👋 [ws] %s left post %d", cl.id, postID)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.writePump(cl)
	h.readPump(ctx, cl)
}

func (h *WebSocketHandler) writePump(cl *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		// Unblocks the read pump if the writer quits first.
		_ = cl.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
		return cl.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg := <-cl.sub.Messages():
			if err := write(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case data := <-cl.direct:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-cl.sub.Done():
			code, reason := websocket.CloseGoingAway, "server shutting down"
			if errors.Is(cl.sub.Err(), realtime.ErrSlowSubscriber) {
				code, reason = websocket.ClosePolicyViolation, "slow consumer"
			}
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.quit:
			return
		}
	}
}

func (h *WebSocketHandler) readPump(ctx context.Context, cl *client) {
	cl.conn.SetReadLimit(h.opts.MaxMessage)
	_ = cl.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("⚠️ [ws] %s read error: %v", cl.id, err)
			}
			return
		}
		_ = cl.conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		h.dispatch(ctx, cl, data)
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, cl *client, data []byte) {
	var msg realtimeDto.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(cl, apperror.Invalid("malformed message"))
		return
	}

	switch realtime.EventType(msg.Type) {
	case realtime.EventPing:
		h.send(cl, realtime.NewEvent(realtime.EventPong, nil))
	case realtime.EventTyping:
		h.handleTyping(ctx, cl, msg)
	case realtime.EventNewComment:
		h.handleNewComment(ctx, cl, msg)
	default:
		// Unknown types are ignored so older servers tolerate newer clients.
	}
}

func (h *WebSocketHandler) handleTyping(ctx context.Context, cl *client, msg realtimeDto.InboundMessage) {
	if cl.userID == nil {
		return
	}
	isTyping := true
	if msg.IsTyping != nil {
		isTyping = *msg.IsTyping
	}
	info := h.display.GetDisplayInfo(ctx, *cl.userID)
	ev := realtime.NewEvent(realtime.EventTyping, realtimeDto.TypingPayload{
		PostID:   cl.postID,
		UserID:   *cl.userID,
		Username: info.Username,
		IsTyping: isTyping,
	})
	if err := h.publisher.Publish(realtime.TopicForPost(cl.postID), ev); err != nil {
		log.Printf("⚠️ [ws] failed to publish typing on post %d: %v", cl.postID, err)
	}
}

// handleNewComment authenticates every message, since a handshake token may
// expire while the socket stays open. The created comment reaches the
// sender through the broadcast, like every other subscriber.
func (h *WebSocketHandler) handleNewComment(ctx context.Context, cl *client, msg realtimeDto.InboundMessage) {
	token := cl.token
	if msg.Token != "" {
		token = msg.Token
	}
	if cl.userID == nil && msg.Token == "" {
		return
	}

	userID, err := h.auth.Authenticate(token)
	if err != nil {
		h.sendError(cl, err)
		return
	}

	_, err = h.comments.CreateComment(ctx, userID, cl.postID, commentDto.CreateCommentRequest{
		Content:  msg.Content,
		ParentID: msg.ParentID,
	})
	if err != nil {
		h.sendError(cl, err)
	}
}

func (h *WebSocketHandler) sendError(cl *client, err error) {
	kind := apperror.Kind(err)
	message := err.Error()
	if kind == "internal" {
		log.Printf("[Internal Error]: %v", err)
		message = apperror.ErrInternal.Error()
	}
	h.send(cl, realtime.NewEvent(realtime.EventError, realtimeDto.ErrorPayload{Code: kind, Message: message}))
}

// send queues a frame for this connection only.
func (h *WebSocketHandler) send(cl *client, ev realtime.Event) {
	msg, err := realtime.Encode("", ev, time.Now())
	if err != nil {
		log.Printf("⚠️ [ws] %s: %v", cl.id, err)
		return
	}
	select {
	case cl.direct <- msg.Payload:
	case <-cl.quit:
	default:
		log.Printf("⚠️ [ws] %s direct queue full, dropping %s", cl.id, ev.Type)
	}
}
