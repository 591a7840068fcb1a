package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"glucoheart/internal/app"
	"glucoheart/internal/event"
	"glucoheart/internal/pkg/jwtutil"
	"glucoheart/internal/transport/http/response"
)

const (
	NamespaceChat       = event.NamespaceChat
	NamespaceDiscussion = "discussion"

	frameTimeout = 10 * time.Second
)

type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	PongWait        time.Duration
	AllowedOrigins  []string
}

type Gateway struct {
	hub        *Hub
	chat       *app.ChatService
	discussion *app.DiscussionService
	secret     string
	opts       Options
	upgrader   websocket.Upgrader
}

type sessionRequest struct {
	SessionID uint   `json:"session_id"`
	Content   string `json:"content"`
}

type roomRequest struct {
	RoomID  uint   `json:"room_id"`
	Content string `json:"content"`
}

func NewGateway(hub *Hub, chat *app.ChatService, discussion *app.DiscussionService, secret string, opts Options) *Gateway {
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	g := &Gateway{
		hub:        hub,
		chat:       chat,
		discussion: discussion,
		secret:     secret,
		opts:       opts,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) ServeChat(c *gin.Context) {
	g.serve(c, NamespaceChat, g.dispatchChat)
}

func (g *Gateway) ServeDiscussion(c *gin.Context) {
	g.serve(c, NamespaceDiscussion, g.dispatchDiscussion)
}

func (g *Gateway) serve(c *gin.Context, namespace string, dispatch func(context.Context, *Client, InboundFrame)) {
	claims, err := jwtutil.ParseToken(g.secret, jwtutil.ExtractToken(c.Request))
	if err != nil {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
		c.Abort()
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "namespace", namespace, "error", err)
		return
	}

	// The request context ends when this handler returns; the pumps outlive it.
	ctx := context.WithoutCancel(c.Request.Context())

	client := newClient(g.hub, conn, claims.UserID, namespace, g.opts.SendBuffer)
	g.hub.register(client)
	g.hub.Subscribe(client, event.UserTopic(claims.UserID))
	if namespace == NamespaceChat {
		ids, err := g.chat.SessionIDsFor(ctx, claims.UserID)
		if err != nil {
			slog.Error("load chat sessions for socket failed", "user_id", claims.UserID, "error", err)
		}
		for _, id := range ids {
			g.hub.Subscribe(client, event.SessionTopic(id))
		}
	}

	slog.Info("websocket connected", "namespace", namespace, "conn_id", client.id, "user_id", claims.UserID)

	go client.writePump(g.opts.PongWait * 9 / 10)
	go client.readPump(ctx, g.opts.MaxMessageBytes, g.opts.PongWait, dispatch)
}

func (g *Gateway) dispatchChat(ctx context.Context, c *Client, frame InboundFrame) {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	switch frame.Event {
	case "ping":
		c.reply(frame.Ref, pong())
	case "session.join":
		var req sessionRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.SessionID) {
			return
		}
		session, err := g.chat.GetSession(ctx, c.userID, req.SessionID)
		if err != nil {
			c.reply(frame.Ref, failure(err))
			return
		}
		g.hub.Subscribe(c, event.SessionTopic(session.ID))
		c.reply(frame.Ref, Ack{OK: true, Data: session})
	case "session.leave":
		var req sessionRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.SessionID) {
			return
		}
		g.hub.Unsubscribe(c, event.SessionTopic(req.SessionID))
		c.reply(frame.Ref, Ack{OK: true})
	case "message.send":
		var req sessionRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.SessionID) {
			return
		}
		msg, err := g.chat.SendMessage(ctx, app.SendMessageInput{
			ActorID:   c.userID,
			SessionID: req.SessionID,
			Content:   req.Content,
		})
		if err != nil {
			c.reply(frame.Ref, failure(err))
			return
		}
		g.hub.Subscribe(c, event.SessionTopic(req.SessionID))
		c.reply(frame.Ref, Ack{OK: true, Data: msg})
	default:
		c.reply(frame.Ref, Ack{OK: false, Error: "unknown event " + frame.Event})
	}
}

func (g *Gateway) dispatchDiscussion(ctx context.Context, c *Client, frame InboundFrame) {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	switch frame.Event {
	case "ping":
		c.reply(frame.Ref, pong())
	case "room.join":
		var req roomRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.RoomID) {
			return
		}
		participant, err := g.discussion.JoinRoom(ctx, c.userID, req.RoomID)
		if err != nil {
			c.reply(frame.Ref, failure(err))
			return
		}
		g.hub.Subscribe(c, event.RoomTopic(req.RoomID))
		c.reply(frame.Ref, Ack{OK: true, Data: participant})
	case "room.subscribe":
		var req roomRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.RoomID) {
			return
		}
		room, err := g.discussion.GetRoom(ctx, c.userID, req.RoomID)
		if err != nil {
			c.reply(frame.Ref, failure(err))
			return
		}
		g.hub.Subscribe(c, event.RoomTopic(room.ID))
		c.reply(frame.Ref, Ack{OK: true, Data: room})
	case "room.leave":
		var req roomRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.RoomID) {
			return
		}
		g.hub.Unsubscribe(c, event.RoomTopic(req.RoomID))
		c.reply(frame.Ref, Ack{OK: true})
	case "discussion.message.send":
		var req roomRequest
		if !decode(c, frame, &req) || !requireID(c, frame, req.RoomID) {
			return
		}
		result, err := g.discussion.PostMessage(ctx, app.PostMessageInput{
			ActorID: c.userID,
			RoomID:  req.RoomID,
			Content: req.Content,
		})
		if err != nil {
			c.reply(frame.Ref, failure(err))
			return
		}
		g.hub.Subscribe(c, event.RoomTopic(req.RoomID))
		c.reply(frame.Ref, Ack{OK: true, Data: result})
	default:
		c.reply(frame.Ref, Ack{OK: false, Error: "unknown event " + frame.Event})
	}
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range g.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func decode(c *Client, frame InboundFrame, dst any) bool {
	if len(frame.Data) == 0 {
		c.reply(frame.Ref, Ack{OK: false, Error: "missing data"})
		return false
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		c.reply(frame.Ref, Ack{OK: false, Error: "invalid data"})
		return false
	}
	return true
}

func requireID(c *Client, frame InboundFrame, id uint) bool {
	if id == 0 {
		c.reply(frame.Ref, Ack{OK: false, Error: app.ErrInvalidInput.Error()})
		return false
	}
	return true
}

func pong() Ack {
	return Ack{OK: true, Data: map[string]int64{"ts": time.Now().UnixMilli()}}
}

var exposedErrors = []error{
	app.ErrInvalidInput,
	app.ErrUnknownActor,
	app.ErrForbidden,
	app.ErrUserNotFound,
	app.ErrSessionNotFound,
	app.ErrRoomNotFound,
	app.ErrNotParticipant,
	app.ErrNotMember,
	app.ErrInvalidTarget,
	app.ErrInvalidNurse,
	app.ErrMessageEmpty,
	app.ErrMessageTooLong,
	app.ErrRateLimited,
}

func failure(err error) Ack {
	for _, known := range exposedErrors {
		if errors.Is(err, known) {
			return Ack{OK: false, Error: known.Error()}
		}
	}
	slog.Error("websocket handler failed", "error", err)
	return Ack{OK: false, Error: "internal error"}
}
