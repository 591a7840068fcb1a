package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucoheart/internal/app"
	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/repository"
	"glucoheart/internal/testutil"
)

const testSecret = "ws-test-secret"

type wsEnv struct {
	server     *httptest.Server
	hub        *Hub
	chat       *app.ChatService
	discussion *app.DiscussionService
	patient    *model.User
	support    *model.User
	nurse      *model.User
	backup     *model.User
}

type rawFrame struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
}

type ackData struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t)
	store := repository.NewStore(db)
	hub := NewHub()
	chat := app.NewChatService(store, hub, nil, nil, app.MessagePolicy{})
	discussion := app.NewDiscussionService(store, hub, nil, nil, app.MessagePolicy{})
	gateway := NewGateway(hub, chat, discussion, testSecret, Options{SendBuffer: 16, PongWait: 5 * time.Second})

	router := gin.New()
	router.GET("/ws/chat", gateway.ServeChat)
	router.GET("/ws/discussion", gateway.ServeDiscussion)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})

	return &wsEnv{
		server:     server,
		hub:        hub,
		chat:       chat,
		discussion: discussion,
		patient:    testutil.SeedUser(t, db, "patient", model.RoleUser),
		support:    testutil.SeedUser(t, db, "support", model.RoleSupport),
		nurse:      testutil.SeedUser(t, db, "nurse", model.RoleNurse),
		backup:     testutil.SeedUser(t, db, "backup", model.RoleNurse),
	}
}

func (e *wsEnv) dial(t *testing.T, path string, user *model.User) *websocket.Conn {
	t.Helper()
	token := testutil.IssueToken(t, testSecret, time.Minute, user.ID, user.Username, user.Role)

	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + path + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	// The ack proves the server finished subscribing the socket.
	ack := request(t, conn, "ping", nil, "hello")
	require.True(t, ack.OK)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, name string, data any, ref string) {
	t.Helper()
	frame := map[string]any{"event": name, "ref": ref}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func request(t *testing.T, conn *websocket.Conn, name string, data any, ref string) ackData {
	t.Helper()
	send(t, conn, name, data, ref)
	frame := waitFor(t, conn, func(f rawFrame) bool { return f.Event == "ack" && f.Ref == ref })
	var ack ackData
	require.NoError(t, json.Unmarshal(frame.Data, &ack))
	return ack
}

func waitFor(t *testing.T, conn *websocket.Conn, match func(rawFrame) bool) rawFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var frame rawFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

// expectSilence fails if a frame named name arrives before d elapses. The
// connection is unusable for reads afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, name string, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	for {
		var frame rawFrame
		err := conn.ReadJSON(&frame)
		if err != nil {
			var netErr net.Error
			require.True(t, errors.As(err, &netErr) && netErr.Timeout(), "read failed: %v", err)
			return
		}
		require.NotEqual(t, name, frame.Event, "unexpected frame %s", frame.Data)
	}
}

func TestServeRejectsMissingToken(t *testing.T) {
	env := newWSEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMessageSendReachesCounterpart(t *testing.T) {
	env := newWSEnv(t)
	ctx := context.Background()

	opened, err := env.chat.OpenSession(ctx, app.OpenSessionInput{ActorID: env.patient.ID, TargetUserID: env.support.ID})
	require.NoError(t, err)
	sessionID := opened.Session.ID

	patientConn := env.dial(t, "/ws/chat", env.patient)
	supportConn := env.dial(t, "/ws/chat", env.support)
	assert.Equal(t, 1, env.hub.SubscriberCount(event.UserTopic(env.support.ID)))
	assert.Equal(t, 2, env.hub.SubscriberCount(event.SessionTopic(sessionID)))

	ack := request(t, patientConn, "message.send", map[string]any{"session_id": sessionID, "content": "  my reading is 9.1  "}, "m1")
	require.True(t, ack.OK, ack.Error)
	var sent model.Message
	require.NoError(t, json.Unmarshal(ack.Data, &sent))
	assert.Equal(t, "my reading is 9.1", sent.Content)

	frame := waitFor(t, supportConn, func(f rawFrame) bool { return f.Event == event.NameMessageNew })
	var payload app.MessageNewPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, sessionID, payload.SessionID)
	assert.Equal(t, sent.ID, payload.Message.ID)
}

func TestBusinessErrorsKeepConnectionOpen(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "/ws/chat", env.patient)

	ack := request(t, conn, "message.send", map[string]any{"session_id": 999, "content": "hi"}, "bad")
	assert.False(t, ack.OK)
	assert.Equal(t, app.ErrSessionNotFound.Error(), ack.Error)

	ack = request(t, conn, "session.join", map[string]any{}, "zero")
	assert.False(t, ack.OK)

	ack = request(t, conn, "does.not.exist", nil, "unknown")
	assert.False(t, ack.OK)

	ack = request(t, conn, "ping", nil, "still-here")
	assert.True(t, ack.OK)
}

func TestNurseAssignmentReachesNurse(t *testing.T) {
	env := newWSEnv(t)
	ctx := context.Background()

	opened, err := env.chat.OpenSession(ctx, app.OpenSessionInput{ActorID: env.patient.ID, TargetUserID: env.support.ID})
	require.NoError(t, err)

	nurseConn := env.dial(t, "/ws/chat", env.nurse)

	_, err = env.chat.AssignNurse(ctx, app.AssignNurseInput{
		ActorID:   env.support.ID,
		SessionID: opened.Session.ID,
		NurseID:   env.nurse.ID,
	})
	require.NoError(t, err)

	frame := waitFor(t, nurseConn, func(f rawFrame) bool { return f.Event == event.NameSessionNurseAssigned })
	var payload app.NurseAssignedPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, env.nurse.ID, payload.NurseID)
	assert.Equal(t, opened.Session.ID, payload.SessionID)

	ack := request(t, nurseConn, "session.join", map[string]any{"session_id": opened.Session.ID}, "join")
	assert.True(t, ack.OK, ack.Error)
}

func TestDiscussionRoomFlow(t *testing.T) {
	env := newWSEnv(t)
	ctx := context.Background()

	public, err := env.discussion.CreateRoom(ctx, app.CreateRoomInput{ActorID: env.support.ID, Topic: "Insulin tips", IsPublic: true})
	require.NoError(t, err)
	private, err := env.discussion.CreateRoom(ctx, app.CreateRoomInput{ActorID: env.support.ID, Topic: "Staff only"})
	require.NoError(t, err)

	patientConn := env.dial(t, "/ws/discussion", env.patient)
	supportConn := env.dial(t, "/ws/discussion", env.support)

	ack := request(t, patientConn, "room.subscribe", map[string]any{"room_id": private.ID}, "p1")
	assert.False(t, ack.OK)
	assert.Equal(t, app.ErrForbidden.Error(), ack.Error)

	ack = request(t, supportConn, "room.subscribe", map[string]any{"room_id": public.ID}, "s1")
	require.True(t, ack.OK, ack.Error)

	ack = request(t, patientConn, "discussion.message.send", map[string]any{"room_id": public.ID, "content": "hello all"}, "p2")
	require.True(t, ack.OK, ack.Error)
	var result app.PostMessageResult
	require.NoError(t, json.Unmarshal(ack.Data, &result))
	assert.True(t, result.Joined)

	frame := waitFor(t, supportConn, func(f rawFrame) bool { return f.Event == event.NameDiscussionMessageNew })
	var payload app.DiscussionMessagePayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, public.ID, payload.RoomID)
	assert.Equal(t, "hello all", payload.Message.Content)

	ack = request(t, supportConn, "room.leave", map[string]any{"room_id": public.ID}, "s2")
	require.True(t, ack.OK)
	assert.Equal(t, 1, env.hub.SubscriberCount(event.RoomTopic(public.ID)))
}

func TestReplacedNurseStopsReceivingSession(t *testing.T) {
	env := newWSEnv(t)
	ctx := context.Background()

	opened, err := env.chat.OpenSession(ctx, app.OpenSessionInput{ActorID: env.patient.ID, TargetUserID: env.support.ID})
	require.NoError(t, err)
	sessionID := opened.Session.ID
	_, err = env.chat.AssignNurse(ctx, app.AssignNurseInput{ActorID: env.support.ID, SessionID: sessionID, NurseID: env.nurse.ID})
	require.NoError(t, err)

	patientConn := env.dial(t, "/ws/chat", env.patient)
	nurseConn := env.dial(t, "/ws/chat", env.nurse)
	backupConn := env.dial(t, "/ws/chat", env.backup)
	require.Equal(t, 2, env.hub.SubscriberCount(event.SessionTopic(sessionID)))

	_, err = env.chat.AssignNurse(ctx, app.AssignNurseInput{ActorID: env.support.ID, SessionID: sessionID, NurseID: env.backup.ID})
	require.NoError(t, err)

	frame := waitFor(t, nurseConn, func(f rawFrame) bool { return f.Event == event.NameSessionNurseRemoved })
	var removed app.NurseRemovedPayload
	require.NoError(t, json.Unmarshal(frame.Data, &removed))
	assert.Equal(t, sessionID, removed.SessionID)
	assert.Equal(t, env.backup.ID, removed.ReplacedBy)
	waitFor(t, backupConn, func(f rawFrame) bool { return f.Event == event.NameSessionNurseAssigned })

	ack := request(t, patientConn, "message.send", map[string]any{"session_id": sessionID, "content": "new reading"}, "m1")
	require.True(t, ack.OK, ack.Error)

	waitFor(t, backupConn, func(f rawFrame) bool { return f.Event == event.NameMessageNew })
	expectSilence(t, nurseConn, event.NameMessageNew, 300*time.Millisecond)
}

func TestLeavingPrivateRoomStopsRoomFrames(t *testing.T) {
	cases := map[string]func(env *wsEnv, roomID uint) error{
		"leave": func(env *wsEnv, roomID uint) error {
			return env.discussion.LeaveRoom(context.Background(), env.patient.ID, roomID)
		},
		"removed by staff": func(env *wsEnv, roomID uint) error {
			return env.discussion.RemoveParticipant(context.Background(), app.RemoveParticipantInput{
				ActorID: env.support.ID,
				RoomID:  roomID,
				UserID:  env.patient.ID,
			})
		},
	}
	for name, remove := range cases {
		t.Run(name, func(t *testing.T) {
			env := newWSEnv(t)
			ctx := context.Background()

			room, err := env.discussion.CreateRoom(ctx, app.CreateRoomInput{ActorID: env.support.ID, Topic: "Pump users"})
			require.NoError(t, err)
			_, err = env.discussion.AddParticipant(ctx, app.AddParticipantInput{ActorID: env.support.ID, RoomID: room.ID, UserID: env.patient.ID})
			require.NoError(t, err)

			patientConn := env.dial(t, "/ws/discussion", env.patient)
			supportConn := env.dial(t, "/ws/discussion", env.support)
			ack := request(t, patientConn, "room.subscribe", map[string]any{"room_id": room.ID}, "p1")
			require.True(t, ack.OK, ack.Error)
			ack = request(t, supportConn, "room.subscribe", map[string]any{"room_id": room.ID}, "s1")
			require.True(t, ack.OK, ack.Error)

			require.NoError(t, remove(env, room.ID))
			frame := waitFor(t, patientConn, func(f rawFrame) bool { return f.Event == event.NameRoomLeft })
			var left app.RoomLeftPayload
			require.NoError(t, json.Unmarshal(frame.Data, &left))
			assert.Equal(t, room.ID, left.RoomID)
			assert.Equal(t, 1, env.hub.SubscriberCount(event.RoomTopic(room.ID)))

			ack = request(t, supportConn, "discussion.message.send", map[string]any{"room_id": room.ID, "content": "staff only now"}, "s2")
			require.True(t, ack.OK, ack.Error)
			waitFor(t, supportConn, func(f rawFrame) bool { return f.Event == event.NameDiscussionMessageNew })
			expectSilence(t, patientConn, event.NameDiscussionMessageNew, 300*time.Millisecond)
		})
	}
}

func TestNewSessionSubscribesConnectedCounterpart(t *testing.T) {
	env := newWSEnv(t)
	supportConn := env.dial(t, "/ws/chat", env.support)
	patientConn := env.dial(t, "/ws/chat", env.patient)

	opened, err := env.chat.OpenSession(context.Background(), app.OpenSessionInput{ActorID: env.patient.ID, TargetUserID: env.support.ID})
	require.NoError(t, err)
	sessionID := opened.Session.ID

	frame := waitFor(t, supportConn, func(f rawFrame) bool { return f.Event == event.NameSessionCreated })
	var created app.SessionCreatedPayload
	require.NoError(t, json.Unmarshal(frame.Data, &created))
	assert.Equal(t, sessionID, created.Session.ID)
	assert.Equal(t, env.patient.ID, created.CreatedBy)

	ack := request(t, patientConn, "message.send", map[string]any{"session_id": sessionID, "content": "first message"}, "m1")
	require.True(t, ack.OK, ack.Error)

	frame = waitFor(t, supportConn, func(f rawFrame) bool { return f.Event == event.NameMessageNew })
	var payload app.MessageNewPayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, sessionID, payload.SessionID)
}
