package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glucoheart/internal/event"
	"glucoheart/internal/model"
)

func (f *fixture) discussion() *DiscussionService {
	return NewDiscussionService(f.store, f.pub, nil, nil, MessagePolicy{})
}

func (f *fixture) room(t *testing.T, svc *DiscussionService, public bool) *model.DiscussionRoom {
	t.Helper()
	room, err := svc.CreateRoom(context.Background(), CreateRoomInput{
		ActorID:  f.support.ID,
		Topic:    "Living with type 1",
		IsPublic: public,
	})
	require.NoError(t, err)
	return room
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()

	_, err := svc.CreateRoom(ctx, CreateRoomInput{ActorID: f.patient.ID, Topic: "mine", IsPublic: true})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.CreateRoom(ctx, CreateRoomInput{ActorID: f.admin.ID, Topic: "   "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	room, err := svc.CreateRoom(ctx, CreateRoomInput{
		ActorID:     f.admin.ID,
		Topic:       " Insulin pumps ",
		Description: "tips and tricks",
		IsPublic:    false,
		Tags:        []string{"Pump", "pump", " CGM ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Insulin pumps", room.Topic)
	assert.False(t, room.IsPublic)
	assert.Equal(t, []string{"pump", "cgm"}, []string(room.Tags))

	stored, err := svc.GetRoom(ctx, f.admin.ID, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)
	assert.Equal(t, []string{"pump", "cgm"}, []string(stored.Tags))

	p, err := f.store.RoomParticipants.Get(ctx, room.ID, f.admin.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.ParticipantRoleModerator, p.Role)
}

func TestPostToPublicRoomAutoJoins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	room := f.room(t, svc, true)

	res, err := svc.PostMessage(ctx, PostMessageInput{ActorID: f.patient.ID, RoomID: room.ID, Content: "hi all"})
	require.NoError(t, err)
	assert.True(t, res.Joined)

	p, err := f.store.RoomParticipants.Get(ctx, room.ID, f.patient.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.ParticipantRoleMember, p.Role)

	res, err = svc.PostMessage(ctx, PostMessageInput{ActorID: f.patient.ID, RoomID: room.ID, Content: "again"})
	require.NoError(t, err)
	assert.False(t, res.Joined)

	stored, err := svc.GetRoom(ctx, f.other.ID, room.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, res.Message.ID, *stored.LastMessageID)

	events := f.pub.named(event.NameDiscussionMessageNew)
	require.Len(t, events, 2)
	assert.Equal(t, []string{event.RoomTopic(room.ID)}, events[0].Topics)
}

func TestPrivateRoomMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	room := f.room(t, svc, false)

	_, err := svc.PostMessage(ctx, PostMessageInput{ActorID: f.patient.ID, RoomID: room.ID, Content: "let me in"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.JoinRoom(ctx, f.patient.ID, room.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ListMessages(ctx, ListMessagesInput{ActorID: f.patient.ID, TargetID: room.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.other.ID, RoomID: room.ID, UserID: f.patient.ID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.support.ID, RoomID: room.ID, UserID: 31337})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.support.ID, RoomID: room.ID, UserID: f.patient.ID})
	require.NoError(t, err)

	joined, err := svc.JoinRoom(ctx, f.patient.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ParticipantRoleMember, joined.Role)

	res, err := svc.PostMessage(ctx, PostMessageInput{ActorID: f.patient.ID, RoomID: room.ID, Content: "thanks"})
	require.NoError(t, err)
	assert.False(t, res.Joined)

	msgs, err := svc.ListMessages(ctx, ListMessagesInput{ActorID: f.patient.ID, TargetID: room.ID})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "thanks", msgs[0].Content)

	participants, err := svc.ListParticipants(ctx, f.patient.ID, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
}

func TestJoinAndLeavePublicRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	room := f.room(t, svc, true)

	first, err := svc.JoinRoom(ctx, f.patient.ID, room.ID)
	require.NoError(t, err)
	second, err := svc.JoinRoom(ctx, f.patient.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, svc.LeaveRoom(ctx, f.patient.ID, room.ID))
	assert.ErrorIs(t, svc.LeaveRoom(ctx, f.patient.ID, room.ID), ErrNotMember)
	assert.ErrorIs(t, svc.LeaveRoom(ctx, f.patient.ID, 404), ErrRoomNotFound)

	_, err = svc.JoinRoom(ctx, f.patient.ID, 404)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestListRoomsVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	public := f.room(t, svc, true)
	private := f.room(t, svc, false)
	secret := f.room(t, svc, false)

	_, err := svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.support.ID, RoomID: private.ID, UserID: f.patient.ID})
	require.NoError(t, err)

	ids := func(rooms []model.DiscussionRoom) []uint {
		out := make([]uint, 0, len(rooms))
		for _, r := range rooms {
			out = append(out, r.ID)
		}
		return out
	}

	rooms, err := svc.ListRooms(ctx, f.patient.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{public.ID, private.ID}, ids(rooms))

	rooms, err = svc.ListRooms(ctx, f.other.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{public.ID}, ids(rooms))

	rooms, err = svc.ListRooms(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{public.ID, private.ID, secret.ID}, ids(rooms))
}

func TestLeavingPrivateRoomRevokesSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	public := f.room(t, svc, true)
	private := f.room(t, svc, false)

	_, err := svc.JoinRoom(ctx, f.patient.ID, public.ID)
	require.NoError(t, err)
	require.NoError(t, svc.LeaveRoom(ctx, f.patient.ID, public.ID))

	_, err = svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.support.ID, RoomID: private.ID, UserID: f.patient.ID})
	require.NoError(t, err)
	require.NoError(t, svc.LeaveRoom(ctx, f.patient.ID, private.ID))
	_, err = svc.GetRoom(ctx, f.patient.ID, private.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	left := f.pub.named(event.NameRoomLeft)
	require.Len(t, left, 2)
	assert.Empty(t, left[0].Membership, "public rooms stay readable")
	assert.Equal(t, []event.Membership{event.Leave(f.patient.ID, event.RoomTopic(private.ID))}, left[1].Membership)
	assert.Equal(t, RoomLeftPayload{RoomID: private.ID, UserID: f.patient.ID}, left[1].Payload)
}

func TestRemoveParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.discussion()
	private := f.room(t, svc, false)

	_, err := svc.AddParticipant(ctx, AddParticipantInput{ActorID: f.support.ID, RoomID: private.ID, UserID: f.patient.ID})
	require.NoError(t, err)

	input := RemoveParticipantInput{ActorID: f.other.ID, RoomID: private.ID, UserID: f.patient.ID}
	assert.ErrorIs(t, svc.RemoveParticipant(ctx, input), ErrForbidden)

	input.ActorID = f.admin.ID
	require.NoError(t, svc.RemoveParticipant(ctx, input))
	assert.ErrorIs(t, svc.RemoveParticipant(ctx, input), ErrNotMember)

	input.UserID = 999
	assert.ErrorIs(t, svc.RemoveParticipant(ctx, input), ErrUserNotFound)

	left := f.pub.named(event.NameRoomLeft)
	require.Len(t, left, 1)
	assert.Equal(t, RoomLeftPayload{RoomID: private.ID, UserID: f.patient.ID, RemovedBy: f.admin.ID}, left[0].Payload)
	assert.Equal(t, []event.Membership{event.Leave(f.patient.ID, event.RoomTopic(private.ID))}, left[0].Membership)
}
