package app

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"

	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/repository"
)

type DiscussionService struct {
	store        *repository.Store
	publisher    event.Publisher
	historyCache HistoryCache[model.DiscussionMessage]
	limiter      SendLimiter
	policy       MessagePolicy
	now          func() time.Time
}

type CreateRoomInput struct {
	ActorID     uint
	Topic       string
	Description string
	IsPublic    bool
	Tags        []string
}

type PostMessageInput struct {
	ActorID uint
	RoomID  uint
	Content string
}

type AddParticipantInput struct {
	ActorID uint
	RoomID  uint
	UserID  uint
}

type RemoveParticipantInput struct {
	ActorID uint
	RoomID  uint
	UserID  uint
}

// RoomLeftPayload carries RemovedBy = 0 when the user left on their own.
type RoomLeftPayload struct {
	RoomID    uint `json:"room_id"`
	UserID    uint `json:"user_id"`
	RemovedBy uint `json:"removed_by,omitempty"`
}

type DiscussionMessagePayload struct {
	RoomID  uint                     `json:"room_id"`
	Message *model.DiscussionMessage `json:"message"`
}

type PostMessageResult struct {
	Message *model.DiscussionMessage `json:"message"`
	Joined  bool                     `json:"joined"`
}

func NewDiscussionService(
	store *repository.Store,
	publisher event.Publisher,
	historyCache HistoryCache[model.DiscussionMessage],
	limiter SendLimiter,
	policy MessagePolicy,
) *DiscussionService {
	return &DiscussionService{
		store:        store,
		publisher:    publisher,
		historyCache: historyCache,
		limiter:      limiter,
		policy:       policy.withDefaults(),
		now:          time.Now,
	}
}

func (s *DiscussionService) CreateRoom(ctx context.Context, input CreateRoomInput) (*model.DiscussionRoom, error) {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}

	topic := strings.TrimSpace(input.Topic)
	if topic == "" || utf8.RuneCountInString(topic) > 128 {
		return nil, ErrInvalidInput
	}

	room := &model.DiscussionRoom{
		Topic:       topic,
		Description: strings.TrimSpace(input.Description),
		IsPublic:    input.IsPublic,
		CreatedBy:   actor.ID,
		Tags:        datatypes.JSONSlice[string](normalizeTags(input.Tags)),
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Rooms.Create(ctx, room); err != nil {
			return err
		}
		return tx.RoomParticipants.Ensure(ctx, &model.DiscussionParticipant{
			RoomID: room.ID,
			UserID: actor.ID,
			Role:   model.ParticipantRoleModerator,
		})
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *DiscussionService) ListRooms(ctx context.Context, actorID uint) ([]model.DiscussionRoom, error) {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	if actor.IsStaff() {
		return s.store.Rooms.ListAll(ctx)
	}
	return s.store.Rooms.ListVisibleTo(ctx, actor.ID)
}

func (s *DiscussionService) GetRoom(ctx context.Context, actorID, roomID uint) (*model.DiscussionRoom, error) {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, room); err != nil {
		return nil, err
	}
	return room, nil
}

// JoinRoom is idempotent. Private rooms only admit staff; other users must be
// added by staff.
func (s *DiscussionService) JoinRoom(ctx context.Context, actorID, roomID uint) (*model.DiscussionParticipant, error) {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsPublic && !actor.IsStaff() {
		existing, err := s.store.RoomParticipants.Get(ctx, room.ID, actor.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrForbidden
		}
		return existing, nil
	}
	return s.ensureMember(ctx, s.store, room.ID, actor.ID)
}

func (s *DiscussionService) LeaveRoom(ctx context.Context, actorID, roomID uint) error {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return err
	}
	room, err := s.loadRoom(ctx, roomID)
	if err != nil {
		return err
	}
	return s.removeMember(ctx, room, actor, 0)
}

// RemoveParticipant lets staff take a user out of a room.
func (s *DiscussionService) RemoveParticipant(ctx context.Context, input RemoveParticipantInput) error {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return err
	}
	if !actor.IsStaff() {
		return ErrForbidden
	}
	room, err := s.loadRoom(ctx, input.RoomID)
	if err != nil {
		return err
	}
	user, err := s.store.Users.GetByID(ctx, input.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return s.removeMember(ctx, room, user, actor.ID)
}

// removeMember deletes the row and tells the user's sockets. Sockets are only
// taken off the room topic when the user can no longer read the room.
func (s *DiscussionService) removeMember(ctx context.Context, room *model.DiscussionRoom, user *model.User, removedBy uint) error {
	removed, err := s.store.RoomParticipants.Delete(ctx, room.ID, user.ID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotMember
	}

	evt := event.Event{
		Name:    event.NameRoomLeft,
		Topics:  []string{event.UserTopic(user.ID)},
		Payload: RoomLeftPayload{RoomID: room.ID, UserID: user.ID, RemovedBy: removedBy},
	}
	if !room.IsPublic && !user.IsStaff() {
		evt.Membership = []event.Membership{event.Leave(user.ID, event.RoomTopic(room.ID))}
	}
	publish(ctx, s.publisher, evt)
	return nil
}

func (s *DiscussionService) AddParticipant(ctx context.Context, input AddParticipantInput) (*model.DiscussionParticipant, error) {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	room, err := s.loadRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return s.ensureMember(ctx, s.store, room.ID, user.ID)
}

func (s *DiscussionService) ListParticipants(ctx context.Context, actorID, roomID uint) ([]model.DiscussionParticipant, error) {
	if _, err := s.GetRoom(ctx, actorID, roomID); err != nil {
		return nil, err
	}
	return s.store.RoomParticipants.ListByRoomID(ctx, roomID)
}

// PostMessage auto-enrolls posters in public rooms.
func (s *DiscussionService) PostMessage(ctx context.Context, input PostMessageInput) (*PostMessageResult, error) {
	if input.ActorID == 0 || input.RoomID == 0 {
		return nil, ErrInvalidInput
	}
	content, err := s.policy.normalizeContent(input.Content)
	if err != nil {
		return nil, err
	}
	room, err := s.loadRoom(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	participant, err := s.store.RoomParticipants.Get(ctx, room.ID, input.ActorID)
	if err != nil {
		return nil, err
	}
	if participant == nil && !room.IsPublic {
		return nil, ErrForbidden
	}
	if err := checkRate(ctx, s.limiter, input.ActorID); err != nil {
		return nil, err
	}

	message := &model.DiscussionMessage{
		RoomID:    room.ID,
		SenderID:  input.ActorID,
		Content:   content,
		CreatedAt: s.now(),
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if participant == nil {
			if _, err := s.ensureMember(ctx, tx, room.ID, input.ActorID); err != nil {
				return err
			}
		}
		if err := tx.RoomMessages.Create(ctx, message); err != nil {
			return err
		}
		return tx.Rooms.UpdateLastMessage(ctx, room.ID, message.ID, message.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	invalidateHistory(ctx, s.historyCache, room.ID)
	publish(ctx, s.publisher, event.Event{
		Name:    event.NameDiscussionMessageNew,
		Topics:  []string{event.RoomTopic(room.ID)},
		Payload: DiscussionMessagePayload{RoomID: room.ID, Message: message},
	})
	return &PostMessageResult{Message: message, Joined: participant == nil}, nil
}

func (s *DiscussionService) ListMessages(ctx context.Context, input ListMessagesInput) ([]model.DiscussionMessage, error) {
	if _, err := s.GetRoom(ctx, input.ActorID, input.TargetID); err != nil {
		return nil, err
	}

	limit := s.policy.normalizeLimit(input.Limit)
	return readHistory(ctx, s.historyCache, input.TargetID, limit, input.BeforeID, s.policy.PageSize,
		func(limit int, beforeID uint) ([]model.DiscussionMessage, error) {
			return s.store.RoomMessages.ListByRoomID(ctx, input.TargetID, limit, beforeID)
		})
}

func (s *DiscussionService) ensureMember(ctx context.Context, store *repository.Store, roomID, userID uint) (*model.DiscussionParticipant, error) {
	if err := store.RoomParticipants.Ensure(ctx, &model.DiscussionParticipant{
		RoomID: roomID,
		UserID: userID,
		Role:   model.ParticipantRoleMember,
	}); err != nil {
		return nil, err
	}
	return store.RoomParticipants.Get(ctx, roomID, userID)
}

func (s *DiscussionService) loadRoom(ctx context.Context, roomID uint) (*model.DiscussionRoom, error) {
	if roomID == 0 {
		return nil, ErrInvalidInput
	}
	room, err := s.store.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (s *DiscussionService) authorizeRead(ctx context.Context, actor *model.User, room *model.DiscussionRoom) error {
	if room.IsPublic || actor.IsStaff() {
		return nil
	}
	participant, err := s.store.RoomParticipants.Get(ctx, room.ID, actor.ID)
	if err != nil {
		return err
	}
	if participant == nil {
		return ErrForbidden
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
