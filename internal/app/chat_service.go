package app

import (
	"context"
	"strings"
	"time"

	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/repository"
)

type ChatService struct {
	store        *repository.Store
	publisher    event.Publisher
	historyCache HistoryCache[model.Message]
	limiter      SendLimiter
	policy       MessagePolicy
	now          func() time.Time
}

type OpenSessionInput struct {
	ActorID      uint
	TargetUserID uint
	TargetRole   string
}

type OpenSessionResult struct {
	Session *model.ChatSession `json:"session"`
	Created bool               `json:"created"`
}

type SendMessageInput struct {
	ActorID   uint
	SessionID uint
	Content   string
}

type ListMessagesInput struct {
	ActorID  uint
	TargetID uint
	Limit    int
	BeforeID uint
}

type AssignNurseInput struct {
	ActorID   uint
	SessionID uint
	NurseID   uint
}

type MessageNewPayload struct {
	SessionID uint           `json:"session_id"`
	Message   *model.Message `json:"message"`
}

type SessionCreatedPayload struct {
	Session   *model.ChatSession `json:"session"`
	CreatedBy uint               `json:"created_by"`
}

type NurseRemovedPayload struct {
	SessionID  uint `json:"session_id"`
	NurseID    uint `json:"nurse_id"`
	ReplacedBy uint `json:"replaced_by"`
	RemovedBy  uint `json:"removed_by"`
}

type NurseAssignedPayload struct {
	SessionID       uint               `json:"session_id"`
	NurseID         uint               `json:"nurse_id"`
	PreviousNurseID *uint              `json:"previous_nurse_id,omitempty"`
	AssignedBy      uint               `json:"assigned_by"`
	Session         *model.ChatSession `json:"session"`
}

func NewChatService(
	store *repository.Store,
	publisher event.Publisher,
	historyCache HistoryCache[model.Message],
	limiter SendLimiter,
	policy MessagePolicy,
) *ChatService {
	return &ChatService{
		store:        store,
		publisher:    publisher,
		historyCache: historyCache,
		limiter:      limiter,
		policy:       policy.withDefaults(),
		now:          time.Now,
	}
}

// OpenSession returns the one-to-one session between the actor and the
// target, creating it on first contact.
func (s *ChatService) OpenSession(ctx context.Context, input OpenSessionInput) (*OpenSessionResult, error) {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return nil, err
	}

	var target *model.User
	switch {
	case input.TargetUserID != 0:
		if input.TargetUserID == actor.ID {
			return nil, ErrInvalidTarget
		}
		target, err = s.store.Users.GetByID(ctx, input.TargetUserID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, ErrUserNotFound
		}
		if !actor.IsStaff() && !target.IsStaff() {
			return nil, ErrForbidden
		}
	case strings.TrimSpace(input.TargetRole) != "":
		role := strings.ToUpper(strings.TrimSpace(input.TargetRole))
		if !model.IsStaffRole(role) {
			return nil, ErrInvalidTarget
		}
		existing, err := s.store.Sessions.FindWithCounterpartRole(ctx, actor.ID, role)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &OpenSessionResult{Session: existing}, nil
		}
		target, err = s.store.Users.LeastLoadedByRole(ctx, role, actor.ID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, ErrUserNotFound
		}
	default:
		return nil, ErrInvalidInput
	}

	user1ID, user2ID := model.NormalizePair(actor.ID, target.ID)
	existing, err := s.store.Sessions.GetByPair(ctx, model.SessionTypeOneToOne, user1ID, user2ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &OpenSessionResult{Session: existing}, nil
	}

	session := &model.ChatSession{
		Type:    model.SessionTypeOneToOne,
		User1ID: user1ID,
		User2ID: user2ID,
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Sessions.Create(ctx, session); err != nil {
			return err
		}
		return tx.Participants.CreateBatch(ctx, []model.ChatSessionParticipant{
			{SessionID: session.ID, UserID: user1ID, Role: model.ParticipantRoleMember},
			{SessionID: session.ID, UserID: user2ID, Role: model.ParticipantRoleMember},
		})
	})
	if err != nil {
		// Another request may have created the pair between our read and insert.
		raced, readErr := s.store.Sessions.GetByPair(ctx, model.SessionTypeOneToOne, user1ID, user2ID)
		if readErr == nil && raced != nil {
			return &OpenSessionResult{Session: raced}, nil
		}
		return nil, err
	}

	topic := event.SessionTopic(session.ID)
	publish(ctx, s.publisher, event.Event{
		Name:    event.NameSessionCreated,
		Topics:  []string{event.UserTopic(user1ID), event.UserTopic(user2ID)},
		Payload: SessionCreatedPayload{Session: session, CreatedBy: actor.ID},
		Membership: []event.Membership{
			event.Join(user1ID, topic, event.NamespaceChat),
			event.Join(user2ID, topic, event.NamespaceChat),
		},
	})
	return &OpenSessionResult{Session: session, Created: true}, nil
}

func (s *ChatService) GetSession(ctx context.Context, actorID, sessionID uint) (*model.ChatSession, error) {
	actor, err := loadActor(ctx, s.store, actorID)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, session.ID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(ctx context.Context, actorID uint) ([]model.ChatSession, error) {
	if actorID == 0 {
		return nil, ErrInvalidInput
	}
	return s.store.Sessions.ListByParticipant(ctx, actorID)
}

func (s *ChatService) ListParticipants(ctx context.Context, actorID, sessionID uint) ([]model.ChatSessionParticipant, error) {
	if _, err := s.GetSession(ctx, actorID, sessionID); err != nil {
		return nil, err
	}
	return s.store.Participants.ListBySessionID(ctx, sessionID)
}

// SessionIDsFor lists the sessions a user takes part in, used by the gateway
// to subscribe a fresh connection.
func (s *ChatService) SessionIDsFor(ctx context.Context, userID uint) ([]uint, error) {
	return s.store.Participants.SessionIDsByUserID(ctx, userID)
}

func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*model.Message, error) {
	if input.ActorID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}
	content, err := s.policy.normalizeContent(input.Content)
	if err != nil {
		return nil, err
	}

	participant, err := s.store.Participants.Get(ctx, input.SessionID, input.ActorID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		if _, err := s.loadSession(ctx, input.SessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotParticipant
	}
	if err := checkRate(ctx, s.limiter, input.ActorID); err != nil {
		return nil, err
	}

	message := &model.Message{
		SessionID: input.SessionID,
		SenderID:  input.ActorID,
		Content:   content,
		CreatedAt: s.now(),
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Messages.Create(ctx, message); err != nil {
			return err
		}
		return tx.Sessions.UpdateLastMessage(ctx, input.SessionID, message.ID, message.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	invalidateHistory(ctx, s.historyCache, input.SessionID)
	publish(ctx, s.publisher, event.Event{
		Name:    event.NameMessageNew,
		Topics:  []string{event.SessionTopic(input.SessionID)},
		Payload: MessageNewPayload{SessionID: input.SessionID, Message: message},
	})
	return message, nil
}

func (s *ChatService) ListMessages(ctx context.Context, input ListMessagesInput) ([]model.Message, error) {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadSession(ctx, input.TargetID); err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, actor, input.TargetID); err != nil {
		return nil, err
	}

	limit := s.policy.normalizeLimit(input.Limit)
	return readHistory(ctx, s.historyCache, input.TargetID, limit, input.BeforeID, s.policy.PageSize,
		func(limit int, beforeID uint) ([]model.Message, error) {
			return s.store.Messages.ListBySessionID(ctx, input.TargetID, limit, beforeID)
		})
}

// AssignNurse replaces whichever nurse is attached to the session.
func (s *ChatService) AssignNurse(ctx context.Context, input AssignNurseInput) (*model.ChatSession, error) {
	actor, err := loadActor(ctx, s.store, input.ActorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if input.NurseID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.loadSession(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	nurse, err := s.store.Users.GetByID(ctx, input.NurseID)
	if err != nil {
		return nil, err
	}
	if nurse == nil || nurse.Role != model.RoleNurse {
		return nil, ErrInvalidNurse
	}
	if nurse.ID == session.User1ID || nurse.ID == session.User2ID {
		return nil, ErrInvalidNurse
	}

	previous := session.NurseID
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Participants.DeleteBySessionIDAndRole(ctx, session.ID, model.ParticipantRoleNurse); err != nil {
			return err
		}
		if err := tx.Participants.Upsert(ctx, &model.ChatSessionParticipant{
			SessionID: session.ID,
			UserID:    nurse.ID,
			Role:      model.ParticipantRoleNurse,
		}); err != nil {
			return err
		}
		return tx.Sessions.SetNurse(ctx, session.ID, nurse.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.loadSession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	topic := event.SessionTopic(session.ID)
	if previous != nil && *previous != nurse.ID {
		publish(ctx, s.publisher, event.Event{
			Name:   event.NameSessionNurseRemoved,
			Topics: []string{event.UserTopic(*previous)},
			Payload: NurseRemovedPayload{
				SessionID:  session.ID,
				NurseID:    *previous,
				ReplacedBy: nurse.ID,
				RemovedBy:  actor.ID,
			},
			Membership: []event.Membership{event.Leave(*previous, topic)},
		})
	}
	publish(ctx, s.publisher, event.Event{
		Name:       event.NameSessionNurseAssigned,
		Topics:     []string{topic, event.UserTopic(nurse.ID)},
		Membership: []event.Membership{event.Join(nurse.ID, topic, event.NamespaceChat)},
		Payload: NurseAssignedPayload{
			SessionID:       session.ID,
			NurseID:         nurse.ID,
			PreviousNurseID: previous,
			AssignedBy:      actor.ID,
			Session:         updated,
		},
	})
	return updated, nil
}

func (s *ChatService) loadSession(ctx context.Context, sessionID uint) (*model.ChatSession, error) {
	if sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.store.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// authorizeRead lets staff read any session; everyone else must take part.
func (s *ChatService) authorizeRead(ctx context.Context, actor *model.User, sessionID uint) error {
	if actor.IsStaff() {
		return nil
	}
	participant, err := s.store.Participants.Get(ctx, sessionID, actor.ID)
	if err != nil {
		return err
	}
	if participant == nil {
		return ErrNotParticipant
	}
	return nil
}
