package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glucoheart/internal/app"
	"glucoheart/internal/transport/http/response"
)

type DiscussionHandler struct {
	discussionService *app.DiscussionService
}

type CreateRoomRequest struct {
	Topic       string   `json:"topic" binding:"required,max=128"`
	Description string   `json:"description" binding:"max=2000"`
	IsPublic    *bool    `json:"is_public"`
	Tags        []string `json:"tags" binding:"max=16"`
}

type AddParticipantRequest struct {
	UserID uint `json:"user_id" binding:"required,gt=0"`
}

type PostMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func NewDiscussionHandler(discussionService *app.DiscussionService) *DiscussionHandler {
	return &DiscussionHandler{discussionService: discussionService}
}

func (h *DiscussionHandler) CreateRoom(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	room, err := h.discussionService.CreateRoom(c.Request.Context(), app.CreateRoomInput{
		ActorID:     userID,
		Topic:       req.Topic,
		Description: req.Description,
		IsPublic:    isPublic,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(c, err, "create room failed")
		return
	}

	response.Created(c, room)
}

func (h *DiscussionHandler) ListRooms(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	rooms, err := h.discussionService.ListRooms(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list rooms failed")
		return
	}

	response.OK(c, rooms)
}

func (h *DiscussionHandler) GetRoom(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	room, err := h.discussionService.GetRoom(c.Request.Context(), userID, roomID)
	if err != nil {
		writeError(c, err, "get room failed")
		return
	}

	response.OK(c, room)
}

func (h *DiscussionHandler) JoinRoom(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	participant, err := h.discussionService.JoinRoom(c.Request.Context(), userID, roomID)
	if err != nil {
		writeError(c, err, "join room failed")
		return
	}

	response.OK(c, participant)
}

func (h *DiscussionHandler) LeaveRoom(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.discussionService.LeaveRoom(c.Request.Context(), userID, roomID); err != nil {
		writeError(c, err, "leave room failed")
		return
	}

	response.OK(c, gin.H{"left_room_id": roomID})
}

func (h *DiscussionHandler) AddParticipant(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	participant, err := h.discussionService.AddParticipant(c.Request.Context(), app.AddParticipantInput{
		ActorID: userID,
		RoomID:  roomID,
		UserID:  req.UserID,
	})
	if err != nil {
		writeError(c, err, "add participant failed")
		return
	}

	response.OK(c, participant)
}

func (h *DiscussionHandler) RemoveParticipant(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}

	err := h.discussionService.RemoveParticipant(c.Request.Context(), app.RemoveParticipantInput{
		ActorID: userID,
		RoomID:  roomID,
		UserID:  targetID,
	})
	if err != nil {
		writeError(c, err, "remove participant failed")
		return
	}

	response.OK(c, gin.H{"room_id": roomID, "removed_user_id": targetID})
}

func (h *DiscussionHandler) ListParticipants(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	participants, err := h.discussionService.ListParticipants(c.Request.Context(), userID, roomID)
	if err != nil {
		writeError(c, err, "list participants failed")
		return
	}

	response.OK(c, participants)
}

func (h *DiscussionHandler) PostMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.discussionService.PostMessage(c.Request.Context(), app.PostMessageInput{
		ActorID: userID,
		RoomID:  roomID,
		Content: req.Content,
	})
	if err != nil {
		writeError(c, err, "post message failed")
		return
	}

	response.Created(c, result)
}

func (h *DiscussionHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, beforeID := parsePage(c)

	messages, err := h.discussionService.ListMessages(c.Request.Context(), app.ListMessagesInput{
		ActorID:  userID,
		TargetID: roomID,
		Limit:    limit,
		BeforeID: beforeID,
	})
	if err != nil {
		writeError(c, err, "list messages failed")
		return
	}

	response.OK(c, messages)
}
