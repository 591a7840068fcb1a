package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glucoheart/internal/app"
	"glucoheart/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type OpenSessionRequest struct {
	TargetUserID uint   `json:"target_user_id"`
	TargetRole   string `json:"target_role"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type AssignNurseRequest struct {
	NurseID uint `json:"nurse_id" binding:"required,gt=0"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) OpenSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.chatService.OpenSession(c.Request.Context(), app.OpenSessionInput{
		ActorID:      userID,
		TargetUserID: req.TargetUserID,
		TargetRole:   req.TargetRole,
	})
	if err != nil {
		writeError(c, err, "open session failed")
		return
	}

	if result.Created {
		response.Created(c, result)
		return
	}
	response.OK(c, result)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	sessions, err := h.chatService.ListSessions(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list sessions failed")
		return
	}

	response.OK(c, sessions)
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	session, err := h.chatService.GetSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err, "get session failed")
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListParticipants(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	participants, err := h.chatService.ListParticipants(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err, "list participants failed")
		return
	}

	response.OK(c, participants)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	message, err := h.chatService.SendMessage(c.Request.Context(), app.SendMessageInput{
		ActorID:   userID,
		SessionID: sessionID,
		Content:   req.Content,
	})
	if err != nil {
		writeError(c, err, "send message failed")
		return
	}

	response.Created(c, message)
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	limit, beforeID := parsePage(c)

	messages, err := h.chatService.ListMessages(c.Request.Context(), app.ListMessagesInput{
		ActorID:  userID,
		TargetID: sessionID,
		Limit:    limit,
		BeforeID: beforeID,
	})
	if err != nil {
		writeError(c, err, "list messages failed")
		return
	}

	response.OK(c, messages)
}

func (h *ChatHandler) AssignNurse(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	sessionID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AssignNurseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.chatService.AssignNurse(c.Request.Context(), app.AssignNurseInput{
		ActorID:   userID,
		SessionID: sessionID,
		NurseID:   req.NurseID,
	})
	if err != nil {
		writeError(c, err, "assign nurse failed")
		return
	}

	response.OK(c, session)
}
