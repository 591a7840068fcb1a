package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"glucoheart/internal/app"
	"glucoheart/internal/transport/http/middleware"
	"glucoheart/internal/transport/http/response"
)

// writeError maps service errors onto the response envelope. Anything it does
// not recognise is logged by the request logger and reported as a 500.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrMessageEmpty):
		response.Error(c, http.StatusBadRequest, response.CodeMessageEmpty, err.Error())
	case errors.Is(err, app.ErrMessageTooLong):
		response.Error(c, http.StatusBadRequest, response.CodeMessageTooLong, err.Error())
	case errors.Is(err, app.ErrInvalidTarget):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidTarget, err.Error())
	case errors.Is(err, app.ErrInvalidNurse):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidNurse, err.Error())
	case errors.Is(err, app.ErrUnknownActor):
		response.Error(c, http.StatusUnauthorized, response.CodeUnknownUser, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, err.Error())
	case errors.Is(err, app.ErrNotParticipant):
		response.Error(c, http.StatusForbidden, response.CodeNotParticipant, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrRoomNotFound):
		response.Error(c, http.StatusNotFound, response.CodeRoomNotFound, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	case errors.Is(err, app.ErrNotMember):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		response.Error(c, http.StatusTooManyRequests, response.CodeTooManyRequests, err.Error())
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
	}
	return userID, ok
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id64, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id64), true
}

// parsePage reads limit and before_id. Missing or malformed values fall back
// to the service defaults.
func parsePage(c *gin.Context) (int, uint) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	var beforeID uint
	if raw := c.Query("before_id"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			beforeID = uint(parsed)
		}
	}
	return limit, beforeID
}
