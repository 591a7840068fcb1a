package response

import "github.com/gin-gonic/gin"

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeMessageEmpty    = 40001
	CodeMessageTooLong  = 40002
	CodeInvalidTarget   = 40003
	CodeInvalidNurse    = 40004
	CodeUnauthorized    = 40100
	CodeUnknownUser     = 40101
	CodeForbidden       = 40300
	CodeNotParticipant  = 40301
	CodeNotFound        = 40400
	CodeSessionNotFound = 40401
	CodeRoomNotFound    = 40402
	CodeUserNotFound    = 40403
	CodeTooManyRequests = 42900
	CodeInternalServer  = 50000
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, APIResponse{
		Code:    CodeOK,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
