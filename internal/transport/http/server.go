package http

import (
	"github.com/gin-gonic/gin"

	"glucoheart/internal/bootstrap"
	"glucoheart/internal/transport/http/handler"
	"glucoheart/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLog(app.Logger), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userHandler := handler.NewUserHandler(app.UserService)
	chatHandler := handler.NewChatHandler(app.ChatService)
	discussionHandler := handler.NewDiscussionHandler(app.DiscussionService)
	auth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	v1.GET("/users/me", userHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/session", chatHandler.OpenSession)
	chatGroup.GET("/sessions", chatHandler.ListSessions)
	chatGroup.GET("/session/:id", chatHandler.GetSession)
	chatGroup.GET("/session/:id/participants", chatHandler.ListParticipants)
	chatGroup.POST("/session/:id/message", chatHandler.SendMessage)
	chatGroup.GET("/session/:id/messages", chatHandler.ListMessages)
	chatGroup.POST("/session/:id/assign-nurse", chatHandler.AssignNurse)

	roomGroup := v1.Group("/discussion/rooms")
	roomGroup.GET("", discussionHandler.ListRooms)
	roomGroup.POST("", discussionHandler.CreateRoom)
	roomGroup.GET("/:id", discussionHandler.GetRoom)
	roomGroup.POST("/:id/join", discussionHandler.JoinRoom)
	roomGroup.POST("/:id/leave", discussionHandler.LeaveRoom)
	roomGroup.GET("/:id/participants", discussionHandler.ListParticipants)
	roomGroup.POST("/:id/participants", discussionHandler.AddParticipant)
	roomGroup.DELETE("/:id/participants/:user_id", discussionHandler.RemoveParticipant)
	roomGroup.POST("/:id/message", discussionHandler.PostMessage)
	roomGroup.GET("/:id/messages", discussionHandler.ListMessages)

	// The gateway authenticates before upgrading so it can read the token from
	// the query string or cookie as well as the header.
	router.GET("/ws/chat", app.Gateway.ServeChat)
	router.GET("/ws/discussion", app.Gateway.ServeDiscussion)

	return router
}
