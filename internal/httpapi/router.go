package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/auth"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/httpapi/handlers"
	"github.com/suPer8Hu/canvas-platform/internal/httpapi/middleware"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/metrics"
)

type Deps struct {
	Handler     *handlers.Handler
	Issuer      *auth.Issuer
	Log         *logger.Logger
	Metrics     *metrics.Metrics
	CORSOrigins []string
	AuthRPS     float64
	AuthBurst   int
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics(d.Metrics))
	if len(d.CORSOrigins) > 0 {
		r.Use(middleware.CORS(d.CORSOrigins))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, string(apperr.KindNotFound), "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	h := d.Handler

	r.GET("/ping", h.Ping)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	// public account routes
	public := r.Group("/users")
	public.Use(middleware.RateLimit(d.AuthRPS, d.AuthBurst))
	public.POST("/", h.Register)
	public.POST("/login/", h.Login)
	public.POST("/token/refresh/", h.RefreshToken)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(d.Issuer))

	authGroup.GET("/users/", h.Me)
	authGroup.GET("/users/:id/", h.GetUser)
	authGroup.PUT("/users/:id/", h.UpdateUser)
	authGroup.DELETE("/users/:id/", h.DeleteUser)

	authGroup.GET("/workspaces/", h.ListWorkspaces)
	authGroup.POST("/workspaces/", h.CreateWorkspace)
	authGroup.GET("/workspaces/:id/", h.GetWorkspace)
	authGroup.PATCH("/workspaces/:id/", h.RenameWorkspace)
	authGroup.DELETE("/workspaces/:id/", h.DeleteWorkspace)

	cv := authGroup.Group("/canvas")
	cv.GET("/chats/", h.ListChats)
	cv.POST("/chats/", h.CreateChat)
	cv.PATCH("/chats/:id/", h.UpdateChatLayout)
	cv.DELETE("/chats/:id/", h.DeleteChat)

	cv.GET("/messages/", h.ListMessages)
	cv.POST("/messages/", h.PostMessage)
	cv.POST("/messages/stream/", h.PostMessageStream)
	cv.POST("/messages/async/", h.PostMessageAsync)

	cv.GET("/jobs/:id/", h.GetJob)
	cv.GET("/links/", h.ListLinks)

	return r
}
