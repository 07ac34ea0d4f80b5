package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-journey/internal/assistant"
	"go-journey/internal/auth"
	"go-journey/internal/chat"
	"go-journey/internal/config"
	"go-journey/internal/journey"
	"go-journey/internal/member"
)

// MemberStore is the profile store behind the member endpoints
type MemberStore interface {
	Get(ctx context.Context, id string) (member.Member, error)
	List(ctx context.Context) ([]member.Member, error)
	SetAttribute(ctx context.Context, id, key string, value interface{}) (member.Member, error)
	AddProduct(ctx context.Context, id, product string) (member.Member, error)
}

// Transcript stores and replays member conversations
type Transcript interface {
	Append(ctx context.Context, memberID, role, content string) (chat.Message, error)
	FetchHistory(ctx context.Context, memberID string) ([]chat.Message, error)
}

// Assistant answers member questions and summarizes conversations
type Assistant interface {
	Ask(ctx context.Context, memberID, question string) (assistant.Reply, error)
	Summarize(ctx context.Context, memberID string) (assistant.Summary, error)
}

// Deps are the collaborators of the HTTP API
type Deps struct {
	Config     *config.Config
	Facade     *journey.Facade
	Members    MemberStore
	Transcript Transcript
	Assistant  Assistant
	Sessions   auth.Sessions
	Hub        *Hub
	Logger     *zap.Logger
}

type server struct {
	Deps
	operator auth.Operator
	logger   *zap.Logger
}

func SetupRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Sessions == nil {
		d.Sessions = auth.NewMemorySessions()
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}
	s := &server{
		Deps:     d,
		operator: auth.Operator{Username: d.Config.Auth.Username, PasswordHash: d.Config.Auth.PasswordHash},
		logger:   d.Logger.Named("api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(s.logger))
	subpath := d.Config.Server.Subpath // always starts with '/' when set

	group := r.Group(subpath)
	{
		group.GET("/health", healthHandler)
		group.GET("/config", configHandler(d.Config))

		group.POST("/auth/login", s.loginHandler)

		// websocket auth reads the token from the query string
		group.GET("/ws/journey", s.wsJourneyHandler)
	}

	authed := group.Group("", auth.AuthMiddleware(d.Config.Server.JWTSecret, d.Sessions))
	{
		authed.POST("/auth/logout", s.logoutHandler)

		authed.GET("/missions", s.listMissionsHandler)
		authed.GET("/verticals/:vertical/stages", s.verticalStagesHandler)

		authed.GET("/members", s.listMembersHandler)
		authed.GET("/members/:id", s.getMemberHandler)
		authed.POST("/members/:id/products", s.addProductHandler)
		authed.PUT("/members/:id/attributes/:key", s.setAttributeHandler)

		authed.GET("/members/:id/state", s.stateHandler)
		authed.POST("/members/:id/refresh", s.refreshHandler)
		authed.GET("/members/:id/progress", s.progressHandler)
		authed.GET("/members/:id/signals", s.listSignalsHandler)
		authed.POST("/members/:id/signals", s.recordSignalHandler)
		authed.GET("/members/:id/messages", s.listMessagesHandler)
		authed.POST("/members/:id/messages", s.postMessageHandler)
		authed.POST("/members/:id/ask", s.askHandler)
		authed.GET("/members/:id/summary", s.summaryHandler)
	}
	return r
}
