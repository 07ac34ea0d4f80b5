package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go-journey/internal/assistant"
	"go-journey/internal/chat"
	"go-journey/internal/journey"
	"go-journey/internal/mission"
	"go-journey/internal/signal"
)

// GET /missions
func (s *server) listMissionsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"missions": s.Facade.ListMissions()})
}

// GET /verticals/:vertical/stages
func (s *server) verticalStagesHandler(c *gin.Context) {
	v := mission.Vertical(c.Param("vertical"))
	c.JSON(http.StatusOK, gin.H{"vertical": v, "missions": s.Facade.ListStagesForVertical(v)})
}

// GET /members
func (s *server) listMembersHandler(c *gin.Context) {
	members, err := s.Members.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// GET /members/:id
func (s *server) getMemberHandler(c *gin.Context) {
	m, err := s.Members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type addProductRequest struct {
	Product string `json:"product" binding:"required"`
}

// POST /members/:id/products
func (s *server) addProductHandler(c *gin.Context) {
	var req addProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "product is required")
		return
	}
	m, err := s.Members.AddProduct(c.Request.Context(), c.Param("id"), req.Product)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type setAttributeRequest struct {
	Value interface{} `json:"value"`
}

// PUT /members/:id/attributes/:key
func (s *server) setAttributeHandler(c *gin.Context) {
	var req setAttributeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Value == nil {
		badRequest(c, "value is required")
		return
	}
	m, err := s.Members.SetAttribute(c.Request.Context(), c.Param("id"), c.Param("key"), req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// GET /members/:id/state
func (s *server) stateHandler(c *gin.Context) {
	st, err := s.Facade.CurrentState(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// POST /members/:id/refresh
func (s *server) refreshHandler(c *gin.Context) {
	st, err := s.Facade.RefreshIntent(c.Request.Context(), c.Param("id"))
	s.respondRefresh(c, http.StatusOK, gin.H{}, st, err)
}

// respondRefresh reports soft failures next to the unchanged state
func (s *server) respondRefresh(c *gin.Context, status int, body gin.H, st journey.State, err error) {
	if err != nil && !journey.IsSoft(err) {
		writeError(c, err)
		return
	}
	body["state"] = st
	if err != nil {
		body["error"] = gin.H{"kind": journey.ErrorKind(err), "message": err.Error()}
	}
	c.JSON(status, body)
}

// GET /members/:id/progress
func (s *server) progressHandler(c *gin.Context) {
	p, err := s.Facade.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /members/:id/signals?since_switch=true
func (s *server) listSignalsHandler(c *gin.Context) {
	sinceSwitch := false
	if raw := c.Query("since_switch"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "since_switch must be a boolean")
			return
		}
		sinceSwitch = v
	}
	list, err := s.Facade.Signals(c.Request.Context(), c.Param("id"), sinceSwitch)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []signal.Signal{}
	}
	c.JSON(http.StatusOK, gin.H{"signals": list})
}

type recordSignalRequest struct {
	Tag         string `json:"tag" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// POST /members/:id/signals
func (s *server) recordSignalHandler(c *gin.Context) {
	var req recordSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "tag and title are required")
		return
	}
	tag, err := signal.ParseTag(req.Tag)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	sig, err := s.Facade.RecordSignal(c.Request.Context(), c.Param("id"), tag, req.Title, req.Description)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sig)
}

// GET /members/:id/messages
func (s *server) listMessagesHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.Members.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	messages, err := s.Transcript.FetchHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type postMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content" binding:"required"`
}

// POST /members/:id/messages?refresh=true
func (s *server) postMessageHandler(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "content is required")
		return
	}
	switch req.Role {
	case "":
		req.Role = chat.RoleUser
	case chat.RoleUser, chat.RoleAssistant:
	default:
		badRequest(c, "role must be user or assistant")
		return
	}

	id := c.Param("id")
	if _, err := s.Members.Get(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	msg, err := s.Transcript.Append(c.Request.Context(), id, req.Role, req.Content)
	if errors.Is(err, chat.ErrEmptyMessage) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		st, err := s.Facade.RefreshIntent(c.Request.Context(), id)
		s.respondRefresh(c, http.StatusCreated, gin.H{"message": msg}, st, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

// POST /members/:id/ask?refresh=true
func (s *server) askHandler(c *gin.Context) {
	if s.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"kind": "assistant_unavailable", "message": "assistant is not configured"}})
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "question is required")
		return
	}
	id := c.Param("id")
	reply, err := s.Assistant.Ask(c.Request.Context(), id, req.Question)
	if errors.Is(err, assistant.ErrEmptyQuestion) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		st, err := s.Facade.RefreshIntent(c.Request.Context(), id)
		s.respondRefresh(c, http.StatusCreated, gin.H{"question": reply.Question, "answer": reply.Answer}, st, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"question": reply.Question, "answer": reply.Answer, "sources": reply.Sources})
}

// GET /members/:id/summary
func (s *server) summaryHandler(c *gin.Context) {
	if s.Assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"kind": "assistant_unavailable", "message": "assistant is not configured"}})
		return
	}
	summary, err := s.Assistant.Summarize(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
