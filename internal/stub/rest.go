package stub

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/groundplan/client/internal/rest"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// requireAuth resolves the bearer token to an account id and aborts
// with 401 when it cannot.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
		return
	}

	accountID, ok := s.state.authenticate(token)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
		return
	}

	c.Set("account_id", accountID)
	c.Next()
}

func accountID(c *gin.Context) string {
	return c.GetString("account_id")
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "email and a password of at least 8 characters are required"})
		return
	}

	acct, ok := s.state.register(req.Email, req.Password)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"detail": "email already registered"})
		return
	}

	c.JSON(http.StatusCreated, rest.UserResponse{ID: acct.id, Email: acct.email})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	tokens, ok := s.state.login(req.Email, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	tokens, ok := s.state.rotate(req.RefreshToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *Server) handleCreateSession(c *gin.Context) {
	sess := s.state.createSession(accountID(c))
	c.JSON(http.StatusCreated, rest.SessionCreateResponse{
		SessionID: sess.id,
		CreatedAt: sess.createdAt,
	})
}

func (s *Server) handleListSessions(c *gin.Context) {
	items := s.state.listSessions(accountID(c))
	c.JSON(http.StatusOK, rest.SessionListResponse{Sessions: items, Count: len(items)})
}

func (s *Server) handleGetSession(c *gin.Context) {
	status, ok := s.state.sessionStatus(accountID(c), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.state.deleteSession(accountID(c), c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUpdateContext(c *gin.Context) {
	var req rest.ContextUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	for i, obj := range req.Objects {
		if err := obj.Validate(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": fmt.Sprintf("object[%d]: %v", i, err)})
			return
		}
	}

	resp, ok := s.state.updateContext(accountID(c), c.Param("id"), req.Objects)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetContext(c *gin.Context) {
	resp, ok := s.state.contextResponse(accountID(c), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMessages(c *gin.Context) {
	messages, ok := s.state.messages(accountID(c), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "session not found"})
		return
	}
	c.JSON(http.StatusOK, rest.MessagesResponse{Messages: messages, Count: len(messages)})
}
