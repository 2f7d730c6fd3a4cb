package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"syncplane/internal/middleware"
	"syncplane/internal/model"
	"syncplane/internal/sessions"
)

type SessionHandler struct {
	Sessions *sessions.Service
}

type createSessionBody struct {
	Tag        string  `json:"tag"`
	Metadata   string  `json:"metadata"`
	AgentState *string `json:"agentState"`
}

func sessionResponse(s model.Session) gin.H {
	return gin.H{
		"id":                s.ID,
		"tag":               s.Tag,
		"metadata":          s.Metadata,
		"metadataVersion":   s.MetadataVersion,
		"agentState":        s.AgentState,
		"agentStateVersion": s.AgentStateVersion,
		"active":            s.Active,
		"activeAt":          s.LastActiveAt,
		"createdAt":         s.CreatedAt,
		"updatedAt":         s.UpdatedAt,
	}
}

func (h *SessionHandler) GetOrCreate(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, _, err := h.Sessions.GetOrCreate(c.Request.Context(), accountID, sessions.CreateParams{
		Tag:        body.Tag,
		Metadata:   body.Metadata,
		AgentState: body.AgentState,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sessionResponse(sess)})
}

func (h *SessionHandler) List(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	list, err := h.Sessions.List(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Session listing failed"})
		return
	}
	resp := make([]gin.H, 0, len(list))
	for _, sess := range list {
		resp = append(resp, sessionResponse(sess))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}
