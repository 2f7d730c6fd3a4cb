package handler

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"syncplane/internal/machines"
	"syncplane/internal/middleware"
	"syncplane/internal/model"
	"syncplane/internal/store"
)

type MachineHandler struct {
	Machines *machines.Service
}

type registerMachineBody struct {
	ID          string  `json:"id"`
	Metadata    string  `json:"metadata"`
	DaemonState *string `json:"daemonState"`
	// Base64-encoded; only honored at creation.
	DataEncryptionKey *string `json:"dataEncryptionKey"`
}

func machineResponse(m model.Machine) gin.H {
	var key *string
	if m.DataEncryptionKey != nil {
		encoded := base64.StdEncoding.EncodeToString(m.DataEncryptionKey)
		key = &encoded
	}
	return gin.H{
		"id":                 m.ID,
		"metadata":           m.Metadata,
		"metadataVersion":    m.MetadataVersion,
		"daemonState":        m.DaemonState,
		"daemonStateVersion": m.DaemonStateVersion,
		"dataEncryptionKey":  key,
		"seq":                m.Seq,
		"active":             m.Active,
		"activeAt":           m.LastActiveAt,
		"createdAt":          m.CreatedAt,
		"updatedAt":          m.UpdatedAt,
	}
}

// Register creates the machine on first call and returns the stored record
// unchanged on every later call with the same id.
func (h *MachineHandler) Register(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body registerMachineBody
	if err := c.ShouldBindJSON(&body); err != nil || body.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var key []byte
	if body.DataEncryptionKey != nil {
		decoded, err := base64.StdEncoding.DecodeString(*body.DataEncryptionKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid dataEncryptionKey"})
			return
		}
		key = decoded
	}

	m, err := h.Machines.RegisterOrFetch(c.Request.Context(), accountID, machines.RegisterParams{
		ID:                body.ID,
		Metadata:          body.Metadata,
		DaemonState:       body.DaemonState,
		DataEncryptionKey: key,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Machine registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"machine": machineResponse(m)})
}

func (h *MachineHandler) List(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	list, err := h.Machines.List(c.Request.Context(), accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Machine listing failed"})
		return
	}
	resp := make([]gin.H, 0, len(list))
	for _, m := range list {
		resp = append(resp, machineResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{"machines": resp})
}

func (h *MachineHandler) Get(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	m, err := h.Machines.Get(c.Request.Context(), accountID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Machine not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Machine lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"machine": machineResponse(m)})
}
