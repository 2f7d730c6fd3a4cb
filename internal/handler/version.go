package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const Version = "0.3.0"

func GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": Version})
}
