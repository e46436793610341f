package ports

import (
	"github.com/gin-gonic/gin"
)

type SignalHTTPHandler interface {
	ListSignals(c *gin.Context)
	CreateSignal(c *gin.Context)
}

type SessionHTTPHandler interface {
	GoLive(c *gin.Context)
	EndSession(c *gin.Context)
	GetSession(c *gin.Context)
	JoinSession(c *gin.Context)
	LeaveSession(c *gin.Context)
	LikeSession(c *gin.Context)
	ListMessages(c *gin.Context)
	PostMessage(c *gin.Context)
}
