package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/quka-ai/supportchat/app/core"
)

// HttpSrv binds the route handlers to the shared core.
type HttpSrv struct {
	Core   *core.Core
	Engine *gin.Engine
}
