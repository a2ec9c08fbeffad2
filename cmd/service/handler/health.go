package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/app/response"
)

func (s *HttpSrv) Health(c *gin.Context) {
	report := v1.NewHealthLogic(c, s.Core).Check()
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	response.APIStatus(c, status, report)
}
