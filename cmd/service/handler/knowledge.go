package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/quka-ai/supportchat/app/logic/v1"
	"github.com/quka-ai/supportchat/app/response"
	"github.com/quka-ai/supportchat/pkg/types"
	"github.com/quka-ai/supportchat/pkg/utils"
)

type ListKnowledgeRequest struct {
	IncludeInactive bool `form:"include_inactive"`
}

type ListKnowledgeResponse struct {
	List  []*types.KnowledgeEntry `json:"list"`
	Total uint64                  `json:"total"`
}

func (s *HttpSrv) ListKnowledge(c *gin.Context) {
	var (
		err error
		req ListKnowledgeRequest
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	list, total, err := v1.NewKnowledgeLogic(c, s.Core).List(req.IncludeInactive)
	if err != nil {
		response.APIError(c, err)
		return
	}
	if list == nil {
		list = []*types.KnowledgeEntry{}
	}

	response.APISuccess(c, ListKnowledgeResponse{
		List:  list,
		Total: total,
	})
}

func (s *HttpSrv) GetKnowledge(c *gin.Context) {
	entry, err := v1.NewKnowledgeLogic(c, s.Core).Get(c.Param("id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, entry)
}

func (s *HttpSrv) CreateKnowledge(c *gin.Context) {
	var (
		err error
		req v1.CreateKnowledgeArgs
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	entry, err := v1.NewKnowledgeLogic(c, s.Core).Create(req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APIStatus(c, http.StatusCreated, entry)
}

func (s *HttpSrv) UpdateKnowledge(c *gin.Context) {
	var (
		err error
		req types.KnowledgeEntryPatch
	)
	if err = utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	entry, err := v1.NewKnowledgeLogic(c, s.Core).Update(c.Param("id"), req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, entry)
}

func (s *HttpSrv) DeleteKnowledge(c *gin.Context) {
	if err := v1.NewKnowledgeLogic(c, s.Core).Delete(c.Param("id")); err != nil {
		response.APIError(c, err)
		return
	}
	response.APIStatus(c, http.StatusNoContent, nil)
}

type KnowledgePreviewResponse struct {
	Document string `json:"document"`
}

// PreviewKnowledge returns the document exactly as the llm receives it.
func (s *HttpSrv) PreviewKnowledge(c *gin.Context) {
	doc, err := v1.NewKnowledgeLogic(c, s.Core).FormatForPrompt()
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, KnowledgePreviewResponse{Document: doc})
}
