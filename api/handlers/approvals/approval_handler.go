package approvals

import (
	"github.com/gin-gonic/gin"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/auth"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// ApprovalHandler 审批工作流 HTTP 处理器
type ApprovalHandler struct {
	manager *approval.Manager
}

// NewApprovalHandler 创建处理器
func NewApprovalHandler(manager *approval.Manager) *ApprovalHandler {
	return &ApprovalHandler{manager: manager}
}

// Request 为一次业务操作发起审批。
// 返回的 chain 为空表示不需要审批，调用方可直接执行业务操作。
func (h *ApprovalHandler) Request(c *gin.Context) {
	var req RequestApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	chain, err := h.manager.RequestApproval(c.Request.Context(), &approval.RequestInput{
		ServiceRequestID: req.ServiceRequestID,
		ModuleName:       req.ModuleName,
		ServiceName:      req.ServiceName,
		RequesterID:      userCtx.UserID,
		RequestData:      req.RequestData,
		Justification:    req.Justification,
	})
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	resp := RequestApprovalResponse{
		RequiresApproval: len(chain) > 0,
		Chain:            chain,
	}
	if len(chain) > 0 {
		resp.WorkflowID = chain[0].WorkflowID
	}
	common.ResponseCreated(c, resp)
}

// Approve 批准一条审批请求
func (h *ApprovalHandler) Approve(c *gin.Context) {
	id := c.Param("id")
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	complete, err := h.manager.ApproveRequest(c.Request.Context(), id, userCtx.UserID, req.Comments)
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	request, err := h.manager.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	common.ResponseSuccess(c, DecisionResponse{
		WorkflowComplete: complete,
		WorkflowID:       request.WorkflowID,
	})
}

// Reject 拒绝一条审批请求，整条链级联终止
func (h *ApprovalHandler) Reject(c *gin.Context) {
	id := c.Param("id")
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}
	if req.Reason == "" {
		common.ResponseBadRequest(c, "拒绝必须填写原因")
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	_, err := h.manager.RejectRequest(c.Request.Context(), id, userCtx.UserID, req.Reason)
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	request, err := h.manager.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	common.ResponseSuccess(c, DecisionResponse{
		WorkflowComplete: true,
		WorkflowID:       request.WorkflowID,
	})
}

// Pending 查询当前用户名下待处理的审批请求
func (h *ApprovalHandler) Pending(c *gin.Context) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	requests, err := h.manager.GetPendingApprovals(c.Request.Context(), userCtx.UserID)
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, requests)
}

// GetRequest 查询单条审批请求
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	request, err := h.manager.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, request)
}

// GetHistory 查询单条审批请求的历史轨迹
func (h *ApprovalHandler) GetHistory(c *gin.Context) {
	history, err := h.manager.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, history)
}

// GetWorkflow 按级别顺序查询整条审批链
func (h *ApprovalHandler) GetWorkflow(c *gin.Context) {
	chain, err := h.manager.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	if len(chain) == 0 {
		common.ResponseNotFound(c, "审批链不存在")
		return
	}
	common.ResponseSuccess(c, chain)
}

// GetWorkflowHistory 查询整条审批链的历史轨迹
func (h *ApprovalHandler) GetWorkflowHistory(c *gin.Context) {
	history, err := h.manager.GetWorkflowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, history)
}

// Cancel 取消整条审批链
func (h *ApprovalHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		common.ResponseUnauthorized(c, "")
		return
	}

	if err := h.manager.CancelWorkflow(c.Request.Context(), c.Param("id"), userCtx.UserID, req.Reason); err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "审批链已取消", nil)
}
