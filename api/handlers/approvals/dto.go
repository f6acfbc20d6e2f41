package approvals

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// RequestApprovalRequest 发起审批的请求体
type RequestApprovalRequest struct {
	ServiceRequestID string         `json:"service_request_id" binding:"required"`
	ModuleName       string         `json:"module_name" binding:"required"`
	ServiceName      string         `json:"service_name" binding:"required"`
	RequestData      map[string]any `json:"request_data"`
	Justification    string         `json:"justification"`
}

// RequestApprovalResponse 发起审批的响应体
type RequestApprovalResponse struct {
	RequiresApproval bool                       `json:"requires_approval"`
	WorkflowID       string                     `json:"workflow_id,omitempty"`
	Chain            []approval.ApprovalRequest `json:"chain"`
}

// DecisionRequest 批准/拒绝的请求体
type DecisionRequest struct {
	Comments string `json:"comments"`
	Reason   string `json:"reason"`
}

// DecisionResponse 审批决定的响应体
type DecisionResponse struct {
	WorkflowComplete bool   `json:"workflow_complete"`
	WorkflowID       string `json:"workflow_id"`
}

// CancelRequest 取消工作流的请求体
type CancelRequest struct {
	Reason string `json:"reason"`
}

// respondApprovalError 将审批领域错误映射为统一业务响应
func respondApprovalError(c *gin.Context, err error) {
	var cfgErr *approval.ConfigurationError
	switch {
	case errors.Is(err, approval.ErrAuthorization):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalForbidden, err.Error()))
	case errors.Is(err, approval.ErrNotFound):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalNotFound, err.Error()))
	case errors.Is(err, approval.ErrConfigurationNotFound):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalConfigNotFound, err.Error()))
	case errors.Is(err, approval.ErrAlreadyDecided):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalAlreadyDecided, err.Error()))
	case errors.Is(err, approval.ErrNotYetActive):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalNotActive, err.Error()))
	case errors.Is(err, approval.ErrVersionConflict):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalConflict, err.Error()))
	case errors.As(err, &cfgErr):
		common.ResponseBusinessError(c, common.NewBusinessError(common.CodeApprovalConfigInvalid, err.Error()))
	default:
		common.ResponseServerError(c, "")
	}
}
