package approvals

import (
	"github.com/gin-gonic/gin"

	"github.com/silahbo-jpg/sila-system-sub000/internal/approval"
	"github.com/silahbo-jpg/sila-system-sub000/internal/audit"
	"github.com/silahbo-jpg/sila-system-sub000/internal/auth"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// ConfigHandler 服务审批配置管理处理器（仅管理员）
type ConfigHandler struct {
	registry *approval.ConfigRegistry
	audit    *audit.AdminAuditLogger
}

// NewConfigHandler 创建处理器
func NewConfigHandler(registry *approval.ConfigRegistry, auditLogger *audit.AdminAuditLogger) *ConfigHandler {
	return &ConfigHandler{registry: registry, audit: auditLogger}
}

// Configure 创建或更新服务审批配置（按 module+service upsert）
func (h *ConfigHandler) Configure(c *gin.Context) {
	var input approval.ConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	cfg, err := h.registry.ConfigureServiceApproval(c.Request.Context(), &input)
	if err != nil {
		respondApprovalError(c, err)
		return
	}

	if userCtx, ok := auth.GetUserContext(c); ok {
		h.audit.LogAction(c.Request.Context(), userCtx.UserID, audit.EventConfigUpdate,
			"service_approval_config", cfg.ID, map[string]any{
				"moduleName":  cfg.ModuleName,
				"serviceName": cfg.ServiceName,
				"levels":      len(cfg.ApprovalLevels),
			})
	}

	common.ResponseSuccess(c, cfg)
}

// List 列出审批配置，支持按模块过滤
func (h *ConfigHandler) List(c *gin.Context) {
	configs, err := h.registry.ListConfigs(c.Request.Context(), c.Query("module"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, configs)
}

// Get 查询单个服务的审批配置
func (h *ConfigHandler) Get(c *gin.Context) {
	cfg, err := h.registry.GetConfig(c.Request.Context(), c.Param("module"), c.Param("service"))
	if err != nil {
		respondApprovalError(c, err)
		return
	}
	common.ResponseSuccess(c, cfg)
}

// Disable 停用服务的审批要求。停用是状态而不是删除。
func (h *ConfigHandler) Disable(c *gin.Context) {
	module := c.Param("module")
	service := c.Param("service")

	if err := h.registry.DisableConfig(c.Request.Context(), module, service); err != nil {
		respondApprovalError(c, err)
		return
	}

	if userCtx, ok := auth.GetUserContext(c); ok {
		h.audit.LogAction(c.Request.Context(), userCtx.UserID, audit.EventConfigDisable,
			"service_approval_config", module+"/"+service, nil)
	}

	common.ResponseSuccessMessage(c, "审批配置已停用", nil)
}
