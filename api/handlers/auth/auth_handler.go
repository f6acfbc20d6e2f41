package auth

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/silahbo-jpg/sila-system-sub000/internal/audit"
	authsvc "github.com/silahbo-jpg/sila-system-sub000/internal/auth"
	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// AuthHandler 认证相关处理器
type AuthHandler struct {
	jwtService *authsvc.JWTService
	identities *authsvc.IdentityStore
	audit      *audit.AdminAuditLogger
}

// NewAuthHandler 创建处理器
func NewAuthHandler(jwtService *authsvc.JWTService, identities *authsvc.IdentityStore, auditLogger *audit.AdminAuditLogger) *AuthHandler {
	return &AuthHandler{
		jwtService: jwtService,
		identities: identities,
		audit:      auditLogger,
	}
}

// LoginRequest 登录请求体
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应体
type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int64    `json:"expires_in"`
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
}

// Login 用户名密码登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	user, err := h.identities.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, authsvc.ErrInvalidCredentials) {
			h.audit.LogAction(c.Request.Context(), req.Username, audit.EventUserLoginFailed,
				"user", "", map[string]any{"clientIp": c.ClientIP()})
			common.ResponseUnauthorized(c, "用户名或密码错误")
			return
		}
		common.ResponseServerError(c, "")
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.RoleList())
	if err != nil {
		common.ResponseServerError(c, "")
		return
	}

	h.audit.LogAction(c.Request.Context(), user.ID, audit.EventUserLogin,
		"user", user.ID, map[string]any{"clientIp": c.ClientIP()})

	common.ResponseSuccess(c, LoginResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresIn:   token.ExpiresIn,
		UserID:      user.ID,
		Username:    user.Username,
		Roles:       user.RoleList(),
	})
}

// Logout 登出，令当前令牌失效
func (h *AuthHandler) Logout(c *gin.Context) {
	token := authsvc.ExtractTokenFromBearer(c.GetHeader("Authorization"))
	if token == "" {
		common.ResponseBadRequest(c, "缺少认证令牌")
		return
	}

	if err := h.jwtService.InvalidateToken(c.Request.Context(), token); err != nil {
		common.ResponseServerError(c, "")
		return
	}

	if userCtx, ok := authsvc.GetUserContext(c); ok {
		h.audit.LogAction(c.Request.Context(), userCtx.UserID, audit.EventUserLogout, "user", userCtx.UserID, nil)
	}

	common.ResponseSuccessMessage(c, "已登出", nil)
}
