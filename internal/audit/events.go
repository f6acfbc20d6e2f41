package audit

// EventType 审计事件类型
type EventType string

// 认证相关事件
const (
	EventUserLogin       EventType = "user.login"        // 用户登录
	EventUserLoginFailed EventType = "user.login.failed" // 用户登录失败
	EventUserLogout      EventType = "user.logout"       // 用户登出
)

// 审批配置管理事件
const (
	EventConfigCreate  EventType = "approval.config.create"  // 创建审批配置
	EventConfigUpdate  EventType = "approval.config.update"  // 更新审批配置
	EventConfigDisable EventType = "approval.config.disable" // 停用审批配置
	EventConfigSeed    EventType = "approval.config.seed"    // 种子文件导入配置
)

// 审批数据管理事件
const (
	EventApprovalHardDelete EventType = "approval.request.hard_delete" // 硬删除终态审批记录
	EventSweepTrigger       EventType = "approval.sweep.trigger"       // 手动触发超时巡检
)

// GetEventDescription 获取事件描述
func GetEventDescription(eventType EventType) string {
	descriptions := map[EventType]string{
		EventUserLogin:       "用户登录",
		EventUserLoginFailed: "用户登录失败",
		EventUserLogout:      "用户登出",

		EventConfigCreate:  "创建审批配置",
		EventConfigUpdate:  "更新审批配置",
		EventConfigDisable: "停用审批配置",
		EventConfigSeed:    "种子文件导入审批配置",

		EventApprovalHardDelete: "硬删除终态审批记录",
		EventSweepTrigger:       "手动触发超时巡检",
	}

	if desc, exists := descriptions[eventType]; exists {
		return desc
	}
	return string(eventType)
}
