package tasks

// Task Types
const (
	TypeSweepOverdue = "approval:sweep_overdue"
)

// SweepOverduePayload 超时扫描任务载荷
type SweepOverduePayload struct {
	// TriggeredBy 触发来源：scheduler 或发起手工扫描的管理员 ID
	TriggeredBy string `json:"triggered_by"`
}
