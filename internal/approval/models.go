package approval

import (
	"time"

	"gorm.io/datatypes"
)

// ApprovalLevel 审批级别，level_1 < level_2 < level_3 < level_4
type ApprovalLevel string

const (
	Level1 ApprovalLevel = "level_1"
	Level2 ApprovalLevel = "level_2"
	Level3 ApprovalLevel = "level_3"
	Level4 ApprovalLevel = "level_4"
)

// levelOrders 级别的全序，决定升级顺序
var levelOrders = map[ApprovalLevel]int{
	Level1: 1,
	Level2: 2,
	Level3: 3,
	Level4: 4,
}

// Order 返回级别序号，未知级别返回 0
func (l ApprovalLevel) Order() int {
	return levelOrders[l]
}

// Valid 级别是否合法
func (l ApprovalLevel) Valid() bool {
	_, ok := levelOrders[l]
	return ok
}

// ApprovalStatus 审批状态
type ApprovalStatus string

const (
	// StatusWaiting 级别已创建但尚未轮到（非首级的初始状态）
	StatusWaiting ApprovalStatus = "waiting"
	// StatusPending 当前待审批
	StatusPending ApprovalStatus = "pending"
	// StatusApproved 已批准
	StatusApproved ApprovalStatus = "approved"
	// StatusRejected 已拒绝
	StatusRejected ApprovalStatus = "rejected"
	// StatusEscalated 超时升级后仍然存活
	StatusEscalated ApprovalStatus = "escalated"
	// StatusExpired 超时失效
	StatusExpired ApprovalStatus = "expired"
	// StatusCancelled 已取消
	StatusCancelled ApprovalStatus = "cancelled"
)

// Terminal 是否为终态
func (s ApprovalStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Live 是否为存活的当前关卡状态
func (s ApprovalStatus) Live() bool {
	return s == StatusPending || s == StatusEscalated
}

// 审计动作常量
const (
	ActionRequestCreated  = "request_created"
	ActionApproved        = "approved"
	ActionAutoApproved    = "auto_approved"
	ActionRejected        = "rejected"
	ActionRejectedCascade = "rejected_cascade"
	ActionEscalatedToNext = "escalated_to_next_level"
	ActionEscalated       = "escalated"
	ActionExpired         = "expired"
	ActionExpiredCascade  = "expired_cascade"
	ActionCancelled       = "cancelled"
	ActionHardDeleted     = "hard_deleted"
)

// LevelSpec 单个审批级别的配置
type LevelSpec struct {
	Level           ApprovalLevel  `json:"level" yaml:"level"`
	ApproverIDs     []string       `json:"approverIds,omitempty" yaml:"approver_ids"`
	ApproverRoles   []string       `json:"approverRoles,omitempty" yaml:"approver_roles"`
	Required        bool           `json:"required" yaml:"required"`
	RequiredFor     map[string]any `json:"requiredFor,omitempty" yaml:"required_for"`
	TimeoutHours    int            `json:"timeoutHours,omitempty" yaml:"timeout_hours"`
	AutoApproveExpr string         `json:"autoApproveExpr,omitempty" yaml:"auto_approve_expr"`
}

// ServiceApprovalConfig 服务审批配置，(module_name, service_name) 唯一
type ServiceApprovalConfig struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	ModuleName   string `json:"moduleName" gorm:"size:100;not null;uniqueIndex:idx_service_approval_module_service"`
	ServiceName  string `json:"serviceName" gorm:"size:100;not null;uniqueIndex:idx_service_approval_module_service"`
	EndpointPath string `json:"endpointPath" gorm:"size:255"`

	RequiresApproval bool `json:"requiresApproval" gorm:"default:true"`

	// ApprovalLevels 按声明顺序排列的级别配置
	ApprovalLevels []LevelSpec `json:"approvalLevels" gorm:"type:jsonb;serializer:json"`
	// ApprovalConditions 全局门槛条件，为空表示只要配置存在就需要审批
	ApprovalConditions map[string]any `json:"approvalConditions,omitempty" gorm:"type:jsonb;serializer:json"`

	DefaultTimeoutHours    int `json:"defaultTimeoutHours" gorm:"default:48"`
	EscalationTimeoutHours int `json:"escalationTimeoutHours" gorm:"default:24"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (ServiceApprovalConfig) TableName() string {
	return "service_approval_configs"
}

// ApprovalRequest 审批请求，一条记录对应一个工作流实例的一个级别
type ApprovalRequest struct {
	ID               string `json:"id" gorm:"primaryKey;type:uuid"`
	ServiceRequestID string `json:"serviceRequestId" gorm:"size:100;not null;index"`
	ModuleName       string `json:"moduleName" gorm:"size:100;not null;index"`
	ServiceName      string `json:"serviceName" gorm:"size:100;not null"`
	RequesterID      string `json:"requesterId" gorm:"size:100;not null;index"`

	// 链结构
	WorkflowID    string        `json:"workflowId" gorm:"type:uuid;not null;index"`
	ApprovalLevel ApprovalLevel `json:"approvalLevel" gorm:"size:20;not null"`
	LevelOrder    int           `json:"levelOrder" gorm:"not null"`
	IsFinalLevel  bool          `json:"isFinalLevel" gorm:"default:false"`
	NextLevelID   *string       `json:"nextLevelId,omitempty" gorm:"type:uuid"`

	// 审批信息
	Status            ApprovalStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	CurrentApproverID string         `json:"currentApproverId" gorm:"size:100;index"`
	ApproverComments  string         `json:"approverComments" gorm:"type:text"`
	RejectionReason   string         `json:"rejectionReason" gorm:"type:text"`
	Justification     string         `json:"justification" gorm:"type:text"`

	// RequestData 发起时的载荷快照
	RequestData datatypes.JSONMap `json:"requestData" gorm:"type:jsonb"`

	// 时限
	DueDate    *time.Time `json:"dueDate"`
	ApprovedAt *time.Time `json:"approvedAt"`

	// Version 乐观锁版本号，approve/reject 以版本匹配更新
	Version int `json:"version" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// ApprovalHistory 审批历史，追加写入，永不更新或删除
type ApprovalHistory struct {
	ID                string `json:"id" gorm:"primaryKey;type:uuid"`
	ApprovalRequestID string `json:"approvalRequestId" gorm:"type:uuid;not null;index"`
	WorkflowID        string `json:"workflowId" gorm:"type:uuid;index"`

	Action   string `json:"action" gorm:"size:50;not null"`
	ActorID  string `json:"actorId" gorm:"size:100"`
	Comments string `json:"comments" gorm:"type:text"`
	Reason   string `json:"reason" gorm:"type:text"`

	ActionData datatypes.JSONMap `json:"actionData,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

func (ApprovalHistory) TableName() string {
	return "approval_histories"
}

// Metrics 审批指标汇总，供外部看板消费
type Metrics struct {
	TotalRequests  int64 `json:"totalRequests"`
	PendingCount   int64 `json:"pendingCount"`
	ApprovedCount  int64 `json:"approvedCount"`
	RejectedCount  int64 `json:"rejectedCount"`
	EscalatedCount int64 `json:"escalatedCount"`
	ExpiredCount   int64 `json:"expiredCount"`
	CancelledCount int64 `json:"cancelledCount"`

	// ApprovalRate approved / (approved + rejected)，无已决请求时为 0
	ApprovalRate float64 `json:"approvalRate"`
	// AvgApprovalHours 已批准请求的平均耗时（小时）
	AvgApprovalHours float64 `json:"avgApprovalHours"`
	// ServicesRequiringApprovalPct 启用审批的服务配置占比
	ServicesRequiringApprovalPct float64 `json:"servicesRequiringApprovalPct"`
}
