package approval

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/silahbo-jpg/sila-system-sub000/internal/common"
)

// ConfigRegistry 服务审批配置注册表，(module, service) 为 upsert 键。
// 配置只会被停用（requires_approval=false），不会被删除。
type ConfigRegistry struct {
	db *gorm.DB
}

// NewConfigRegistry 创建配置注册表
func NewConfigRegistry(db *gorm.DB) *ConfigRegistry {
	return &ConfigRegistry{db: db}
}

// ConfigInput 配置写入参数
type ConfigInput struct {
	ModuleName             string         `json:"moduleName" yaml:"module_name"`
	ServiceName            string         `json:"serviceName" yaml:"service_name"`
	EndpointPath           string         `json:"endpointPath" yaml:"endpoint_path"`
	ApprovalLevels         []LevelSpec    `json:"approvalLevels" yaml:"approval_levels"`
	ApprovalConditions     map[string]any `json:"approvalConditions" yaml:"approval_conditions"`
	DefaultTimeoutHours    int            `json:"defaultTimeoutHours" yaml:"default_timeout_hours"`
	EscalationTimeoutHours int            `json:"escalationTimeoutHours" yaml:"escalation_timeout_hours"`
}

// validate 校验级别配置：非空、级别合法、无重复级别、条件可解析
func (in *ConfigInput) validate() error {
	if in.ModuleName == "" || in.ServiceName == "" {
		return NewConfigurationError("module_name 和 service_name 不能为空")
	}
	if len(in.ApprovalLevels) == 0 {
		return NewConfigurationError("approval_levels 不能为空")
	}
	seen := make(map[ApprovalLevel]struct{})
	for _, spec := range in.ApprovalLevels {
		if !spec.Level.Valid() {
			return NewConfigurationError("非法审批级别 %q", spec.Level)
		}
		if _, dup := seen[spec.Level]; dup {
			// 同一配置内不允许重复级别
			return NewConfigurationError("审批级别 %s 重复", spec.Level)
		}
		seen[spec.Level] = struct{}{}
		if len(spec.ApproverIDs) == 0 && len(spec.ApproverRoles) == 0 {
			return NewConfigurationError("级别 %s 未配置审批人或审批角色", spec.Level)
		}
		if _, err := ParseCondition(spec.RequiredFor); err != nil {
			return err
		}
	}
	if _, err := ParseCondition(in.ApprovalConditions); err != nil {
		return err
	}
	return nil
}

// ConfigureServiceApproval 按 (module, service) upsert 审批配置。
// 已存在时覆盖级别、条件和超时并重新启用。
func (r *ConfigRegistry) ConfigureServiceApproval(ctx context.Context, in *ConfigInput) (*ServiceApprovalConfig, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if in.DefaultTimeoutHours <= 0 {
		in.DefaultTimeoutHours = 48
	}
	if in.EscalationTimeoutHours <= 0 {
		in.EscalationTimeoutHours = 24
	}

	var cfg ServiceApprovalConfig
	err := r.db.WithContext(ctx).
		Where("module_name = ? AND service_name = ?", in.ModuleName, in.ServiceName).
		First(&cfg).Error

	switch {
	case err == nil:
		cfg.EndpointPath = in.EndpointPath
		cfg.RequiresApproval = true
		cfg.ApprovalLevels = in.ApprovalLevels
		cfg.ApprovalConditions = in.ApprovalConditions
		cfg.DefaultTimeoutHours = in.DefaultTimeoutHours
		cfg.EscalationTimeoutHours = in.EscalationTimeoutHours
		cfg.UpdatedAt = time.Now().UTC()
		if err := r.db.WithContext(ctx).Save(&cfg).Error; err != nil {
			return nil, wrapStorage("更新审批配置", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		cfg = ServiceApprovalConfig{
			ID:                     uuid.New().String(),
			ModuleName:             in.ModuleName,
			ServiceName:            in.ServiceName,
			EndpointPath:           in.EndpointPath,
			RequiresApproval:       true,
			ApprovalLevels:         in.ApprovalLevels,
			ApprovalConditions:     in.ApprovalConditions,
			DefaultTimeoutHours:    in.DefaultTimeoutHours,
			EscalationTimeoutHours: in.EscalationTimeoutHours,
		}
		if err := r.db.WithContext(ctx).Create(&cfg).Error; err != nil {
			return nil, wrapStorage("创建审批配置", err)
		}
	default:
		return nil, wrapStorage("查询审批配置", err)
	}

	return &cfg, nil
}

// GetConfig 按键查询配置，不存在返回 ErrConfigurationNotFound
func (r *ConfigRegistry) GetConfig(ctx context.Context, module, service string) (*ServiceApprovalConfig, error) {
	var cfg ServiceApprovalConfig
	err := r.db.WithContext(ctx).
		Scopes(common.ByModule(module), common.ByService(service)).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigurationNotFound
		}
		return nil, wrapStorage("查询审批配置", err)
	}
	return &cfg, nil
}

// ListConfigs 列出全部配置
func (r *ConfigRegistry) ListConfigs(ctx context.Context, module string) ([]ServiceApprovalConfig, error) {
	var configs []ServiceApprovalConfig
	query := r.db.WithContext(ctx).
		Scopes(common.ByModule(module)).
		Order("module_name ASC, service_name ASC")
	if err := query.Find(&configs).Error; err != nil {
		return nil, wrapStorage("列出审批配置", err)
	}
	return configs, nil
}

// DisableConfig 停用配置（保留记录）
func (r *ConfigRegistry) DisableConfig(ctx context.Context, module, service string) error {
	result := r.db.WithContext(ctx).
		Model(&ServiceApprovalConfig{}).
		Where("module_name = ? AND service_name = ?", module, service).
		Updates(map[string]any{
			"requires_approval": false,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStorage("停用审批配置", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConfigurationNotFound
	}
	return nil
}

// seedFile 种子配置文件结构
type seedFile struct {
	Configs []ConfigInput `yaml:"configs"`
}

// LoadSeedFile 从 YAML 文件加载并 upsert 种子配置，文件不存在时静默跳过
func (r *ConfigRegistry) LoadSeedFile(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, NewConfigurationError("解析种子配置失败: %v", err)
	}

	count := 0
	for i := range seed.Configs {
		if _, err := r.ConfigureServiceApproval(ctx, &seed.Configs[i]); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
