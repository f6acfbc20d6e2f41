package common

import "gorm.io/gorm"

// ByModule 按模块名过滤
// 使用方法：db.Scopes(common.ByModule("finance")).Find(&requests)
func ByModule(moduleName string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if moduleName == "" {
			return db
		}
		return db.Where("module_name = ?", moduleName)
	}
}

// ByService 按服务名过滤
func ByService(serviceName string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if serviceName == "" {
			return db
		}
		return db.Where("service_name = ?", serviceName)
	}
}

// ByStatus 按状态过滤
func ByStatus(status string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if status == "" {
			return db
		}
		return db.Where("status = ?", status)
	}
}

// ByWorkflow 按审批流ID过滤
func ByWorkflow(workflowID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("workflow_id = ?", workflowID)
	}
}

// EnabledOnly 仅查询启用的记录
func EnabledOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("requires_approval = ?", true)
	}
}
