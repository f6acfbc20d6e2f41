package approval

import (
	"errors"
	"fmt"
)

// 领域错误，HTTP 映射只在 handler 层做
var (
	// ErrConfigurationNotFound (module, service) 没有审批配置
	ErrConfigurationNotFound = errors.New("审批配置不存在")
	// ErrNotFound 审批请求不存在
	ErrNotFound = errors.New("审批请求不存在")
	// ErrAuthorization 操作者不是当前审批人
	ErrAuthorization = errors.New("无权处理该审批请求")
	// ErrAlreadyDecided 请求已处于终态，不能重复决定
	ErrAlreadyDecided = errors.New("审批请求已处理")
	// ErrNotYetActive 级别还在等待上游批准，尚未轮到处理
	ErrNotYetActive = errors.New("尚未轮到该审批级别")
	// ErrVersionConflict 乐观锁冲突，并发修改了同一行
	ErrVersionConflict = errors.New("审批请求已被并发修改，请重试")
)

// ConfigurationError 配置不合法（级别格式错误、重复级别等）
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("审批配置错误: %s", e.Reason)
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// StorageError 底层存储失败，始终向上传播
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作失败 [%s]: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
