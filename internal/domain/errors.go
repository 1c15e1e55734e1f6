package domain

import (
	"errors"
	"fmt"
)

// 冲突类型（非法状态流转）
const (
	ConflictStageSequence    = "StageSequenceViolation" // 非法工序跳转
	ConflictQuantityExceeded = "QuantityExceeded"       // 流转数量超过在制数量
	ConflictBatchClosed      = "BatchClosed"            // 对已冻结批次的变更
	ConflictAlertResolved    = "AlertResolved"          // 对已解除报警的确认
)

// ValidationError 输入校验错误（同步拒绝，永不部分应用）
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidationError 创建校验错误
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StateConflictError 状态冲突（调用方需重新读取当前状态后重试）
type StateConflictError struct {
	Kind   string // ConflictStageSequence / ConflictQuantityExceeded / ConflictBatchClosed
	Detail string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// NewStateConflict 创建状态冲突错误
func NewStateConflict(kind, format string, args ...interface{}) error {
	return &StateConflictError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// NotFoundError 实体不存在
type NotFoundError struct {
	Entity string // "batch" / "machine" / "alert" / "routing" / "stage"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// NewNotFound 创建未找到错误
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// DurabilityError 持久化追加失败（唯一会被摄入层自动重试的错误类）
type DurabilityError struct {
	Op  string
	Err error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durable append failed (%s): %v", e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsStateConflict 判断是否为状态冲突
func IsStateConflict(err error) bool {
	var c *StateConflictError
	return errors.As(err, &c)
}

// IsNotFound 判断是否为未找到
func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

// IsDurability 判断是否为持久化失败
func IsDurability(err error) bool {
	var d *DurabilityError
	return errors.As(err, &d)
}
