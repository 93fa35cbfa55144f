package util

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrAttemptConflict   = errors.New("attempt id already used")
	ErrProfileExists     = errors.New("student profile already exists")
	ErrStudentBusy       = errors.New("another submission for this student is in progress")
	ErrPermissionDenied  = errors.New("permission denied")
)

// NotFoundError 试卷或学生画像不存在，终止本次提交
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func NewNotFound(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// PersistenceError 事务写入失败，整批回滚。Retryable 为 true 时调用方可用同一幂等键重试。
type PersistenceError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Retryable() bool {
	return e.Transient
}

// IsRetryable 判断错误链上是否有可重试的持久化错误
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Retryable()
}
