package instrument

import (
	"errors"
	"fmt"
)

// DeviceError 单台仪器操作失败
type DeviceError struct {
	Role    Role
	Address string
	Op      string
	Err     error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s@%s %s: %v", e.Role, e.Address, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Faults 收集多台仪器的错误, 单个失败不影响后续操作
type Faults struct {
	errs []error
}

// Do 执行一次仪器操作并记录失败, 返回本次操作的错误
func (f *Faults) Do(role Role, address, op string, fn func() error) error {
	if err := contain(fn); err != nil {
		de := &DeviceError{Role: role, Address: address, Op: op, Err: err}
		f.errs = append(f.errs, de)
		return de
	}
	return nil
}

// Len 返回已记录的错误数
func (f *Faults) Len() int {
	return len(f.errs)
}

// Err 合并全部错误, 没有错误时返回 nil
func (f *Faults) Err() error {
	return errors.Join(f.errs...)
}

// contain 执行 fn, 把驱动中的 panic 转成错误
func contain(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
