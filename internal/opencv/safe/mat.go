package safe

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"
)

// Mat owns a gocv.Mat and releases it exactly once, either through Close or
// through the finalizer when the owner forgets.
type Mat struct {
	mat     gocv.Mat
	isValid int32
	mu      sync.RWMutex
	tag     string
}

func NewMat(rows, cols int, matType gocv.MatType) (*Mat, error) {
	return NewTaggedMat(rows, cols, matType, "")
}

func NewTaggedMat(rows, cols int, matType gocv.MatType, tag string) (*Mat, error) {
	if err := ValidateDimensions(cols, rows, tag); err != nil {
		return nil, err
	}

	mat := gocv.NewMatWithSize(rows, cols, matType)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to create Mat with size %dx%d", cols, rows)
	}
	return wrap(mat, tag), nil
}

// Wrap takes ownership of mat without copying it.
func Wrap(mat gocv.Mat, tag string) (*Mat, error) {
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("source Mat is empty")
	}
	return wrap(mat, tag), nil
}

func wrap(mat gocv.Mat, tag string) *Mat {
	safeMat := &Mat{
		mat:     mat,
		isValid: 1,
		tag:     tag,
	}
	runtime.SetFinalizer(safeMat, (*Mat).finalize)
	return safeMat
}

func (sm *Mat) IsValid() bool {
	return atomic.LoadInt32(&sm.isValid) == 1
}

func (sm *Mat) Empty() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return true
	}
	return sm.mat.Empty()
}

func (sm *Mat) Rows() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Rows()
}

func (sm *Mat) Cols() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return 0
	}
	return sm.mat.Cols()
}

func (sm *Mat) Type() gocv.MatType {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.IsValid() {
		return gocv.MatTypeCV8UC1
	}
	return sm.mat.Type()
}

func (sm *Mat) GetUCharAt(row, col int) (uint8, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkAccess(row, col); err != nil {
		return 0, err
	}
	return sm.mat.GetUCharAt(row, col), nil
}

func (sm *Mat) SetUCharAt(row, col int, value uint8) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkAccess(row, col); err != nil {
		return err
	}
	sm.mat.SetUCharAt(row, col, value)
	return nil
}

func (sm *Mat) GetFloatAt(row, col int) (float32, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkAccess(row, col); err != nil {
		return 0, err
	}
	return sm.mat.GetFloatAt(row, col), nil
}

func (sm *Mat) SetFloatAt(row, col int, value float32) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if err := sm.checkAccess(row, col); err != nil {
		return err
	}
	sm.mat.SetFloatAt(row, col, value)
	return nil
}

func (sm *Mat) GetIntAt(row, col int) (int32, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if err := sm.checkAccess(row, col); err != nil {
		return 0, err
	}
	return sm.mat.GetIntAt(row, col), nil
}

func (sm *Mat) checkAccess(row, col int) error {
	if !sm.IsValid() {
		return fmt.Errorf("Mat is invalid")
	}
	return ValidateCoordinates(row, col, sm.mat.Rows(), sm.mat.Cols(), sm.tag)
}

func (sm *Mat) GetMat() gocv.Mat {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return sm.mat
}

func (sm *Mat) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if atomic.CompareAndSwapInt32(&sm.isValid, 1, 0) {
		if !sm.mat.Empty() {
			sm.mat.Close()
		}
		runtime.SetFinalizer(sm, nil)
	}
}

func (sm *Mat) finalize() {
	if atomic.LoadInt32(&sm.isValid) == 1 {
		sm.Close()
	}
}
