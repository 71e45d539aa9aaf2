package safe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMatAccessAndClose(t *testing.T) {
	m, err := NewTaggedMat(2, 3, gocv.MatTypeCV32F, "grid")
	require.NoError(t, err)

	require.NoError(t, m.SetFloatAt(1, 2, 4.5))
	v, err := m.GetFloatAt(1, 2)
	require.NoError(t, err)
	assert.Equal(t, float32(4.5), v)

	_, err = m.GetFloatAt(2, 0)
	assert.ErrorContains(t, err, "grid")
	assert.NoError(t, ValidateSingleChannel(m, "blur", gocv.MatTypeCV32F))
	assert.Error(t, ValidateSingleChannel(m, "canny", gocv.MatTypeCV8U))

	m.Close()
	m.Close()
	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	_, err = m.GetFloatAt(0, 0)
	assert.Error(t, err)
	assert.Error(t, ValidateMatForOperation(m, "blur"))
}

func TestNewMatRejectsBadDimensions(t *testing.T) {
	_, err := NewMat(0, 4, gocv.MatTypeCV8U)
	assert.Error(t, err)
	_, err = NewMat(4, 40000, gocv.MatTypeCV8U)
	assert.Error(t, err)
}
