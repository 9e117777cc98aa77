package mimex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkarpov/filevault/internal/common"
)

func TestNewValidator_NoPatterns(t *testing.T) {
	_, err := NewValidator("")
	assert.Error(t, err)

	_, err = NewValidator(" , ,")
	assert.Error(t, err)
}

func TestValidate_WildcardAndExact(t *testing.T) {
	v, err := NewValidator("image/*,application/pdf")
	require.NoError(t, err)

	assert.NoError(t, v.Validate("image/png"))
	assert.NoError(t, v.Validate("image/jpeg"))
	assert.NoError(t, v.Validate("application/pdf"))

	assert.ErrorIs(t, v.Validate("application/zip"), common.ErrUnsupportedContentType)
	assert.ErrorIs(t, v.Validate("text/plain"), common.ErrUnsupportedContentType)
	// "image" alone must not match "image/*".
	assert.ErrorIs(t, v.Validate("image"), common.ErrUnsupportedContentType)
}

func TestValidate_CaseInsensitive(t *testing.T) {
	v, err := NewValidator("IMAGE/*,Application/PDF")
	require.NoError(t, err)

	assert.NoError(t, v.Validate("Image/PNG"))
	assert.NoError(t, v.Validate("application/pdf"))
}

func TestValidate_PatternsTrimmed(t *testing.T) {
	v, err := NewValidator(" image/* , application/pdf ")
	require.NoError(t, err)

	assert.NoError(t, v.Validate("image/gif"))
	assert.NoError(t, v.Validate("application/pdf"))
}

func TestValidate_Blank(t *testing.T) {
	v, err := NewValidator("image/*")
	require.NoError(t, err)

	assert.ErrorIs(t, v.Validate(""), common.ErrUnsupportedContentType)
	assert.ErrorIs(t, v.Validate("   "), common.ErrUnsupportedContentType)
}
