package tenant

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		id      string
		wantErr error
	}{
		{"acme", nil},
		{"tenantA", nil},
		{"client_b-2", nil},
		{"", ErrMissingTenant},
		{"acme corp", ErrInvalidTenant},
		{"../etc", ErrInvalidTenant},
		{"acmé", ErrInvalidTenant},
		{strings.Repeat("a", MaxIDLength+1), ErrInvalidTenant},
		{string([]byte{0xff, 0xfe}), ErrInvalidTenant},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := Validate(tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFromPath(t *testing.T) {
	root := filepath.Join("srv", "documents")

	id, err := FromPath(root, filepath.Join(root, "tenantA", "policy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "tenantA", id, "case is preserved")

	id, err = FromPath(root, filepath.Join(root, "acme", "2024", "claims.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "acme", id, "nested files belong to the first directory")

	_, err = FromPath(root, filepath.Join(root, "loose.txt"))
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = FromPath(root, filepath.Join("elsewhere", "acme", "x.txt"))
	assert.ErrorIs(t, err, ErrInvalidTenant)

	_, err = FromPath(root, filepath.Join(root, "bad name", "x.txt"))
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

func TestContext(t *testing.T) {
	_, err := FromContext(context.Background())
	assert.ErrorIs(t, err, ErrMissingTenant)

	id, err := FromContext(WithTenant(context.Background(), "acme"))
	require.NoError(t, err)
	assert.Equal(t, "acme", id)
}
