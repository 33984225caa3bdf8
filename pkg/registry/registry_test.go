package registry

import (
	"testing"

	"github.com/defvar/toy/pkg/types"
	"github.com/stretchr/testify/require"
)

type stubFactory struct{}

func (stubFactory) NewContext(_ types.ServiceType, _ []byte) (Context, error) { return nil, nil }
func (stubFactory) NewService(_ types.ServiceType, _ Context) (Service, error) {
	return nil, nil
}

func TestRegisterAndHas(t *testing.T) {
	r := NewRegistry()
	st := types.ServiceType{Namespace: "builtin", Name: "noop"}

	require.False(t, r.Has(st))

	r.Register(st, stubFactory{})
	require.True(t, r.Has(st))

	f, err := r.Factory(st)
	require.NoError(t, err)
	require.NotNil(t, f)
}

func TestFactoryUnknownServiceType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Factory(types.ServiceType{Namespace: "x", Name: "y"})
	require.Error(t, err)
}
