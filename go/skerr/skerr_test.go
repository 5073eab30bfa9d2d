package skerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var sentinel = errors.New("base error")

func TestWrap_ErrorsIsFindsSentinel(t *testing.T) {
	err := Wrap(sentinel)
	require.True(t, errors.Is(err, sentinel))
	require.Equal(t, sentinel, Unwrap(err))
}

func TestWrapf_MessageAndSentinelSurvive(t *testing.T) {
	err := Wrapf(sentinel, "loading user %d", 42)
	require.True(t, errors.Is(err, sentinel))
	require.Contains(t, err.Error(), "loading user 42")
	require.Contains(t, err.Error(), "base error")
	require.Contains(t, err.Error(), "skerr_test.go")
}

func TestWrap_NilIsNil(t *testing.T) {
	require.NoError(t, Wrap(nil))
	require.NoError(t, Wrapf(nil, "ignored"))
}

func TestFmt_IncludesStack(t *testing.T) {
	err := Fmt("bad value %q", "x")
	require.Contains(t, err.Error(), `bad value "x"`)
	require.Contains(t, err.Error(), "skerr_test.go")
}

func TestUnwrap_MultipleLayers(t *testing.T) {
	err := Wrapf(Wrap(fmt.Errorf("inner: %w", sentinel)), "outer")
	require.True(t, errors.Is(err, sentinel))
}
