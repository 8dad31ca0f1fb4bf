package sfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "a/b", normalizePath("/a/b"))
	require.Equal(t, "a/b", normalizePath("/a/b/"))
	require.Equal(t, "a/b", normalizePath("a/b"))
	require.Equal(t, "", normalizePath("/"))
}

func TestBaseOfAndParentOf(t *testing.T) {
	require.Equal(t, "b", baseOf("a/b"))
	require.Equal(t, "top", baseOf("top"))

	require.Equal(t, "a", parentOf("a/b"))
	require.Equal(t, "", parentOf("top"))
}
