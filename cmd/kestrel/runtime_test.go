package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-build/kestrel/internal/config"
	kerrors "github.com/kestrel-build/kestrel/internal/errors"
)

func TestConfigSnapshotBytesIsStableUnderPropertyOrder(t *testing.T) {
	a := configSnapshotBytes("/p/project.kdl", "release", config.Profile{
		Properties: map[string]string{"cxx.std": "c++17", "build.type": "release"},
	})
	b := configSnapshotBytes("/p/project.kdl", "release", config.Profile{
		Properties: map[string]string{"build.type": "release", "cxx.std": "c++17"},
	})
	require.Equal(t, a, b)
}

func TestConfigSnapshotBytesDiffersOnProfileName(t *testing.T) {
	profile := config.Profile{Properties: map[string]string{"build.type": "release"}}
	a := configSnapshotBytes("/p/project.kdl", "release", profile)
	b := configSnapshotBytes("/p/project.kdl", "debug", profile)
	require.NotEqual(t, a, b)
}

func TestConfigSnapshotBytesDiffersOnPropertyValue(t *testing.T) {
	a := configSnapshotBytes("/p/project.kdl", "release", config.Profile{
		Properties: map[string]string{"build.type": "release"},
	})
	b := configSnapshotBytes("/p/project.kdl", "release", config.Profile{
		Properties: map[string]string{"build.type": "debug"},
	})
	require.NotEqual(t, a, b)
}

func TestExitCodeForConfigurationErrorIsUsageError(t *testing.T) {
	err := kerrors.NewConfigurationError("profile", "missing", []string{"debug", "release"}, nil)
	require.Equal(t, 2, exitCodeFor(err))
}

func TestExitCodeForCancelledErrorIsCancelledExit(t *testing.T) {
	err := kerrors.NewCancelledError("build")
	require.Equal(t, 3, exitCodeFor(err))
}

func TestExitCodeForOtherErrorIsGenericFailure(t *testing.T) {
	require.Equal(t, 1, exitCodeFor(errors.New("boom")))
	require.Equal(t, 1, exitCodeFor(kerrors.NewIOError("read", "/tmp/x", errors.New("denied"))))
}
