package fat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatdisko/fattest"
)

func TestVerifyChains__CleanVolumeHasNoFindings(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)

	f, err := vol.CreateFile("CLEAN.TXT")
	require.NoError(t, err)
	_, err = f.Write([]byte("nothing wrong here"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	findings, err := vol.Engine().VerifyChains(context.Background(), vol.Root())
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestVerifyChains__FindsLeakedCluster(t *testing.T) {
	vol := fattest.NewFAT12Floppy(t)
	eng := vol.Engine()

	// Allocate a cluster but never attach it to any directory entry --
	// a leak by construction.
	_, err := eng.AllocateOne()
	require.NoError(t, err)

	findings, err := eng.VerifyChains(context.Background(), vol.Root())
	require.NoError(t, err)

	var sawLeak bool
	for _, f := range findings {
		if f.Kind.String() == "leaked" {
			sawLeak = true
		}
	}
	require.True(t, sawLeak)
}
