package client

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A solo simulation has nobody to direct-message; every utterance must
// be a broadcast so the run terminates.
func TestSimPhraseSoloClientBroadcastsOnly(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	handles := []string{"simclient_0"}

	for i := 0; i < 100; i++ {
		assert.Equal(t, "broadcast good morning from simclient_0", simPhrase(rng, handles, 0))
	}
}

func TestSimPhraseNeverTargetsSelf(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	handles := []string{"simclient_0", "simclient_1", "simclient_2"}

	for i := 0; i < 200; i++ {
		phrase := simPhrase(rng, handles, 1)
		assert.NotContains(t, phrase, "to simclient_1 ")
	}
}

// Every phrase the script produces must survive the rewriter and the
// command parser, or runSimClient would abort mid-run.
func TestSimPhraseRewritesCleanly(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	handles := []string{"simclient_0", "simclient_1"}
	rewriter := NewRewriter()

	for i := 0; i < 50; i++ {
		phrase := simPhrase(rng, handles, 0)
		command, err := rewriter.Rewrite(phrase)
		require.NoError(t, err, "phrase %q", phrase)

		cmd, err := ParseCommand(command)
		require.NoError(t, err, "command %q", command)
		require.True(t, cmd.Kind == CmdDirect || cmd.Kind == CmdBroadcast)
		if cmd.Kind == CmdDirect {
			require.Len(t, cmd.Destinations, 1)
			assert.False(t, strings.EqualFold(cmd.Destinations[0], handles[0]))
		}
	}
}
