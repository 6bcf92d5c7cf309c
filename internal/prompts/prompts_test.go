package prompts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGames_Prompts_Load(t *testing.T) {
	t.Parallel()

	p, err := Load("games", []string{"name", "na_sales"})
	require.NoError(t, err)

	for _, name := range []string{"generate", "summarize", "lookup"} {
		require.NotEmpty(t, p.GetPrompt(name), name)
	}
	require.Empty(t, p.GetPrompt("unknown"))

	require.Contains(t, p.Generate, "- name\n- na_sales")
	require.Contains(t, p.Lookup, "`games`")
	require.NotContains(t, p.Generate, "{{")
	require.NotContains(t, p.Lookup, "{{")
}
