package missions_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coach-qa/internal/catalog"
	"coach-qa/internal/missions"
)

func TestLoad_BuiltinsParse(t *testing.T) {
	c, err := missions.Load()
	require.NoError(t, err)

	names := []string{}
	for _, m := range c.Missions() {
		names = append(names, m.Name)
	}
	require.ElementsMatch(t, []string{
		"health", "reservations", "multi-coach-isolation", "media-links",
		"campaign-scheduler", "credits", "discount-codes", "chat",
	}, names)

	iso, ok := c.Mission("multi-coach-isolation")
	require.True(t, ok)
	require.Equal(t, "partner", iso.Scenarios[0].Principal)
	require.Contains(t, iso.Scenarios[0].Tags, "isolation")
}

func TestLoad_SmokeSelection(t *testing.T) {
	c, err := missions.Load()
	require.NoError(t, err)
	sel, err := c.Select(catalog.Selector{IncludeTags: []string{"smoke"}, ExcludeTags: []string{"slow"}})
	require.NoError(t, err)
	for _, m := range sel {
		require.NotEqual(t, "campaign-scheduler", m.Name)
		for _, sc := range m.Scenarios {
			require.Contains(t, sc.Tags, "smoke")
		}
	}
}
