package main

import (
	"io"

	"github.com/spf13/cobra"

	"coach-qa/internal/catalog"
	"coach-qa/internal/missions"
	"coach-qa/pkg/logging"
)

type globalOptions struct {
	missionsDir string
	mission     []string
	includeTags []string
	excludeTags []string
	logLevel    string
}

func newRootCmd(stdout, stderr io.Writer, environ []string) *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "coach-qa",
		Short: "Regression missions for the coaching backend",
		Long: `coach-qa runs declarative missions against the coaching backend at
$BACKEND_URL, acting as the principals configured through PRINCIPAL_<NAME>_EMAIL,
and writes JSON, JUnit and terminal reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(g.logLevel)
			if err != nil {
				return configError("--log-level: %v", err)
			}
			logging.InitForCLI(level, stderr)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.missionsDir, "missions", "", "Directory of mission YAML files (default: built-in missions)")
	pf.StringSliceVar(&g.mission, "mission", nil, "Mission names to select (repeatable, comma-separated)")
	pf.StringSliceVar(&g.includeTags, "include-tags", nil, "Only scenarios with any of these tags")
	pf.StringSliceVar(&g.excludeTags, "exclude-tags", nil, "Skip scenarios with any of these tags")
	pf.StringVar(&g.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(g, stdout, environ))
	root.AddCommand(newListCmd(g, stdout))
	return root
}

// load returns the catalog and the selected missions.
func (g *globalOptions) load() (*catalog.Catalog, error) {
	if g.missionsDir != "" {
		c, err := catalog.LoadDir(g.missionsDir)
		if err != nil {
			return nil, configError("load missions: %v", err)
		}
		return c, nil
	}
	c, err := missions.Load()
	if err != nil {
		return nil, configError("load built-in missions: %v", err)
	}
	return c, nil
}

func (g *globalOptions) selector() catalog.Selector {
	return catalog.Selector{Missions: g.mission, IncludeTags: g.includeTags, ExcludeTags: g.excludeTags}
}
