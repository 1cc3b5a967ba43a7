package main

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"hive/pkg/catalog"
	"hive/pkg/session"
)

// builtinProtocols are installed into the catalog by `hive init`.
//
//go:embed protocols/*.md
var builtinProtocols embed.FS

// newInitCmd creates the "hive init" subcommand.
func newInitCmd(a *app) *cobra.Command {
	var (
		name      string
		workers   int
		workspace string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up the hive home and optionally create a first session",
		Long: `Creates the hive home ($HIVE_HOME or ~/.hive), writes config.yaml with the
defaults if no config exists, and installs the built-in protocol documents
that are not already present. With --name, also creates that session and
makes it active.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			reg, _, err := a.home()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(reg.Home(), 0o750); err != nil {
				return fmt.Errorf("create hive home: %w", err)
			}
			wrote, err := session.WriteDefaultConfig(reg.Home())
			if err != nil {
				return err
			}
			if wrote {
				fmt.Fprintf(w, "Wrote %s/%s\n", reg.Home(), session.ConfigYAML)
			}

			installed, err := installProtocols(protocolCatalog(reg))
			if err != nil {
				return err
			}
			if len(installed) > 0 {
				fmt.Fprintf(w, "Installed protocols: %s\n", strings.Join(installed, ", "))
			}

			if name == "" {
				fmt.Fprintf(w, "hive home ready at %s\n", reg.Home())
				return nil
			}
			_, cfg, err := a.home()
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.DefaultWorkers
			}
			if workspace == "" {
				if workspace, err = os.Getwd(); err != nil {
					return fmt.Errorf("get working directory: %w", err)
				}
			}
			s, err := reg.Create(name, workspace, workers, session.WithTmux(cfg.TmuxSession, cfg.TmuxWindow))
			if err != nil {
				return err
			}
			if err := reg.SetActive(s.Name); err != nil {
				return err
			}
			fmt.Fprintf(w, "Created session %s with %d workers (active)\n", s.Name, s.Workers)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "create a session with this name and make it active")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker count for --name (default: config default_workers)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace directory for --name (default: current directory)")
	return cmd
}

// installProtocols copies built-in protocol documents missing from cat and
// returns the names it installed.
func installProtocols(cat *catalog.Catalog) ([]string, error) {
	entries, err := fs.ReadDir(builtinProtocols, "protocols")
	if err != nil {
		return nil, fmt.Errorf("read built-in protocols: %w", err)
	}
	var installed []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".md")
		ok, err := cat.Exists(name)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		data, err := builtinProtocols.ReadFile(path.Join("protocols", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read built-in protocol %s: %w", name, err)
		}
		if err := cat.Add(name, string(data)); err != nil {
			return nil, err
		}
		installed = append(installed, name)
	}
	return installed, nil
}
