package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"adorable/internal/app"
	"adorable/internal/events"
	"adorable/internal/fileutil"
	"adorable/internal/highlight"
	"adorable/internal/store"
	"adorable/internal/ui"
)

// errRunFailed marks a run whose error was already shown to the user.
var errRunFailed = errors.New("run failed")

type outputFlags struct {
	tui  bool
	json bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.tui, "tui", false, "show an interactive progress view")
	cmd.Flags().BoolVar(&o.json, "json", false, "print events as line-delimited JSON")
}

// follow displays stream until done. It returns errRunFailed when the run
// ended with an error event.
func follow(ctx context.Context, stream *events.Stream, out outputFlags) error {
	if out.tui {
		final, err := ui.RunProgress(stream.Events())
		stream.Abandon()
		if err != nil {
			return err
		}
		if final.Failed() {
			return errRunFailed
		}
		return nil
	}

	var w events.Writer
	if out.json {
		w = events.NewNDJSONWriter(os.Stdout)
	} else {
		w = ui.NewRenderer(os.Stdout, ui.WithMarkdown(100))
	}

	failed := false
	err := events.Pump(ctx, stream, events.WriterFunc(func(ev events.Event) error {
		if ev.Type == events.TypeError {
			failed = true
		}
		return w.Write(ev)
	}))
	if err != nil {
		return err
	}
	if failed {
		return errRunFailed
	}
	return nil
}

func newGenerateCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Create a project from a prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := buildApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			stream := a.Orchestrator.NewStream()
			go a.Orchestrator.Generate(cmd.Context(), strings.Join(args, " "), stream)
			return follow(cmd.Context(), stream, out)
		},
	}
	out.register(cmd)
	return cmd
}

func newEditCmd() *cobra.Command {
	var out outputFlags

	cmd := &cobra.Command{
		Use:   "edit <project-id> <message>",
		Short: "Change a project and build a new version",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := buildApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			stream := a.Orchestrator.NewStream()
			go a.Orchestrator.Edit(cmd.Context(), args[0], strings.Join(args[1:], " "), nil, stream)
			return follow(cmd.Context(), stream, out)
		},
	}
	out.register(cmd)
	return cmd
}

// openStore opens the version store without wiring the pipeline, so
// read-only commands work without provider credentials.
func openStore() (store.Store, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	return app.OpenStore(cfg)
}

// resolveVersion returns the requested version of a project, or its
// current version when versionID is empty.
func resolveVersion(ctx context.Context, st store.Store, projectID, versionID string) (*store.Version, error) {
	p, err := st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if versionID == "" {
		versionID = p.CurrentVersionID
	}
	if versionID == "" {
		return nil, fmt.Errorf("project %s has no versions yet", projectID)
	}
	v, err := st.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.ProjectID != p.ID {
		return nil, fmt.Errorf("version %s does not belong to project %s", versionID, projectID)
	}
	return v, nil
}

func newVersionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions <project-id>",
		Short: "List the versions of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			p, err := st.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			versions, err := st.ListVersions(ctx, p.ID)
			if err != nil {
				return err
			}

			styles := ui.DefaultStyles()
			fmt.Printf("%s  %s  %s\n", styles.Path.Render(p.Name), p.Status, p.ID)
			if p.Sandbox != nil && p.Sandbox.Address != "" {
				fmt.Printf("preview: %s\n", p.Sandbox.Address)
			}

			rows := make([][]string, 0, len(versions))
			for _, v := range versions {
				current := ""
				if v.ID == p.CurrentVersionID {
					current = "*"
				}
				build := "passed"
				if !v.BuildPassed {
					build = "failing"
				}
				rows = append(rows, []string{
					current,
					v.ID,
					v.CreatedAt.Local().Format("2006-01-02 15:04"),
					build,
					fmt.Sprint(len(v.Files)),
					truncate(v.Prompt, 48),
				})
			}
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				Headers("", "VERSION", "CREATED", "BUILD", "FILES", "PROMPT").
				Rows(rows...)
			fmt.Println(t.String())
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	var (
		versionID string
		style     string
		copyOut   bool
	)

	cmd := &cobra.Command{
		Use:   "show <project-id> [path]",
		Short: "Print the files of a version",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := resolveVersion(cmd.Context(), st, args[0], versionID)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				for _, p := range v.Files.Paths() {
					fmt.Printf("%s  %d bytes\n", p, len(v.Files[p]))
				}
				return nil
			}

			content, ok := v.Files[args[1]]
			if !ok {
				return fmt.Errorf("file %s not found in version %s", args[1], v.ID)
			}
			if copyOut {
				if err := ui.CopyToClipboard(content); err != nil {
					return fmt.Errorf("copy to clipboard: %w", err)
				}
				fmt.Printf("%s copied to clipboard\n", args[1])
				return nil
			}
			fmt.Print(highlight.New(style).File(args[1], content))
			return nil
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "version id (default is the current version)")
	cmd.Flags().StringVar(&style, "style", "monokai", "highlight style")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "copy the file to the clipboard instead of printing it")
	return cmd
}

func newExportCmd() *cobra.Command {
	var versionID string

	cmd := &cobra.Command{
		Use:   "export <project-id> <dir>",
		Short: "Write the files of a version to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			v, err := resolveVersion(cmd.Context(), st, args[0], versionID)
			if err != nil {
				return err
			}
			res, err := fileutil.ExportFileSet(args[1], v.Files)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}

			icons := ui.MessageIcons
			for _, p := range res.Removed {
				fmt.Println(icons["delete"], p)
			}
			fmt.Printf("%s exported %d files of version %s to %s\n", icons["success"], len(res.Written), v.ID, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "version id (default is the current version)")
	return cmd
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
