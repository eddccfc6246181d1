package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mwaldstein/qipu/internal/id"
	"github.com/mwaldstein/qipu/internal/note"
)

var (
	flagCreateType        string
	flagCreateTags        []string
	flagCreateSummary     string
	flagCreateEdit        bool
	flagCreateInteractive bool
)

var createCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new note",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.Join(args, " ")
		if title == "" || flagCreateInteractive {
			filled, err := runCreateForm(title)
			if err != nil {
				return err
			}
			title = filled.title
			if flagCreateType == "" {
				flagCreateType = filled.noteType
			}
			if len(flagCreateTags) == 0 {
				flagCreateTags = filled.tags
			}
			if flagCreateSummary == "" {
				flagCreateSummary = filled.summary
			}
		}
		if title == "" {
			return newUsageError("a title is required")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		exists := func(candidate string) bool { return st.Idx.Metadata[candidate].ID != "" }
		scheme := id.Scheme(s.Config.IDScheme)
		newID, err := id.Generate(scheme, title, now(), exists)
		if err != nil {
			return err
		}

		noteType := flagCreateType
		if noteType == "" {
			noteType = s.Config.DefaultNoteType
		}

		n := &note.Note{Frontmatter: note.Frontmatter{
			ID: newID, Title: title, NoteType: noteType, Tags: flagCreateTags,
			Summary: flagCreateSummary, Created: now(),
		}}
		if _, err := s.Save(n, now()); err != nil {
			return err
		}

		if flagCreateEdit {
			if err := openInEditor(s.Config.ResolveEditor(), s.Root+"/"+n.Path); err != nil {
				return err
			}
		}

		if !flagQuiet {
			fmt.Println(newID)
		}
		return nil
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture <title> [body text...]",
	Short: "Quickly capture a fleeting note with inline body text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := args[0]
		body := ""
		if len(args) > 1 {
			body = strings.Join(args[1:], " ")
		}
		s, err := openStore()
		if err != nil {
			return err
		}
		st, err := loadState(s)
		if err != nil {
			return err
		}

		exists := func(candidate string) bool { return st.Idx.Metadata[candidate].ID != "" }
		newID, err := id.Generate(id.Scheme(s.Config.IDScheme), title, now(), exists)
		if err != nil {
			return err
		}

		n := &note.Note{Frontmatter: note.Frontmatter{
			ID: newID, Title: title, NoteType: note.TypeFleeting, Created: now(),
		}, Body: body}
		if _, err := s.Save(n, now()); err != nil {
			return err
		}
		if !flagQuiet {
			fmt.Println(newID)
		}
		return nil
	},
}

// createFormValues holds the fields collected by the interactive form,
// separately from the persisted Note so the form can be unit-tested
// independently of storage (mirrors the teacher's create_form.go split
// between raw form input and parsed values).
type createFormValues struct {
	title    string
	noteType string
	tags     []string
	summary  string
}

// runCreateForm prompts interactively for any fields not already supplied
// via flags/args, using the same huh form library and group/field layout
// the teacher's cmd/bd/create_form.go uses for issue creation.
func runCreateForm(title string) (createFormValues, error) {
	var tagsRaw string
	values := createFormValues{title: title, noteType: flagCreateType, summary: flagCreateSummary}
	if len(flagCreateTags) > 0 {
		tagsRaw = strings.Join(flagCreateTags, ",")
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Title").Value(&values.title),
			huh.NewInput().Title("Note type (blank for default)").Value(&values.noteType),
			huh.NewInput().Title("Tags (comma-separated)").Value(&tagsRaw),
			huh.NewText().Title("Summary").Value(&values.summary),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if err == huh.ErrUserAborted {
			return createFormValues{}, newUsageError("create cancelled")
		}
		return createFormValues{}, fmt.Errorf("create: running form: %w", err)
	}

	if tagsRaw != "" {
		for _, t := range strings.Split(tagsRaw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				values.tags = append(values.tags, t)
			}
		}
	}
	return values, nil
}

func openInEditor(editor, path string) error {
	cmd := exec.Command(editor, path)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	return cmd.Run()
}

func init() {
	createCmd.Flags().StringVar(&flagCreateType, "type", "", "note type (default: config default_note_type)")
	createCmd.Flags().StringSliceVar(&flagCreateTags, "tags", nil, "comma-separated tags")
	createCmd.Flags().StringVar(&flagCreateSummary, "summary", "", "one-line summary")
	createCmd.Flags().BoolVar(&flagCreateEdit, "edit", false, "open the new note in $EDITOR after creation")
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(captureCmd)
}
