package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/syncengine"
	"github.com/fastygo/guild-designer/internal/designer/tree"
	"github.com/fastygo/guild-designer/internal/designer/widgets"
)

// failures collects error notifications. Actions started from the bus report failures
// only this way.
type failures struct {
	mu   sync.Mutex
	msgs []string
}

func watchFailures(bus *eventbus.Bus) (*failures, func()) {
	f := &failures{}
	off := eventbus.On(bus, events.Notification, func(e events.NotificationEvent) {
		if e.Level != events.LevelError {
			return
		}
		f.mu.Lock()
		f.msgs = append(f.msgs, e.Message)
		f.mu.Unlock()
	})
	return f, off
}

func (f *failures) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(f.msgs, "; "))
}

// withSession opens a session, runs fn and closes the session. Close errors only surface
// when fn succeeded.
func (a *app) withSession(cmd *cobra.Command, templateID int64, fn func(ctx context.Context, s *session) error) (err error) {
	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	s, err := a.open(ctx, templateID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(ctx); err == nil {
			err = cerr
		}
	}()

	fails, off := watchFailures(s.Bus)
	defer off()
	if err := fn(ctx, s); err != nil {
		return err
	}
	return fails.err()
}

// confirm asks a yes/no question unless the user already agreed with --yes.
func (a *app) confirm(prompt string, yes bool) bool {
	if yes {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N]: ", prompt)
	line, _ := bufio.NewReader(a.in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid template id %q", raw)
	}
	return id, nil
}

// forkFlags decide what happens when a save turns into a save-as-new prompt.
type forkFlags struct {
	fork        bool
	name        string
	description string
}

func (f *forkFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.fork, "fork", false, "save as a new template if the loaded one is protected")
	cmd.Flags().StringVar(&f.name, "fork-name", "", "name of the new template (default is a dated copy name)")
	cmd.Flags().StringVar(&f.description, "fork-description", "", "description of the new template")
}

// save writes the loaded structure. A protected template is only forked when asked to.
func (a *app) save(ctx context.Context, s *session, f forkFlags) error {
	err := s.Engine.Save(ctx)
	if err != nil && !errors.Is(err, syncengine.ErrForkRequired) {
		return err
	}
	req, open := s.SaveAsNewModal.Pending()
	if !open {
		if err == nil {
			fmt.Fprintf(a.out, "saved template %d\n", s.Session.LoadedID())
		}
		return err
	}

	if req.Forced && !f.fork {
		s.SaveAsNewModal.Cancel()
		return fmt.Errorf("template %d is protected, rerun with --fork to save a copy", s.Session.LoadedID())
	}

	s.SaveAsNewModal.Confirm(f.name, f.description)
	if s.Engine.State() == syncengine.StateConflictPendingFork || s.Model.TemplateID() == 0 {
		return errors.New("save as new failed")
	}
	fmt.Fprintf(a.out, "saved as template %d\n", s.Session.LoadedID())
	return nil
}

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "templates",
		Aliases: []string{"ls"},
		Short:   "List the guild's templates",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				printTemplateRows(a, s.GuildTemplates.Rows(), s.Session.LoadedID())
				return nil
			})
		},
	}
}

func printTemplateRows(a *app, rows []widgets.TemplateRow, loaded int64) {
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "no templates")
		return
	}
	tbl := uitable.New()
	tbl.MaxColWidth = 60
	tbl.AddRow("", "ID", "NAME", "FLAGS", "CREATED")
	for _, r := range rows {
		mark := ""
		if r.ID == loaded {
			mark = "*"
		}
		var flags []string
		if r.IsActive {
			flags = append(flags, "active")
		}
		if r.IsInitialSnapshot {
			flags = append(flags, "snapshot")
		}
		tbl.AddRow(mark, r.ID, r.Name, strings.Join(flags, ","), r.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(a.out, tbl)
}

func newSharedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shared",
		Short: "List templates published to the shared namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.client()
			if err != nil {
				return err
			}
			defer c.CloseIdleConnections()

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			shared, err := c.ListShared(ctx)
			if err != nil {
				return err
			}
			if len(shared) == 0 {
				fmt.Fprintln(a.out, "no shared templates")
				return nil
			}
			tbl := uitable.New()
			tbl.MaxColWidth = 60
			tbl.AddRow("ID", "CODE", "NAME", "SOURCE", "CREATED")
			for _, t := range shared {
				tbl.AddRow(t.ID, t.ShareCode, t.Name, t.SourceGuildID, t.CreatedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintln(a.out, tbl)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var templateID int64
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the structure of a template",
		Long:  `Prints the category and channel tree of the active template, or of --template.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, templateID, func(ctx context.Context, s *session) error {
				if !s.Model.Loaded() {
					fmt.Fprintln(a.out, "no template loaded")
					return nil
				}
				for _, n := range s.widget.Nodes() {
					printNode(a, n, 0)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id (default is the active template)")
	return cmd
}

func printNode(a *app, n *tree.WidgetNode, depth int) {
	fmt.Fprintf(a.out, "%s%s  [%s]\n", strings.Repeat("  ", depth), n.Text, n.ID)
	for _, c := range n.Children {
		printNode(a, c, depth+1)
	}
}

// rejections records drops the tree refused.
func rejections(bus *eventbus.Bus) (*[]string, func()) {
	var reasons []string
	off := eventbus.On(bus, events.DropRejected, func(e events.DropRejectedEvent) {
		reasons = append(reasons, e.Reason)
	})
	return &reasons, off
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		templateID int64
		parent     string
		position   int
		fork       forkFlags
	)
	cmd := &cobra.Command{
		Use:   "move <node>",
		Short: "Move a category or channel and save",
		Example: `  designer move channel_12 --parent category_3 --position 0
  designer move category_3 --position 2 --fork`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, templateID, func(ctx context.Context, s *session) error {
				if !s.Model.Loaded() {
					return syncengine.ErrNothingLoaded
				}
				target := parent
				if target == "" {
					target = s.Model.Root().String()
				}

				rejected, off := rejections(s.Bus)
				s.widget.Drop(tree.Drop{Origin: tree.OriginTree, NodeID: args[0], ParentID: target, Position: position})
				off()
				if len(*rejected) > 0 {
					return fmt.Errorf("move rejected: %s", strings.Join(*rejected, "; "))
				}
				if !s.Session.IsDirty() {
					fmt.Fprintln(a.out, "nothing changed")
					return nil
				}
				return a.save(ctx, s, fork)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id (default is the active template)")
	cmd.Flags().StringVar(&parent, "parent", "", "new parent node (default is the template root)")
	cmd.Flags().IntVar(&position, "position", 0, "position among the new siblings")
	fork.register(cmd)
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var (
		templateID int64
		parent     string
		position   int
		name       string
		kind       string
		fork       forkFlags
	)
	cmd := &cobra.Command{
		Use:       "add <category|channel>",
		Short:     "Add a category or channel and save",
		Example:   `  designer add channel --parent category_3 --name general --kind text`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"category", "channel"},
		RunE: func(cmd *cobra.Command, args []string) error {
			item := tree.PaletteCategory
			if args[0] == "channel" {
				item = tree.PaletteChannel
			}
			return a.withSession(cmd, templateID, func(ctx context.Context, s *session) error {
				if !s.Model.Loaded() {
					return syncengine.ErrNothingLoaded
				}
				target := parent
				if target == "" {
					target = s.Model.Root().String()
				}

				var created domain.NodeRef
				offChanged := eventbus.On(s.Bus, events.StructureChanged, func(e events.StructureChangedEvent) {
					if e.OldParentID.IsZero() {
						created = e.NodeID
					}
				})
				rejected, offRejected := rejections(s.Bus)
				s.widget.Drop(tree.Drop{Origin: tree.OriginPalette, Item: item, ParentID: target, Position: position})
				offChanged()
				offRejected()
				if len(*rejected) > 0 {
					return fmt.Errorf("add rejected: %s", strings.Join(*rejected, "; "))
				}
				if created.IsZero() {
					return errors.New("nothing was added")
				}

				if name != "" || kind != "" {
					s.widget.Select(created.String())
					current, _ := s.Model.Lookup(created)
					if name == "" {
						name = current.Name
					}
					if err := s.Properties.Apply(name, domain.ChannelKind(kind)); err != nil {
						return err
					}
				}
				return a.save(ctx, s, fork)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id (default is the active template)")
	cmd.Flags().StringVar(&parent, "parent", "", "parent node (default is the template root)")
	cmd.Flags().IntVar(&position, "position", 0, "position among the siblings")
	cmd.Flags().StringVar(&name, "name", "", "name of the new node")
	cmd.Flags().StringVar(&kind, "kind", "", "channel type (text, voice, announcement, forum, stage)")
	fork.register(cmd)
	return cmd
}

func newEditCmd(a *app) *cobra.Command {
	var (
		templateID int64
		name       string
		kind       string
		fork       forkFlags
	)
	cmd := &cobra.Command{
		Use:   "edit <node>",
		Short: "Rename a category or channel, or change a channel's type, and save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, templateID, func(ctx context.Context, s *session) error {
				s.widget.Select(args[0])
				sel, ok := s.Properties.Selected()
				if !ok {
					return fmt.Errorf("node %q not found", args[0])
				}
				if name == "" {
					name = sel.Name
				}
				if err := s.Properties.Apply(name, domain.ChannelKind(kind)); err != nil {
					return err
				}
				if !s.Session.IsDirty() {
					fmt.Fprintln(a.out, "nothing changed")
					return nil
				}
				return a.save(ctx, s, fork)
			})
		},
	}
	cmd.Flags().Int64Var(&templateID, "template", 0, "template id (default is the active template)")
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&kind, "kind", "", "new channel type")
	fork.register(cmd)
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				s.Engine.NewTemplate(args[0])
				return a.save(ctx, s, forkFlags{name: args[0], description: description})
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "template description")
	return cmd
}

func newActivateCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "activate <template-id>",
		Short: "Make a template the guild's active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				if s.Session.ActiveTemplateID() == id {
					fmt.Fprintf(a.out, "template %d is already active\n", id)
					return nil
				}
				s.GuildTemplates.Activate(id)
				if !s.ActivateModal.IsOpen() {
					return fmt.Errorf("template %d not found", id)
				}
				if !a.confirm(s.ActivateModal.Prompt(), yes) {
					s.ActivateModal.Cancel()
					return nil
				}
				s.ActivateModal.Confirm()
				if s.Session.ActiveTemplateID() != id {
					return fmt.Errorf("template %d was not activated", id)
				}
				fmt.Fprintf(a.out, "activated template %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var (
		yes    bool
		shared bool
	)
	cmd := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a guild template, or a shared one with --shared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				list := s.GuildTemplates
				if shared {
					list = s.SharedTemplates
				}
				list.Delete(id)
				if !s.DeleteModal.IsOpen() {
					return fmt.Errorf("template %d not found or cannot be deleted", id)
				}
				if !a.confirm(s.DeleteModal.Prompt(), yes) {
					s.DeleteModal.Cancel()
					return nil
				}

				var deleted bool
				off := eventbus.On(s.Bus, events.TemplateDeleted, func(e events.TemplateDeletedEvent) {
					deleted = deleted || e.TemplateID == id
				})
				s.DeleteModal.Confirm()
				off()
				if !deleted {
					return fmt.Errorf("template %d was not deleted", id)
				}
				fmt.Fprintf(a.out, "deleted template %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().BoolVar(&shared, "shared", false, "delete from the shared namespace")
	return cmd
}

func newRenameCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "rename <template-id> <name>",
		Short: "Change a template's name and description",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				var renamed bool
				off := eventbus.On(s.Bus, events.TemplateRenamed, func(e events.TemplateRenamedEvent) {
					renamed = renamed || e.TemplateID == id
				})
				defer off()

				s.GuildTemplates.Rename(id, args[1], description)
				if !renamed {
					return fmt.Errorf("template %d was not renamed", id)
				}
				fmt.Fprintf(a.out, "renamed template %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "new description")
	return cmd
}

func newShareCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "share <template-id>",
		Short: "Publish a template to the shared namespace and print its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				s.GuildTemplates.Share(id)
				if !s.ShareModal.IsOpen() {
					return fmt.Errorf("template %d not found or cannot be shared", id)
				}
				req, _ := s.ShareModal.Pending()
				if !a.confirm(fmt.Sprintf("Share %q with every guild?", req.TemplateName), yes) {
					s.ShareModal.Cancel()
					return nil
				}
				s.ShareModal.Confirm()
				code := s.ShareModal.ShareCode()
				if code == "" {
					return fmt.Errorf("template %d was not shared", id)
				}
				fmt.Fprintln(a.out, code)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "copy <shared-template-id>",
		Short: "Copy a shared template into the guild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				var newID int64
				off := eventbus.On(s.Bus, events.SharedCopied, func(e events.SharedCopiedEvent) {
					newID = e.NewTemplateID
				})
				defer off()

				s.SharedTemplates.Copy(id, name)
				if newID == 0 {
					return fmt.Errorf("shared template %d was not copied", id)
				}
				fmt.Fprintf(a.out, "copied as template %d\n", newID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name of the copy (default is the shared template's name)")
	return cmd
}

func newSnapshotCmd(a *app) *cobra.Command {
	var (
		file string
		name string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record a guild's live structure as its initial snapshot",
		Long:  `Reads a structure payload (JSON with a "nodes" array) from --file, or stdin, and stores it as a protected template.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := a.client()
			if err != nil {
				return err
			}
			defer c.CloseIdleConnections()
			if cfg.GuildID == "" {
				return errors.New("guild id is required (--guild or DESIGNER_GUILD_ID)")
			}

			raw, err := readInput(a, file)
			if err != nil {
				return err
			}
			var payload domain.StructurePayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("decode structure: %w", err)
			}

			ctx, cancel := a.commandContext(cmd)
			defer cancel()
			id, err := c.CaptureSnapshot(ctx, cfg.GuildID, name, payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "captured template %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "structure file (default is stdin)")
	cmd.Flags().StringVar(&name, "name", "", "snapshot name")
	return cmd
}

func readInput(a *app, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(file)
}

func newLayoutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Show or replace the saved panel layout of the designer page",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				items, err := s.Layout.Load(ctx)
				if err != nil {
					return err
				}
				if items == nil {
					fmt.Fprintln(a.out, "no saved layout")
					return nil
				}
				fmt.Fprintln(a.out, string(items))
				return nil
			})
		},
	}

	var file string
	set := &cobra.Command{
		Use:   "set [layout-json]",
		Short: "Replace the saved layout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				var err error
				if raw, err = readInput(a, file); err != nil {
					return err
				}
			}
			if !json.Valid(raw) {
				return errors.New("layout is not valid JSON")
			}
			return a.withSession(cmd, 0, func(ctx context.Context, s *session) error {
				s.Layout.Changed(json.RawMessage(raw))
				if err := s.Layout.Flush(ctx); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "layout saved")
				return nil
			})
		},
	}
	set.Flags().StringVarP(&file, "file", "f", "", "layout file (default is stdin)")

	cmd.AddCommand(show, set)
	return cmd
}
