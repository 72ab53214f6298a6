package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dhcgn/pst-viewer/export"
	"github.com/dhcgn/pst-viewer/model"
)

func newFoldersCommand(a *app) *cobra.Command {
	var counts bool
	cmd := &cobra.Command{
		Use:   "folders <archive.pst>",
		Short: "Show the folder tree of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			roots, err := r.RootFolders()
			if err != nil {
				return err
			}
			label := func(n model.FolderNode) string {
				if !counts {
					return fmt.Sprintf("[%d] %s", n.ID, n.Name)
				}
				count, _ := r.MessageCount(n.ID)
				return fmt.Sprintf("[%d] %s (%d)", n.ID, n.Name, count)
			}
			return renderTree(cmd.OutOrStdout(), roots, label)
		},
	}
	cmd.Flags().BoolVar(&counts, "counts", false, "Show the message count of each folder")
	return cmd
}

func renderTree(w io.Writer, roots []model.FolderNode, label func(model.FolderNode) string) error {
	if len(roots) == 0 {
		return nil
	}
	var build func(nodes []model.FolderNode) []pterm.TreeNode
	build = func(nodes []model.FolderNode) []pterm.TreeNode {
		out := make([]pterm.TreeNode, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, pterm.TreeNode{Text: label(n), Children: build(n.Children)})
		}
		return out
	}
	return pterm.DefaultTree.
		WithRoot(pterm.TreeNode{Children: build(roots)}).
		WithWriter(w).
		Render()
}

func newListCommand(a *app) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list <archive.pst> <folder>",
		Short: "List the messages of a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder, err := parseFolderID(args[1])
			if err != nil {
				return err
			}
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if _, err := r.FolderPath(folder); err != nil {
				return err
			}
			summaries, err := r.Search(folder, search)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				if search != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "No messages matching %q.\n", search)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "No messages.")
				return nil
			}

			data := pterm.TableData{{"ID", "Date", "From", "Subject"}}
			for _, s := range summaries {
				data = append(data, []string{s.ID.String(), s.Date, s.Sender, s.Subject})
			}
			return pterm.DefaultTable.
				WithHasHeader().
				WithData(data).
				WithWriter(cmd.OutOrStdout()).
				Render()
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only list messages whose subject, sender or body contains this text (case-insensitive)")
	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "show <archive.pst> <folder:index>",
		Short: "Print a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[1])
			if err != nil {
				return err
			}
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			msg, err := r.GetMessage(id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !html {
				_, err = io.WriteString(w, export.BuildText(msg))
				return err
			}
			if msg.BodyHTML == "" {
				return fmt.Errorf("message %s has no HTML body", id)
			}
			_, err = io.WriteString(w, msg.BodyHTML)
			return err
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Print the HTML body instead of the text rendering")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		out    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "export <archive.pst> <folder:index>",
		Short: "Export one message to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[1])
			if err != nil {
				return err
			}
			strategy, err := export.StrategyByName(format)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("message-%d-%d%s", id.Folder, id.Index, strategy.Extension())
			}
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			if err := r.Export(id, out, strategy); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Destination file (defaults to message-<folder>-<index>.<ext>)")
	cmd.Flags().StringVar(&format, "format", "eml", "Export format: eml, txt")
	return cmd
}

func newAttachmentsCommand(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "attachments <archive.pst> <folder:index>",
		Short: "List the attachments of a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[1])
			if err != nil {
				return err
			}
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			w := cmd.OutOrStdout()
			if !verbose {
				names, err := r.ListAttachments(id)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
				return nil
			}

			infos, err := r.Attachments(id)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"#", "Attachment", "Size", "Saved"}}
			for _, info := range infos {
				saved := "yes"
				if info.Embedded || !info.Readable {
					saved = "no"
				}
				data = append(data, []string{
					fmt.Sprint(info.Index),
					info.Descriptor(),
					fmt.Sprint(info.Size),
					saved,
				})
			}
			return pterm.DefaultTable.
				WithHasHeader().
				WithData(data).
				WithWriter(w).
				Render()
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show size and whether each attachment can be saved")
	return cmd
}

func newSaveAttachmentsCommand(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "save-attachments <archive.pst> <folder:index>",
		Short: "Write the attachments of a message to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[1])
			if err != nil {
				return err
			}
			r, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			saved, err := r.SaveAttachments(id, dir)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(saved) == 0 {
				fmt.Fprintln(w, "No attachments saved.")
				return nil
			}
			fmt.Fprintf(w, "Saved %d attachment(s):\n%s\n", len(saved), strings.Join(saved, "\n"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Destination directory")
	return cmd
}
