package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/inference/session"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newThreadsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List and edit stored threads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List threads in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return printThreads(cmd.OutOrStdout(), a.store.Threads())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print the messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			t, ok := a.store.Thread(args[0])
			if !ok {
				return errors.Wrap(session.ErrThreadNotFound, args[0])
			}
			return printThread(cmd.OutOrStdout(), t)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rename <thread-id> <name>",
		Short: "Rename a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, args[0], func(a *app) bool {
				return a.store.RenameThread(args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-model <thread-id> <model>",
		Short: "Switch the model used for the next responses of a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			model := models.ModelID(args[1])
			if _, err := models.Lookup(model); err != nil {
				return err
			}
			return withThread(cmd, args[0], func(a *app) bool {
				return a.store.SetThreadModel(args[0], model)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-message <thread-id> <message-id>",
		Short: "Remove a message from a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, args[0], func(a *app) bool {
				return a.store.RemoveMessage(args[0], args[1])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(cmd, args[0], func(a *app) bool {
				return a.store.DeleteThread(args[0])
			})
		},
	})

	return cmd
}

// withThread runs a store mutation on an existing thread and reports whether
// it changed anything.
func withThread(cmd *cobra.Command, id string, fn func(a *app) bool) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if _, ok := a.store.Thread(id); !ok {
		return errors.Wrap(session.ErrThreadNotFound, id)
	}
	if !fn(a) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "nothing changed")
		return err
	}
	return nil
}

func printThreads(w io.Writer, threads []*conversation.Thread) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tMESSAGES\tCOST")
	for _, t := range threads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t$%.4f\n", t.ID, t.Name, modelLabel(t.Model), len(t.Messages), t.Cost())
	}
	return tw.Flush()
}

func printThread(w io.Writer, t *conversation.Thread) error {
	if _, err := fmt.Fprintf(w, "# %s (%s)\n\n", t.Name, modelLabel(t.Model)); err != nil {
		return err
	}
	for _, m := range t.Messages {
		if _, err := fmt.Fprintf(w, "[%s] %s:\n", m.ID, m.Role); err != nil {
			return err
		}
		for _, b := range m.Content {
			if _, err := fmt.Fprintf(w, "%s\n", b.String()); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	return nil
}

func modelLabel(id models.ModelID) string {
	meta, err := models.Lookup(id)
	if err != nil {
		return string(id)
	}
	return meta.Label
}
