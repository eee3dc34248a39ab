package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/calendar-events/internal/calendar"
	"github.com/pfrederiksen/calendar-events/internal/event"
	"github.com/pfrederiksen/calendar-events/internal/kv"
	"github.com/pfrederiksen/calendar-events/internal/logger"
	"github.com/pfrederiksen/calendar-events/internal/web"
)

// eventFlags are the per-field flags shared by add and update.
type eventFlags struct {
	name, date, time, color, notes string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Event name")
	cmd.Flags().StringVar(&f.date, "date", "", "Event date, e.g. 2024-01-01 or 2024-01-01T09:00")
	cmd.Flags().StringVar(&f.time, "time", "", "Free-form time label, e.g. \"9:00 AM\"")
	cmd.Flags().StringVar(&f.color, "color", "", "Display color")
	cmd.Flags().StringVar(&f.notes, "notes", "", "Notes")
}

// patch builds a Patch from the flags the user actually set.
func (f *eventFlags) patch(cmd *cobra.Command, sess *session) (event.Patch, error) {
	var p event.Patch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.name
	}
	if changed("date") {
		date, err := event.ParseDate(f.date, sess.cfg.Location())
		if err != nil {
			return p, fmt.Errorf("--date: %w", err)
		}
		p.Date = &date
	}
	if changed("time") {
		p.Time = &f.time
	}
	if changed("color") {
		p.Color = &f.color
	}
	if changed("notes") {
		p.Notes = &f.notes
	}
	return p, nil
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(sess *session) error {
				p, err := f.patch(cmd, sess)
				if err != nil {
					return err
				}
				evt, err := sess.store.Add(cmd.Context(), p.Apply(event.CalendarEvent{}).Draft())
				if err != nil {
					return fmt.Errorf("adding event: %w", err)
				}

				out := cmd.OutOrStdout()
				if format == FormatJSON {
					return writeJSON(out, evt)
				}
				fmt.Fprintf(out, "Added %s (%s)\n", evt.Name, evt.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("date")
	cmd.MarkFlagRequired("color")
	return cmd
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update fields of an event",
		Long: `Update the fields given as flags on the event with the given id.
Fields without a flag are left unchanged. An unknown id changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			id := args[0]
			return opts.withSession(cmd, func(sess *session) error {
				p, err := f.patch(cmd, sess)
				if err != nil {
					return err
				}
				if p.Empty() {
					return fmt.Errorf("nothing to update: set at least one of --name, --date, --time, --color, --notes")
				}

				if err := sess.store.Update(cmd.Context(), id, p); err != nil {
					return fmt.Errorf("updating event: %w", err)
				}

				out := cmd.OutOrStdout()
				evt, found := sess.store.Get(id)
				if format == FormatJSON {
					if !found {
						return writeJSON(out, nil)
					}
					return writeJSON(out, evt)
				}
				if !found {
					fmt.Fprintf(out, "No event with id %s; nothing changed.\n", id)
					return nil
				}
				fmt.Fprintf(out, "Updated %s (%s)\n", evt.Name, evt.ID)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			id := args[0]
			return opts.withSession(cmd, func(sess *session) error {
				_, found := sess.store.Get(id)
				if err := sess.store.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("deleting event: %w", err)
				}
				if format == FormatJSON {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"id": id, "deleted": found})
				}
				if found {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No event with id %s; nothing changed.\n", id)
				}
				return nil
			})
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var viewFlag, sortFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := opts.outputFormat()
			if err != nil {
				return err
			}
			view, err := event.ParseViewType(viewFlag)
			if err != nil {
				return err
			}
			order, err := ParseSortOrder(sortFlag)
			if err != nil {
				return err
			}
			// Grouped views read best in date order.
			if order == SortNone && view != event.ViewAgenda {
				order = SortByDate
			}

			return opts.withSession(cmd, func(sess *session) error {
				events := sess.store.View().Events()
				sortEvents(events, order)

				loc := sess.cfg.Location()
				result := NewOutputResult(events, view, loc)
				return WriteOutput(cmd.OutOrStdout(), result, format, loc, opts.verbose)
			})
		},
	}
	cmd.Flags().StringVar(&viewFlag, "view", string(event.ViewAgenda), "View: month, week, day or agenda")
	cmd.Flags().StringVar(&sortFlag, "sort", "", "Sort order: date, name or color (default: insertion order)")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output, id string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as an iCalendar (.ics) file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(sess *session) error {
				events := sess.store.List()
				if id != "" {
					evt, ok := sess.store.Get(id)
					if !ok {
						return fmt.Errorf("no event with id %s", id)
					}
					events = []event.CalendarEvent{evt}
				}

				ics, err := calendar.GenerateCollectionICS(events)
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					_, err = fmt.Fprint(cmd.OutOrStdout(), ics)
					return err
				}
				// Owner read/write only
				if err := os.WriteFile(output, []byte(ics), 0o600); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				sess.log.Info("exported calendar", logger.Fields{"path": output, "count": len(events)})
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&id, "id", "", "Export only the event with this id")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Add every event found in an iCalendar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return opts.withSession(cmd, func(sess *session) error {
				drafts, err := calendar.ParseICS(f, sess.cfg.Location())
				if err != nil {
					return err
				}
				for _, d := range drafts {
					if _, err := sess.store.Add(cmd.Context(), d); err != nil {
						return fmt.Errorf("importing %q: %w", d.Name, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events\n", len(drafts))
				return nil
			})
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(sess *session) error {
				addr := sess.cfg.Listen
				if listen != "" {
					addr = listen
				}
				srv := web.NewServer(sess.store, sess.log, sess.metrics, sess.cfg.Location())
				return srv.ListenAndServe(cmd.Context(), addr)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, 127.0.0.1:8080)")
	return cmd
}

func newGistInitCmd(opts *rootOptions) *cobra.Command {
	var token, description string
	cmd := &cobra.Command{
		Use:   "gist-init",
		Short: "Create a private GitHub Gist to use as the storage backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if token == "" {
				token = cfg.Storage.Gist.Token
			}

			id, err := kv.CreateGist(cmd.Context(), token, description, cfg.Storage.Key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created gist %s\n", id)
			fmt.Fprintf(cmd.OutOrStdout(), "Set CALENDAR_EVENTS_BACKEND=gist and CALENDAR_EVENTS_GIST_ID=%s to use it.\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "GitHub token with gist scope (default from config)")
	cmd.Flags().StringVar(&description, "description", "calendar-events storage", "Gist description")
	return cmd
}
