package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/realtime"
)

// addLocationFlags adds one flag per inbox location parameter.
func addLocationFlags(cmd *cobra.Command) {
	cmd.Flags().String("member", "", "team member id to act as")
	cmd.Flags().String(inbox.ParamInbox, "", "inbox scope: personal, company or all")
	cmd.Flags().String(inbox.ParamFolder, "", "folder: inbox, draft, archived, sent, starred, archive, trash, spam")
	cmd.Flags().String(inbox.ParamCategory, "", "company category: support, sales, billing, general")
	cmd.Flags().String(inbox.ParamAssigned, "", `assignment filter ("me")`)
	cmd.Flags().String(inbox.ParamType, "", "type: all, email, sms, call, voicemail")
	cmd.Flags().String("search", "", "search text")
}

// locationFromFlags builds the same query a browser location would carry.
func locationFromFlags(cmd *cobra.Command) url.Values {
	q := url.Values{}
	for _, name := range []string{inbox.ParamInbox, inbox.ParamFolder, inbox.ParamCategory, inbox.ParamAssigned, inbox.ParamType} {
		if value, _ := cmd.Flags().GetString(name); value != "" {
			q.Set(name, value)
		}
	}
	if search, _ := cmd.Flags().GetString("search"); search != "" {
		q.Set(inbox.ParamSearch, search)
	}
	return q
}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the communications a member sees for a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := requireFlag(cmd, "member")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			controller, service, err := e.session(ctx, memberID, nil)
			if err != nil {
				return err
			}
			defer service.Close()
			defer controller.Close()

			if err := controller.Navigate(ctx, inbox.ParseNavigation(locationFromFlags(cmd))); err != nil {
				return err
			}

			snapshot := controller.Snapshot()
			if wantsJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), snapshot.Communications)
			}
			return printList(cmd.OutOrStdout(), snapshot)
		},
	}

	addLocationFlags(cmd)
	return cmd
}

func printList(w io.Writer, snapshot inbox.Snapshot) error {
	starred := make(map[string]bool, len(snapshot.StarredIDs))
	for _, id := range snapshot.StarredIDs {
		starred[id] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\t★\tFROM\tSUBJECT\tCREATED")
	for _, c := range snapshot.Communications {
		star := ""
		if starred[c.ID] {
			star = "★"
		}
		from := c.FromName
		if from == "" {
			from = c.FromAddress
		}
		subject := c.Subject
		if subject == "" {
			subject = firstLine(c.Body)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Type, c.Status, star, from, subject, c.CreatedAt.Format(time.DateTime))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	if len(line) > 60 {
		return line[:57] + "..."
	}
	return line
}

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <communication-id>",
		Short: "Select a communication and print its content",
		Long: `Select a communication and print its content.

The communication must be in the list selected by the filter flags. Selecting
an unread item marks it read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := requireFlag(cmd, "member")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			controller, service, err := e.session(ctx, memberID, nil)
			if err != nil {
				return err
			}
			defer service.Close()
			defer controller.Close()

			nav := inbox.ParseNavigation(locationFromFlags(cmd))
			nav.SelectedID = args[0]
			if err := controller.Navigate(ctx, nav); err != nil {
				return err
			}

			snapshot := controller.Snapshot()
			if snapshot.SelectedID == "" {
				return fmt.Errorf("%w: %s", inbox.ErrCommunicationNotFound, args[0])
			}
			if wantsJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), snapshot)
			}
			printContent(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}

	addLocationFlags(cmd)
	return cmd
}

func printContent(w io.Writer, snapshot inbox.Snapshot) {
	switch snapshot.Content {
	case inbox.ContentEmail:
		if snapshot.EmailContent == nil {
			fmt.Fprintln(w, "(email content unavailable)")
			return
		}
		fmt.Fprintln(w, snapshot.EmailContent.Text)
	case inbox.ContentSMS:
		for _, m := range snapshot.SMSThread {
			arrow := "<"
			if m.Direction == models.DirectionOutbound {
				arrow = ">"
			}
			fmt.Fprintf(w, "%s %s %s\n", m.CreatedAt.Format(time.DateTime), arrow, m.Body)
		}
	default:
		fmt.Fprintf(w, "(%s has no content to show)\n", snapshot.Content)
	}
}

// NewChannelCmd creates the channel command.
func NewChannelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel <channel-id>",
		Short: "Print a team channel, optionally post to it and follow new messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memberID, err := requireFlag(cmd, "member")
			if err != nil {
				return err
			}
			send, _ := cmd.Flags().GetString("send")
			follow, _ := cmd.Flags().GetBool("follow")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			listener := realtime.NewListener(e.pool, nil)
			listenerCtx, cancelListener := context.WithCancel(ctx)
			defer cancelListener()
			go func() { _ = listener.Run(listenerCtx) }()

			select {
			case <-listener.Ready():
			case <-time.After(10 * time.Second):
				return errors.New("realtime listener did not start")
			}

			controller, service, err := e.session(ctx, memberID, listener)
			if err != nil {
				return err
			}
			defer service.Close()
			defer controller.Close()

			printer := &channelPrinter{w: cmd.OutOrStdout(), printed: map[string]bool{}}
			unsubscribe := controller.Subscribe(func(ev inbox.Event) {
				switch ev.Kind {
				case inbox.EventChannel:
					printer.print(controller.Snapshot().ChannelThread)
				case inbox.EventNotice:
					if ev.Notice.Level == inbox.NoticeError {
						fmt.Fprintln(cmd.ErrOrStderr(), "Error:", ev.Notice.Message)
					}
				}
			})
			defer unsubscribe()

			if err := controller.OpenChannel(ctx, args[0]); err != nil {
				return err
			}
			if send != "" {
				if err := controller.SendChannelMessage(ctx, send); err != nil {
					return err
				}
			}
			if follow {
				<-ctx.Done()
			}
			return nil
		},
	}

	cmd.Flags().String("member", "", "team member id to act as")
	cmd.Flags().String("send", "", "post this message")
	cmd.Flags().Bool("follow", false, "keep printing new messages until interrupted")
	return cmd
}

// channelPrinter prints each authoritative message once.
type channelPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	printed map[string]bool
}

func (p *channelPrinter) print(thread []models.ChannelMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range thread {
		if p.printed[m.ID] || m.IsTemporary() {
			continue
		}
		p.printed[m.ID] = true

		sender := "unknown"
		if m.Sender != nil && m.Sender.Name != "" {
			sender = m.Sender.Name
		}
		fmt.Fprintf(p.w, "%s %s: %s\n", m.CreatedAt.Format(time.DateTime), sender, m.Body)
	}
}
