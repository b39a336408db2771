package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/imap"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/outbound"
)

// NewCreateMemberCmd creates the create-member command.
func NewCreateMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-member",
		Short: "Create a team member, optionally with an API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireFlag(cmd, "company")
			if err != nil {
				return err
			}
			name, err := requireFlag(cmd, "name")
			if err != nil {
				return err
			}
			email, err := requireFlag(cmd, "email")
			if err != nil {
				return err
			}
			avatar, _ := cmd.Flags().GetString("avatar")
			token, _ := cmd.Flags().GetString("token")

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			member := &models.TeamMember{CompanyID: company, Name: name, Email: email, AvatarURL: avatar}
			if err := db.CreateTeamMember(ctx, e.pool, member, token); err != nil {
				return err
			}

			if wantsJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), member)
			}
			printMember(cmd.OutOrStdout(), member)
			return nil
		},
	}

	cmd.Flags().String("company", "", "company id")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("avatar", "", "avatar URL")
	cmd.Flags().String("token", "", "API token for the browser and REST clients")
	return cmd
}

// NewSetMailboxCmd creates the set-mailbox command.
func NewSetMailboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-mailbox",
		Short: "Store the IMAP and SMTP settings of a team member",
		Long: `Store the IMAP and SMTP settings of a team member.

Hostnames include the port, e.g. imap.example.com:993. Passwords are encrypted
with the configured key before they are stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]string{}
			for _, name := range []string{"member", "email", "imap-host", "imap-user", "imap-password", "smtp-host", "smtp-user", "smtp-password"} {
				value, err := requireFlag(cmd, name)
				if err != nil {
					return err
				}
				values[name] = value
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			imapPassword, err := e.encryptor.Encrypt(values["imap-password"])
			if err != nil {
				return err
			}
			smtpPassword, err := e.encryptor.Encrypt(values["smtp-password"])
			if err != nil {
				return err
			}

			err = db.SaveMailbox(ctx, e.pool, &models.Mailbox{
				MemberID:              values["member"],
				EmailAddress:          values["email"],
				IMAPServerHostname:    values["imap-host"],
				IMAPUsername:          values["imap-user"],
				EncryptedIMAPPassword: imapPassword,
				SMTPServerHostname:    values["smtp-host"],
				SMTPUsername:          values["smtp-user"],
				EncryptedSMTPPassword: smtpPassword,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Mailbox saved for member %s\n", values["member"])
			return nil
		},
	}

	cmd.Flags().String("member", "", "team member id")
	cmd.Flags().String("email", "", "mailbox email address")
	cmd.Flags().String("imap-host", "", "IMAP host:port")
	cmd.Flags().String("imap-user", "", "IMAP username")
	cmd.Flags().String("imap-password", "", "IMAP password")
	cmd.Flags().String("smtp-host", "", "SMTP host:port")
	cmd.Flags().String("smtp-user", "", "SMTP username")
	cmd.Flags().String("smtp-password", "", "SMTP password")
	return cmd
}

// NewSyncCmd creates the sync command.
func NewSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new INBOX mail of a team member",
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

			service := imap.NewService(e.pool, imap.NewPool(e.useTLS()), e.encryptor)
			defer service.Close()

			count, err := service.SyncInbox(ctx, memberID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d new messages\n", count)
			return nil
		},
	}

	cmd.Flags().String("member", "", "team member id")
	return cmd
}

// NewRetryCmd creates the retry command.
func NewRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <communication-id>",
		Short: "Re-send a failed outbound communication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			company, err := requireFlag(cmd, "company")
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			mailer := outbound.NewMailer(e.pool, e.encryptor, e.useTLS())
			if err := mailer.RetryFailedSend(ctx, company, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().String("company", "", "company id")
	return cmd
}
