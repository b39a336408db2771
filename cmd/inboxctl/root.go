package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/vdavid/fieldinbox/internal/api"
	"github.com/vdavid/fieldinbox/internal/config"
	"github.com/vdavid/fieldinbox/internal/crypto"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/imap"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/outbound"
)

// NewRootCmd creates the inboxctl command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "inboxctl",
		Short:         "Administer Field Inbox and browse an inbox from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		NewCreateMemberCmd(),
		NewSetMailboxCmd(),
		NewListCmd(),
		NewShowCmd(),
		NewSyncCmd(),
		NewRetryCmd(),
		NewChannelCmd(),
	)
	return cmd
}

// env is what every command needs: configuration, a pool and the encryptor.
type env struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, pool: pool, encryptor: encryptor}, nil
}

func (e *env) Close() {
	db.CloseConnection(e.pool)
}

func (e *env) useTLS() bool {
	return e.cfg.Environment != "test"
}

// session builds a controller for memberID backed by the production
// collaborators. realtime may be nil when no channel is opened.
func (e *env) session(ctx context.Context, memberID string, realtime inbox.Subscriber) (*inbox.Controller, *imap.Service, error) {
	member, err := db.GetTeamMember(ctx, e.pool, memberID)
	if err != nil {
		return nil, nil, err
	}

	imapService := imap.NewService(e.pool, imap.NewPool(e.useTLS()), e.encryptor)
	deps := api.NewCollaborators(
		db.NewStore(e.pool),
		imapService,
		outbound.NewMailer(e.pool, e.encryptor, e.useTLS()),
		realtime,
	)

	controller := inbox.New(inbox.Identity{CompanyID: member.CompanyID, TeamMemberID: member.ID}, deps, inbox.Options{})
	return controller, imapService, nil
}

func wantsJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireFlag(cmd *cobra.Command, name string) (string, error) {
	value, _ := cmd.Flags().GetString(name)
	if value == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return value, nil
}

func printMember(w io.Writer, m *models.TeamMember) {
	fmt.Fprintf(w, "%s\t%s\t%s <%s>\n", m.ID, m.CompanyID, m.Name, m.Email)
}
