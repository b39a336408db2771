package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/crypto"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

// MailboxHandler serves the mailbox settings of the signed-in team member.
type MailboxHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

// NewMailboxHandler creates a new MailboxHandler instance.
func NewMailboxHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *MailboxHandler {
	return &MailboxHandler{
		pool:      pool,
		encryptor: encryptor,
	}
}

// ServeHTTP routes GET and POST.
func (h *MailboxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.GetMailbox(w, r)
	case http.MethodPost:
		h.PostMailbox(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GetMailbox returns the mailbox settings without passwords.
func (h *MailboxHandler) GetMailbox(w http.ResponseWriter, r *http.Request) {
	member, ok := MemberFromRequest(w, r)
	if !ok {
		return
	}

	mailbox, err := db.GetMailbox(r.Context(), h.pool, member.ID)
	if errors.Is(err, db.ErrMailboxNotFound) {
		http.Error(w, "Mailbox not set up for this member", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("MailboxHandler: Failed to get mailbox: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.MailboxResponse{
		EmailAddress:       mailbox.EmailAddress,
		IMAPServerHostname: mailbox.IMAPServerHostname,
		IMAPUsername:       mailbox.IMAPUsername,
		IMAPPasswordSet:    len(mailbox.EncryptedIMAPPassword) > 0,
		SMTPServerHostname: mailbox.SMTPServerHostname,
		SMTPUsername:       mailbox.SMTPUsername,
		SMTPPasswordSet:    len(mailbox.EncryptedSMTPPassword) > 0,
	})
}

// PostMailbox saves the mailbox settings. Empty passwords keep the stored
// ones; on first setup both are required.
func (h *MailboxHandler) PostMailbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	member, ok := MemberFromRequest(w, r)
	if !ok {
		return
	}

	var req models.MailboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("MailboxHandler: Failed to decode request: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateMailboxRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := db.GetMailbox(ctx, h.pool, member.ID)
	if err != nil && !errors.Is(err, db.ErrMailboxNotFound) {
		log.Printf("MailboxHandler: Failed to get existing mailbox: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var storedIMAP, storedSMTP []byte
	if existing != nil {
		storedIMAP = existing.EncryptedIMAPPassword
		storedSMTP = existing.EncryptedSMTPPassword
	}

	encryptedIMAPPassword, err := h.password(req.IMAPPassword, storedIMAP)
	if err != nil {
		h.passwordError(w, "IMAP", err)
		return
	}
	encryptedSMTPPassword, err := h.password(req.SMTPPassword, storedSMTP)
	if err != nil {
		h.passwordError(w, "SMTP", err)
		return
	}

	mailbox := &models.Mailbox{
		MemberID:              member.ID,
		EmailAddress:          req.EmailAddress,
		IMAPServerHostname:    req.IMAPServerHostname,
		IMAPUsername:          req.IMAPUsername,
		EncryptedIMAPPassword: encryptedIMAPPassword,
		SMTPServerHostname:    req.SMTPServerHostname,
		SMTPUsername:          req.SMTPUsername,
		EncryptedSMTPPassword: encryptedSMTPPassword,
	}
	if err := db.SaveMailbox(ctx, h.pool, mailbox); err != nil {
		log.Printf("MailboxHandler: Failed to save mailbox: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: true})
}

var errPasswordRequired = errors.New("password is required for initial setup")

// password encrypts plaintext, or keeps stored when plaintext is empty.
func (h *MailboxHandler) password(plaintext string, stored []byte) ([]byte, error) {
	if plaintext == "" {
		if len(stored) == 0 {
			return nil, errPasswordRequired
		}
		return stored, nil
	}
	return h.encryptor.Encrypt(plaintext)
}

func (h *MailboxHandler) passwordError(w http.ResponseWriter, kind string, err error) {
	if errors.Is(err, errPasswordRequired) {
		http.Error(w, kind+" "+err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("MailboxHandler: Failed to encrypt %s password: %v", kind, err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func validateMailboxRequest(req *models.MailboxRequest) error {
	if req.EmailAddress == "" {
		return errors.New("email address is required")
	}
	if req.IMAPServerHostname == "" {
		return errors.New("IMAP server hostname is required")
	}
	if req.IMAPUsername == "" {
		return errors.New("IMAP username is required")
	}
	if req.SMTPServerHostname == "" {
		return errors.New("SMTP server hostname is required")
	}
	if req.SMTPUsername == "" {
		return errors.New("SMTP username is required")
	}
	return nil
}
