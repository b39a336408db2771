package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server on a random local port.
// The memory backend has one user, "username" / "password", with an INBOX.
type TestIMAPServer struct {
	Server  *server.Server
	Address string
	Backend *memory.Backend
}

// NewTestIMAPServer starts a server that is closed when the test finishes.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server stopped: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return &TestIMAPServer{
		Server:  s,
		Address: listener.Addr().String(),
		Backend: be,
	}
}

// Username returns the login of the memory backend's user.
func (s *TestIMAPServer) Username() string {
	return "username"
}

// Password returns the password of the memory backend's user.
func (s *TestIMAPServer) Password() string {
	return "password"
}

// Connect logs in a new client. It is logged out when the test finishes.
func (s *TestIMAPServer) Connect(t *testing.T) *imapclient.Client {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}
	if err := client.Login(s.Username(), s.Password()); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Logout()
	})

	return client
}

// TestMessage is an email to append to the test server.
type TestMessage struct {
	MessageID string
	From      string
	To        string
	Subject   string
	Text      string
	HTML      string
	SentAt    time.Time
	Seen      bool
}

func (m TestMessage) raw() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message-ID: %s\r\n", m.MessageID)
	fmt.Fprintf(&b, "Date: %s\r\n", m.SentAt.Format(time.RFC1123Z))
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if m.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(m.Text)
		b.WriteString("\r\n")
		return b.String()
	}

	const boundary = "fieldinbox-test-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, m.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, m.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.String()
}

// AddMessage appends msg to folderName and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName string, msg TestMessage) uint32 {
	t.Helper()

	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	client := s.Connect(t)

	var flags []string
	if msg.Seen {
		flags = append(flags, imap.SeenFlag)
	}
	if err := client.Append(folderName, flags, time.Now(), strings.NewReader(msg.raw())); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Message-ID", msg.MessageID)
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search for message: %v", err)
	}
	if len(uids) == 0 {
		t.Fatalf("Message %s not found after append", msg.MessageID)
	}

	return uids[len(uids)-1]
}
