package testutil

import (
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// ReceivedMail is one message accepted by a TestSMTPServer.
type ReceivedMail struct {
	Username string
	From     string
	To       []string
	Data     []byte
}

// TestSMTPServer is an in-memory SMTP server on a random local port. It
// accepts any PLAIN credentials and records them with each message.
type TestSMTPServer struct {
	Address string

	mu        sync.Mutex
	received  []ReceivedMail
	onMessage func(ReceivedMail)
}

// NewTestSMTPServer starts a server that is closed when the test finishes.
func NewTestSMTPServer(t *testing.T) *TestSMTPServer {
	t.Helper()

	ts := &TestSMTPServer{}

	s := smtp.NewServer(ts)
	s.AllowInsecureAuth = true
	s.Domain = "localhost"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	ts.Address = listener.Addr().String()

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("SMTP server stopped: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = s.Close()
	})

	return ts
}

// OnMessage registers fn to run after each accepted message, before the server
// acknowledges it. A nil fn removes the hook.
func (s *TestSMTPServer) OnMessage(fn func(ReceivedMail)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Messages returns a copy of everything received so far.
func (s *TestSMTPServer) Messages() []ReceivedMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ReceivedMail(nil), s.received...)
}

// NewSession implements smtp.Backend.
func (s *TestSMTPServer) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &smtpSession{server: s}, nil
}

type smtpSession struct {
	server   *TestSMTPServer
	username string
	from     string
	to       []string
}

func (s *smtpSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *smtpSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		s.username = username
		return nil
	}), nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	mail := ReceivedMail{
		Username: s.username,
		From:     s.from,
		To:       s.to,
		Data:     data,
	}
	s.server.mu.Lock()
	s.server.received = append(s.server.received, mail)
	onMessage := s.server.onMessage
	s.server.mu.Unlock()

	if onMessage != nil {
		onMessage(mail)
	}
	return nil
}

func (s *smtpSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *smtpSession) Logout() error {
	return nil
}
