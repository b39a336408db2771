package imap

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const dialTimeout = 5 * time.Second

// lockedClient wraps an IMAP client with a mutex. A go-imap client runs one
// command at a time, so every use holds the lock.
type lockedClient struct {
	mu       sync.Mutex
	client   *client.Client
	lastUsed time.Time
}

// healthy reports whether the connection is still logged in.
// The caller must hold the lock.
func (c *lockedClient) healthy() bool {
	state := c.client.State()
	return state == imap.AuthenticatedState || state == imap.SelectedState
}

func (c *lockedClient) logout() {
	_ = c.client.Logout()
}

// Dial connects to server ("host:port"). Plain TCP is only meant for tests.
func Dial(server string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, server, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, server)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return c, nil
}

// Credentials are the decrypted IMAP login of one mailbox.
type Credentials struct {
	Server   string
	Username string
	Password string
}

func connect(creds Credentials, useTLS bool) (*client.Client, error) {
	c, err := Dial(creds.Server, useTLS)
	if err != nil {
		return nil, err
	}
	if err := c.Login(creds.Username, creds.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	return c, nil
}
