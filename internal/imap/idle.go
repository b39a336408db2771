package imap

import (
	"context"
	"encoding/json"
	"log"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
)

const (
	// idleRetryDelay is the backoff after an IDLE error or while nobody is connected.
	idleRetryDelay = 10 * time.Second
	// idlePollInterval is the NOOP polling interval for servers without IDLE.
	idlePollInterval = 30 * time.Second
)

// Notifier pushes messages to a team member's open websocket sessions.
type Notifier interface {
	ActiveConnections(memberID string) int
	Send(memberID string, payload []byte)
}

// NewCommunicationMessage is pushed to a member's sessions after new email was stored.
type NewCommunicationMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// StartIdleListener watches memberID's INBOX with IDLE and stores new mail as it
// arrives. It only works while the member has open sessions, and blocks until
// ctx is canceled.
func (s *Service) StartIdleListener(ctx context.Context, memberID string, notifier Notifier) {
	for {
		if ctx.Err() != nil {
			return
		}

		if notifier.ActiveConnections(memberID) == 0 {
			if !sleepCtx(ctx, idleRetryDelay) {
				return
			}
			continue
		}

		// Catch up on anything that arrived while not listening.
		s.syncAndNotify(ctx, memberID, notifier)

		_, creds, err := s.credentials(ctx, memberID)
		if err != nil {
			log.Printf("IMAP IDLE: failed to get mailbox for member %s: %v", memberID, err)
			if !sleepCtx(ctx, idleRetryDelay) {
				return
			}
			continue
		}

		listener, err := s.clients.Listener(memberID, creds)
		if err != nil {
			log.Printf("IMAP IDLE: failed to connect listener for member %s: %v", memberID, err)
		} else {
			func() {
				defer listener.mu.Unlock()
				s.runIdleLoop(ctx, memberID, listener.client, notifier)
			}()
		}

		if !sleepCtx(ctx, idleRetryDelay) {
			return
		}
	}
}

// runIdleLoop idles on INBOX until ctx ends, the server drops the connection
// or the member has no sessions left.
func (s *Service) runIdleLoop(ctx context.Context, memberID string, c *imapclient.Client, notifier Notifier) {
	updates := make(chan imapclient.Update, 10)
	c.Updates = updates
	defer func() { c.Updates = nil }()

	if _, err := c.Select(InboxFolder, true); err != nil {
		log.Printf("IMAP IDLE: failed to select INBOX for member %s: %v", memberID, err)
		s.clients.Forget(memberID)
		return
	}

	idleClient := idle.NewClient(c)
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idlePollInterval)
	}()

	presence := time.NewTicker(idleRetryDelay)
	defer presence.Stop()

	stopIdle := func() {
		close(stop)
		<-done
	}

	for {
		select {
		case <-ctx.Done():
			stopIdle()
			return
		case <-presence.C:
			if notifier.ActiveConnections(memberID) == 0 {
				stopIdle()
				return
			}
		case err := <-done:
			if err != nil {
				log.Printf("IMAP IDLE: idle ended with error for member %s: %v", memberID, err)
				s.clients.Forget(memberID)
			}
			return
		case update := <-updates:
			if mbox, ok := update.(*imapclient.MailboxUpdate); ok && mbox.Mailbox != nil && mbox.Mailbox.Name == InboxFolder {
				s.syncAndNotify(ctx, memberID, notifier)
			}
		}
	}
}

// syncAndNotify stores new INBOX mail and tells the member's sessions about it.
func (s *Service) syncAndNotify(ctx context.Context, memberID string, notifier Notifier) {
	count, err := s.SyncInbox(ctx, memberID)
	if err != nil {
		log.Printf("IMAP IDLE: failed to sync INBOX for member %s: %v", memberID, err)
		return
	}
	if count == 0 {
		return
	}

	payload, err := json.Marshal(NewCommunicationMessage{Type: "new_communication", Count: count})
	if err != nil {
		log.Printf("IMAP IDLE: failed to marshal notification: %v", err)
		return
	}
	notifier.Send(memberID, payload)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
