package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"create-member", "set-mailbox", "list", "show", "sync", "retry", "channel"}, names)
}

func TestRootCmd_RequiresMember(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"list", "--folder", "sent"})
	root.SetOut(&bytes.Buffer{})

	err := root.Execute()
	assert.EqualError(t, err, "--member is required")
}

func TestLocationFromFlags(t *testing.T) {
	cmd := NewListCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--member", "m1", "--inbox", "company", "--category", "sales", "--search", "boiler"}))

	nav := inbox.ParseNavigation(locationFromFlags(cmd))
	assert.Equal(t, inbox.Filter{
		Folder:    inbox.FolderInbox,
		InboxType: inbox.InboxCompany,
		Category:  "sales",
		Type:      inbox.TypeAll,
		Search:    "boiler",
	}, nav.Filter)
}

func TestPrintList(t *testing.T) {
	created := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	snapshot := inbox.Snapshot{
		Communications: []*models.Communication{
			{ID: "c1", Type: models.TypeEmail, Status: models.StatusUnread, FromName: "Dana", Subject: "Quote", CreatedAt: created},
			{ID: "c2", Type: models.TypeSMS, Status: models.StatusRead, FromAddress: "+15550100", Body: "On my way\nsee you", CreatedAt: created},
		},
		StarredIDs: []string{"c2"},
	}

	var out bytes.Buffer
	require.NoError(t, printList(&out, snapshot))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "Dana")
	assert.Contains(t, lines[1], "Quote")
	assert.NotContains(t, lines[1], "★")
	assert.Contains(t, lines[2], "★")
	assert.Contains(t, lines[2], "On my way")
	assert.NotContains(t, lines[2], "see you")
}

func TestChannelPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &channelPrinter{w: &out, printed: map[string]bool{}}
	at := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

	p.print([]models.ChannelMessage{
		{ID: "m1", Body: "hello", CreatedAt: at, Sender: &models.Sender{Name: "Alice"}},
		{ID: "temp-1", Body: "pending", CreatedAt: at},
	})
	p.print([]models.ChannelMessage{
		{ID: "m1", Body: "hello", CreatedAt: at, Sender: &models.Sender{Name: "Alice"}},
		{ID: "m2", Body: "hi", CreatedAt: at},
	})

	assert.Equal(t, "2026-03-04 09:30:00 Alice: hello\n2026-03-04 09:30:00 unknown: hi\n", out.String())
}
