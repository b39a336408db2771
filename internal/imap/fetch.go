package imap

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ErrMessageNotFound is returned when the server has no message with the UID.
var ErrMessageNotFound = errors.New("message not found on server")

// fullMessageSection reads the whole RFC 822 message without setting \Seen.
var fullMessageSection = &imap.BodySectionName{Peek: true}

func fetchItems() []imap.FetchItem {
	return []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		fullMessageSection.FetchItem(),
	}
}

// FetchFullMessage fetches envelope, flags and the raw body of uid from the
// selected folder.
func FetchFullMessage(c *client.Client, uid uint32) (*imap.Message, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	messages, err := uidFetch(c, seqSet, 1)
	if err != nil {
		return nil, err
	}
	for _, msg := range messages {
		if msg.Uid == uid {
			return msg, nil
		}
	}
	return nil, ErrMessageNotFound
}

// FetchSince fetches every message of the selected folder with a UID above
// lastSeen, in UID order.
func FetchSince(c *client.Client, lastSeen uint32) ([]*imap.Message, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	// "n:*" always matches the highest UID, even when it is below n.
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastSeen+1, 0)

	messages, err := uidFetch(c, seqSet, 10)
	if err != nil {
		return nil, err
	}

	result := messages[:0]
	for _, msg := range messages {
		if msg.Uid > lastSeen {
			result = append(result, msg)
		}
	}
	return result, nil
}

func uidFetch(c *client.Client, seqSet *imap.SeqSet, buffer int) ([]*imap.Message, error) {
	messages := make(chan *imap.Message, buffer)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, fetchItems(), messages)
	}()

	var result []*imap.Message
	for msg := range messages {
		result = append(result, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sortByUID(result)
	return result, nil
}

func sortByUID(messages []*imap.Message) {
	slices.SortFunc(messages, func(a, b *imap.Message) int {
		return cmp.Compare(a.Uid, b.Uid)
	})
}
