package inbox

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Query parameter names of the inbox location.
const (
	ParamInbox    = "inbox"
	ParamFolder   = "folder"
	ParamCategory = "category"
	ParamAssigned = "assigned"
	ParamType     = "type"
	ParamChannel  = "channel"
	ParamID       = "id"
	ParamCompose  = "compose"
	ParamSearch   = "q"
)

// Navigation is the inbox state carried by the location query string.
type Navigation struct {
	Filter     Filter
	ChannelID  string
	SelectedID string
	// Compose is the compose intent. It is read once and stripped from the location.
	Compose string
}

// ParseNavigation reads the location query. Missing parameters take the
// defaults of DefaultFilter.
func ParseNavigation(q url.Values) Navigation {
	f := DefaultFilter()
	if v := strings.TrimSpace(q.Get(ParamInbox)); v != "" {
		f.InboxType = v
	}
	if v := strings.TrimSpace(q.Get(ParamFolder)); v != "" {
		f.Folder = v
	}
	if v := strings.TrimSpace(q.Get(ParamType)); v != "" {
		f.Type = v
	}
	f.Category = strings.TrimSpace(q.Get(ParamCategory))
	f.Assigned = strings.TrimSpace(q.Get(ParamAssigned))
	f.Search = strings.TrimSpace(q.Get(ParamSearch))

	return Navigation{
		Filter:     f,
		ChannelID:  strings.TrimSpace(q.Get(ParamChannel)),
		SelectedID: strings.TrimSpace(q.Get(ParamID)),
		Compose:    strings.TrimSpace(q.Get(ParamCompose)),
	}
}

// Location returns q with the selection and channel written back and the
// compose intent removed. q is not modified.
func Location(q url.Values, selectedID, channelID string) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	if selectedID != "" {
		out.Set(ParamID, selectedID)
	} else {
		out.Del(ParamID)
	}
	if channelID != "" {
		out.Set(ParamChannel, channelID)
	} else {
		out.Del(ParamChannel)
	}
	out.Del(ParamCompose)
	return out
}

// Navigate applies a parsed location: the filter first, then either the channel
// or the selected item. A selected id that is not in the loaded list is ignored.
func (c *Controller) Navigate(ctx context.Context, nav Navigation) error {
	if nav.Filter.Key() != c.Filter().Key() {
		if err := c.SetFilter(ctx, nav.Filter); err != nil {
			return err
		}
	} else if err := c.FetchList(ctx, false); err != nil {
		return err
	}

	if nav.ChannelID != "" {
		return c.OpenChannel(ctx, nav.ChannelID)
	}
	c.CloseChannel()

	if nav.SelectedID == "" {
		if c.Selected() != nil {
			return c.Select(ctx, "")
		}
		return nil
	}
	if current := c.Selected(); current != nil && current.ID == nav.SelectedID {
		return nil
	}
	err := c.Select(ctx, nav.SelectedID)
	if errors.Is(err, ErrCommunicationNotFound) || errors.Is(err, ErrNotSelectable) {
		return nil
	}
	return err
}
