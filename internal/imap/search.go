package imap

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

// SearchSince returns the UIDs of messages in the selected mailbox dated on or after
// the day of since, oldest first.
// SEARCH SINCE has day granularity, so messages from earlier on the same day are included too.
func SearchSince(c *client.Client, since time.Time) ([]uint32, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	// Prefer server-side ordering by arrival when the server supports SORT.
	sortClient := sortthread.NewSortClient(c)
	if ok, err := sortClient.SupportSort(); err == nil && ok {
		uids, err := sortClient.UidSort([]sortthread.SortCriterion{{Field: sortthread.SortArrival}}, criteria)
		if err != nil {
			return nil, fmt.Errorf("failed to sort messages: %w", err)
		}
		return uids, nil
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}

	// UIDs are assigned in arrival order.
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	return uids, nil
}
