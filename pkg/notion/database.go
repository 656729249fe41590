package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page matching a database query, following
// pagination cursors. While one batch of results is being consumed the next
// request is already in flight, so multi-page reads cost roughly half the
// sequential latency. Rate limiting is enforced by the Client.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	base := notionapi.DatabaseQueryRequest{}
	if filter != nil {
		base.Filter = filter.Filter
		base.Sorts = filter.Sorts
		base.PageSize = filter.PageSize
	}

	type fetch struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}

	var all []notionapi.Page
	var pending <-chan fetch

	req := base
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all cancelled")
		}

		var resp *notionapi.DatabaseQueryResponse
		var err error
		if pending != nil {
			f := <-pending
			resp, err = f.resp, f.err
		} else {
			resp, err = c.QueryDatabase(ctx, dbID, &req)
		}
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all page")
		}

		all = append(all, resp.Results...)
		if !resp.HasMore {
			return all, nil
		}

		next := base
		next.StartCursor = resp.NextCursor
		ch := make(chan fetch, 1)
		pending = ch
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, &next)
			ch <- fetch{resp: r, err: e}
		}()
	}
}

// FindRunPage locates the report page for a run by its "Run ID" property.
// Returns nil when no page carries the given ID.
func FindRunPage(ctx context.Context, c Client, dbID, runID string) (*notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Run ID",
			RichText: &notionapi.TextFilterCondition{
				Equals: runID,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: find run page")
	}
	if len(pages) == 0 {
		return nil, nil
	}
	return &pages[0], nil
}
