// Package tasks discovers and enriches Bitrix task records for a set of
// scoped collaborators.
package tasks

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
)

// Caller is the slice of the Bitrix client this package needs.
type Caller interface {
	Call(ctx context.Context, method string, params url.Values) (map[string]any, error)
	BatchCall(ctx context.Context, commands []bitrix.Command) []any
}

// Filter narrows task discovery. Dates must already be normalized to the
// ISO-8601-with-offset form the API expects (see export.NormalizeISO8601).
type Filter struct {
	ActivityFrom string
	ActivityTo   string
	Status       string
}

// axes are the two independent relationships by which a task can reference
// a collaborator.
var axes = []string{"RESPONSIBLE_ID", "ACCOMPLICE"}

// Discoverer collects task ids via paginated tasks.task.list queries.
type Discoverer struct {
	API      Caller
	PageSize int
}

// CollectIDs returns the deduplicated set of task ids where any scope id
// appears as responsible or as accomplice. A transport failure on one axis
// ends only that axis's pagination; discovery issues O(len(scopeIDs) x 2)
// independent sub-queries and must survive partial backend flakiness.
func (d *Discoverer) CollectIDs(ctx context.Context, scopeIDs []int, filter Filter) (map[int]struct{}, error) {
	if len(scopeIDs) == 0 {
		return nil, fmt.Errorf("empty scope: no collaborator ids to query")
	}

	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	ids := make(map[int]struct{})
	for _, userID := range scopeIDs {
		for _, axis := range axes {
			found := d.collectAxis(ctx, ids, userID, axis, filter, pageSize)
			if found > 0 {
				log.Printf("user %d (%s): %d tasks found", userID, axis, found)
			}
		}
	}

	log.Printf("collected %d unique task ids for %d collaborator(s)", len(ids), len(scopeIDs))
	return ids, nil
}

// collectAxis paginates one (user, axis) query, inserting every task id
// into the shared set. Returns how many tasks the axis surfaced.
func (d *Discoverer) collectAxis(ctx context.Context, ids map[int]struct{}, userID int, axis string, filter Filter, pageSize int) int {
	found := 0
	start := 0
	for {
		params := url.Values{}
		params.Set("start", strconv.Itoa(start))
		params.Set("filter["+axis+"]", strconv.Itoa(userID))
		if filter.ActivityFrom != "" {
			params.Set("filter[>=ACTIVITY_DATE]", filter.ActivityFrom)
		}
		if filter.ActivityTo != "" {
			params.Set("filter[<=ACTIVITY_DATE]", filter.ActivityTo)
		}
		if filter.Status != "" {
			params.Set("filter[STATUS]", filter.Status)
		}

		resp, err := d.API.Call(ctx, "tasks.task.list", params)
		if err != nil {
			log.Printf("listing tasks (%s) for user %d: %v", axis, userID, err)
			return found
		}

		page := taskPage(resp)
		if len(page) == 0 {
			return found
		}
		found += len(page)

		for _, task := range page {
			if id, ok := bitrix.IntValue(bitrix.Field(task, "id")); ok {
				ids[int(id)] = struct{}{}
			}
		}

		// The total may sit at the top level or inside the result object.
		// When neither reports one, a short page is the end-of-data signal.
		total := pageTotal(resp)
		if total == 0 {
			if len(page) < pageSize {
				return found
			}
		} else if start+len(page) >= total {
			return found
		}

		start += pageSize
	}
}

// taskPage extracts the task list from a tasks.task.list response, which
// answers either {"result": {"tasks": [...]}} or {"result": [...]}.
func taskPage(resp map[string]any) []map[string]any {
	switch result := resp["result"].(type) {
	case []any:
		return pageRecords(result)
	case map[string]any:
		if list, ok := result["tasks"].([]any); ok {
			return pageRecords(list)
		}
	}
	return nil
}

func pageRecords(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func pageTotal(resp map[string]any) int {
	if total, ok := bitrix.IntValue(resp["total"]); ok && total > 0 {
		return int(total)
	}
	if result, ok := resp["result"].(map[string]any); ok {
		if total, ok := bitrix.IntValue(result["total"]); ok && total > 0 {
			return int(total)
		}
	}
	return 0
}
