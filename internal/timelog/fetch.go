// Package timelog fetches and reconciles per-task elapsed-time entries.
package timelog

import (
	"context"
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

// Fetcher retrieves time entries for a set of tasks.
type Fetcher struct {
	API Caller
	// Individual forces one request per task instead of the batch endpoint.
	Individual bool
}

// FetchAll returns the raw time entries per task id. The batch path groups
// task.elapseditem.getlist commands; when every task comes back empty, one
// fallback pass of individual requests runs — some webhook permission
// configurations expose elapsed items only through direct calls.
func (f *Fetcher) FetchAll(ctx context.Context, taskIDs []int) map[int][]map[string]any {
	entries := make(map[int][]map[string]any, len(taskIDs))
	if len(taskIDs) == 0 {
		return entries
	}

	if f.Individual {
		log.Printf("fetching time entries for %d tasks (individual requests)...", len(taskIDs))
		f.fetchIndividually(ctx, taskIDs, entries)
		log.Printf("time entries collected for %d tasks (%d items)", len(entries), countEntries(entries))
		return entries
	}

	log.Printf("fetching time entries for %d tasks (batch)...", len(taskIDs))

	commands := make([]bitrix.Command, len(taskIDs))
	for i, id := range taskIDs {
		commands[i] = bitrix.Command{Method: "task.elapseditem.getlist", Params: elapsedParams(id)}
	}
	responses := f.API.BatchCall(ctx, commands)
	for i, response := range responses {
		entries[taskIDs[i]] = bitrix.EntryList(response)
	}

	total := countEntries(entries)
	log.Printf("time entries collected for %d tasks (%d items)", len(entries), total)

	// Batch answering empty across the board usually means the webhook
	// cannot see elapsed items through the batch endpoint, not that no time
	// was logged. Retry once with direct calls before believing it.
	if total == 0 {
		log.Printf("batch returned no time entries, falling back to individual requests...")
		fallback := make(map[int][]map[string]any, len(taskIDs))
		f.fetchIndividually(ctx, taskIDs, fallback)
		if countEntries(fallback) > 0 {
			log.Printf("fallback recovered %d time entries", countEntries(fallback))
			return fallback
		}
		log.Printf("no time entries via batch or fallback; check the webhook's tasks.elapseditem permission")
	}

	return entries
}

func (f *Fetcher) fetchIndividually(ctx context.Context, taskIDs []int, out map[int][]map[string]any) {
	for _, id := range taskIDs {
		resp, err := f.API.Call(ctx, "task.elapseditem.getlist", elapsedParams(id))
		if err != nil {
			log.Printf("fetching time entries for task %d: %v", id, err)
			out[id] = nil
			continue
		}
		out[id] = bitrix.EntryList(resp)
	}
}

// The endpoint has no "tasks." prefix and wants TASKID upper-cased; both
// differ from the task detail methods.
func elapsedParams(taskID int) url.Values {
	params := url.Values{}
	params.Set("TASKID", strconv.Itoa(taskID))
	return params
}

func countEntries(m map[int][]map[string]any) int {
	n := 0
	for _, list := range m {
		n += len(list)
	}
	return n
}
