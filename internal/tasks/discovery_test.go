package tasks

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"testing"

	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
)

// fakeCaller answers Call via a user-provided function and records every
// query for later inspection.
type fakeCaller struct {
	call  func(params url.Values) (map[string]any, error)
	batch func(commands []bitrix.Command) []any
	calls []url.Values
}

func (f *fakeCaller) Call(ctx context.Context, method string, params url.Values) (map[string]any, error) {
	f.calls = append(f.calls, params)
	return f.call(params)
}

func (f *fakeCaller) BatchCall(ctx context.Context, commands []bitrix.Command) []any {
	if f.batch == nil {
		return make([]any, len(commands))
	}
	return f.batch(commands)
}

// taskListPage builds a tasks.task.list response in the nested form.
func taskListPage(total int, ids ...int) map[string]any {
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = map[string]any{"id": strconv.Itoa(id)}
	}
	resp := map[string]any{"result": map[string]any{"tasks": list}}
	if total > 0 {
		resp["total"] = float64(total)
	}
	return resp
}

func TestCollectIDs_DeduplicatesAcrossAxes(t *testing.T) {
	// Task 5002 shows up for user 101 as responsible and for user 202 as
	// accomplice; it must be counted once.
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		switch {
		case params.Get("filter[RESPONSIBLE_ID]") == "101":
			return taskListPage(2, 5001, 5002), nil
		case params.Get("filter[ACCOMPLICE]") == "202":
			return taskListPage(2, 5002, 5003), nil
		default:
			return taskListPage(0), nil
		}
	}}

	d := &Discoverer{API: api, PageSize: 50}
	ids, err := d.CollectIDs(context.Background(), []int{101, 202}, Filter{})
	if err != nil {
		t.Fatal(err)
	}

	want := []int{5001, 5002, 5003}
	got := SortedIDs(ids)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
}

func TestCollectIDs_EmptyScope(t *testing.T) {
	d := &Discoverer{API: &fakeCaller{}}
	if _, err := d.CollectIDs(context.Background(), nil, Filter{}); err == nil {
		t.Error("empty scope should fail before any network call")
	}
}

func TestCollectIDs_PaginatesUntilTotal(t *testing.T) {
	// 3 matching tasks, page size 2: expect two pages on the responsible
	// axis.
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		if params.Get("filter[RESPONSIBLE_ID]") != "7" {
			return taskListPage(0), nil
		}
		switch params.Get("start") {
		case "0":
			return taskListPage(3, 1, 2), nil
		case "2":
			return taskListPage(3, 3), nil
		default:
			return nil, fmt.Errorf("unexpected start %q", params.Get("start"))
		}
	}}

	d := &Discoverer{API: api, PageSize: 2}
	ids, err := d.CollectIDs(context.Background(), []int{7}, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("got %d ids, want 3", len(ids))
	}
}

func TestCollectIDs_ShortPageEndsAxisWithoutTotal(t *testing.T) {
	var listCalls int
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		if params.Get("filter[RESPONSIBLE_ID]") == "7" {
			listCalls++
			// No total reported; one page shorter than the page size.
			return taskListPage(0, 1, 2), nil
		}
		return taskListPage(0), nil
	}}

	d := &Discoverer{API: api, PageSize: 50}
	ids, err := d.CollectIDs(context.Background(), []int{7}, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d ids, want 2", len(ids))
	}
	if listCalls != 1 {
		t.Errorf("short page should end pagination, saw %d calls", listCalls)
	}
}

func TestCollectIDs_AxisFailureIsIsolated(t *testing.T) {
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		if params.Get("filter[ACCOMPLICE]") != "" {
			return nil, fmt.Errorf("backend flaked")
		}
		return taskListPage(1, 9001), nil
	}}

	d := &Discoverer{API: api, PageSize: 50}
	ids, err := d.CollectIDs(context.Background(), []int{55}, Filter{})
	if err != nil {
		t.Fatalf("one failing axis must not fail discovery: %v", err)
	}
	if _, ok := ids[9001]; !ok {
		t.Errorf("responsible axis results lost: %v", ids)
	}
}

func TestCollectIDs_ForwardsFilters(t *testing.T) {
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		return taskListPage(0), nil
	}}

	d := &Discoverer{API: api, PageSize: 50}
	_, err := d.CollectIDs(context.Background(), []int{1}, Filter{
		ActivityFrom: "2026-08-01T00:00:00-03:00",
		ActivityTo:   "2026-08-31T23:59:59-03:00",
		Status:       "5",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(api.calls) == 0 {
		t.Fatal("no queries issued")
	}
	first := api.calls[0]
	if first.Get("filter[>=ACTIVITY_DATE]") != "2026-08-01T00:00:00-03:00" {
		t.Errorf("from bound not forwarded: %v", first)
	}
	if first.Get("filter[<=ACTIVITY_DATE]") != "2026-08-31T23:59:59-03:00" {
		t.Errorf("to bound not forwarded: %v", first)
	}
	if first.Get("filter[STATUS]") != "5" {
		t.Errorf("status not forwarded: %v", first)
	}
}

func TestCollectIDs_FlatResultForm(t *testing.T) {
	api := &fakeCaller{call: func(params url.Values) (map[string]any, error) {
		if params.Get("filter[RESPONSIBLE_ID]") == "3" {
			// Flat form: result is the list itself.
			return map[string]any{"result": []any{map[string]any{"id": float64(44)}}}, nil
		}
		return taskListPage(0), nil
	}}

	d := &Discoverer{API: api, PageSize: 50}
	ids, err := d.CollectIDs(context.Background(), []int{3}, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ids[44]; !ok {
		t.Errorf("flat result form not parsed: %v", ids)
	}
}

func TestCollectIDs_Idempotent(t *testing.T) {
	call := func(params url.Values) (map[string]any, error) {
		if params.Get("filter[RESPONSIBLE_ID]") == "1" {
			return taskListPage(2, 10, 11), nil
		}
		return taskListPage(0), nil
	}

	d := &Discoverer{API: &fakeCaller{call: call}, PageSize: 50}
	first, err := d.CollectIDs(context.Background(), []int{1}, Filter{})
	if err != nil {
		t.Fatal(err)
	}

	d2 := &Discoverer{API: &fakeCaller{call: call}, PageSize: 50}
	second, err := d2.CollectIDs(context.Background(), []int{1}, Filter{})
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != len(second) {
		t.Errorf("discovery not repeatable: %v vs %v", first, second)
	}
	for id := range first {
		if _, ok := second[id]; !ok {
			t.Errorf("id %d missing from second run", id)
		}
	}
}
