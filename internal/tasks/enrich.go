package tasks

import (
	"context"
	"log"
	"net/url"
	"sort"
	"strconv"

	"github.com/MateusSouzaG/bitrix-exporter/internal/bitrix"
	"github.com/MateusSouzaG/bitrix-exporter/internal/domain"
)

// Directory resolves a user id to a roster entry.
type Directory interface {
	Lookup(id int) (domain.Collaborator, bool)
}

// UnknownUserLabel synthesizes the display name used when the roster has no
// entry for an id.
func UnknownUserLabel(id int) string {
	return "USER_" + strconv.Itoa(id)
}

// Enrich resolves task ids to full records via batched tasks.task.get
// calls, in the order of the input list. An absent batch slot skips that
// task; the returned slice may therefore be shorter than the input, and the
// gap is logged so a systemic decoding problem stays visible.
func Enrich(ctx context.Context, api Caller, taskIDs []int, dir Directory) []domain.Task {
	if len(taskIDs) == 0 {
		return nil
	}

	log.Printf("enriching %d tasks...", len(taskIDs))

	commands := make([]bitrix.Command, len(taskIDs))
	for i, id := range taskIDs {
		params := url.Values{}
		params.Set("taskId", strconv.Itoa(id))
		commands[i] = bitrix.Command{Method: "tasks.task.get", Params: params}
	}

	responses := api.BatchCall(ctx, commands)

	enriched := make([]domain.Task, 0, len(taskIDs))
	for i, response := range responses {
		requestedID := taskIDs[i]

		raw := taskPayload(response)
		if raw == nil {
			log.Printf("empty response for task %d", requestedID)
			continue
		}

		enriched = append(enriched, buildTask(raw, requestedID, dir))
	}

	log.Printf("tasks enriched: %d/%d", len(enriched), len(taskIDs))
	return enriched
}

// taskPayload unwraps a batch slot for tasks.task.get, which arrives as
// {"task": {...}} or wrapped once more as {"result": {"task": {...}}}.
func taskPayload(response any) map[string]any {
	m, ok := response.(map[string]any)
	if !ok {
		return nil
	}
	if task, ok := m["task"].(map[string]any); ok {
		return task
	}
	if result, ok := m["result"].(map[string]any); ok {
		if task, ok := result["task"].(map[string]any); ok {
			return task
		}
	}
	return nil
}

func buildTask(raw map[string]any, requestedID int, dir Directory) domain.Task {
	task := domain.Task{ID: requestedID}

	// Prefer the payload's own id; fall back to the requested one when it is
	// missing or unparsable.
	if id, ok := bitrix.IntValue(bitrix.Field(raw, "id")); ok {
		task.ID = int(id)
	} else {
		log.Printf("task %d: payload id unparsable, keeping requested id", requestedID)
	}

	task.Title = bitrix.FieldString(raw, "title")
	task.Status = bitrix.FieldString(raw, "status")
	task.Deadline = bitrix.FieldString(raw, "deadline")

	// Camel-case and SNAKE_CASE variants of the same field; Field covers
	// casing but not the underscore forms.
	task.ActivityDate = firstNonEmpty(
		bitrix.FieldString(raw, "activityDate"),
		bitrix.FieldString(raw, "ACTIVITY_DATE"),
	)
	task.CreatedDate = firstNonEmpty(
		bitrix.FieldString(raw, "createdDate"),
		bitrix.FieldString(raw, "CREATED_DATE"),
		bitrix.FieldString(raw, "DATE_CREATE"),
	)

	// Aggregate time is the coarse fallback for webhooks that cannot see
	// entry-level detail.
	spentRaw := bitrix.Field(raw, "timeSpentInLogs")
	if spentRaw == nil {
		spentRaw = bitrix.Field(raw, "TIME_SPENT_IN_LOGS")
	}
	if spent, ok := bitrix.IntValue(spentRaw); ok && spent > 0 {
		task.TimeSpentInLogs = &spent
	}

	respRaw := bitrix.Field(raw, "responsibleId")
	if respRaw == nil {
		respRaw = bitrix.Field(raw, "RESPONSIBLE_ID")
	}
	if respID, ok := bitrix.IntValue(respRaw); ok {
		task.ResponsibleID = int(respID)
		task.ResponsibleName = resolveName(dir, int(respID))
	}

	actorsRaw := bitrix.Field(raw, "accomplices")
	if actorsRaw == nil {
		actorsRaw = bitrix.Field(raw, "members")
	}
	task.AccompliceIDs = bitrix.ActorIDs(actorsRaw)
	task.AccompliceNames = make([]string, len(task.AccompliceIDs))
	for i, id := range task.AccompliceIDs {
		task.AccompliceNames[i] = resolveName(dir, id)
	}

	task.Departments = participantDepartments(dir, task.ResponsibleID, task.AccompliceIDs)
	return task
}

func resolveName(dir Directory, id int) string {
	if c, ok := dir.Lookup(id); ok && c.Name != "" {
		return c.Name
	}
	return UnknownUserLabel(id)
}

// participantDepartments joins the sorted, deduplicated department labels
// of every resolved participant (responsible + accomplices).
func participantDepartments(dir Directory, responsibleID int, accompliceIDs []int) string {
	seen := make(map[string]struct{})
	collect := func(id int) {
		if id == 0 {
			return
		}
		if c, ok := dir.Lookup(id); ok && c.Department != "" {
			seen[c.Department] = struct{}{}
		}
	}
	collect(responsibleID)
	for _, id := range accompliceIDs {
		collect(id)
	}

	if len(seen) == 0 {
		return ""
	}
	depts := make([]string, 0, len(seen))
	for d := range seen {
		depts = append(depts, d)
	}
	sort.Strings(depts)

	out := depts[0]
	for _, d := range depts[1:] {
		out += ", " + d
	}
	return out
}

// SortedIDs renders a discovery set as an ascending slice, the order
// enrichment and time-entry fetching use.
func SortedIDs(ids map[int]struct{}) []int {
	out := make([]int, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
