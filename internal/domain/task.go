package domain

// Collaborator is one roster entry, resolving a Bitrix user id to a display
// name and department label.
type Collaborator struct {
	ID         int    `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Department string `yaml:"department" json:"department"`
}

// Task is an enriched Bitrix task record. Built once from the raw API
// payload and not mutated afterwards.
type Task struct {
	ID               int      `json:"task_id"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	Deadline         string   `json:"deadline"`
	ActivityDate     string   `json:"activity_date"`
	CreatedDate      string   `json:"created_date"`
	ResponsibleID    int      `json:"responsible_id"`
	ResponsibleName  string   `json:"responsible_name"`
	AccompliceIDs    []int    `json:"accomplice_ids"`
	AccompliceNames  []string `json:"accomplice_names"`
	Departments      string   `json:"departments"`
	TimeSpentInLogs  *int64   `json:"time_spent_in_logs"` // aggregate seconds; nil when the API omits it
}

// TimeEntry is one processed elapsed-time item from a task's time log.
type TimeEntry struct {
	UserID      int     `json:"user_id"` // 0 when the actor id could not be parsed
	UserName    string  `json:"user_name"`
	Seconds     int64   `json:"seconds"`
	Minutes     float64 `json:"minutes"`
	Hours       float64 `json:"hours"`
	Comment     string  `json:"comment"`
	CreatedDate string  `json:"created_date"`
}

// ExportRow is the unit handed to the spreadsheet writer. Either one row per
// (task, positive-duration entry) pair, or a single fallback row per task.
type ExportRow struct {
	TaskID       int    `json:"task_id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	Deadline     string `json:"deadline"`
	CreatedAt    string `json:"created_at"`
	Responsible  string `json:"responsible"`
	Participants string `json:"participants"`
	TotalTime    string `json:"total_time"`
	Departments  string `json:"departments"`
	ActivityDate string `json:"activity_date"`
	EntryTime    string `json:"entry_time"`
	LoggedBy     string `json:"logged_by"`
	LoggedAt     string `json:"logged_at"`
	EntryComment string `json:"entry_comment"`
}
