package contest

// HistoryRecord is one append-only judging event (spec §3 "HistoryRecord").
// InsertionID is assigned by the Store at append time and is the
// tie-breaker when two records share a Timestamp (spec §5 "Ordering
// guarantees").
type HistoryRecord struct {
	InsertionID   int64  `json:"insertion_id"`
	ContestID     string `json:"contest_id"`
	ParticipantID string `json:"participant_id"`
	TaskID        int64  `json:"task_id"`
	Language      string `json:"language"`
	Verdict       string `json:"verdict"`
	TestsPassed   int    `json:"tests_passed"`
	TotalTests    int    `json:"total_tests"`
	Timestamp     int64  `json:"timestamp"` // epoch seconds, assigned at result-application time
}

// PersonalResult is the payload of a personal_result notification
// (spec §4.6 "Events").
type PersonalResult struct {
	TaskID      int64  `json:"task_id"`
	Verdict     string `json:"verdict"`
	TestsPassed int    `json:"tests_passed"`
	TotalTests  int    `json:"total_tests"`
	Score       int    `json:"score"`
	Passed      bool   `json:"passed"`
}
