package dto

// AnalyticsOverviewResponse summarises submission screening across the portal.
type AnalyticsOverviewResponse struct {
	TotalAssignments  int64   `json:"total_assignments"`
	TotalSubmissions  int64   `json:"total_submissions"`
	LateSubmissions   int64   `json:"late_submissions"`
	HighPlagiarism    int64   `json:"high_plagiarism"`
	AIDetected        int64   `json:"ai_detected"`
	GradedSubmissions int64   `json:"graded_submissions"`
	OnTimeRate        float64 `json:"on_time_rate"`
	CacheHit          bool    `json:"cache_hit"`
}

// PreviewResponse carries a sanitized excerpt of a text-bearing upload.
type PreviewResponse struct {
	SubmissionID uint   `json:"submission_id"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	HTML         string `json:"html"`
	Truncated    bool   `json:"truncated"`
}

// HealthResponse reports service status and the capability snapshot.
type HealthResponse struct {
	Status       string          `json:"status"`
	Service      string          `json:"service"`
	Environment  string          `json:"environment"`
	Time         string          `json:"time"`
	Capabilities map[string]bool `json:"capabilities"`
}
