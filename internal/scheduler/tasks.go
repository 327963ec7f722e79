package scheduler

import "time"

// TaskType identifies a maintenance job run outside the collection loop.
type TaskType string

const (
	// TaskArchiveSamples exports the previous month of samples to object storage.
	TaskArchiveSamples TaskType = "archive_samples"
	// TaskPublishReports publishes the monthly and yearly summaries that
	// became due.
	TaskPublishReports TaskType = "publish_reports"
)

// MaintenancePayload is the JSON event that triggers a maintenance task:
//
//	{
//	  "task": "archive_samples",
//	  "reference_time": "2024-02-01T03:00:00Z"
//	}
//
// ReferenceTime pins "now" for backfills; when nil the current time is used.
type MaintenancePayload struct {
	Task          TaskType   `json:"task"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Now returns the reference time of the payload, or fallback in UTC.
func (p MaintenancePayload) Now(fallback time.Time) time.Time {
	if p.ReferenceTime != nil {
		return p.ReferenceTime.UTC()
	}
	return fallback.UTC()
}
