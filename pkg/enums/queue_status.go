package enums

import "fmt"

// QueueStatus maps to the queue_status enum in Postgres.
type QueueStatus string

const (
	QueueWaiting   QueueStatus = "waiting"
	QueueCalled    QueueStatus = "called"
	QueueServing   QueueStatus = "serving"
	QueueCompleted QueueStatus = "completed"
	QueueLeft      QueueStatus = "left"
)

var validQueueStatuses = []QueueStatus{
	QueueWaiting,
	QueueCalled,
	QueueServing,
	QueueCompleted,
	QueueLeft,
}

// String implements fmt.Stringer.
func (s QueueStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known QueueStatus.
func (s QueueStatus) IsValid() bool {
	for _, candidate := range validQueueStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// InLine reports whether the entry still occupies a queue position.
func (s QueueStatus) InLine() bool {
	return s == QueueWaiting || s == QueueCalled
}

// ParseQueueStatus converts raw input into a QueueStatus.
func ParseQueueStatus(value string) (QueueStatus, error) {
	for _, candidate := range validQueueStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid queue status %q", value)
}
