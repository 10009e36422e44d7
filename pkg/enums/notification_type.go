package enums

// NotificationType buckets in-app notifications by the surface they link to.
type NotificationType string

const (
	NotificationBooking      NotificationType = "booking"
	NotificationQueue        NotificationType = "queue"
	NotificationSubscription NotificationType = "subscription"
	NotificationCheckIn      NotificationType = "checkin"
)

var validNotificationTypes = []NotificationType{
	NotificationBooking,
	NotificationQueue,
	NotificationSubscription,
	NotificationCheckIn,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}
