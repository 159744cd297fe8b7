package notifications

// Notifier defines the interface for notification services
type Notifier interface {
	// SendAlert sends an alert with the specified severity and message
	SendAlert(severity, message string) error
}

// Noop is a Notifier that discards alerts.
type Noop struct{}

func (Noop) SendAlert(severity, message string) error { return nil }
