// PrivacyRadar - Event Publisher Interface
// This decouples the analyzer's callbacks from the web package's Hub type,
// so database never imports web.
package database

// EventPublisher defines an interface for publishing events to subscribers.
type EventPublisher interface {
	PublishEvent(event interface{})
}

// globalPublisher is set once by the web server at startup.
var globalPublisher EventPublisher

// SetEventPublisher sets the global event publisher.
func SetEventPublisher(p EventPublisher) {
	globalPublisher = p
}

// PublishEvent publishes an event to the global publisher if set.
func PublishEvent(event interface{}) {
	if globalPublisher != nil {
		globalPublisher.PublishEvent(event)
	}
}
