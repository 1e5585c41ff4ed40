package logging

// Shared attribute keys. Components use these so log lines stay queryable
// across the daemon, scheduler, and stores.
const (
	// FieldComponent labels which subsystem emitted the record.
	FieldComponent = "component"
	// FieldEventType categorizes the record for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next operator step after a failure.
	FieldErrorHint = "error_hint"
	// FieldSubscriptionID identifies the subscription a record concerns.
	FieldSubscriptionID = "subscription_id"
	// FieldItemID identifies the queue item a record concerns.
	FieldItemID = "item_id"
	// FieldExternalID is the upstream identifier of a discovered item.
	FieldExternalID = "external_id"
	// FieldRunID correlates all records of one poll sweep.
	FieldRunID = "run_id"
	// FieldAttempt is the processing attempt number for a queue item.
	FieldAttempt = "attempt"
)
