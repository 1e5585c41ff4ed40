// Package notifications delivers operator push notifications over ntfy.
// Without a configured topic every call is a cheap noop.
package notifications
