// Package subscriptions persists the registry of watched content sources.
//
// The store owns every mutation of subscription fields and counters; the
// scheduler and operator surfaces go through its public operations. Stat
// counters are only ever incremented additively so concurrent polls cannot
// lose updates.
package subscriptions
