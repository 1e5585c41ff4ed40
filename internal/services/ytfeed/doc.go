// Package ytfeed lists a subscription's current items from the public RSS
// video feeds, resolving handle-style channels to their feed URL on demand.
package ytfeed
