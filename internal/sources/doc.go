// Package sources resolves subscription URLs into a source kind and the
// canonical identifier used for de-duplication. Resolution is pure and
// stateless; persistence lives in the subscriptions package.
package sources
