// Package idgen generates approval request identifiers. It lives under
// `internal` because callers should not rely on the identifier layout –
// they should treat identifiers as opaque strings.
package idgen
