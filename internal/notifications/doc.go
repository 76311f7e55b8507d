// Package notifications delivers pipeline outcomes via ntfy.
//
// The topic configured under [notifications] receives one message per finished
// or failed submission. When no topic is configured, NewService returns a
// no-op implementation so pipeline code never checks for nil.
package notifications
