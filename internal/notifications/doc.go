// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event group
// (production, budget, quarantine, errors) can be switched off in the
// [notifications] section.
//
// All pipeline code depends only on the Service interface.
package notifications
