// Package notifier delivers operator alerts to the ops chat.
//
// Alerts come from two places: cycle reports that did not finish cleanly
// (observed on the event bus) and log lines forwarded by the logging chat
// sink. Delivery is asynchronous: a bounded queue feeds a small worker pool
// that applies a token-bucket rate limit, retries with backoff and
// suppresses duplicates within a window. Dedup state can be persisted in
// storage so a restart does not re-alert.
package notifier
