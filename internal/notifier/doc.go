// Package notifier is the outbound delivery channel.
//
// Notifications are queued and sent by a small worker pool through a
// Sender (the chat adapter). Sends are rate limited with a token bucket
// and retried with jittered exponential backoff. A short in-memory history
// of delivered messages is kept for status reporting.
package notifier
