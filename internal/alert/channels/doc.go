// Package channels implements alert.Channel for email, chat webhooks, push
// notifications and Pub/Sub.
package channels
