// Package types defines the wire types shared by notifyhub-server and
// notifyhub-watch: the metrics snapshot, the notification event, and the
// {event, data} envelope every frame is wrapped in.
package types
