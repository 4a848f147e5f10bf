// Package alerts evaluates threshold rules against every metrics snapshot.
// A rule that starts firing publishes a system notification to connected
// clients; one that stops firing publishes a resolution. Both transitions
// are also delivered to Slack, Teams or generic HTTP webhooks.
package alerts
