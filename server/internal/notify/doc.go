// Package notify produces notification events: periodic samples from a
// template catalog, the per-connection welcome greeting, and validated relays
// of client-submitted notifications. Every event receives an ID from a shared
// IDSource so IDs are strictly increasing across all producers.
package notify
