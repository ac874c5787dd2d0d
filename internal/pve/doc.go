// Package pve provides a client for the Proxmox VE node management CLIs.
//
// This package wraps the qm and pvesm commands to provide:
//   - VM lifecycle operations (create, set, start, stop, destroy)
//   - Disk import with volume reference parsing
//   - VM configuration and status inspection
//   - Storage existence and path lookups
//
// All operations shell out through a small runner interface so the client
// can be exercised in tests without a Proxmox node. The free-form command
// output (qm importdisk progress, qm config key/value dumps, qm list and
// pvesm status tables) is parsed in parse.go.
//
// Consumer-Side Interfaces:
//
// This package does not define consumer interfaces. Callers (internal/vm,
// internal/metadata) define their own interfaces specifying only the
// operations they need; *pve.Client satisfies them implicitly.
package pve
