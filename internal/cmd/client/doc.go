// Package client provides the `listsync` command-line client.
//
// The CLI talks to the listsync HTTP API for accounts, lists and item
// creation, and to the websocket gateway for everything that happens inside
// a list.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. The standalone binary reads LISTSYNC_URL and
// defaults to http://127.0.0.1:8080. Commands that need a token take --token
// or read LISTSYNC_TOKEN.
//
// Usage
//
//	listsync user register --username ada --password hunter22
//	export LISTSYNC_TOKEN=$(listsync user login --username ada --password hunter22 -q)
//
//	listsync list create --name groceries
//	listsync list ls
//
//	listsync todo add --list L1 -d "milk"
//	listsync todo edit --list L1 --id T1 -d "oat milk"
//	listsync todo status --list L1 --id T1 --from pending --to active
//	listsync todo move --list L1 --id T1 --position top
//	listsync todo move --list L1 --id T1 --after T2
//
//	# print the list, then every update broadcast on its room
//	listsync watch --list L1
//	listsync watch --list L1 --filter 'status == "pending"' --limit 1
//
// Notes
//
//   - todo add returns 202 once the create is routed; the item itself shows
//     up on watch when its lane has applied it.
//   - edit, status and move wait for the result frame carrying their command
//     id. A transition whose from-status is stale is dropped by the server,
//     so it ends with a timeout rather than an error.
package client
