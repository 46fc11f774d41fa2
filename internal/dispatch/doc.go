// Package dispatch connects gateways to the lane registry over the backbone.
//
// A Router runs next to every gateway and publishes encoded commands to the
// commands topic. Exactly one Dispatcher runs in the hub process: it feeds
// those commands into the lane registry and publishes every result to the
// results topic, where each gateway picks up what its rooms need.
package dispatch
