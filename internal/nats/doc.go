// Package nats forwards capture events to an external NATS server so that
// collaborators on other hosts can follow the camera without polling the API.
//
// # Subject Hierarchy
//
//	camkeep.{source}.state      # loop state changes
//	camkeep.{source}.attempt    # open attempts with backoff delay and probe result
//	camkeep.{source}.health     # health signal changes
//	camkeep.{source}.reconnect  # reconnect results
//
// {source} is the configured device name, or the device path with
// separators replaced. Messages are fire-and-forget JSON (core NATS, no
// JetStream). When the server is unreachable events are dropped while the
// client keeps reconnecting in the background.
//
// # Debugging with nats CLI
//
//	nats sub "camkeep.>" -s nats://localhost:4222
//	nats sub "camkeep.porch.health" | jq .
package nats
