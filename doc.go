// Package mediastream provides a MediaStream in Go: a public track set kept
// in step with a platform track set, with browser-style liveness and
// capture reporting.
//
// Key pieces include:
//   - Stream and Track, the application-facing objects
//   - platform.Stream and platform.Track, the authoritative low-level side
//   - Loop, the cooperative task queue every Stream is bound to
//   - StreamRegistry, Page and SessionManager, the shared host services
//   - MediaDevices for getUserMedia-style construction from capture devices
//
// # Architecture
//
//	application call  -> Stream.AddTrack      -> platform.Stream.AddTrack(DontNotify)
//	platform callback -> Loop.Post -> Stream  -> "addtrack" event
//	either path       -> activity recompute   -> "active"/"inactive" event
//	events            -> dispatch scheduler   -> next Loop tick, one batch
//
// Every mutation carries an Origin so a change is propagated in exactly one
// direction: application changes go down to the platform, platform changes
// come up as events.
//
// # Threading
//
// A Stream and its Tracks are owned by one TaskQueue and must only be used
// from the goroutine draining it. Platform objects are safe for concurrent
// use; their notifications are re-posted onto the owning queue before any
// Stream state is touched. Use Loop.Call to reach a Stream from elsewhere.
//
// # Events
//
// Streams emit "addtrack" and "removetrack" (carrying the track) for
// platform-initiated changes, and "active"/"inactive" when liveness flips.
// Events never bubble and cannot be canceled. They are never delivered
// synchronously from the call that caused them.
package mediastream
