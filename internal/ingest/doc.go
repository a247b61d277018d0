// Package ingest accepts RTMP publishers and exposes each one as a
// platform stream. Tracks appear on the stream when the first media of
// their kind arrives and end when the publisher disconnects, so wrappers
// see them as platform-initiated changes.
package ingest
