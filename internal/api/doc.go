// Package api serves the HTTP control surface of streamd: stream and
// track inspection, producing control, and the page-wide media switches.
// Every stream access runs on the stream loop.
package api
