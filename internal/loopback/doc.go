// Package loopback is a self-contained transfer backend for development and
// demos. It serves the same commands and lifecycle events as the real
// SendIt backend, but a ticket can only be redeemed by the same process:
// "downloading" copies the offered files into a local directory.
//
// Imports hash each file to simulate the backend's blob import, and
// downloads are paced so progress, speed, and cancellation behave like a
// network transfer.
package loopback
