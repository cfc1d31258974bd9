// Command sendit is the command-line client for the SendIt transfer backend.
//
// It queues local files for sending and prints the redemption ticket,
// redeems tickets, cancels downloads, previews candidate files, and renders
// both transfer queues as they change. Every command connects to the backend
// over the bridge socket and runs the synchronization engine for as long as
// the command lives.
package main
