// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT or SIGTERM, then runs registered hooks in
// reverse registration order under a shared timeout, so components stop
// in the opposite order they started.
package shutdown
