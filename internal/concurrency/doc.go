// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Lock-free task executor used to run bursty CPU work (TLS handshakes) off
// the selector package's event-loop goroutines.
package concurrency
