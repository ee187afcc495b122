// Package async runs fire-and-forget work on supervised goroutines.
//
// SafeGo wraps a task with a bounded context and panic recovery so a
// failing background write cannot crash the process or leak a
// goroutine. The audit recorder uses it to persist events off the
// request path.
package async
