// Package server is the HTTP method channel: it lets a UI in another process call the engine through the
// bridge dispatcher and drive the job coordinator.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] and [Recover] are installed by [NewMethodChannel].
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Routes
//
//	GET  /v1/ops            catalogue of operations and their argument specs
//	POST /v1/call/{method}  invoke an operation; the body is a JSON object of named arguments or a JSON string
//	GET  /v1/job            coordinator snapshot
//	POST /v1/job/start      {"primary", "secondary", "queue_depth"}
//	POST /v1/job/progress   {"primary"?, "secondary"?, "done", "total", "queue_depth"?}
//	POST /v1/job/stop
//	POST /v1/job/timeout    deliver a platform timeout and wait for cleanup
//
// Call results are {"method", "result"} on success. Failures are {"method", "error": {"code", "message",
// "details"}} with status 400 for invalid_argument, 404 for unsupported_operation and 502 for engine_error.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// [JobHandler] is registered that way.
package server
