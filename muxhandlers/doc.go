// Package muxhandlers provides pipeline middleware for the mux router.
//
// Every middleware implements mux.Middleware. Constructors that validate
// their configuration return (mux.Middleware, error). Add them to a
// pipeline and reference the pipeline from a chain:
//
//	set := mux.NewPipelineSet()
//	api := set.Add(mux.NewPipeline("api").Add(
//	    muxhandlers.RecoveryMiddleware(muxhandlers.RecoveryConfig{}),
//	    muxhandlers.RequestIDMiddleware(muxhandlers.RequestIDConfig{}),
//	    muxhandlers.AccessLogMiddleware(muxhandlers.AccessLogConfig{}),
//	).Build())
//
// Middleware that add response headers do so after the rest of the pipeline
// returns and never overwrite a value the handler already set. Middleware
// that reject a request short-circuit the pipeline and return their own
// response, so the handler never runs.
//
// # Request ID Middleware
//
// RequestIDMiddleware stores a RequestID in the State and echoes it in the
// response header. IDs are UUID v4 by default; GenerateUUIDv7 and
// GenerateULID produce time-ordered IDs.
//
// # Basic Auth Middleware
//
// BasicAuthMiddleware implements HTTP Basic Authentication per RFC 7617.
// Credentials can be validated via a dynamic callback or a static map.
// Static credential comparison uses constant-time comparison to prevent
// timing attacks. The authenticated name is stored as BasicAuthUser.
//
//	mw, err := muxhandlers.BasicAuthMiddleware(muxhandlers.BasicAuthConfig{
//	    Realm: "My App",
//	    Credentials: map[string]string{
//	        "admin": "secret",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Proxy Headers Middleware
//
// ProxyHeadersMiddleware resolves the originating client from reverse proxy
// headers when the request originates from a trusted proxy and stores it in
// the State as ClientInfo. It reads X-Forwarded-For or X-Real-IP,
// X-Forwarded-Proto or X-Forwarded-Scheme, and X-Forwarded-Host. When
// EnableForwarded is true, the RFC 7239 Forwarded header is also parsed as a
// lowest-priority fallback. When TrustedProxies is empty,
// DefaultTrustedProxies is used.
//
// # Worker Pool Middleware
//
// WorkerPoolMiddleware stores a *worker.Pool in the State. Handlers behind it
// can call worker.Run to move blocking work off the request goroutine.
//
// # Metrics Middleware
//
// MetricsMiddleware records request count, latency and in-flight requests
// labelled by route pattern. Register the HTTPMetrics returned by
// NewHTTPMetrics on a prometheus.Registerer.
package muxhandlers
