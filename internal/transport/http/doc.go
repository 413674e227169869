// Package http implements the HTTP handlers of the tabflow server. Handlers
// stay thin: they decode requests, delegate to the pipeline manager and
// render results with chi/render.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → pipeline.Manager
//	                                              ↓
//	HTTP Response ← Handler ← RunState / error ←─┘
//
// # Error Handling
//
// Every failure is rendered as RFC 7807 Problem Details by the errors
// package. A failed run keeps its state in the "run" extension:
//
//	{
//	    "type": "/errors/table/parse",
//	    "title": "Unprocessable Entity",
//	    "status": 422,
//	    "detail": "...",
//	    "stage": "center",
//	    "stage_index": 2,
//	    "run": {"id": "...", "status": "failed", "stages": [...]}
//	}
package http
