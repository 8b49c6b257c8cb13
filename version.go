package main

// Build-time variables set via ldflags during releases
var (
	version = "latest"
	commit  = "unknown"
	date    = "unknown"
)
