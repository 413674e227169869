package config

import "time"

// Application constants
const (
	// Application Info
	AppName    = "tabflow"
	AppVersion = "1.0.0"

	// Server
	DefaultPort       = 8080
	DefaultRunTimeout = 30 * time.Minute

	// Rate Limiting
	DefaultRateLimit = 10 // requests per second
	DefaultBurstSize = 20

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Geocoding; the public Nominatim instance allows one request per second
	DefaultNominatimURL    = "https://nominatim.openstreetmap.org"
	DefaultGeocodeInterval = 5 * time.Second

	// File Paths (relative to the working directory)
	DefaultDataDir   = "."
	DefaultOutputDir = "."
	DefaultLogFile   = "logs/tabflow.log"

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// API Endpoints
	APIBasePath       = "/api/v1"
	RunsEndpoint      = "/api/v1/runs"
	HealthEndpoint    = "/api/health"
	MetricsEndpoint   = "/metrics"
	WebSocketEndpoint = "/ws"
)
