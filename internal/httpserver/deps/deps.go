package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/overlaylabs/copresence/internal/auth"
	"github.com/overlaylabs/copresence/internal/comments"
	"github.com/overlaylabs/copresence/internal/hub"
	"github.com/overlaylabs/copresence/internal/logger"
	"github.com/overlaylabs/copresence/internal/registry"
	"github.com/overlaylabs/copresence/internal/tracking"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time // for testing, defaults to time.Now
	AllowedHosts   []string         // Host headers allowed to access the server
	AllowedCIDRS   []string         // IPs allowed to access admin endpoints
	AllowedOrigins []string         // Origins allowed for API calls and websocket upgrades
	TrustProxy     bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)

	RedisClient *redis.Client // Redis client connection

	Hub      *hub.Hub           // Websocket connection and broadcast manager
	Registry *registry.Registry // In-memory session registry
	Engine   *tracking.Engine   // Cursor tracking engine
	Comments *comments.Service  // Comment and thread service
	Verifier *auth.Verifier     // Connection token verifier

	SendBuffer   int           // Per-connection outbound frame buffer
	SweepTrigger chan struct{} // Channel to trigger a manual session sweep
}
