package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/service"
)

// Pinger checks a backing store for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	TimeNow        func() time.Time // for testing, defaults to time.Now
	AllowedCIDRS   []string         // IPs allowed to access ops endpoints
	TrustProxy     bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	AuthRateLimit  float64          // requests per second per IP on auth routes
	AuthRateBurst  int
	StoreBackend   string                  // "redis" | "memory"
	Store          Pinger                  // nil for the memory backend
	Listings       *service.ListingService // book and note uploads
	Users          *service.UserService    // accounts and sessions
	Views          *service.ViewRegistry   // open live views
	Catalog        *service.Catalog        // quick tags, conditions, note formats
	CatalogFile    string                  // Path to catalog.yaml, empty when unused
	ImageUploads   bool                    // true when an image host is configured
	MaxUploadBytes int64                   // cap on one listing image
	SSEHeartbeat   time.Duration           // keep-alive interval on view streams
	ReloadTrigger  chan struct{}           // Channel to trigger manual catalog reload (nil without a catalog file)
}
