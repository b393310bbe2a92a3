package deps

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/peekdeck/peekdeck/internal/index"
	"github.com/peekdeck/peekdeck/internal/lifecycle"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/picker"
)

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string

	AllowedHosts []string // Host headers allowed to access the server
	AllowedCIDRS []string // IPs allowed to access healthz/readyz endpoints
	TrustProxy   bool     // true if running behind a trusted reverse proxy

	RedisClient *redis.Client      // Redis client connection
	MemoryIndex *index.MemoryIndex // per-widget runtime state
	Lifecycle   *lifecycle.Manager // widget lifecycle manager
	Pickers     *picker.Service    // interactive picking sessions

	SeedFile      string        // path to widgets.yaml, empty = disabled
	ReloadTrigger chan struct{} // manual seed reload trigger, nil when disabled

	PickerRateBurst     int // picker session starts allowed in a burst, per IP
	PickerRatePerMinute int // sustained picker session starts per minute, per IP
}
