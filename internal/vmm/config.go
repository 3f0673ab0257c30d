package vmm

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultPageSize           = 2 << 20
	defaultLargePageThreshold = 1 << 30
)

// Config encapsulates all tunables for Manager construction.
type Config struct {
	Device   int
	PageSize uint64
	// LargePageThreshold selects LargePageBackend for page sizes at or above it.
	LargePageThreshold uint64
	Backend            Backend
	LargePageBackend   Backend
	// Sizer computes the pool target for Reserve. Defaults to DefaultSizer.
	Sizer     Sizer
	Logger    *zerolog.Logger
	Publisher EventPublisher
}

// NewWithConfig constructs a Manager from Config. No device call is made
// until Init.
func NewWithConfig(cfg Config) *Manager {
	m := &Manager{
		device:    cfg.Device,
		pageSize:  cfg.PageSize,
		threshold: cfg.LargePageThreshold,
		def:       cfg.Backend,
		large:     cfg.LargePageBackend,
		sizer:     cfg.Sizer,
		publisher: cfg.Publisher,
		table:     NewTable(),
	}
	// Apply defaults if unset
	if m.pageSize == 0 {
		m.pageSize = defaultPageSize
	}
	if m.threshold == 0 {
		m.threshold = defaultLargePageThreshold
	}
	if m.sizer == nil {
		m.sizer = DefaultSizer
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Int("device", cfg.Device).Logger()
	} else {
		m.log = zerolog.Nop()
	}
	m.startTime = time.Now()
	return m
}
