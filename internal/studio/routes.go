package studio

import (
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/config"
	"github.com/amankumarsingh77/studio-orchestrator/internal/models"
)

const (
	DefaultMaxAttempts            = 60
	DefaultLongRunningMaxAttempts = 120
	DefaultPollInterval           = 5 * time.Second
)

// Routes maps job kinds to their status endpoint and poll profile.
type Routes struct {
	Status           map[models.JobKind]string
	Standard         PollOptions
	LongRunning      PollOptions
	LongRunningKinds map[models.JobKind]bool
}

func DefaultRoutes() Routes {
	return Routes{
		Status: map[models.JobKind]string{
			models.JobKindMerge:        "/process/status",
			models.JobKindExtract:      "/extract_status",
			models.JobKindPitchShift:   "/process/status",
			models.JobKindTrim:         "/process/status",
			models.JobKindVideoCreate:  "/process/status",
			models.JobKindImageProcess: "/process/status",
			models.JobKindAnalyze:      "/api/music-analysis/status",
		},
		Standard:    PollOptions{MaxAttempts: DefaultMaxAttempts, Interval: DefaultPollInterval},
		LongRunning: PollOptions{MaxAttempts: DefaultLongRunningMaxAttempts, Interval: DefaultPollInterval},
		LongRunningKinds: map[models.JobKind]bool{
			models.JobKindVideoCreate: true,
		},
	}
}

// RoutesFromConfig overlays configured values on the defaults.
func RoutesFromConfig(cfg config.StudioConfig) Routes {
	r := DefaultRoutes()
	for kind, endpoint := range cfg.StatusRoutes {
		if endpoint != "" {
			r.Status[models.JobKind(kind)] = endpoint
		}
	}
	if cfg.Poll.MaxAttempts > 0 {
		r.Standard.MaxAttempts = cfg.Poll.MaxAttempts
	}
	if cfg.Poll.LongRunningMaxAttempts > 0 {
		r.LongRunning.MaxAttempts = cfg.Poll.LongRunningMaxAttempts
	}
	if cfg.Poll.IntervalMs > 0 {
		r.Standard.Interval = cfg.Poll.Interval()
		r.LongRunning.Interval = cfg.Poll.Interval()
	}
	if len(cfg.LongRunningKinds) > 0 {
		r.LongRunningKinds = make(map[models.JobKind]bool, len(cfg.LongRunningKinds))
		for _, kind := range cfg.LongRunningKinds {
			r.LongRunningKinds[models.JobKind(kind)] = true
		}
	}
	return r
}

func (r Routes) StatusEndpoint(kind models.JobKind) string {
	return r.Status[kind]
}

func (r Routes) ProfileFor(kind models.JobKind) PollOptions {
	if r.LongRunningKinds[kind] {
		return r.LongRunning
	}
	return r.Standard
}
