package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"greetbot/internal/eventbus"
	"greetbot/internal/task/engine"
	logx "greetbot/pkg/logx"
)

// DefaultMisfireGrace is used when Config.MisfireGrace is zero.
const DefaultMisfireGrace = 60 * time.Second

type Config struct {
	Enabled bool
	// Location is the trigger timezone. Nil means time.Local.
	Location *time.Location
	// MisfireGrace is how late a daily or cron trigger may fire and still run.
	MisfireGrace time.Duration
}

// Enqueuer accepts fired triggers. *engine.Service implements it.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

type specKind int

const (
	kindCron specKind = iota
	kindInterval
)

type scheduleDef struct {
	name    string
	spec    string
	kind    specKind
	every   time.Duration
	sched   cron.Schedule
	timeout time.Duration
	job     func(ctx context.Context) error
	opt     engine.TaskOptions
	gen     uint64
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	bus    eventbus.Bus
	engine Enqueuer
	now    func() time.Time

	parser cron.Parser
	c      *cron.Cron
	defs   map[string]*scheduleDef
	gen    uint64

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled      bool
	Running      bool
	Timezone     string
	MisfireGrace time.Duration
	Schedules    []ScheduleInfo
}
