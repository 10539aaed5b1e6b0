package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "greetbot/internal/runtime/supervisor"
	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

const (
	jobQueueCap = 256

	textUnknown      = "未知命令，请使用 /help 查看可用命令。"
	textUnauthorized = "您没有权限使用该命令。"
	textBusy         = "机器人繁忙，请稍后再试。"
)

// Router owns the command registry and the worker pool that runs handlers.
type Router struct {
	mu       sync.RWMutex
	commands map[string]*Command // name and aliases -> command
	ordered  []Command
	owners   []int64

	log     logx.Logger
	adapter transport.Adapter
	workers int

	runMu   sync.Mutex
	running bool
	jobs    chan func()
}

func New(log logx.Logger, adapter transport.Adapter, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands: map[string]*Command{},
		owners:   append([]int64(nil), owners...),
		log:      log,
		adapter:  adapter,
		workers:  max(runtime.NumCPU(), 2),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.owners, id)
}

// SetCommands replaces the registry. A /help command is always injected.
// The returned list is what a platform command menu should show.
func (r *Router) SetCommands(cmds []Command) []transport.BotCommand {
	cmds = append(slices.Clone(cmds), Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "显示帮助",
		Usage:       "/help [命令]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText(req.Args))
		},
	})

	byName := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := normalizeName(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		if _, dup := byName[name]; dup {
			r.log.Warn("duplicate command ignored", logx.String("cmd", name), logx.String("plugin", c.Plugin))
			continue
		}
		c.Name = name
		cc := c
		byName[name] = &cc
		for _, a := range c.Aliases {
			a = normalizeName(a)
			if a == "" {
				continue
			}
			if _, taken := byName[a]; !taken {
				byName[a] = &cc
			}
		}
		ordered = append(ordered, cc)
	}
	slices.SortFunc(ordered, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })

	r.mu.Lock()
	r.commands = byName
	r.ordered = ordered
	r.mu.Unlock()

	return buildMenu(ordered)
}

func (r *Router) lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	if !ok {
		return Command{}, false
	}
	return *c, true
}

// Run consumes messages until ctx ends or in is closed. Handlers run on a
// bounded pool of restartable workers.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	jobs := make(chan func(), jobQueueCap)
	r.runMu.Lock()
	r.jobs = jobs
	r.running = true
	r.runMu.Unlock()

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
		)
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(jobs)))

	defer func() {
		r.runMu.Lock()
		r.running = false
		close(jobs)
		r.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			r.route(ctx, msg)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) tryEnqueue(fn func()) bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return false
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) route(ctx context.Context, msg transport.Message) {
	name, args, ok := parseCommandLine(msg.Text)
	if !ok {
		return
	}
	to := msg.Target()
	cmd, found := r.lookup(name)
	if !found {
		// Group chats carry commands meant for other bots.
		if !msg.IsGroup {
			r.send(ctx, to, textUnknown)
		}
		return
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.send(ctx, to, textUnauthorized)
		return
	}

	rid := uuid.NewString()
	req := &Request{
		Message: msg,
		Chat:    to,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	if cmd.Plugin != "" {
		req.Logger = req.Logger.With(logx.String("plugin", cmd.Plugin))
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	final := Chain(cmd.Handle, MWPanicRecover(), MWRequestLog(), MWTimeout(timeout))
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		r.send(ctx, to, textBusy)
	}
}

func (r *Router) send(ctx context.Context, to transport.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, to, text, nil); err != nil {
		r.log.Debug("router reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
