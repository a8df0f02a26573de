package panel

import (
	"context"
	"sync"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/scheduler"
	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"go.uber.org/zap"
)

const (
	PageTitle         = types.PluginName
	FieldsetTitle     = "Blocklist"
	ColumnIP          = "IP"
	RefreshButtonText = "Update Block list"
	EmptyText         = "No IP addresses blocklisted."
	RefreshInterval   = 30 * time.Second
)

// Trigger names what started a refresh.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerButton Trigger = "button"
	TriggerPush   Trigger = "push"
)

// BlocklistClient fetches the current blocklist from the backend.
type BlocklistClient interface {
	GetBlocklist(ctx context.Context) (*types.BlocklistResponse, error)
}

// TaskScheduler is the host's recurring task runner.
type TaskScheduler interface {
	Start(ctx context.Context, task scheduler.Task) *scheduler.Handle
	Stop(h *scheduler.Handle)
}

type Column struct {
	Header    string
	DataIndex string
	Editable  bool
}

// ViewModel is everything a view needs to draw the page.
type ViewModel struct {
	Title      string
	Fieldset   string
	Columns    []Column
	Rows       []Row
	EmptyText  string
	ButtonText string
}

// View draws the page. Render is never called concurrently for one panel.
type View interface {
	Render(vm ViewModel)
}

// Panel is the blocklist preferences page.
type Panel struct {
	client BlocklistClient
	runner TaskScheduler
	store  *Store

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	task        *scheduler.Handle
	generation  uint64
	initialized bool
	tornDown    bool

	renderMu    sync.Mutex
	view        View
	layoutReady bool
}

func New(client BlocklistClient, runner TaskScheduler) *Panel {
	return &Panel{
		client: client,
		runner: runner,
	}
}

func (p *Panel) Title() string {
	return PageTitle
}

// Store returns the row store, nil before Initialize.
func (p *Panel) Store() *Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store
}

// Initialize binds an empty store and starts the refresh timer. The first
// refresh is issued right away.
func (p *Panel) Initialize(ctx context.Context) {
	p.mu.Lock()
	if p.initialized {
		p.mu.Unlock()
		return
	}
	p.initialized = true
	p.store = NewStore()
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	task := p.runner.Start(p.ctx, scheduler.Task{
		Name:     "blocklist-refresh",
		Interval: RefreshInterval,
		Run: func() {
			p.refresh(TriggerTimer)
		},
	})

	p.mu.Lock()
	p.task = task
	stopNow := p.tornDown
	p.mu.Unlock()
	if stopNow {
		p.runner.Stop(task)
	}

	zap.L().Info("Blocklist panel initialized", zap.Duration("refreshInterval", RefreshInterval))
}

// Refresh is the handler of the "Update Block list" button.
func (p *Panel) Refresh() *Request {
	return p.refresh(TriggerButton)
}

// RefreshFromPush refreshes after the backend announced a change.
func (p *Panel) RefreshFromPush() *Request {
	return p.refresh(TriggerPush)
}

// refresh issues one asynchronous get_blocklist call. Each call takes a new
// generation and only the newest generation may replace the store.
func (p *Panel) refresh(trigger Trigger) *Request {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return failedRequest(trigger, ErrNotInitialized)
	}
	if p.tornDown {
		p.mu.Unlock()
		return failedRequest(trigger, ErrTornDown)
	}
	p.generation++
	req := newRequest(p.generation, trigger)
	ctx := p.ctx
	p.mu.Unlock()

	zap.L().Debug("Refreshing blocklist",
		zap.String("trigger", string(trigger)),
		zap.Uint64("generation", req.Generation),
	)

	go func() {
		resp, err := p.client.GetBlocklist(ctx)
		if err != nil {
			zap.L().Warn("Blocklist refresh failed",
				zap.String("trigger", string(trigger)),
				zap.Uint64("generation", req.Generation),
				zap.Error(err),
			)
			req.finish(err, false)
			return
		}
		req.finish(nil, p.apply(req.Generation, resp.IPs))
	}()

	return req
}

func (p *Panel) apply(gen uint64, ips []string) bool {
	p.mu.Lock()
	if p.tornDown {
		p.mu.Unlock()
		zap.L().Debug("Dropping blocklist response after teardown", zap.Uint64("generation", gen))
		return false
	}
	if gen != p.generation {
		current := p.generation
		p.mu.Unlock()
		zap.L().Debug("Dropping stale blocklist response",
			zap.Uint64("generation", gen),
			zap.Uint64("current", current),
		)
		return false
	}
	p.store.LoadData(ips)
	p.mu.Unlock()

	zap.L().Debug("Blocklist store reloaded", zap.Int("rows", len(ips)))
	p.render()
	return true
}

// Edit commits a new value for the IP cell of row. No request is sent; the
// next refresh overwrites the edit.
func (p *Panel) Edit(row int, ip string) error {
	store := p.Store()
	if store == nil {
		return ErrNotInitialized
	}
	if err := store.SetIP(row, ip); err != nil {
		return err
	}
	zap.L().Debug("Blocklist row edited locally", zap.Int("row", row), zap.String("ip", ip))
	p.render()
	return nil
}

// Teardown stops the refresh timer. Responses still in flight are dropped.
func (p *Panel) Teardown() {
	p.mu.Lock()
	if p.tornDown {
		p.mu.Unlock()
		return
	}
	p.tornDown = true
	task := p.task
	cancel := p.cancel
	p.mu.Unlock()

	if task != nil {
		p.runner.Stop(task)
	}
	if cancel != nil {
		cancel()
	}
	zap.L().Info("Blocklist panel torn down")
}

func (p *Panel) TornDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tornDown
}

// Attach binds the view the host created for this page.
func (p *Panel) Attach(view View) {
	p.renderMu.Lock()
	p.view = view
	p.renderMu.Unlock()
}

// Detach unbinds the view; later store changes wait for the next layout.
func (p *Panel) Detach() {
	p.renderMu.Lock()
	p.view = nil
	p.layoutReady = false
	p.renderMu.Unlock()
}

// Layout is called by the host once the page has been laid out. Store
// changes that happened before are drawn now.
func (p *Panel) Layout() {
	p.renderMu.Lock()
	p.layoutReady = true
	p.renderMu.Unlock()
	p.render()
}

func (p *Panel) render() {
	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	if p.view == nil || !p.layoutReady {
		return
	}
	p.view.Render(p.ViewModel())
}

// ViewModel describes the page as it should currently be drawn.
func (p *Panel) ViewModel() ViewModel {
	var rows []Row
	if store := p.Store(); store != nil {
		rows = store.Rows()
	}
	return ViewModel{
		Title:    PageTitle,
		Fieldset: FieldsetTitle,
		Columns: []Column{
			{Header: ColumnIP, DataIndex: "ip", Editable: true},
		},
		Rows:       rows,
		EmptyText:  EmptyText,
		ButtonText: RefreshButtonText,
	}
}
