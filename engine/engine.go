// Package engine wires every collection-pipeline component into one
// explicit value: PLC pools, the polling scheduler, the sample
// distributor, the expansion/buffer/Oracle-writer chain, the WebSocket
// broadcasters, per-day failure logging, the optional republish sinks, and
// the operator console. There is no package-level state — every
// collaborator is constructed in New and held on the Engine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"scadalink/internal/config"
	"scadalink/internal/console"
	"scadalink/internal/dataqueue"
	"scadalink/internal/expand"
	"scadalink/internal/faillog"
	"scadalink/internal/logging"
	"scadalink/internal/mc3e"
	"scadalink/internal/model"
	"scadalink/internal/oraclewriter"
	"scadalink/internal/polling"
	"scadalink/internal/publish"
	"scadalink/internal/ringbuffer"
	"scadalink/internal/store"
	"scadalink/internal/tagcache"
	"scadalink/internal/wsmonitor"
)

const (
	writerOutputName   = "writer"
	monitorOutputName  = "monitor"
	republishMQTT      = "republish-mqtt"
	republishKafka     = "republish-kafka"
	republishValkey    = "republish-valkey"
	queueOutputBacklog = 10_000
)

// Engine owns every long-lived collaborator in the collection pipeline.
type Engine struct {
	cfg   *config.Settings
	store store.Store

	pools      *mc3e.PoolManager
	poll       *polling.Engine
	queue      *dataqueue.DataQueue
	distrib    *dataqueue.Distributor
	buffer     *ringbuffer.CircularBuffer
	cache      *tagcache.TagValueCache
	backup     *oraclewriter.CSVBackup
	metrics    *oraclewriter.RollingMetrics
	writer     *oraclewriter.Writer
	failLogger *faillog.Logger
	sweeper    *faillog.Sweeper
	hub        *wsmonitor.Hub
	statusHub  *wsmonitor.Hub
	status     *wsmonitor.StatusBroadcaster
	wsServer   *wsmonitor.Server
	consoleSrv *console.Server

	mqttSink   *publish.MQTTSink
	kafkaSink  *publish.KafkaSink
	valkeySink *publish.ValkeySink

	groupMu sync.RWMutex
	groups  map[string]polling.GroupConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs every collaborator and registers the configuration
// store's current PLCs and polling groups, but starts nothing.
func New(cfg *config.Settings, st store.Store) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		store:  st,
		groups: make(map[string]polling.GroupConfig),
	}

	e.pools = mc3e.NewPoolManager(cfg.PLC.ConnectionTimeout)
	e.cache = tagcache.New()
	e.buffer = ringbuffer.NewCircularBuffer(cfg.Buffer.MaxSize)
	e.metrics = oraclewriter.NewRollingMetrics()
	e.queue = dataqueue.New(cfg.Polling.DataQueueSize)
	e.distrib = dataqueue.NewDistributor()
	e.hub = wsmonitor.NewHub()
	e.statusHub = wsmonitor.NewHub()
	e.wireWebsocket()

	if _, err := e.cache.LoadFromStore(st); err != nil {
		return nil, fmt.Errorf("engine: load tag cache: %w", err)
	}

	backup, err := oraclewriter.NewCSVBackup(cfg.Buffer.BackupFilePath)
	if err != nil {
		return nil, fmt.Errorf("engine: open csv backup dir: %w", err)
	}
	e.backup = backup

	failLogger, err := faillog.New(cfg.Buffer.BackupFilePath + "/failures")
	if err != nil {
		return nil, fmt.Errorf("engine: open failure logger: %w", err)
	}
	e.failLogger = failLogger
	e.sweeper = faillog.NewSweeper(cfg.Buffer.BackupFilePath+"/failures", 30*24*time.Hour, time.Hour)

	db, err := oraclewriter.DialGodror(oracleDSN(cfg.Oracle), cfg.Oracle.PoolMin, cfg.Oracle.PoolMax)
	if err != nil {
		return nil, fmt.Errorf("engine: dial oracle: %w", err)
	}
	e.writer = oraclewriter.New(e.buffer, db, e.cache, e.backup, e.metrics, nil, oraclewriter.Config{
		BatchSize:     cfg.Buffer.BatchSize,
		WriteInterval: cfg.Buffer.WriteInterval,
	})

	if err := e.loadPLCs(); err != nil {
		return nil, err
	}
	e.poll = polling.NewEngine(e.pools, e.queue, polling.RealClock{})
	e.poll.SetErrorHook(e.logPollFailure)
	if err := e.loadGroups(); err != nil {
		return nil, err
	}

	if err := e.wireRepublishSinks(); err != nil {
		return nil, err
	}
	e.wireConsole()

	return e, nil
}

// logPollFailure persists a per-day failure record for a poll that failed
// outright (PLC unreachable, connect/read timeout).
func (e *Engine) logPollFailure(plcCode, groupName string, err error, tagAddresses []string, pollDurationMs int64) {
	rec := faillog.ReadError(time.Now(), plcCode, groupName, err, tagAddresses, pollDurationMs, 0)
	if _, writeErr := e.failLogger.Write(rec); writeErr != nil {
		logging.Debug("ENGINE", "failed to persist failure record for %s/%s: %v", plcCode, groupName, writeErr)
	}
}

func oracleDSN(o config.Oracle) string {
	return fmt.Sprintf("%s/%s@%s:%d/%s", o.Username, o.Password, o.Host, o.Port, o.ServiceName)
}

func (e *Engine) loadPLCs() error {
	conns, err := e.store.ListPLCConnections()
	if err != nil {
		return fmt.Errorf("engine: list plc connections: %w", err)
	}
	for _, c := range conns {
		e.pools.AddPLC(c.PLCCode, mc3e.PoolConfig{
			Host:           c.IPAddress,
			Port:           c.Port,
			Max:            e.cfg.PLC.PoolSizePerPLC,
			ConnectTimeout: e.cfg.PLC.ConnectionTimeout,
			ReadTimeout:    e.cfg.PLC.ReadTimeout,
			IdleTimeout:    e.cfg.PLC.IdleTimeout,
		}, c.IsActive)
	}
	return nil
}

func (e *Engine) loadGroups() error {
	groups, err := e.store.ListPollingGroups()
	if err != nil {
		return fmt.Errorf("engine: list polling groups: %w", err)
	}
	for _, g := range groups {
		tags, err := e.store.TagsByGroup(g.ID)
		if err != nil {
			return fmt.Errorf("engine: list tags for group %s: %w", g.ID, err)
		}
		cfg := buildGroupConfig(g, tags)
		e.groupMu.Lock()
		e.groups[g.ID] = cfg
		e.groupMu.Unlock()
		if g.IsActive {
			if err := e.poll.StartGroup(cfg); err != nil {
				logging.Debug("ENGINE", "group %s not started: %v", g.ID, err)
			}
		}
	}
	return nil
}

func buildGroupConfig(g store.PollingGroup, tags []store.Tag) polling.GroupConfig {
	addrs := make([]string, 0, len(tags))
	logModes := make(map[string]model.LogMode, len(tags))
	machine := make(map[string]string, len(tags))
	for _, t := range tags {
		if !t.IsActive {
			continue
		}
		addrs = append(addrs, t.TagAddress)
		logModes[t.TagAddress] = model.ParseLogMode(t.LogMode)
		machine[t.TagAddress] = t.MachineCode
	}
	return polling.GroupConfig{
		ID:           g.ID,
		Name:         g.GroupName,
		PLCCode:      g.PLCCode,
		Mode:         model.ParsePollingMode(g.PollingMode),
		IntervalMs:   g.PollingIntervalMs,
		Category:     model.ParseCategory(g.GroupCategory),
		TagAddresses: addrs,
		TagLogModes:  logModes,
		TagMachine:   machine,
	}
}

func (e *Engine) wireRepublishSinks() error {
	r := e.cfg.Republish
	ns := publish.NewNamespace(r.Namespace)

	if r.MQTTBrokerURL != "" {
		sink, err := publish.DialMQTT(r.MQTTBrokerURL, r.MQTTClientID, ns)
		if err != nil {
			return fmt.Errorf("engine: dial mqtt: %w", err)
		}
		e.mqttSink = sink
	}
	if len(r.KafkaBrokers) > 0 {
		e.kafkaSink = publish.DialKafka(r.KafkaBrokers, ns)
	}
	if r.ValkeyAddr != "" {
		sink, err := publish.DialValkey(context.Background(), r.ValkeyAddr, ns)
		if err != nil {
			return fmt.Errorf("engine: dial valkey: %w", err)
		}
		e.valkeySink = sink
	}
	return nil
}

func (e *Engine) wireWebsocket() {
	if e.cfg.Websocket.Addr == "" {
		return
	}
	e.wsServer = wsmonitor.NewServer(e.cfg.Websocket.Addr, e.hub, e.statusHub)
}

func (e *Engine) wireConsole() {
	if e.cfg.Console.SSHAddr == "" {
		return
	}
	e.consoleSrv = console.NewServer(console.Config{
		Addr:        e.cfg.Console.SSHAddr,
		Password:    e.cfg.Console.SSHPassword,
		HostKeyPath: e.cfg.Console.SSHHostKeyPath,
	}, e)
}

// Start launches every background goroutine: the distributor fan-out, the
// expansion-to-buffer stage, the Oracle writer, the WebSocket broadcasters,
// the failure-log sweeper, and any configured republish sinks and console.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	writerOut := e.distrib.AddOutput(writerOutputName, queueOutputBacklog)
	monitorOut := e.distrib.AddOutput(monitorOutputName, queueOutputBacklog)
	e.distrib.Run(e.queue)

	e.runGoroutine(func() { expand.Run(ctx, writerOut.C(), e.buffer) })
	e.runGoroutine(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sample, ok := <-monitorOut.C():
				if !ok {
					return
				}
				_ = e.hub.BroadcastSample(sample)
			}
		}
	})

	e.writer.Start(ctx)

	e.status = wsmonitor.NewStatusBroadcaster(e.statusHub, e.deriveStatus, e.cfg.Polling.WebsocketBroadcastInterval)
	e.runGoroutine(func() { e.status.Run(ctx) })
	e.runGoroutine(func() { e.sweeper.Run(ctx) })

	if e.wsServer != nil {
		if err := e.wsServer.Start(); err != nil {
			return fmt.Errorf("engine: start websocket server: %w", err)
		}
	}

	if e.mqttSink != nil {
		out := e.distrib.AddOutput(republishMQTT, queueOutputBacklog)
		e.runGoroutine(func() { e.mqttSink.Run(ctx, out.C()) })
	}
	if e.kafkaSink != nil {
		out := e.distrib.AddOutput(republishKafka, queueOutputBacklog)
		e.runGoroutine(func() { e.kafkaSink.Run(ctx, out.C()) })
	}
	if e.valkeySink != nil {
		out := e.distrib.AddOutput(republishValkey, queueOutputBacklog)
		e.runGoroutine(func() { e.valkeySink.Run(ctx, out.C()) })
	}

	if e.consoleSrv != nil {
		if err := e.consoleSrv.Start(); err != nil {
			return fmt.Errorf("engine: start console: %w", err)
		}
	}
	return nil
}

func (e *Engine) runGoroutine(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Stop shuts every collaborator down in dependency order: console first (no
// new operator-triggered actions), then polling, then the fan-out and
// drain stages, then the writer and its database connection.
func (e *Engine) Stop() {
	if e.consoleSrv != nil {
		e.consoleSrv.Stop()
	}
	if e.wsServer != nil {
		e.wsServer.Stop()
	}
	e.poll.StopAll()
	if e.cancel != nil {
		e.cancel()
	}
	e.distrib.Stop()
	e.wg.Wait()
	e.writer.Stop(10 * time.Second)
	e.hub.Stop()
	e.statusHub.Stop()
	if e.mqttSink != nil {
		e.mqttSink.Close()
	}
	if e.kafkaSink != nil {
		e.kafkaSink.Close()
	}
	if e.valkeySink != nil {
		e.valkeySink.Close()
	}
}

// deriveStatus computes one EquipmentStatus snapshot per distinct machine
// code across every registered group, from that group's worker state and
// its PLC's pool connectivity.
func (e *Engine) deriveStatus() []wsmonitor.StatusSnapshot {
	now := time.Now()
	e.groupMu.RLock()
	groups := make([]polling.GroupConfig, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	e.groupMu.RUnlock()

	poolStats := e.pools.Stats()
	seen := make(map[string]bool)
	var out []wsmonitor.StatusSnapshot
	for _, g := range groups {
		st, ok := e.poll.GetStatus(g.ID)
		if !ok {
			continue
		}
		machines := make(map[string]bool)
		for _, m := range g.TagMachine {
			if m != "" {
				machines[m] = true
			}
		}
		if len(machines) == 0 {
			machines[g.PLCCode] = true
		}
		for m := range machines {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, wsmonitor.StatusSnapshot{
				MachineCode: m,
				Status:      equipmentStatusFor(st.State, poolStats[g.PLCCode]),
				Timestamp:   now,
			})
		}
	}
	return out
}

func equipmentStatusFor(state model.ThreadState, stats mc3e.Stats) wsmonitor.EquipmentStatus {
	switch state {
	case model.StateError:
		return wsmonitor.StatusError
	case model.StateStopped:
		return wsmonitor.StatusStopped
	case model.StateStopping:
		return wsmonitor.StatusIdle
	case model.StateRunning:
		if stats.TotalCreated == 0 {
			return wsmonitor.StatusDisconnected
		}
		return wsmonitor.StatusRunning
	default:
		return wsmonitor.StatusIdle
	}
}

// The following methods implement console.ControlSurface.

// StartGroup registers cfg (if new) and starts its worker.
func (e *Engine) StartGroup(cfg polling.GroupConfig) error {
	e.groupMu.Lock()
	e.groups[cfg.ID] = cfg
	e.groupMu.Unlock()
	return e.poll.StartGroup(cfg)
}

// StopGroup stops groupID's worker.
func (e *Engine) StopGroup(groupID string) { e.poll.StopGroup(groupID) }

// TriggerHandshake requests one immediate poll of a HANDSHAKE-mode group; a
// request within the dedup window of the last accepted one is dropped
// without error.
func (e *Engine) TriggerHandshake(groupID string) error { return e.poll.TriggerHandshake(groupID) }

// GetAllStatus returns every registered group's worker status.
func (e *Engine) GetAllStatus() []polling.Status { return e.poll.GetAllStatus() }

// Config returns groupID's registered configuration.
func (e *Engine) Config(groupID string) (polling.GroupConfig, bool) {
	e.groupMu.RLock()
	defer e.groupMu.RUnlock()
	cfg, ok := e.groups[groupID]
	return cfg, ok
}

// Health reports the pipeline's current buffer, writer, and connectivity
// state for the operator console.
func (e *Engine) Health() console.HealthSnapshot {
	writerStats := e.writer.GetStats()
	bufStats := e.buffer.Stats()
	backupCount, _ := e.backup.BackupFileCount()

	poolStats := e.pools.Stats()
	connected := 0
	for _, s := range poolStats {
		if s.TotalCreated > 0 {
			connected++
		}
	}

	return console.HealthSnapshot{
		BufferSize:           bufStats.Size,
		BufferCapacity:       bufStats.Max,
		BufferOverflowCount:  bufStats.OverflowCount,
		WriterSuccessRatePct: writerStats.Metrics.WriteSuccessRate,
		WriterAvgBatchSize:   writerStats.Metrics.AvgBatchSize,
		BackupFileCount:      backupCount,
		ConnectedPLCs:        connected,
		TotalPLCs:            len(poolStats),
		MonitorClients:       e.hub.ClientCount() + e.statusHub.ClientCount(),
	}
}

// Shutdown does nothing; it satisfies console.ControlSurface so an
// operator's quit keystroke can end their session without ending the
// process. The engine itself is stopped only by Stop.
func (e *Engine) Shutdown() {}
