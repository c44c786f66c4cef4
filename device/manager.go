package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/xmidt-org/devbridge/device/config"
	"github.com/xmidt-org/devbridge/internal/metrics"
	"github.com/xmidt-org/devbridge/internal/xerror"
	"github.com/xmidt-org/devbridge/message"
	"github.com/xmidt-org/devbridge/protocol"
)

// CommEventType discriminates what a HardwareCommunicationManager is
// reporting (spec §4.4 DeviceCommunicationEvent).
type CommEventType int

// Recognized event types.
const (
	DeviceFound CommEventType = iota
	DeviceManuallyRemoved
	ScanningStarted
	ScanningFinishedEvt
)

// CommEvent is one notification from a hardware communication manager.
type CommEvent struct {
	Type       CommEventType
	Descriptor config.Descriptor
	Endpoint   Endpoint // set for DeviceFound
	RemovedID  string   // set for DeviceManuallyRemoved; matches Descriptor.Name used at add time
}

// HardwareCommunicationManager is the discovery-source contract from
// spec §6: "start_scanning, stop_scanning, is_scanning, name, plus an
// event channel emitting DeviceFound(descriptor) and ScanningFinished".
// Concrete managers (BLE, HID, serial, lovenseconnect) are external
// collaborators the core consumes, never defines.
type HardwareCommunicationManager interface {
	Name() string
	StartScanning(ctx context.Context) error
	StopScanning(ctx context.Context) error
	IsScanning() bool
	Events() <-chan CommEvent
}

// Initializer runs the protocol-specific handshake a newly found device
// may require before it's safe to register (spec §4.4 "run the protocol
// initializer; may perform a handshake write/read sequence ... may
// reject"). The default initializer used by New is a no-op; a custom one
// is supplied through Options.Initializer.
type Initializer func(ctx context.Context, ep Endpoint, entry registeredEntry) error

// Options configures a Manager.
type Options struct {
	Config      *config.Table
	Managers    []HardwareCommunicationManager
	KeepAlive   time.Duration
	Logger      log.Logger
	Initializer Initializer

	// AllowRaw gates RawReadCmd/RawWriteCmd/RawSubscribeCmd/
	// RawUnsubscribeCmd dispatch (spec §6's allow-raw-messages CLI
	// surface). Off by default: a server operator opts in explicitly.
	AllowRaw bool

	// Measures records device lifecycle and dispatch counters. Nil is
	// safe to pass: every Measures method tolerates a nil receiver.
	Measures *metrics.Measures
}

// Manager is the concrete implementation of session.DeviceManager. It
// owns the device index table and the scanning aggregation counter, the
// two process-wide mutable structures spec §5 calls out, each behind its
// own lock (the registry's internal mutex, and scanningMu here).
type Manager struct {
	registry *registry
	config   *config.Table
	comms    []HardwareCommunicationManager
	init     Initializer
	keepAlive time.Duration
	allowRaw  bool
	measures  *metrics.Measures

	logger   log.Logger
	errorLog log.Logger
	debugLog log.Logger

	events chan message.Message

	scanningMu sync.Mutex
	scanning   map[string]bool

	removedByID sync.Map // descriptor name -> *Device, for DeviceManuallyRemoved lookup
}

// New constructs a Manager. Call Run to start aggregating
// communication-manager events.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	init := opts.Initializer
	if init == nil {
		init = func(context.Context, Endpoint, registeredEntry) error { return nil }
	}
	return &Manager{
		registry:  newRegistry(),
		config:    opts.Config,
		comms:     opts.Managers,
		init:      init,
		keepAlive: opts.KeepAlive,
		allowRaw:  opts.AllowRaw,
		measures:  opts.Measures,
		logger:    logger,
		errorLog:  level.Error(logger),
		debugLog:  level.Debug(logger),
		events:    make(chan message.Message, 32),
		scanning:  make(map[string]bool),
	}
}

// Run aggregates every communication manager's event stream until ctx is
// cancelled. Must be started once before StartScanning is called.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, comm := range m.comms {
		wg.Add(1)
		go func(c HardwareCommunicationManager) {
			defer wg.Done()
			m.pump(ctx, c)
		}(comm)
	}
	wg.Wait()
}

func (m *Manager) pump(ctx context.Context, comm HardwareCommunicationManager) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-comm.Events():
			if !ok {
				return
			}
			m.handleCommEvent(ctx, comm.Name(), ev)
		}
	}
}

func (m *Manager) handleCommEvent(ctx context.Context, managerName string, ev CommEvent) {
	switch ev.Type {
	case ScanningStarted:
		m.scanningMu.Lock()
		m.scanning[managerName] = true
		m.scanningMu.Unlock()

	case ScanningFinishedEvt:
		m.scanningMu.Lock()
		delete(m.scanning, managerName)
		finished := len(m.scanning) == 0
		m.scanningMu.Unlock()

		if finished {
			ev := &message.ScanningFinished{}
			ev.SetID(message.SystemID)
			m.emit(ev)
		}

	case DeviceFound:
		m.onDeviceFound(ctx, ev)

	case DeviceManuallyRemoved:
		if v, ok := m.removedByID.Load(ev.RemovedID); ok {
			d := v.(*Device)
			m.removeDevice(d)
		}
	}
}

// onDeviceFound implements spec §4.4's DeviceFound sequence: probe,
// initialize, allocate index, emit DeviceAdded.
func (m *Manager) onDeviceFound(ctx context.Context, ev CommEvent) {
	entry, ok := m.config.Resolve(ev.Descriptor)
	if !ok {
		m.debugLog.Log("msg", "no config table entry for descriptor", "name", ev.Descriptor.Name)
		return
	}

	handler, ok := protocol.New(entry.Protocol)
	if !ok {
		m.errorLog.Log("msg", "no registered protocol handler", "protocol", entry.Protocol)
		return
	}

	registered := registeredEntry{
		Protocol:   entry.Protocol,
		Name:       entry.DisplayName,
		Identifier: ev.Descriptor.Name,
		Features:   toFeatures(m.config, entry),
	}

	if err := m.init(ctx, ev.Endpoint, registered); err != nil {
		m.errorLog.Log("msg", "protocol initializer rejected device", "err", err, "name", ev.Descriptor.Name)
		return
	}

	d := m.registry.add(func(index uint32) *Device {
		return newDevice(index, registered, ev.Endpoint, handler, m.keepAlive, m.logger, m.emit, m.measures)
	})
	m.removedByID.Store(ev.Descriptor.Name, d)
	m.measures.AddDeviceAdded(entry.Protocol)

	m.emit(deviceAddedEvent(d))
}

func toFeatures(tbl *config.Table, entry config.Entry) []Feature {
	features := make([]Feature, 0, len(entry.Features))
	for i, spec := range entry.Features {
		idx := uint32(i)
		features = append(features, Feature{
			Index:       idx,
			ID:          tbl.FeatureID(entry.Protocol, idx),
			Actuator:    spec.Actuator,
			Input:       spec.Input,
			Min:         spec.Min,
			Max:         spec.Max,
			StepCount:   spec.StepCount,
			Description: spec.Description,
			Endpoint:    spec.Endpoint,
		})
	}
	return features
}

func deviceAddedEvent(d *Device) *message.DeviceAdded {
	ev := &message.DeviceAdded{DeviceEntry: deviceEntry(d)}
	ev.SetID(message.SystemID)
	return ev
}

func deviceEntry(d *Device) message.DeviceEntry {
	features := make([]message.FeatureWire, 0, len(d.Features))
	for _, f := range d.Features {
		features = append(features, message.FeatureWire{
			FeatureIndex: f.Index,
			FeatureID:    f.ID.String(),
			Description:  f.Description,
			ActuatorType: string(f.Actuator),
			InputType:    string(f.Input),
			StepCount:    f.StepCount,
			Min:          int64(f.Min),
			Max:          int64(f.Max),
		})
	}
	return message.DeviceEntry{
		DeviceIndex:       d.Index,
		DeviceName:        d.Name,
		DeviceDisplayName: d.DisplayName,
		Features:          features,
	}
}

func (m *Manager) removeDevice(d *Device) {
	if _, ok := m.registry.remove(d.Index); !ok {
		return
	}
	d.Stop()
	m.measures.IncDeviceRemoved()

	ev := &message.DeviceRemoved{DeviceIndex: d.Index}
	ev.SetID(message.SystemID)
	m.emit(ev)
}

func (m *Manager) emit(ev message.Message) {
	select {
	case m.events <- ev:
	default:
		m.errorLog.Log("msg", "dropping event, events channel full", "kind", ev.Kind())
	}
}

// Events implements session.DeviceManager.
func (m *Manager) Events() <-chan message.Message { return m.events }

// StartScanning implements session.DeviceManager.
func (m *Manager) StartScanning(ctx context.Context) error {
	var firstErr error
	for _, comm := range m.comms {
		if err := comm.StartScanning(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopScanning implements session.DeviceManager.
func (m *Manager) StopScanning(ctx context.Context) error {
	var firstErr error
	for _, comm := range m.comms {
		if err := comm.StopScanning(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeviceList implements session.DeviceManager.
func (m *Manager) DeviceList(context.Context) []message.DeviceEntry {
	var list []message.DeviceEntry
	m.registry.visitAll(func(d *Device) {
		list = append(list, deviceEntry(d))
	})
	return list
}

// FeaturesByActuator implements message.DeviceContext.
func (m *Manager) FeaturesByActuator(deviceIndex uint32, actuator message.ActuatorType) []message.FeatureRange {
	d, ok := m.registry.get(deviceIndex)
	if !ok {
		return nil
	}
	var out []message.FeatureRange
	for _, f := range d.Features {
		if f.Actuator == actuator {
			out = append(out, message.FeatureRange{Index: f.Index, Actuator: f.Actuator, Input: f.Input, Min: f.Min, Max: f.Max})
		}
	}
	return out
}

// Features implements message.DeviceContext.
func (m *Manager) Features(deviceIndex uint32) []message.FeatureRange {
	d, ok := m.registry.get(deviceIndex)
	if !ok {
		return nil
	}
	out := make([]message.FeatureRange, 0, len(d.Features))
	for _, f := range d.Features {
		out = append(out, message.FeatureRange{Index: f.Index, Actuator: f.Actuator, Input: f.Input, Min: f.Min, Max: f.Max})
	}
	return out
}

// Dispatch implements session.DeviceManager: routes one device-addressed
// command to its device's protocol handler and per-device task.
func (m *Manager) Dispatch(ctx context.Context, cmd message.Message) (message.Message, error) {
	start := time.Now()
	reply, err := m.dispatch(ctx, cmd)
	m.measures.ObserveDispatch(string(cmd.Kind()), time.Since(start).Seconds(), err)
	return reply, err
}

func (m *Manager) dispatch(ctx context.Context, cmd message.Message) (message.Message, error) {
	switch c := cmd.(type) {
	case *message.StopDeviceCmd:
		return m.dispatchStopDevice(ctx, c)
	case *message.OutputCmd:
		return m.dispatchOutput(ctx, c)
	case *message.InputCmd:
		return m.dispatchInput(ctx, c)
	case *message.RawReadCmd, *message.RawWriteCmd, *message.RawSubscribeCmd, *message.RawUnsubscribeCmd:
		if !m.allowRaw {
			return nil, xerror.Wrap(xerror.KindDeviceUnsupported, fmt.Errorf("raw device messages are disabled"))
		}
		return m.dispatchRaw(ctx, c)
	default:
		return nil, xerror.Wrap(xerror.KindMsg, fmt.Errorf("device manager cannot dispatch %s", cmd.Kind()))
	}
}

func (m *Manager) deviceFor(index uint32) (*Device, error) {
	d, ok := m.registry.get(index)
	if !ok {
		return nil, xerror.Wrap(xerror.KindDeviceNotAvailable, fmt.Errorf("device %d not available", index))
	}
	return d, nil
}

func (m *Manager) dispatchStopDevice(ctx context.Context, c *message.StopDeviceCmd) (message.Message, error) {
	d, err := m.deviceFor(c.DeviceIndex)
	if err != nil {
		return nil, err
	}
	if err := stopDevice(ctx, d); err != nil {
		return nil, err
	}
	ok := &message.Ok{}
	ok.SetID(c.ID())
	return ok, nil
}

// stopDevice zeroes every output feature on d. Position actuators have no
// well-defined "zero" and are left alone.
func stopDevice(ctx context.Context, d *Device) error {
	for _, f := range d.Features {
		pf := toProtocolFeature(f)

		var emit func() ([]protocol.HardwareCommand, error)
		switch f.Actuator {
		case message.ActuatorRotate:
			emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Rotate(ctx, pf, 0) }
		case message.ActuatorOscillate:
			emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Oscillate(ctx, pf, 0) }
		case message.ActuatorPosition, "":
			continue
		default:
			emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Vibrate(ctx, pf, 0) }
		}

		cmds, err := d.Commands().Apply(ctx, f.Index, 0, emit)
		if err != nil {
			return xerror.Wrap(xerror.KindDeviceEncoding, err)
		}
		if len(cmds) == 0 {
			continue
		}
		if _, err := d.Dispatch(ctx, cmds); err != nil {
			return xerror.Wrap(xerror.KindDeviceCommunication, err)
		}
	}
	return nil
}

func toProtocolFeature(f Feature) protocol.Feature {
	return protocol.Feature{Index: f.Index, ID: f.ID, Actuator: f.Actuator, Input: f.Input, Min: f.Min, Max: f.Max}
}

func (m *Manager) dispatchOutput(ctx context.Context, c *message.OutputCmd) (message.Message, error) {
	d, err := m.deviceFor(c.DeviceIndex)
	if err != nil {
		return nil, err
	}

	for _, oc := range c.Commands {
		if oc.FeatureIndex >= uint32(len(d.Features)) {
			continue
		}
		f := d.Features[oc.FeatureIndex]

		var emit func() ([]protocol.HardwareCommand, error)
		var value uint32

		switch {
		case oc.Value != nil:
			value = oc.Value.Scalar
			pf := toProtocolFeature(f)
			switch oc.Value.ActuatorType {
			case message.ActuatorRotate:
				emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Rotate(ctx, pf, value) }
			case message.ActuatorOscillate:
				emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Oscillate(ctx, pf, value) }
			default:
				emit = func() ([]protocol.HardwareCommand, error) { return d.Handler().Vibrate(ctx, pf, value) }
			}
		case oc.RotateWithDirection != nil:
			value = oc.RotateWithDirection.Speed
			clockwise := oc.RotateWithDirection.Clockwise
			pf := toProtocolFeature(f)
			emit = func() ([]protocol.HardwareCommand, error) {
				return d.Handler().RotateWithDirection(ctx, pf, value, clockwise)
			}
		case oc.PositionWithDuration != nil:
			value = oc.PositionWithDuration.Position
			duration := oc.PositionWithDuration.DurationMs
			pf := toProtocolFeature(f)
			emit = func() ([]protocol.HardwareCommand, error) {
				return d.Handler().PositionWithDuration(ctx, pf, value, duration)
			}
		default:
			continue
		}

		cmds, err := d.Commands().Apply(ctx, f.Index, value, emit)
		if err != nil {
			return nil, xerror.Wrap(xerror.KindDeviceEncoding, err)
		}
		if len(cmds) == 0 {
			continue
		}
		if _, err := d.Dispatch(ctx, cmds); err != nil {
			return nil, xerror.Wrap(xerror.KindDeviceCommunication, err)
		}
	}

	ok := &message.Ok{}
	ok.SetID(c.ID())
	return ok, nil
}

func (m *Manager) dispatchInput(ctx context.Context, c *message.InputCmd) (message.Message, error) {
	d, err := m.deviceFor(c.DeviceIndex)
	if err != nil {
		return nil, err
	}
	if c.FeatureIndex >= uint32(len(d.Features)) {
		return nil, xerror.Wrap(xerror.KindDeviceUnsupported, fmt.Errorf("feature %d not present", c.FeatureIndex))
	}
	f := toProtocolFeature(d.Features[c.FeatureIndex])

	var cmds []protocol.HardwareCommand
	switch c.Command {
	case message.InputCommandRead:
		cmds, err = d.Handler().ReadInput(ctx, f)
	case message.InputCommandSubscribe:
		cmds, err = d.Handler().SubscribeInput(ctx, f)
	case message.InputCommandUnsubscribe:
		cmds, err = d.Handler().UnsubscribeInput(ctx, f)
	default:
		return nil, xerror.Wrap(xerror.KindMsg, fmt.Errorf("unknown input command %q", c.Command))
	}
	if err != nil {
		return nil, xerror.Wrap(xerror.KindDeviceUnsupported, err)
	}

	reading, err := d.Dispatch(ctx, cmds)
	if err != nil {
		return nil, xerror.Wrap(xerror.KindDeviceTimeout, err)
	}
	if reading == nil {
		ok := &message.Ok{}
		ok.SetID(c.ID())
		return ok, nil
	}
	reading.DeviceIndex = c.DeviceIndex
	reading.FeatureIndex = c.FeatureIndex
	reading.InputType = c.InputType
	reading.SetID(c.ID())
	return reading, nil
}

func (m *Manager) dispatchRaw(ctx context.Context, cmd message.Message) (message.Message, error) {
	var deviceIndex uint32
	switch c := cmd.(type) {
	case *message.RawReadCmd:
		deviceIndex = c.DeviceIndex
	case *message.RawWriteCmd:
		deviceIndex = c.DeviceIndex
	case *message.RawSubscribeCmd:
		deviceIndex = c.DeviceIndex
	case *message.RawUnsubscribeCmd:
		deviceIndex = c.DeviceIndex
	}

	d, err := m.deviceFor(deviceIndex)
	if err != nil {
		return nil, err
	}

	cmds, err := d.Handler().HandleRaw(ctx, cmd)
	if err != nil {
		return nil, xerror.Wrap(xerror.KindDeviceUnsupported, err)
	}

	reading, err := d.Dispatch(ctx, cmds)
	if err != nil {
		return nil, xerror.Wrap(xerror.KindDeviceCommunication, err)
	}
	if reading == nil {
		ok := &message.Ok{}
		ok.SetID(cmd.ID())
		return ok, nil
	}
	raw := &message.RawReading{DeviceIndex: deviceIndex, Data: bytesFromInt32(reading.Data)}
	raw.SetID(cmd.ID())
	return raw, nil
}

func bytesFromInt32(data []int32) []byte {
	out := make([]byte, len(data))
	for i, v := range data {
		out[i] = byte(v)
	}
	return out
}

// StopAll implements session.DeviceManager: stops every live device's
// every output feature, serialized per device but fanned out across
// devices concurrently (spec §4.4 "failures on individual devices are
// aggregated but do not abort the broadcast").
func (m *Manager) StopAll(ctx context.Context) error {
	var devices []*Device
	m.registry.visitAll(func(d *Device) { devices = append(devices, d) })

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, d := range devices {
		d := d
		g.Go(func() error {
			if err := stopDevice(ctx, d); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
