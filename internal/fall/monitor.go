// Package fall detects sustained forward or backward tilt from accelerometer
// samples and optionally runs the get-up sequence.
package fall

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	gaitio "gaitevo/internal/io"
	"gaitevo/internal/metrics"
	"gaitevo/internal/model"
)

var (
	ErrRecoveryInFlight = errors.New("fall recovery already in flight")
	ErrNoRecovery       = errors.New("monitor has no recovery collaborators")
)

type Mode int

const (
	// ModeRecover plays the get-up sequence and restarts the gait.
	ModeRecover Mode = iota
	// ModeDetectOnly reports the fall and leaves the robot alone.
	ModeDetectOnly
)

func (m Mode) String() string {
	if m == ModeDetectOnly {
		return "detect_only"
	}
	return "recover"
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDetected
	OutcomeHandled
)

type Config struct {
	Axis      int     `mapstructure:"axis"`
	RestValue float64 `mapstructure:"rest_value"`
	Tolerance float64 `mapstructure:"tolerance"`
	Threshold int     `mapstructure:"threshold"`
	ValidMin  float64 `mapstructure:"valid_min"`
	ValidMax  float64 `mapstructure:"valid_max"`
}

func DefaultConfig() Config {
	return Config{
		Axis:      1,
		RestValue: 512,
		Tolerance: 80,
		Threshold: 100,
		ValidMin:  0,
		ValidMax:  1023,
	}
}

func (c Config) Validate() error {
	if c.Axis < 0 || c.Axis > 2 {
		return fmt.Errorf("accelerometer axis must be in [0, 2], got %d", c.Axis)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be > 0")
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be > 0")
	}
	if c.ValidMin >= c.ValidMax {
		return fmt.Errorf("valid sample range is empty: [%g, %g]", c.ValidMin, c.ValidMax)
	}
	return nil
}

// Monitor owns the fall counters of exactly one monitored entity. It is not
// safe for concurrent use.
type Monitor struct {
	cfg     Config
	poses   gaitio.PoseSequencer
	gait    gaitio.GaitController
	logger  *zap.Logger
	metrics *metrics.Recorder

	state      model.FallState
	last       float64
	recovering bool
}

type Option func(*Monitor)

// WithRecovery supplies the collaborators used in ModeRecover.
func WithRecovery(poses gaitio.PoseSequencer, gait gaitio.GaitController) Option {
	return func(m *Monitor) {
		m.poses = poses
		m.gait = gait
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(m *Monitor) {
		m.metrics = rec
	}
}

func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		cfg:    cfg,
		logger: zap.NewNop(),
		last:   cfg.RestValue,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("fall")
	return m, nil
}

// Observe feeds one sample along the tilt-sensitive axis and reports a fall
// once a counter exceeds the threshold. The firing counter is cleared so a
// sustained tilt does not fire again on the next tick.
func (m *Monitor) Observe(sample float64) (model.FallDirection, bool) {
	sample = m.sanitize(sample)

	switch {
	case sample < m.cfg.RestValue-m.cfg.Tolerance:
		m.state.Forward++
		m.state.Backward = 0
	case sample > m.cfg.RestValue+m.cfg.Tolerance:
		m.state.Backward++
		m.state.Forward = 0
	default:
		m.state = model.FallState{}
	}

	if m.state.Forward > m.cfg.Threshold {
		m.state.Forward = 0
		return model.FallForward, true
	}
	if m.state.Backward > m.cfg.Threshold {
		m.state.Backward = 0
		return model.FallBackward, true
	}
	return model.FallNone, false
}

// ObserveReading is Observe on the configured axis of a full reading.
func (m *Monitor) ObserveReading(acc [3]float64) (model.FallDirection, bool) {
	return m.Observe(acc[m.cfg.Axis])
}

// Check observes a reading and acts on a fall according to mode.
func (m *Monitor) Check(ctx context.Context, acc [3]float64, mode Mode) (Outcome, model.FallDirection, error) {
	direction, fell := m.ObserveReading(acc)
	if !fell {
		return OutcomeNone, model.FallNone, nil
	}
	m.metrics.ObserveFall(direction.String(), mode.String())

	if mode == ModeDetectOnly {
		m.logger.Debug("fall detected", zap.Stringer("direction", direction))
		return OutcomeDetected, direction, nil
	}
	if err := m.Recover(ctx, direction); err != nil {
		return OutcomeDetected, direction, err
	}
	return OutcomeHandled, direction, nil
}

// Recover plays the direction-specific get-up pose, returns to the init
// stance and restarts the gait.
func (m *Monitor) Recover(ctx context.Context, direction model.FallDirection) error {
	if m.poses == nil || m.gait == nil {
		return ErrNoRecovery
	}
	if m.recovering {
		return ErrRecoveryInFlight
	}
	m.recovering = true
	defer func() { m.recovering = false }()

	pose := model.PoseRecoverFromFrontFall
	if direction == model.FallBackward {
		pose = model.PoseRecoverFromBackFall
	}
	m.logger.Info("robot fell, getting up", zap.Stringer("direction", direction), zap.Stringer("pose", pose))

	if err := m.poses.Play(ctx, pose); err != nil {
		return fmt.Errorf("play %s: %w", pose, err)
	}
	if err := m.poses.Play(ctx, model.PoseInit); err != nil {
		return fmt.Errorf("play %s: %w", model.PoseInit, err)
	}
	m.gait.Start()
	m.metrics.ObserveRecovery(direction.String())
	return nil
}

func (m *Monitor) State() model.FallState {
	return m.state
}

func (m *Monitor) Reset() {
	m.state = model.FallState{}
	m.last = m.cfg.RestValue
}

// sanitize holds the previous valid sample when the reading is out of range.
func (m *Monitor) sanitize(sample float64) float64 {
	if math.IsNaN(sample) || sample < m.cfg.ValidMin || sample > m.cfg.ValidMax {
		return m.last
	}
	m.last = sample
	return sample
}
