package model

import (
	"math"
	"time"
)

// VersionedRecord captures schema and codec evolution for journaled data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// UnsetFitness ranks below every measured fitness.
var UnsetFitness = math.Inf(-1)

// GaitCommand is the amplitude triple pushed to the gait generator each tick.
type GaitCommand struct {
	Forward float64 `json:"forward"`
	Turn    float64 `json:"turn"`
	Lateral float64 `json:"lateral"`
}

// GaitParams is the evolvable subset of a gait command.
type GaitParams struct {
	Forward float64 `json:"forward"`
	Turn    float64 `json:"turn"`
}

// Command widens evolved parameters into a live command with no side-step.
func (p GaitParams) Command() GaitCommand {
	return GaitCommand{Forward: p.Forward, Turn: p.Turn}
}

type Genotype struct {
	Forward   float64 `json:"forward"`
	Turn      float64 `json:"turn"`
	Fitness   float64 `json:"fitness"`
	Evaluated bool    `json:"evaluated"`
}

// NewGenotype returns an unevaluated genotype.
func NewGenotype(forward, turn float64) Genotype {
	return Genotype{Forward: forward, Turn: turn, Fitness: UnsetFitness}
}

func (g Genotype) Params() GaitParams {
	return GaitParams{Forward: g.Forward, Turn: g.Turn}
}

// Bounds is a closed interval.
type Bounds struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

func (b Bounds) Clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bounds) Valid() bool {
	return !math.IsNaN(b.Min) && !math.IsNaN(b.Max) && b.Min <= b.Max
}

type FallDirection int

const (
	FallNone FallDirection = iota
	FallForward
	FallBackward
)

func (d FallDirection) String() string {
	switch d {
	case FallForward:
		return "forward"
	case FallBackward:
		return "backward"
	default:
		return "none"
	}
}

// FallState holds the two saturation counters of one monitored entity.
type FallState struct {
	Forward  int `json:"forward"`
	Backward int `json:"backward"`
}

type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeySpace
	KeyEvolve
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeySpace:
		return "space"
	case KeyEvolve:
		return "evolve"
	default:
		return "none"
	}
}

type PoseID int

const (
	PoseInit PoseID = iota
	PoseRecoverFromFrontFall
	PoseRecoverFromBackFall
)

func (p PoseID) String() string {
	switch p {
	case PoseInit:
		return "init"
	case PoseRecoverFromFrontFall:
		return "recover_front"
	case PoseRecoverFromBackFall:
		return "recover_back"
	default:
		return "unknown"
	}
}

type GenerationDiagnostics struct {
	Generation      int     `json:"generation"`
	BestFitness     float64 `json:"best_fitness"`
	MeanFitness     float64 `json:"mean_fitness"`
	MinFitness      float64 `json:"min_fitness"`
	BestEverFitness float64 `json:"best_ever_fitness"`
	BestForward     float64 `json:"best_forward"`
	BestTurn        float64 `json:"best_turn"`
	SurvivorCount   int     `json:"survivor_count"`
}

// RunRecord is the journal entry written after an evolution run completes.
type RunRecord struct {
	VersionedRecord
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	PopulationSize int           `json:"population_size"`
	Generations    int           `json:"generations"`
	EvalDuration   time.Duration `json:"eval_duration"`
	Seed           int64         `json:"seed"`
	Best           Genotype      `json:"best"`
}
