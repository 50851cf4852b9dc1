// Package metrics exposes controller counters on a private prometheus
// registry. A nil *Recorder is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gaitevo"

type Recorder struct {
	falls        *prometheus.CounterVec
	recoveries   *prometheus.CounterVec
	evaluations  prometheus.Counter
	evalFitness  prometheus.Histogram
	generations  prometheus.Counter
	bestFitness  prometheus.Gauge
	evolutions   prometheus.Counter
	ticks        prometheus.Counter
	commandValue *prometheus.GaugeVec
}

// NewRecorder registers all collectors on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		falls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "falls_total",
			Help:      "Falls detected by direction and monitor mode.",
		}, []string{"direction", "mode"}),
		recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recoveries_total",
			Help:      "Completed get-up sequences by fall direction.",
		}, []string{"direction"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Candidate gait evaluations run.",
		}),
		evalFitness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_survival_ms",
			Help:      "Simulated milliseconds survived per candidate evaluation.",
			Buckets:   prometheus.LinearBuckets(500, 500, 10),
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Evolution generations completed.",
		}),
		bestFitness: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness_ms",
			Help:      "Best-ever fitness of the most recent evolution run.",
		}),
		evolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evolution_runs_total",
			Help:      "Completed evolution runs.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_ticks_total",
			Help:      "Control loop iterations.",
		}),
		commandValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_amplitude",
			Help:      "Live gait command amplitude by axis.",
		}, []string{"axis"}),
	}

	for _, c := range []prometheus.Collector{
		r.falls, r.recoveries, r.evaluations, r.evalFitness, r.generations,
		r.bestFitness, r.evolutions, r.ticks, r.commandValue,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveFall(direction, mode string) {
	if r == nil {
		return
	}
	r.falls.WithLabelValues(direction, mode).Inc()
}

func (r *Recorder) ObserveRecovery(direction string) {
	if r == nil {
		return
	}
	r.recoveries.WithLabelValues(direction).Inc()
}

func (r *Recorder) ObserveEvaluation(survivedMs float64) {
	if r == nil {
		return
	}
	r.evaluations.Inc()
	r.evalFitness.Observe(survivedMs)
}

func (r *Recorder) ObserveGeneration(bestEver float64) {
	if r == nil {
		return
	}
	r.generations.Inc()
	r.bestFitness.Set(bestEver)
}

func (r *Recorder) ObserveEvolutionDone() {
	if r == nil {
		return
	}
	r.evolutions.Inc()
}

func (r *Recorder) ObserveTick(forward, turn, lateral float64) {
	if r == nil {
		return
	}
	r.ticks.Inc()
	r.commandValue.WithLabelValues("forward").Set(forward)
	r.commandValue.WithLabelValues("turn").Set(turn)
	r.commandValue.WithLabelValues("lateral").Set(lateral)
}
