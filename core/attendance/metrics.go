package attendance

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts scans, geofence results and registration outcomes. A nil *Metrics records nothing.
type Metrics struct {
	scans    *prometheus.CounterVec
	geofence *prometheus.CounterVec
	outcomes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asistencia",
			Subsystem: "checkin",
			Name:      "scans_total",
			Help:      "Decoded QR payloads received, by whether they started an attempt.",
		}, []string{"result"}),
		geofence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asistencia",
			Subsystem: "checkin",
			Name:      "geofence_checks_total",
			Help:      "Geofence evaluations by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asistencia",
			Subsystem: "checkin",
			Name:      "outcomes_total",
			Help:      "Registration outcomes by kind.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.geofence, m.outcomes)
	}
	return m
}

func (m *Metrics) scan(accepted bool) {
	if m == nil {
		return
	}
	result := "ignored"
	if accepted {
		result = "accepted"
	}
	m.scans.WithLabelValues(result).Inc()
}

func (m *Metrics) geofenceResult(result string) {
	if m == nil {
		return
	}
	m.geofence.WithLabelValues(result).Inc()
}

func (m *Metrics) outcome(o Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.Kind.String()).Inc()
}
