package invitations

import (
	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pmdash",
	Subsystem: "invitations",
	Name:      "operations_total",
	Help:      "Invitation lifecycle operations by outcome.",
}, []string{"operation", "outcome"})

// observe counts one operation; outcome is "ok" or the error kind's code.
func observe(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.KindOf(err).String()
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}
