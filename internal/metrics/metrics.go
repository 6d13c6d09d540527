package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_created_total",
		Help: "Total number of offers fanned out to couriers.",
	})

	OffersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_accepted_total",
		Help: "Total number of offers that won an order.",
	})

	OffersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_rejected_total",
		Help: "Total number of offers explicitly declined by couriers.",
	})

	OffersSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_swept_total",
		Help: "Total number of expired offer entries removed by the sweep job.",
	})

	DeliveriesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_deliveries_completed_total",
		Help: "Total number of deliveries that reached the delivered state.",
	})

	DispatchNoCourierTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_no_courier_total",
		Help: "Total number of orders with no available courier in range.",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_published_total",
		Help: "Total number of domain events published, by topic.",
	},
		[]string{"topic"},
	)

	EventPublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_event_publish_errors_total",
		Help: "Total number of failed event publications, by topic.",
	},
		[]string{"topic"},
	)

	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_relay_connections",
		Help: "Current number of live relay connections.",
	})
)
