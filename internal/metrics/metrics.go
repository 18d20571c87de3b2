package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clickrewards_registrations_total",
			Help: "Total number of account registrations",
		},
	)

	AdClicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clickrewards_ad_clicks_total",
			Help: "Total number of credited ad clicks",
		},
	)

	LedgerCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickrewards_ledger_credits_cents_total",
			Help: "Total cents credited, by earning category",
		},
		[]string{"category"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickrewards_purchases_total",
			Help: "Total purchase transitions, by outcome",
		},
		[]string{"outcome"},
	)

	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clickrewards_checkouts_total",
			Help: "Total checkout transitions, by outcome",
		},
		[]string{"outcome"},
	)
)
