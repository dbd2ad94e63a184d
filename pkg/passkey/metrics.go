// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ceremoniesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passkey",
		Name:      "ceremonies_total",
		Help:      "Ceremony operations by step and outcome",
	}, []string{"step", "status"})

	ceremonyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "passkey",
		Name:      "ceremony_duration_seconds",
		Help:      "Ceremony step latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})

	ceremonyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "passkey",
		Name:      "ceremony_failures_total",
		Help:      "Ceremony failures by reason",
	}, []string{"reason"})
)

func recordCeremony(step string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		ceremonyFailures.WithLabelValues(failureReason(err)).Inc()
	}
	ceremoniesTotal.WithLabelValues(step, status).Inc()
	ceremonyDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCeremonyExpiredOrMissing):
		return "ceremony_expired_or_missing"
	case errors.Is(err, ErrPossibleCloneDetected):
		return "possible_clone"
	case errors.Is(err, ErrConcurrentAssertionConflict):
		return "concurrent_assertion"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrVerificationRejected):
		return "verification_rejected"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "other"
	}
}
