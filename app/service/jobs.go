package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

// RunReconcileBatch re-reads stale pending intents from the gateway and applies the
// same compare-and-set transitions as the webhook path. It settles reconciliation
// debt when a webhook never arrives.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) (err error) {
	defer func() { s.metrics.RecordOperation("reconcile_batch", err) }()

	now := s.now()
	before := now.Add(-s.cfg.ReconcileStaleAfter)
	items, err := s.ledger.Repos().Intents.ListStale(ctx, before, s.batchSize())
	if err != nil {
		return persistenceError(err)
	}

	var (
		firstErr error
		settled  int
	)
	for _, intent := range items {
		if intent == nil || strings.TrimSpace(intent.GatewayIntentID) == "" {
			continue
		}

		start := time.Now()
		remote, err := s.gateway.RetrieveIntent(ctx, intent.GatewayIntentID)
		s.metrics.ObserveGateway("retrieve_intent", start)
		if err != nil {
			firstErr = keepFirstErr(firstErr, gatewayError(err))
			continue
		}
		if remote.Status == "" || remote.Status == intent.Status {
			continue
		}

		err = s.ledger.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
			switch remote.Status {
			case entity.PaymentStatusSucceeded:
				return markIntentSucceeded(ctx, repos, remote, now)
			case entity.PaymentStatusFailed, entity.PaymentStatusCanceled:
				return markIntentTerminal(ctx, repos, remote.ID, remote.Status, now)
			default:
				_, err := repos.Intents.UpdateStatus(ctx, remote.ID, remote.Status, now)
				return err
			}
		})
		if err != nil {
			firstErr = keepFirstErr(firstErr, fmt.Errorf("%w: reconcile %s: %w", ErrPersistence, intent.GatewayIntentID, err))
			continue
		}

		settled++
		s.logger.WithFields(logrus.Fields{
			"intent_id":  intent.GatewayIntentID,
			"old_status": intent.Status,
			"new_status": remote.Status,
		}).Info("Reconciled payment intent")
	}

	s.logger.WithFields(logrus.Fields{
		"scanned": len(items),
		"settled": settled,
	}).Debug("Reconcile batch finished")

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
