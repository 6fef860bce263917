// Package monitor implements the drift-detection daemon: a loop over
// settled Django objects (migration-step=ready) that notices when a
// resource the operator is supposed to own has been deleted or is being
// deleted out from under it, and restarts the migration pipeline to put
// it back.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/events"
	"github.com/thismatters/django-operator/internal/k8sclient"
	"github.com/thismatters/django-operator/internal/metrics"
	"github.com/thismatters/django-operator/internal/pipeline"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

// ErrDriftDetected is what Run returns the moment it re-initiates a
// drifted object. The caller is expected to start a fresh Daemon.Run
// shortly after, matching the "daemon exits, event framework restarts
// it" contract: the freshly re-initiated migration takes over from
// there instead of the monitor racing it with further reads.
var ErrDriftDetected = errors.New("monitor: drift detected, re-initiating migration")

// Daemon polls ready Django objects for drift. It only reads cluster
// state on each sweep; the one write it ever issues is the re-initiate
// patch fired the moment drift is confirmed, after which it stops.
type Daemon struct {
	Client    *k8sclient.DjangoClient
	Resources *resourceservice.ResourceService
	Pipeline  *pipeline.Pipeline
	Events    *events.Recorder
	Interval  time.Duration
	Logger    *slog.Logger
}

// Run sweeps every Interval until ctx is cancelled or drift is found and
// re-initiated, in which case it returns ErrDriftDetected.
func (d *Daemon) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		drifted, err := d.sweep(ctx)
		if err != nil {
			d.Logger.Error("monitor sweep failed", "error", err)
			continue
		}
		if drifted {
			return ErrDriftDetected
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) (bool, error) {
	selector := djangov1alpha.MigrationStepLabel + "=" + pipeline.ReadyLabel
	settled, err := d.Client.List(ctx, "", selector)
	if err != nil {
		return false, err
	}

	for _, django := range settled {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		drifted, err := d.drifted(ctx, django)
		if err != nil {
			d.Logger.Error("checking django for drift", "namespace", django.Namespace, "name", django.Name, "error", err)
			continue
		}
		if !drifted {
			continue
		}

		if err := d.reinitiate(ctx, django); err != nil {
			d.Logger.Error("re-initiating drifted django", "namespace", django.Namespace, "name", django.Name, "error", err)
			continue
		}
		metrics.MonitorDrift.Inc()
		metrics.MigrationsInProgress.Inc()
		return true, nil
	}
	return false, nil
}

// drifted reports whether any object in django.Status.Created has gone
// missing or carries a non-empty deletionTimestamp.
func (d *Daemon) drifted(ctx context.Context, django *djangov1alpha.Django) (bool, error) {
	for kindName, byPurpose := range django.Status.Created {
		kind, ok := resourceservice.ParseKind(kindName)
		if !ok {
			continue
		}
		for _, name := range byPurpose {
			if name == "" {
				continue
			}
			obj, err := d.Resources.Get(ctx, kind, django.Namespace, name)
			if err != nil {
				return true, nil
			}
			if obj == nil {
				return true, nil
			}
			if meta, ok := obj.(metav1.Object); ok && meta.GetDeletionTimestamp() != nil {
				return true, nil
			}
		}
	}
	return false, nil
}

func (d *Daemon) reinitiate(ctx context.Context, django *djangov1alpha.Django) error {
	result, err := d.Pipeline.Handle(ctx, nil, django, true, 0)
	if err != nil {
		return err
	}
	if d.Events != nil {
		d.Events.Emit(django, "Migrating", "drift detected in owned resources, restarting migration", true)
	}
	return k8sclient.ApplyResult(ctx, d.Client, django.Namespace, django.Name, result)
}
