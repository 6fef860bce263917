// Package handlers wires the djangos custom resource to the migration
// pipeline through a dynamic informer and a rate-limited workqueue, the
// same event-to-queue-to-syncHandler shape client-go's own generated
// controllers use — adapted here for a CRD this repository has no typed
// clientset for.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/util/workqueue"

	djangov1alpha "github.com/thismatters/django-operator/apis/django/v1alpha"
	"github.com/thismatters/django-operator/internal/djangoreconciler"
	"github.com/thismatters/django-operator/internal/events"
	"github.com/thismatters/django-operator/internal/k8sclient"
	"github.com/thismatters/django-operator/internal/metrics"
	"github.com/thismatters/django-operator/internal/pipeline"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

const queueName = "djangos"

// Controller watches every Django object and turns add/update/delete
// notifications into pipeline.Handle calls, committing the result with
// internal/k8sclient.ApplyResult and honoring a temporary outcome's delay
// with workqueue.AddAfter.
type Controller struct {
	client    *k8sclient.DjangoClient
	resources *resourceservice.ResourceService
	pipeline  *pipeline.Pipeline
	events    *events.Recorder

	informer  cache.SharedIndexInformer
	workqueue workqueue.RateLimitingInterface
	logger    *slog.Logger

	// specDirty marks keys whose spec changed on the update that
	// enqueued them. It is consulted (and cleared) by syncHandler so a
	// ready-labeled object only re-initiates when the change reached the
	// spec, not an unrelated status/label churn.
	//
	// retryCount tracks the step iteration count per key across temporary
	// outcomes. workqueue's own NumRequeues resets to zero on Forget,
	// which AddAfter-based rescheduling requires, so the iteration cap the
	// waiting steps resolve via pipeline.Timeout needs its own counter here
	// instead.
	mu         sync.Mutex
	specDirty  map[string]bool
	retryCount map[string]int
}

// NewController builds a Controller over dyn, filtered to namespace
// ("" watches every namespace) with resync as the informer's full relist
// period.
func NewController(
	dyn dynamic.Interface,
	resources *resourceservice.ResourceService,
	pl *pipeline.Pipeline,
	recorder *events.Recorder,
	namespace string,
	resync time.Duration,
	logger *slog.Logger,
) *Controller {
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(dyn, resync, namespace, nil)
	informer := factory.ForResource(k8sclient.DjangoGVR).Informer()

	c := &Controller{
		client:     k8sclient.NewDjangoClient(dyn),
		resources:  resources,
		pipeline:   pl,
		events:     recorder,
		informer:   informer,
		workqueue:  workqueue.NewNamedRateLimitingQueue(workqueue.DefaultControllerRateLimiter(), queueName),
		logger:     logger,
		specDirty:  map[string]bool{},
		retryCount: map[string]int{},
	}

	informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) {
			c.markDirty(obj)
			c.enqueue(obj)
		},
		UpdateFunc: func(oldObj, newObj any) {
			if specChanged(oldObj, newObj) {
				c.markDirty(newObj)
			}
			c.enqueue(newObj)
		},
		DeleteFunc: c.handleDelete,
	})

	return c
}

// DjangoClient returns the client this controller reads and patches
// djangos through, shared with internal/monitor so both commit
// pipeline.HandleResult values via the same code path.
func (c *Controller) DjangoClient() *k8sclient.DjangoClient {
	return c.client
}

// Run starts the informer, waits for its cache to sync, and launches
// workers workqueue consumers. It blocks until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, workers int) error {
	defer utilruntime.HandleCrash()
	defer c.workqueue.ShutDown()

	go c.informer.Run(ctx.Done())
	if !cache.WaitForCacheSync(ctx.Done(), c.informer.HasSynced) {
		return fmt.Errorf("failed to sync django informer cache")
	}

	for i := 0; i < workers; i++ {
		go wait.Until(func() { c.runWorker(ctx) }, time.Second, ctx.Done())
	}

	<-ctx.Done()
	return nil
}

func (c *Controller) enqueue(obj any) {
	key, err := cache.MetaNamespaceKeyFunc(obj)
	if err != nil {
		utilruntime.HandleError(err)
		return
	}
	c.workqueue.Add(key)
}

func (c *Controller) markDirty(obj any) {
	key, err := cache.MetaNamespaceKeyFunc(obj)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.specDirty[key] = true
	c.mu.Unlock()
}

func (c *Controller) takeDirty(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := c.specDirty[key]
	delete(c.specDirty, key)
	return dirty
}

func (c *Controller) retryFor(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount[key]
}

func (c *Controller) incrementRetry(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount[key]++
}

func (c *Controller) resetRetry(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.retryCount, key)
}

// degradeOnConfigError marks django degraded and emits a ConfigError
// event when djangoreconciler.New rejects it for missing required
// fields — the reconciler never exists in this case, so pipeline.Handle
// is never reached and its own OutcomePermanent handling can't apply;
// this builds the equivalent HandleResult by hand and commits it the
// same way.
func (c *Controller) degradeOnConfigError(ctx context.Context, namespace, name, label string, django *djangov1alpha.Django, configErr *djangoreconciler.ConfigError) error {
	result := &pipeline.HandleResult{
		StatusPatch: map[string]any{"condition": djangov1alpha.ConditionDegraded},
		Event: &pipeline.Event{
			Reason:  "ConfigError",
			Message: configErr.Error(),
			Warning: true,
		},
	}
	recordMetrics(label, result, configErr)
	if c.events != nil {
		c.events.Emit(django, result.Event.Reason, result.Event.Message, true)
	}
	if applyErr := k8sclient.ApplyResult(ctx, c.client, namespace, name, result); applyErr != nil {
		c.logger.Error("applying degraded status after config error", "namespace", namespace, "name", name, "error", applyErr)
	}
	return configErr
}

// recordMetrics attributes one pipeline.Handle call to the operator's
// counters. origLabel is the migration-step label the object carried
// going into the call, so a step outcome is credited to the step that
// ran rather than whatever it advanced to.
func recordMetrics(origLabel string, result *pipeline.HandleResult, err error) {
	switch origLabel {
	case "", pipeline.ReadyLabel:
		if result != nil && result.Label != "" && result.Label != pipeline.ReadyLabel {
			metrics.MigrationsInProgress.Inc()
		}
	case pipeline.DoneLabel:
		if result != nil && result.Label == pipeline.ReadyLabel {
			metrics.MigrationsInProgress.Dec()
		}
	default:
		outcome := "return"
		switch {
		case err != nil:
			outcome = "permanent"
		case result != nil && result.Delay != nil:
			outcome = "temporary"
		}
		metrics.StepTotal.WithLabelValues(origLabel, outcome).Inc()
	}
}

func specChanged(oldObj, newObj any) bool {
	oldU, ok := oldObj.(*unstructured.Unstructured)
	if !ok {
		return true
	}
	newU, ok := newObj.(*unstructured.Unstructured)
	if !ok {
		return true
	}
	return !reflect.DeepEqual(oldU.Object["spec"], newU.Object["spec"])
}

// handleDelete strips the protector finalizer from every object the
// deleted Django had inventoried in status.created, the only action the
// delete event needs: those children carry their own finalizer and are
// otherwise stuck in terminating state once their owner is gone.
func (c *Controller) handleDelete(obj any) {
	u, ok := obj.(*unstructured.Unstructured)
	if !ok {
		tombstone, ok := obj.(cache.DeletedFinalStateUnknown)
		if !ok {
			utilruntime.HandleError(fmt.Errorf("unexpected delete object type %T", obj))
			return
		}
		u, ok = tombstone.Obj.(*unstructured.Unstructured)
		if !ok {
			utilruntime.HandleError(fmt.Errorf("tombstone contained unexpected object type %T", tombstone.Obj))
			return
		}
	}

	django, err := k8sclient.FromUnstructured(u)
	if err != nil {
		utilruntime.HandleError(err)
		return
	}

	ctx := context.Background()
	for kindName, byPurpose := range django.Status.Created {
		kind, ok := resourceservice.ParseKind(kindName)
		if !ok {
			continue
		}
		for _, name := range byPurpose {
			if name == "" {
				continue
			}
			if err := c.resources.StripFinalizer(ctx, kind, django.Namespace, name); err != nil {
				c.logger.Error("stripping finalizer after django delete",
					"namespace", django.Namespace, "kind", kindName, "name", name, "error", err)
			}
		}
	}
}

func (c *Controller) runWorker(ctx context.Context) {
	for c.processNextWorkItem(ctx) {
	}
}

func (c *Controller) processNextWorkItem(ctx context.Context) bool {
	key, shutdown := c.workqueue.Get()
	if shutdown {
		return false
	}
	defer c.workqueue.Done(key)

	k := key.(string)
	delay, err := c.syncHandler(ctx, k)
	switch {
	case err != nil:
		c.incrementRetry(k)
		utilruntime.HandleError(fmt.Errorf("syncing %q: %w", key, err))
		c.workqueue.AddRateLimited(key)
	case delay != nil:
		c.incrementRetry(k)
		c.workqueue.Forget(key)
		c.workqueue.AddAfter(key, *delay)
	default:
		c.resetRetry(k)
		c.workqueue.Forget(key)
	}
	return true
}

// syncHandler re-reads key's current state and runs it through
// pipeline.Handle once. A non-nil duration return asks the caller to
// requeue the same key after that delay instead of immediately (a
// temporary step outcome); retry is this controller's own per-key
// counter so the step's iteration cap keeps advancing across the
// Forget/AddAfter cycle a temporary outcome drives.
func (c *Controller) syncHandler(ctx context.Context, key string) (*time.Duration, error) {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		utilruntime.HandleError(fmt.Errorf("invalid resource key %q", key))
		return nil, nil
	}

	django, err := c.client.Get(ctx, namespace, name)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	diffTouchesSpec := c.takeDirty(key)
	retry := c.retryFor(key)

	var reconciler *djangoreconciler.DjangoReconciler
	label := django.Labels[djangov1alpha.MigrationStepLabel]
	if label != "" && label != pipeline.ReadyLabel && label != pipeline.DoneLabel {
		reconciler, err = djangoreconciler.New(django, c.resources, c.logger)
		if err != nil {
			var configErr *djangoreconciler.ConfigError
			if errors.As(err, &configErr) {
				return nil, c.degradeOnConfigError(ctx, namespace, name, label, django, configErr)
			}
			return nil, fmt.Errorf("building reconciler for %s: %w", key, err)
		}
	}

	result, err := c.pipeline.Handle(ctx, reconciler, django, diffTouchesSpec, retry)
	recordMetrics(label, result, err)
	if result != nil && result.Event != nil && c.events != nil {
		c.events.Emit(django, result.Event.Reason, result.Event.Message, false)
	}
	if err != nil {
		if applyErr := k8sclient.ApplyResult(ctx, c.client, namespace, name, result); applyErr != nil {
			c.logger.Error("applying degraded status after step error", "key", key, "error", applyErr)
		}
		return nil, err
	}

	if err := k8sclient.ApplyResult(ctx, c.client, namespace, name, result); err != nil {
		return nil, err
	}

	return result.Delay, nil
}
