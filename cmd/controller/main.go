// Command controller is the django-operator controller: it watches
// djangos custom resources and drives each one's blue/green migration
// pipeline forward, plus a background daemon that polls settled objects
// for drift in the resources it owns.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/thismatters/django-operator/internal/config"
	"github.com/thismatters/django-operator/internal/events"
	"github.com/thismatters/django-operator/internal/handlers"
	"github.com/thismatters/django-operator/internal/manifests"
	"github.com/thismatters/django-operator/internal/monitor"
	"github.com/thismatters/django-operator/internal/pipeline"
	"github.com/thismatters/django-operator/internal/pipeline/steps"
	"github.com/thismatters/django-operator/internal/resourceservice"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg := config.Parse()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting django-operator controller",
		"namespace", cfg.Namespace, "version", version, "commit", commit)

	if err := manifests.LoadOverrides(cfg.ManifestDir); err != nil {
		logger.Error("failed to load manifest overrides", "dir", cfg.ManifestDir, "error", err)
		os.Exit(1)
	}

	k8sCfg, err := buildK8sConfig(cfg.KubeConfig)
	if err != nil {
		logger.Error("failed to build k8s config", "error", err)
		os.Exit(1)
	}

	k8sClient, err := kubernetes.NewForConfig(k8sCfg)
	if err != nil {
		logger.Error("failed to create k8s client", "error", err)
		os.Exit(1)
	}

	dynClient, err := dynamic.NewForConfig(k8sCfg)
	if err != nil {
		logger.Error("failed to create dynamic k8s client", "error", err)
		os.Exit(1)
	}

	resources := resourceservice.New(k8sClient, logger)
	recorder := events.New(k8sClient, logger)
	pl := pipeline.New(steps.All())

	controller := handlers.NewController(
		dynClient, resources, pl, recorder,
		cfg.Namespace, cfg.ResyncInterval, logger,
	)

	daemon := &monitor.Daemon{
		Client:    controller.DjangoClient(),
		Resources: resources,
		Pipeline:  pl,
		Events:    recorder,
		Interval:  cfg.MonitorInterval,
		Logger:    logger,
	}

	startHealthServer(cfg.HealthAddr, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	runFn := func(ctx context.Context) {
		if err := run(ctx, logger, cfg, controller, daemon); err != nil {
			logger.Error("controller stopped", "error", err)
			os.Exit(1)
		}
	}

	if cfg.LeaderElection {
		runLeaderElection(ctx, logger, cfg, k8sClient, runFn)
	} else {
		runFn(ctx)
	}
}

// run starts the workqueue controller and the drift-detection daemon
// side by side, restarting the daemon whenever it re-initiates a drifted
// migration (ErrDriftDetected), so the freshly re-initiated pipeline
// takes over instead of racing the monitor's next sweep.
func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, controller *handlers.Controller, daemon *monitor.Daemon) error {
	controllerDone := make(chan error, 1)
	go func() {
		controllerDone <- controller.Run(ctx, cfg.Workers)
	}()

	go runMonitor(ctx, logger, daemon)

	select {
	case err := <-controllerDone:
		return err
	case <-ctx.Done():
		logger.Info("shutting down controller")
		return nil
	}
}

func runMonitor(ctx context.Context, logger *slog.Logger, daemon *monitor.Daemon) {
	for {
		err := daemon.Run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, monitor.ErrDriftDetected) {
			logger.Info("monitor re-initiated a drifted migration, resuming sweeps")
			continue
		}
		logger.Error("monitor daemon stopped unexpectedly, restarting", "error", err)
	}
}

func startHealthServer(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health/metrics server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()
}

// runLeaderElection starts the leader election loop. Only the leader
// runs the controller loop (runFn); when leadership is lost the process
// exits so Kubernetes restarts it and it can rejoin the election.
func runLeaderElection(ctx context.Context, logger *slog.Logger, cfg *config.Config, k8sClient kubernetes.Interface, runFn func(ctx context.Context)) {
	id := cfg.LeaderElectionIdentity
	logger.Info("starting leader election",
		"id", id, "lease", cfg.LeaderElectionID, "namespace", cfg.Namespace)

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaderElectionID,
			Namespace: cfg.Namespace,
		},
		Client: k8sClient.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: id,
		},
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   15 * time.Second,
		RenewDeadline:   10 * time.Second,
		RetryPeriod:     2 * time.Second,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				logger.Info("elected as leader, starting controller")
				runFn(ctx)
			},
			OnStoppedLeading: func() {
				logger.Error("lost leader election, exiting")
				os.Exit(1)
			},
			OnNewLeader: func(identity string) {
				if identity == id {
					return
				}
				logger.Info("new leader elected", "leader", identity)
			},
		},
	})
}

func buildK8sConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return rest.InClusterConfig()
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
