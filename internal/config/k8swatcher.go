package config

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"

	"github.com/kestrel-sync/docsync/orchestrator"
)

// ConfigMapWatcherConfig configures the live-tuning watcher.
type ConfigMapWatcherConfig struct {
	Namespace    string
	Name         string
	ResyncPeriod time.Duration
}

func (c ConfigMapWatcherConfig) withDefaults() ConfigMapWatcherConfig {
	if c.ResyncPeriod <= 0 {
		c.ResyncPeriod = 10 * time.Minute
	}
	return c
}

// ConfigMapWatcher watches a single ConfigMap in-cluster and invokes a
// callback with the parsed tuning values whenever it changes. It mirrors
// the connection shape of the teacher's k8s client wrapper, narrowed to
// the one resource this engine needs to watch.
type ConfigMapWatcher struct {
	clientset kubernetes.Interface
	cfg       ConfigMapWatcherConfig
	logger    *slog.Logger
	onUpdate  func(orchestrator.TuningUpdate)
}

// NewConfigMapWatcher builds a watcher using in-cluster credentials. It is
// only meaningful when the engine runs inside a Kubernetes pod; callers
// running locally should skip wiring this up entirely.
func NewConfigMapWatcher(cfg ConfigMapWatcherConfig, onUpdate func(orchestrator.TuningUpdate), logger *slog.Logger) (*ConfigMapWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("config map name is required")
	}
	cfg = cfg.withDefaults()

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("loading in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("building clientset: %w", err)
	}

	return &ConfigMapWatcher{
		clientset: clientset,
		cfg:       cfg,
		logger:    logger.With("component", "config_map_watcher"),
		onUpdate:  onUpdate,
	}, nil
}

// Run blocks watching the ConfigMap until ctx is cancelled, dispatching
// onUpdate on every add/update event.
func (w *ConfigMapWatcher) Run(ctx context.Context) error {
	fieldSelector := "metadata.name=" + w.cfg.Name

	_, controller := cache.NewInformer(
		&cache.ListWatch{
			ListFunc: func(options metav1.ListOptions) (runtime.Object, error) {
				options.FieldSelector = fieldSelector
				return w.clientset.CoreV1().ConfigMaps(w.cfg.Namespace).List(ctx, options)
			},
			WatchFunc: func(options metav1.ListOptions) (watch.Interface, error) {
				options.FieldSelector = fieldSelector
				return w.clientset.CoreV1().ConfigMaps(w.cfg.Namespace).Watch(ctx, options)
			},
		},
		&corev1.ConfigMap{},
		w.cfg.ResyncPeriod,
		cache.ResourceEventHandlerFuncs{
			AddFunc:    w.handle,
			UpdateFunc: func(_, newObj interface{}) { w.handle(newObj) },
		},
	)

	w.logger.Info("watching config map", "namespace", w.cfg.Namespace, "name", w.cfg.Name)
	controller.Run(ctx.Done())
	return nil
}

func (w *ConfigMapWatcher) handle(obj interface{}) {
	cm, ok := obj.(*corev1.ConfigMap)
	if !ok || cm == nil {
		return
	}

	update := orchestrator.TuningUpdate{}
	if raw, ok := cm.Data["sync_interval_ms"]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
			update.SyncInterval = time.Duration(ms) * time.Millisecond
		} else {
			w.logger.Warn("ignoring invalid sync_interval_ms", "value", raw)
		}
	}
	if raw, ok := cm.Data["batch_size"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			update.BatchSize = n
		} else {
			w.logger.Warn("ignoring invalid batch_size", "value", raw)
		}
	}

	w.logger.Info("config map updated", "sync_interval", update.SyncInterval, "batch_size", update.BatchSize)
	if w.onUpdate != nil {
		w.onUpdate(update)
	}
}

// IsNotFound reports whether err is a Kubernetes "not found" API error,
// surfaced so callers can tell "ConfigMap absent" apart from connectivity
// failures.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}
