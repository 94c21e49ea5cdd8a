package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/recdb/internal/config"
	"github.com/calvinalkan/recdb/internal/notes"
	"github.com/calvinalkan/recdb/pkg/fs"
	"github.com/calvinalkan/recdb/pkg/metrics"
	"github.com/calvinalkan/recdb/pkg/walstore"
)

var errDataRootLocked = errors.New("data root is in use by another recdb process")

const (
	lockFileName    = ".lock"
	shutdownTimeout = 10 * time.Second
)

// app owns everything a store-backed command needs. It is opened once per
// process (or shell session) and closed on exit.
type app struct {
	cfg config.Config
	log *logrus.Logger
	fs  fs.FS
	in  io.Reader

	lock    *fs.FileLock
	sched   *walstore.DeferredScheduler
	notes   *notes.Store
	reg     *prometheus.Registry
	metrics *http.Server
}

func (a *app) open(ctx context.Context, o *IO) error {
	err := a.fs.MkdirAll(a.cfg.DataRootAbs, 0o755)
	if err != nil {
		return fmt.Errorf("create data root: %w", err)
	}

	a.lock, err = fs.TryLockFile(filepath.Join(a.cfg.DataRootAbs, lockFileName))
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return fmt.Errorf("%w: %s", errDataRootLocked, a.cfg.DataRootAbs)
		}

		return err
	}

	a.reg = prometheus.NewRegistry()

	err = metrics.Register(a.reg)
	if err != nil {
		return errors.Join(fmt.Errorf("register metrics: %w", err), a.close(ctx))
	}

	if a.cfg.MetricsAddr != "" {
		err = a.serveMetrics()
		if err != nil {
			return errors.Join(err, a.close(ctx))
		}
	}

	observers := &walstore.Observers{}
	observers.OnWriteFailure(func(err error, resource string, _ []byte) {
		o.Warn("could not write "+resource, "changes are kept in memory and retried on the next write ("+err.Error()+")")
	})
	observers.OnReadFailure(func(err error, _ bool, resource string) {
		a.log.WithError(err).WithField("resource", resource).Debug("read failure reported")
	})

	a.sched = walstore.NewDeferredScheduler(a.log)

	a.notes, err = notes.Open(ctx, notes.Config{
		Filename:    a.cfg.File,
		Access:      walstore.NewDataRoot(a.cfg.DataRootAbs, a.fs),
		Codec:       a.cfg.Codec,
		Scheduler:   a.sched,
		WaitingTime: a.cfg.Wait(),
		Observers:   observers,
		Logger:      a.log,
	})
	if err != nil {
		return errors.Join(err, a.close(ctx))
	}

	return nil
}

func (a *app) serveMetrics() error {
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))

	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := a.metrics.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()

	a.log.WithField("addr", ln.Addr().String()).Info("serving metrics")

	return nil
}

// close runs waiting deferred writes, closes the store and releases the
// data root. Safe to call on a partially opened app.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error

	if a.sched != nil {
		errs = append(errs, a.sched.Shutdown(ctx))
		a.sched = nil
	}

	if a.notes != nil {
		errs = append(errs, persisted(a.notes.Close()))
		a.notes = nil
	}

	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
		a.metrics = nil
	}

	if a.lock != nil {
		errs = append(errs, a.lock.Close())
		a.lock = nil
	}

	return errors.Join(errs...)
}

// persisted drops walstore.ErrNotPersisted: the write failure observer
// already turned it into a warning.
func persisted(err error) error {
	if errors.Is(err, walstore.ErrNotPersisted) {
		return nil
	}

	return err
}
