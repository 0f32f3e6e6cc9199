package watcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/reliefops/redzone/internal/config"
	"github.com/reliefops/redzone/internal/logger"
	"github.com/reliefops/redzone/internal/service/detector"
	"github.com/reliefops/redzone/internal/store"
	memorystore "github.com/reliefops/redzone/internal/store/memory"
	redisstore "github.com/reliefops/redzone/internal/store/redis"
)

// Options configures the redzone-watcher process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// SubjectID is the subject whose record is watched.
	SubjectID string
	// Silent disables the console bell, leaving log output only.
	Silent bool
}

// ErrSubjectRequired indicates the watcher was started without a subject.
var ErrSubjectRequired = errors.New("subject id must be provided")

// Run watches the subject until the context is cancelled. Alarm
// transitions are logged; pressing Enter acknowledges a sounding alarm.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "redzone-watcher")

	if opts.SubjectID == "" {
		return ErrSubjectRequired
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	st, err := openStore(ctx, settings)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	defer func() {
		_ = st.Close()
	}()

	if settings.StoreBackend == config.StoreBackendMemory {
		logger.Warn(ctx, "Memory store is process-local; use the redis backend to observe a running server")
	}

	var siren detector.Siren = NewConsoleSiren(os.Stdout)
	if opts.Silent {
		siren = detector.NopSiren{}
	}

	det, err := detector.New(ctx, st, opts.SubjectID, siren)
	if err != nil {
		return fmt.Errorf("start detector: %w", err)
	}

	defer det.Close()

	go acknowledgeOnInput(ctx, det, os.Stdin)

	logger.InfoKV(ctx, "Watching subject", "subject_id", opts.SubjectID, "state", det.State())

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Watcher stopped")

			return nil
		case state, ok := <-det.Transitions():
			if !ok {
				return nil
			}

			logTransition(ctx, opts.SubjectID, state)
		}
	}
}

// logTransition reports one alarm state change to the operator.
func logTransition(ctx context.Context, subjectID string, state detector.AlarmState) {
	switch state {
	case detector.StateSounding:
		logger.WarnKV(ctx, "ALARM: subject is inside a hazard zone, press Enter to acknowledge",
			"subject_id", subjectID)
	case detector.StateAcknowledged:
		logger.InfoKV(ctx, "Alarm acknowledged, will re-trigger after the subject leaves and re-enters",
			"subject_id", subjectID)
	case detector.StateIdle:
		logger.InfoKV(ctx, "Subject is clear of all hazard zones", "subject_id", subjectID)
	}
}

// acknowledgeOnInput silences the alarm whenever the operator sends a
// line. Acknowledging an idle alarm is harmless.
func acknowledgeOnInput(ctx context.Context, det *detector.Detector, r io.Reader) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		det.Acknowledge()
	}
}

// openStore builds the store backend the configuration selects.
func openStore(ctx context.Context, settings *config.Config) (store.Store, error) {
	switch settings.StoreBackend {
	case config.StoreBackendRedis:
		return redisstore.NewStore(ctx, redisstore.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
	default:
		return memorystore.NewStore(), nil
	}
}
