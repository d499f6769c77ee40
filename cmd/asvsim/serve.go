package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/surveyor-hil/asvsim/internal/api"
	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/internal/handlers"
	"github.com/surveyor-hil/asvsim/internal/httpapi"
	"github.com/surveyor-hil/asvsim/internal/influx"
	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/mission"
	"github.com/surveyor-hil/asvsim/internal/monitor"
	"github.com/surveyor-hil/asvsim/internal/motion"
	intOtel "github.com/surveyor-hil/asvsim/internal/otel"
	"github.com/surveyor-hil/asvsim/internal/server"
	"github.com/surveyor-hil/asvsim/internal/sim"
	"github.com/surveyor-hil/asvsim/internal/storage"
	"github.com/surveyor-hil/asvsim/internal/worker"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

const shutdownTimeout = 10 * time.Second

// logSinks are the files and providers opened by initLogging.
type logSinks struct {
	files []interface{ Close() error }
	otel  *intOtel.Provider
}

func (l *logSinks) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "flush logs:", err)
	}
	if l.otel != nil {
		if err := l.otel.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "shutdown otel:", err)
		}
	}
	if err := SlogManager.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close logs:", err)
	}
	for _, f := range l.files {
		f.Close()
	}
}

// initLogging opens the rotating log files, the OTel provider and the
// Graylog sink, then points SlogManager, Logger and ZLogger at them.
func initLogging(sessionID string, simState func() logging.SimState) (*logSinks, error) {
	logCfg := config.GetLogConfig()
	if err := os.MkdirAll(logCfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	sinks := &logSinks{}
	logFile := logging.NewRotatingFile(
		logging.LogFilePath(logCfg.Dir, AppName, SessionStartTime),
		logCfg.MaxSizeMB, logCfg.MaxBackups, logCfg.MaxAgeDays)
	sinks.files = append(sinks.files, logFile)

	level, err := zerolog.ParseLevel(logCfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	ZLogger = zerolog.New(logFile).Level(level).With().
		Timestamp().
		Str("session", sessionID).
		Logger()

	otelCfg := config.GetOTelConfig()
	var otelWriter io.Writer
	if otelCfg.Enabled {
		f := logging.NewRotatingFile(
			logging.LogFilePath(logCfg.Dir, AppName+"_otel", SessionStartTime),
			logCfg.MaxSizeMB, logCfg.MaxBackups, logCfg.MaxAgeDays)
		sinks.files = append(sinks.files, f)
		otelWriter = f
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		Version:      Version,
		SessionID:    sessionID,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    otelWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		sinks.close()
		return nil, fmt.Errorf("failed to initialize OTel: %w", err)
	}
	sinks.otel = provider

	var gelfAddr string
	if logCfg.GraylogEnabled {
		gelfAddr = logCfg.GraylogAddr
	}
	if err := SlogManager.Setup(logging.Config{
		Level:    logCfg.Level,
		File:     logFile,
		Console:  logCfg.Console,
		GELFAddr: gelfAddr,
		Provider: provider.LoggerProvider(),
		Context: func() []slog.Attr {
			if s := simState(); s != nil {
				return logging.SimContext(s)()
			}
			return nil
		},
	}); err != nil {
		sinks.close()
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	Logger = SlogManager.Logger()
	return sinks, nil
}

// simOptions builds the simulator options from the sim, vehicle, mission
// and grid settings.
func simOptions(sessionID string) (sim.Options, error) {
	simCfg := config.GetSimConfig()
	vehicle := config.GetVehicleConfig()
	missionCfg := config.GetMissionConfig()

	opts := sim.Options{
		SessionID:    sessionID,
		TickInterval: simCfg.TickInterval,
		QueueSize:    simCfg.QueueSize,
		Start: core.VehicleState{
			Position: core.GeoPoint{Lat: simCfg.StartLat, Lon: simCfg.StartLon},
			Heading:  simCfg.StartHeading,
		},
		Motion: motion.Params{
			MaxSpeed:        vehicle.MaxSpeed,
			MaxAccel:        vehicle.MaxAccel,
			MaxDecel:        vehicle.MaxDecel,
			MaxSteeringRate: vehicle.MaxSteeringRate,
			SteeringGain:    vehicle.SteeringGain,
		},
		Mission: mission.Config{
			ArrivalRadius: missionCfg.ArrivalRadius,
			TaperDistance: missionCfg.TaperDistance,
			MinTaper:      missionCfg.MinTaper,
			Throttle:      missionCfg.Throttle,
		},
		HoldRadius: simCfg.HoldRadius,
		Logger:     Logger,
	}

	gridCfg := config.GetGridConfig()
	if gridCfg.Enabled {
		spec, _, err := gridFromConfig(gridCfg)
		if err != nil {
			return sim.Options{}, err
		}
		opts.Grid = &spec
	}
	return opts, nil
}

// runServe runs the simulator with every configured surface until ctx is
// done, then drains the recording and uploads it when an archive is
// configured.
func runServe(ctx context.Context) error {
	sessionID := uuid.New().String()

	var current atomic.Pointer[sim.Simulator]
	sinks, err := initLogging(sessionID, func() logging.SimState {
		if s := current.Load(); s != nil {
			return s
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer sinks.close()

	Logger.Info("Starting simulator", "version", Version, "buildDate", BuildDate, "session", sessionID)

	opts, err := simOptions(sessionID)
	if err != nil {
		Logger.Error("Invalid simulator settings", "error", err)
		return err
	}
	simulator, err := sim.New(opts)
	if err != nil {
		Logger.Error("Failed to create simulator", "error", err)
		return err
	}
	defer simulator.Close()
	current.Store(simulator)

	if gridCfg := config.GetGridConfig(); gridCfg.Enabled {
		n, err := loadGridMission(gridCfg, simulator)
		if err != nil {
			Logger.Warn("Failed to load grid mission", "path", gridCfg.File, "error", err)
		} else {
			Logger.Info("Grid mission loaded", "path", gridCfg.File, "waypoints", n)
		}
	}

	d, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Sim:        simulator,
		LogManager: SlogManager,
	}).Register(d)

	recorder, closeRecording := initRecording(ctx, sessionID, opts, d)

	serverCfg := config.GetServerConfig()
	srv := server.New(server.Config{
		Addr:       serverCfg.Addr,
		SendBuffer: serverCfg.SendBuffer,
		Logger:     Logger.With("component", "server"),
		ErrorCode:  handlers.ErrorCode,
	}, d)

	monitorCfg := config.GetMonitorConfig()
	mon := monitor.NewService(monitor.Dependencies{
		LogManager: SlogManager,
		Sim:        simulator,
		Worker:     recorder,
		Clients:    srv.Clients,
		StatusFile: monitorCfg.StatusFile,
		Interval:   monitorCfg.Interval,
	})
	if err := mon.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "file", monitorCfg.StatusFile, "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return simulator.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return srv.Publish(gctx, simulator) })
	g.Go(func() error { return recorder.Run(gctx, simulator, d) })

	if serialCfg := config.GetSerialConfig(); serialCfg.Enabled {
		g.Go(func() error {
			err := srv.ServeSerial(gctx, server.SerialConfig{
				Device:   serialCfg.Device,
				BaudRate: serialCfg.BaudRate,
			})
			if err != nil {
				Logger.Error("Serial bridge failed", "device", serialCfg.Device, "error", err)
			}
			return nil
		})
	}

	if httpCfg := config.GetHTTPConfig(); httpCfg.Enabled {
		api := httpapi.New(httpapi.Dependencies{
			Sim:        simulator,
			LogManager: SlogManager,
			Clients:    srv.Clients,
		})
		g.Go(func() error { return api.ListenAndServe(gctx, httpCfg.Addr) })
	}

	runErr := g.Wait()
	if runErr != nil {
		Logger.Error("Simulator stopped with error", "error", runErr)
	} else {
		Logger.Info("Shutting down")
	}

	mon.Stop()
	closeRecording()
	return runErr
}

// initRecording wires the storage backend and influx into the dispatcher.
// The returned func drains the dispatcher, closes the session, uploads the
// export and releases every sink, in that order.
func initRecording(ctx context.Context, sessionID string, opts sim.Options, d *dispatcher.Dispatcher) (*worker.Manager, func()) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg, config.GetAPIConfig())
	if err == nil {
		err = backend.Init()
	}
	if err != nil {
		Logger.Error("Failed to initialize storage backend, recording disabled", "type", storageCfg.Type, "error", err)
		backend = nil
	}

	var influxMgr *influx.Manager
	var points worker.PointWriter
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		influxMgr = influx.NewManager(influxCfg, ZLogger, filepath.Join(
			storageCfg.Memory.OutputDir,
			fmt.Sprintf("influx_%s.lp.gz", SessionStartTime.Format("20060102_150405"))))
		if err := influxMgr.Connect(ctx); err != nil {
			Logger.Error("Failed to connect to InfluxDB", "error", err)
			influxMgr = nil
		} else {
			points = influxMgr
		}
	}

	recorder := worker.NewManager(worker.Dependencies{
		LogManager: SlogManager,
		Influx:     points,
	}, backend)
	recorder.RegisterHandlers(d)

	if backend != nil {
		if err := recorder.StartSession(&core.Session{
			ID:        sessionID,
			StartTime: SessionStartTime.UTC(),
			Start:     opts.Start.Position,
			Grid:      opts.Grid,
		}); err != nil {
			Logger.Error("Failed to start recording session", "error", err)
		}
	}

	return recorder, func() {
		d.Close()

		if backend != nil {
			if err := recorder.EndSession(); err != nil {
				Logger.Error("Failed to end recording session", "error", err)
			}
			uploadRecording(backend)
			if err := backend.Close(); err != nil {
				Logger.Error("Failed to close storage backend", "error", err)
			}
		}
		if influxMgr != nil {
			if err := influxMgr.Close(); err != nil {
				Logger.Error("Failed to close InfluxDB", "error", err)
			}
		}
		Logger.Info("Recording closed", "stats", recorder.Stats())
	}
}

// uploadRecording sends the exported session to the archive service when
// one is configured and the backend produced a file.
func uploadRecording(backend storage.Backend) {
	apiCfg := config.GetAPIConfig()
	if !apiCfg.Enabled {
		return
	}
	up, ok := backend.(storage.Uploadable)
	if !ok {
		return
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
	if err := client.Healthcheck(ctx); err != nil {
		Logger.Warn("Archive service unreachable, keeping local export", "path", path, "error", err)
		return
	}
	if err := client.Upload(ctx, path, up.GetExportMetadata()); err != nil {
		Logger.Error("Failed to upload recording", "path", path, "error", err)
		return
	}
	Logger.Info("Recording uploaded", "path", path)
}
