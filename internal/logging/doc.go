// Package logging provides structured debug logging for serialwatch runs.
//
// Logs are JSON lines written through log/slog. They never go to stdout
// (reserved for the device echo) and by default they do not go to stderr
// either, because that stream carries the operator-facing progress and
// status lines. Pass a log file to keep a machine-readable record of a run:
//
//	logger, err := logging.NewFileLogger("/tmp/serialwatch.log", logging.LevelDebug,
//	    logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithPort("/dev/ttyUSB0").WithPhase("observe")
//	runLog.Info("fragment received", "bytes", 42)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"fragment received","port":"/dev/ttyUSB0","phase":"observe","bytes":42}
//
// # Log Rotation
//
// Soak runs can stream for many hours. [RotatingWriter] rolls the file once
// it passes RotationConfig.MaxSizeMB, keeping MaxBackups numbered copies
// (serialwatch.log.1 is the newest), optionally gzip compressed.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Child loggers
// created with With* share the parent's writer.
package logging
