// Package logger wraps zap for every silent-alarm binary:
//   - a global sugared logger writing to standard error in console or JSON form,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// The initial level and encoding come from SILENT_ALARM_LOG_LEVEL and
// SILENT_ALARM_LOG_FORMAT. The store service, the scheduler and the device
// agent take the logger from the context, so each line carries the component
// name and the device id it concerns.
package logger
