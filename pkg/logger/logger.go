package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	// Set log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	// Set output format
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	// Set output destination
	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// WithFields creates a new logger entry with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithField creates a new logger entry with a single field
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithError creates a new logger entry with an error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithPatientID creates a new logger entry with patient ID field
func (l *Logger) WithPatientID(patientID string) *logrus.Entry {
	return l.Logger.WithField("patient_id", patientID)
}

// WithComponent creates a new logger entry with component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithDate creates a new logger entry with a day-key field
func (l *Logger) WithDate(date string) *logrus.Entry {
	return l.Logger.WithField("date", date)
}

// CareAction logs caregiving actions with structured format
func (l *Logger) CareAction(patientID, action, resource string, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"care_action": true,
		"patient_id":  patientID,
		"action":      action,
		"resource":    resource,
		"success":     success,
		"details":     details,
	})

	if success {
		entry.Info("Care action recorded")
	} else {
		entry.Warn("Care action failed")
	}
}

// StorageOperation logs storage operation events
func (l *Logger) StorageOperation(operation, key string, durationMs int64, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"storage":     true,
		"operation":   operation,
		"key":         key,
		"duration_ms": durationMs,
		"success":     success,
		"details":     details,
	})

	if success {
		entry.Debug("Storage operation completed")
	} else {
		entry.Error("Storage operation failed")
	}
}
