package core

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ProductionLogger is the logrus-backed Logger used by the bot.
// JSON output is meant for log aggregation; text output for local runs.
type ProductionLogger struct {
	entry *logrus.Entry
}

// NewLogger builds a ProductionLogger from the logging configuration.
// Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig, serviceName string) *ProductionLogger {
	return newLogger(cfg, serviceName, os.Stdout)
}

func newLogger(cfg LoggingConfig, serviceName string, out io.Writer) *ProductionLogger {
	l := logrus.New()
	l.SetOutput(out)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	entry := logrus.NewEntry(l)
	if serviceName != "" {
		entry = entry.WithField("service", serviceName)
	}
	return &ProductionLogger{entry: entry}
}

// WithComponent returns a logger that tags every entry with the component name.
func (p *ProductionLogger) WithComponent(component string) Logger {
	return &ProductionLogger{entry: p.entry.WithField("component", component)}
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.entry.WithFields(toLogrusFields(fields)).Info(msg)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.entry.WithFields(toLogrusFields(fields)).Error(msg)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.entry.WithFields(toLogrusFields(fields)).Warn(msg)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	p.entry.WithFields(toLogrusFields(fields)).Debug(msg)
}

// toLogrusFields converts fields, rendering error values as strings so the
// JSON formatter does not emit them as empty objects.
func toLogrusFields(fields map[string]interface{}) logrus.Fields {
	out := make(logrus.Fields, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}
