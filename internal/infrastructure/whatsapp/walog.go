package whatsapp

import (
	"fmt"

	"whatsam/internal/infrastructure/logger"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogAdapter bridges the structured logger into whatsmeow's logging
// interface so protocol internals land in the same output stream.
type waLogAdapter struct {
	log logger.Logger
}

func newWALogger(log logger.Logger) waLog.Logger {
	return &waLogAdapter{log: log.WithComponent("whatsmeow")}
}

func (w *waLogAdapter) Warnf(msg string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(msg, args...))
}

func (w *waLogAdapter) Errorf(msg string, args ...interface{}) {
	w.log.Error(fmt.Sprintf(msg, args...))
}

func (w *waLogAdapter) Infof(msg string, args ...interface{}) {
	w.log.Info(fmt.Sprintf(msg, args...))
}

func (w *waLogAdapter) Debugf(msg string, args ...interface{}) {
	w.log.Debug(fmt.Sprintf(msg, args...))
}

func (w *waLogAdapter) Sub(module string) waLog.Logger {
	return &waLogAdapter{log: w.log.WithFields(logger.String("module", module))}
}
