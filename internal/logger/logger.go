package logger

import (
	"github.com/sirupsen/logrus"
)

// Log — глобальный логгер. До вызова Init пишет JSON на уровне info.
var Log = newLogger(logrus.InfoLevel)

func newLogger(lvl logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l
}

// Init инициализирует структурированный логгер.
func Init(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log = newLogger(lvl)
}

// SetTextFormatter устанавливает текстовый формат логов (для development).
func SetTextFormatter() {
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}
