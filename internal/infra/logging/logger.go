package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

func init() {
	// JSON with normalized field names so log shippers can ingest directly.
	Logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	Logger.SetLevel(logrus.InfoLevel)
}
