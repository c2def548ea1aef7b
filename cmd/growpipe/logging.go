package main

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	mozlog "github.com/mozilla-services/go-mozlogrus"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jacoelho/growpipe/config"
)

func newLogger(c config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	logger := logrus.New()
	logger.Out = out
	logger.SetLevel(level)

	switch c.Format {
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	case "mozlog":
		logger.Formatter = &mozlog.MozLogFormatter{
			LoggerName: "growpipe",
		}
	case "text":
		if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			logger.Out = colorable.NewColorable(f)
			logger.Formatter = &logrus.TextFormatter{ForceColors: true, FullTimestamp: true}
		}
	default:
		return nil, errors.Errorf("unknown log format %q", c.Format)
	}
	return logger, nil
}
