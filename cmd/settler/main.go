package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var envFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Usage: "dotenv file loaded before reading SETTLER_* variables",
	Value: ".env",
}

func main() {
	app := cli.NewApp()
	app.Name = "settler"
	app.Usage = "cross-chain intent settlement daemon"
	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Flags = []cli.Flag{envFileFlag}
	app.Commands = append(
		cli.Commands{},
		serveCmd,
		orderIDCmd,
		signOrderCmd,
	)
	app.DefaultCommand = serveCmd.Name

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("settler exited")
	}
}

// Custom formatter that outputs only the message
type cleanFormatter struct{}

func (f *cleanFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

// setupLogger configures the logger from LOG_LEVEL and LOG_FORMAT
func setupLogger(levelName, format string) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		logger.Warnf("Invalid log level %s, using info: %v", levelName, err)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "clean":
		logger.SetFormatter(&cleanFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
