package main

import (
	"fmt"
	"os"

	"signalcopier/cmd/markdata"
	"signalcopier/cmd/runner"
	"signalcopier/src/database"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Signal Copier CMD"
	app.Usage = "The signal copier command line interface"

	app.Commands = []cli.Command{
		runCMD,
		markdataCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	runCMD = cli.Command{
		Name:        "run",
		Usage:       "run the signal copier bot",
		Action:      runAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the chat-signal trade copier`,
	}
	markdataCMD = cli.Command{
		Name:        "markdata",
		Usage:       "backfill reference candles",
		Action:      markdataAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Backfill OHLCV reference candles for signal marking`,
	}
)

func runAction(_ *cli.Context) error {

	logrus.Info("Starting signal copier CMD")
	logrus.WithField("cmd", "run")

	bot := &runner.Runner{}
	err := bot.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// markdataAction fetches OHLCV candles for the configured symbol.
func markdataAction(_ *cli.Context) error {

	logrus.Info("Starting markdata CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	md := &markdata.MarkData{
		Log: logrus.WithField("cmd", "markdata"),
		DB:  database.MainDB,
	}

	err := md.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting markdata cmd")
		return err
	}

	return nil
}
