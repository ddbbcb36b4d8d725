// Command panellinkd runs the PanelLink server: it accepts panel
// connections on the configured port and logs every notification.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/panellink"
	"github.com/opd-ai/panellink/config"
	"github.com/opd-ai/panellink/wire"
)

func main() {
	configPath := flag.String("config", "panellink.toml", "path to the settings file")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("settings load failed")
	}
	if level, err := logrus.ParseLevel(settings.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	srv, err := panellink.NewServer(settings, logNotification)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("server setup failed")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logrus.WithField("error", err.Error()).Fatal("server failed")
		}
	case s := <-sig:
		logrus.WithField("signal", s.String()).Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logrus.WithField("error", err.Error()).Warn("shutdown incomplete")
		}
	}
}

func logNotification(sessionID string, msg wire.Message) {
	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"command":    msg.CommandWord(),
	}).Info("panel notification")
}
