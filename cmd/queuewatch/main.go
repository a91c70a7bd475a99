// Command queuewatch follows a queuesync server from the terminal the way
// the shop display does: live updates over the WebSocket with a periodic
// HTTP pull as fallback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/logfields"
	"queuesync/pkg/protocol"
	"queuesync/pkg/queueclient"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	baseURL := flag.StringP("url", "u", "http://localhost:8080", "Base URL of the queuesync server")
	userID := flag.String("user", "", "User id to register for chat messages")
	reconnect := flag.Duration("reconnect", constants.DefaultReconnectDelaySec*time.Second, "Delay before reconnecting after the socket drops")
	pull := flag.Duration("pull", constants.DefaultPullIntervalSec*time.Second, "Interval of the HTTP status pull")
	verbose := flag.BoolP("verbose", "v", false, "Enable debug logging")
	flag.Parse()

	logger := logfields.NewLogger("info", *verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watch(ctx, logger, queueclient.Options{
		BaseURL:        *baseURL,
		UserID:         *userID,
		ReconnectDelay: *reconnect,
		PullInterval:   *pull,
		Logger:         logger,
	}); err != nil {
		logger.Fatalf("queuewatch: %v", err)
	}
}

func watch(ctx context.Context, logger *logrus.Logger, opts queueclient.Options) error {
	opts.OnSnapshot = func(s protocol.Snapshot, src queueclient.Source) {
		logger.WithFields(logrus.Fields{
			"source":         src.String(),
			logfields.Count:  s.Count,
			"estimated_wait": s.EstimatedWait,
			"open":           s.BusinessStatus.IsOpen,
			"status":         s.BusinessStatus.Message,
			"next_open":      s.BusinessStatus.NextOpenTime,
		}).Info("Queue snapshot")
	}
	opts.OnChat = func(msg protocol.AIChat) {
		logger.WithField("from_user", msg.IsFromUser).Info(msg.Message)
	}

	agent, err := queueclient.New(opts)
	if err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	agent.Start(ctx)
	<-ctx.Done()
	agent.Close()
	logger.Info("Stopped")
	return nil
}
