package main

import (
	"context"
	"io"
	"testing"

	"queuesync/pkg/queueclient"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWatch_RejectsBadURL(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	err := watch(context.Background(), logger, queueclient.Options{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestWatch_ReturnsOnCancel(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Nothing listens on the port; the agent must still shut down cleanly.
	err := watch(ctx, logger, queueclient.Options{BaseURL: "http://127.0.0.1:1"})
	assert.NoError(t, err)
}
