package trips

import (
	"context"
	"sync"
	"time"

	"tripgen/internal/common/logger"
	"tripgen/internal/models"
)

type ProcessStarter interface {
	CreateInstance(ctx context.Context, processID string, vars map[string]interface{}) (int64, error)
}

// ProcessLauncher starts a workflow instance whose worker generates the itinerary.
type ProcessLauncher struct {
	starter   ProcessStarter
	processID string
	logger    logger.Logger
}

func NewProcessLauncher(starter ProcessStarter, processID string, log logger.Logger) *ProcessLauncher {
	return &ProcessLauncher{starter: starter, processID: processID, logger: log}
}

func (l *ProcessLauncher) Launch(ctx context.Context, tripID string) error {
	key, err := l.starter.CreateInstance(ctx, l.processID, map[string]interface{}{"tripId": tripID})
	if err != nil {
		return err
	}
	l.logger.Info("generation process started", map[string]interface{}{
		"tripId":             tripID,
		"processId":          l.processID,
		"processInstanceKey": key,
	})
	return nil
}

type Generator interface {
	Generate(ctx context.Context, tripID string) (*models.ItineraryVersion, error)
}

// LocalLauncher generates in a goroutine of this process.
type LocalLauncher struct {
	generator Generator
	timeout   time.Duration
	logger    logger.Logger
	wg        sync.WaitGroup
}

func NewLocalLauncher(generator Generator, timeout time.Duration, log logger.Logger) *LocalLauncher {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &LocalLauncher{generator: generator, timeout: timeout, logger: log}
}

func (l *LocalLauncher) Launch(_ context.Context, tripID string) error {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		version, err := l.generator.Generate(ctx, tripID)
		if err != nil {
			l.logger.Error("background generation failed", map[string]interface{}{
				"tripId": tripID,
				"error":  err.Error(),
			})
			return
		}
		l.logger.Info("background generation finished", map[string]interface{}{
			"tripId":  tripID,
			"version": version.Version,
		})
	}()
	return nil
}

// Wait blocks until every launched generation has returned.
func (l *LocalLauncher) Wait() {
	l.wg.Wait()
}
