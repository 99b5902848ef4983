package httpapi_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/codec"
	"github.com/deltasched/scheduler/internal/httpapi"
	"github.com/deltasched/scheduler/internal/scheduler"
	"github.com/deltasched/scheduler/internal/transfer"
	"github.com/deltasched/scheduler/pkg/predictor"
	"github.com/deltasched/scheduler/pkg/strategy"
)

// newTestDeps wires a scheduler the way cmd/scheduler's production wiring
// must: build the scheduler with no strategy, derive its Predictors
// callback, construct the real strategy from that, then SetStrategy before
// anything reads from it.
func newTestDeps(t *testing.T, backendClient backend.Client, endpoints []scheduler.EndpointConfig) httpapi.Deps {
	t.Helper()

	transferClient := newNoopTransferClient()
	transferPredictor := predictor.NewTransferPredictor(predictor.DefaultTrainEvery)
	mgr := transfer.NewManager(transferClient, transferPredictor.Update, slog.Default(), 0)

	s := scheduler.NewCentralScheduler(scheduler.Options{
		RuntimePredictor:  predictor.NewRollingAverage(predictor.DefaultLastN),
		TransferPredictor: transferPredictor,
		TransferManager:   mgr,
		Backend:           backendClient,
		Codec:             codec.JSONCodec{},
		Endpoints:         endpoints,
		MaxBackups:        1,
		DispatchTick:      5 * time.Millisecond,
		Logger:            slog.Default(),
	})

	metas := make([]strategy.EndpointMeta, len(endpoints))
	for i, ep := range endpoints {
		metas[i] = strategy.EndpointMeta{ID: ep.ID, Name: ep.Name, Group: ep.Group, TransferGroup: ep.TransferGroup}
	}

	strat, err := strategy.New("round-robin", metas, s.Predictors(), strategy.DefaultLatencyConst)
	if err != nil {
		t.Fatalf("construct strategy: %v", err)
	}

	s.SetStrategy(strat)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go s.RunDispatchLoop(ctx)

	return httpapi.Deps{Scheduler: s, Backend: backendClient, Logger: slog.Default()}
}

type noopTransferClient struct{}

func newNoopTransferClient() noopTransferClient { return noopTransferClient{} }

func (noopTransferClient) SubmitTransfer(_ context.Context, _, _ string, _ []transfer.Item, _ transfer.SyncLevel, _ string) (transfer.SubmitResult, error) {
	return transfer.SubmitResult{Code: "ok", TaskID: "unused"}, nil
}

func (noopTransferClient) GetTask(_ context.Context, _ string) (transfer.StatusReport, error) {
	return transfer.StatusReport{Status: transfer.StatusSucceeded}, nil
}

func (noopTransferClient) CancelTask(_ context.Context, _ string) error { return nil }
