package scheduler

import (
	"log/slog"
	"testing"

	"github.com/deltasched/scheduler/internal/backend"
	"github.com/deltasched/scheduler/internal/codec"
	"github.com/deltasched/scheduler/internal/transfer"
	"github.com/deltasched/scheduler/pkg/predictor"
	"github.com/deltasched/scheduler/pkg/strategy"
)

// testSchedulerOpts bundles the constructor knobs the scenario tests vary.
type testSchedulerOpts struct {
	strategyName      string
	endpoints         []EndpointConfig
	runtimePredictor  predictor.RuntimePredictor
	transferPredictor *predictor.TransferPredictor
	backendClient     backend.Client
	transferClient    transfer.Client
	clock             *mutableClock
	maxBackups        int
	latencyConst      float64
}

// newTestScheduler builds a CentralScheduler and its strategy together,
// resolving the strategy<->scheduler construction order the production
// wiring in cmd/scheduler must also handle: the scheduler is built first
// (its Predictors() method only needs its own fields, never the strategy),
// then the strategy is constructed from that callback record, then wired
// back onto the scheduler via SetStrategy.
func newTestScheduler(t *testing.T, o testSchedulerOpts) *CentralScheduler {
	t.Helper()

	if o.runtimePredictor == nil {
		o.runtimePredictor = predictor.NewRollingAverage(predictor.DefaultLastN)
	}

	if o.transferPredictor == nil {
		o.transferPredictor = predictor.NewTransferPredictor(predictor.DefaultTrainEvery)
	}

	if o.backendClient == nil {
		o.backendClient = newFakeBackendClient()
	}

	if o.transferClient == nil {
		o.transferClient = newFakeTransferClient()
	}

	if o.clock == nil {
		o.clock = &mutableClock{}
	}

	if o.maxBackups < 1 {
		o.maxBackups = 1
	}

	if o.latencyConst <= 0 {
		o.latencyConst = strategy.DefaultLatencyConst
	}

	mgr := transfer.NewManager(o.transferClient, o.transferPredictor.Update, slog.Default(), 0)

	s := NewCentralScheduler(Options{
		RuntimePredictor:  o.runtimePredictor,
		TransferPredictor: o.transferPredictor,
		TransferManager:   mgr,
		Backend:           o.backendClient,
		Codec:             codec.JSONCodec{},
		Endpoints:         o.endpoints,
		MaxBackups:        o.maxBackups,
		Logger:            slog.Default(),
	}.WithNowFn(o.clock.Now))

	metas := make([]strategy.EndpointMeta, len(o.endpoints))
	for i, ep := range o.endpoints {
		metas[i] = strategy.EndpointMeta{ID: ep.ID, Name: ep.Name, Group: ep.Group, TransferGroup: ep.TransferGroup}
	}

	strat, err := strategy.New(o.strategyName, metas, s.Predictors(), o.latencyConst)
	if err != nil {
		t.Fatalf("construct strategy: %v", err)
	}

	s.SetStrategy(strat)

	return s
}
