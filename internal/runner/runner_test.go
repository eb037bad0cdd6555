package runner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"spot_bot/internal/models"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/positions"
	"spot_bot/internal/strategy"
	"spot_bot/internal/testutils"
)

type fixture struct {
	cfg        config.Config
	venue      *testutils.MockVenue
	candidates *testutils.MockCandidates
	eval       *testutils.MockEvaluator
	store      *testutils.MockStore
	n          *testutils.MockNotifier
}

func newFixture(held models.Positions) *fixture {
	return &fixture{
		cfg:        config.Default(),
		venue:      testutils.NewMockVenue(1000),
		candidates: &testutils.MockCandidates{},
		eval:       testutils.NewMockEvaluator(),
		store:      testutils.NewMockStore(held),
		n:          &testutils.MockNotifier{},
	}
}

func (f *fixture) runner() *Runner {
	return New(&f.cfg, f.venue, f.candidates, f.eval, strategy.NewPolicy(&f.cfg), f.store, f.n, nil)
}

func (f *fixture) cycle(t *testing.T) Report {
	t.Helper()
	rep, err := f.runner().RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	return rep
}

func btcHeld() models.Positions {
	return models.Positions{"BTC/USDT": {BuyPrice: 100, Amount: 1}}
}

func TestTakeProfitSells(t *testing.T) {
	f := newFixture(btcHeld())
	f.venue.Prices["BTC/USDT"] = 104

	rep := f.cycle(t)

	if got := f.store.Data(); len(got) != 0 {
		t.Fatalf("store must be empty, got %v", got)
	}
	o, _ := rep.Outcome("BTC/USDT", PhaseLiquidation)
	if o.Kind != OutcomeSold || o.Reason != strategy.ReasonTakeProfit {
		t.Fatalf("unexpected outcome %+v", o)
	}
	orders := f.venue.Orders()
	if len(orders) != 1 || orders[0].Side != models.SideSell || orders[0].Amount != 1 {
		t.Fatalf("unexpected orders %+v", orders)
	}
}

func TestStopLossSells(t *testing.T) {
	f := newFixture(btcHeld())
	f.cfg.Trading.StopLoss = 0.98
	f.venue.Prices["BTC/USDT"] = 98

	rep := f.cycle(t)

	if got := f.store.Data(); len(got) != 0 {
		t.Fatalf("store must be empty, got %v", got)
	}
	if o, _ := rep.Outcome("BTC/USDT", PhaseLiquidation); o.Reason != strategy.ReasonStopLoss {
		t.Fatalf("expected stop-loss, got %+v", o)
	}
}

func TestDefaultStopLossHoldsAt98(t *testing.T) {
	f := newFixture(btcHeld())
	f.venue.Prices["BTC/USDT"] = 98

	rep := f.cycle(t)

	if o, _ := rep.Outcome("BTC/USDT", PhaseLiquidation); o.Kind != OutcomeHeld {
		t.Fatalf("98 is above 100*0.96, expected held, got %+v", o)
	}
	if !reflect.DeepEqual(f.store.Data(), btcHeld()) {
		t.Fatalf("store must be unchanged, got %v", f.store.Data())
	}
}

func TestNoExitKeepsStore(t *testing.T) {
	f := newFixture(btcHeld())
	f.venue.Prices["BTC/USDT"] = 101

	rep := f.cycle(t)

	if !reflect.DeepEqual(f.store.Data(), btcHeld()) {
		t.Fatalf("store must be unchanged, got %v", f.store.Data())
	}
	if f.store.Saves() != 0 {
		t.Fatalf("nothing changed, nothing should be saved (saves=%d)", f.store.Saves())
	}
	if len(f.venue.Orders()) != 0 {
		t.Fatal("no orders expected")
	}
	if rep.Open != 1 || rep.Count(OutcomeHeld) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestFullStoreSkipsQualifyingCandidate(t *testing.T) {
	held := models.Positions{
		"BTC/USDT": {BuyPrice: 100, Amount: 1},
		"ETH/USDT": {BuyPrice: 100, Amount: 1},
		"SOL/USDT": {BuyPrice: 100, Amount: 1},
	}
	f := newFixture(held)
	for s := range held {
		f.venue.Prices[s] = 101
	}
	f.candidates.Symbols = []string{"XRP/USDT"}
	f.venue.AddMarket("XRP/USDT", 0.1)
	f.venue.Prices["XRP/USDT"] = 0.5
	f.eval.Snapshots["XRP/USDT"] = testutils.Buyable(0.5)

	rep := f.cycle(t)

	if len(f.store.Data()) != 3 {
		t.Fatalf("store size must stay 3, got %d", len(f.store.Data()))
	}
	if o, _ := rep.Outcome("XRP/USDT", PhaseAcquisition); o.Kind != OutcomeSkipped {
		t.Fatalf("expected skipped, got %+v", o)
	}
	if calls := f.eval.Calls(); len(calls) != 0 {
		t.Fatalf("candidate over the cap must not be evaluated, got %v", calls)
	}
}

func TestHeldSymbolIsNotReevaluated(t *testing.T) {
	f := newFixture(btcHeld())
	f.venue.Prices["BTC/USDT"] = 101
	f.candidates.Symbols = []string{"BTC/USDT"}
	f.eval.Snapshots["BTC/USDT"] = testutils.Buyable(101)

	f.cycle(t)

	if calls := f.eval.Calls(); len(calls) != 0 {
		t.Fatalf("held symbol must not be evaluated, got %v", calls)
	}
	for _, o := range f.venue.Orders() {
		if o.Side == models.SideBuy {
			t.Fatalf("held symbol must not be bought again: %+v", o)
		}
	}
}

func TestFailureOnOneSymbolDoesNotBlockOthers(t *testing.T) {
	f := newFixture(nil)
	f.candidates.Symbols = []string{"AAA/USDT", "BBB/USDT"}
	f.eval.Errs["AAA/USDT"] = errors.New("klines timeout")
	f.venue.AddMarket("BBB/USDT", 0.01)
	f.venue.Prices["BBB/USDT"] = 10
	f.eval.Snapshots["BBB/USDT"] = testutils.Buyable(10)

	rep := f.cycle(t)

	if calls := f.eval.Calls(); !reflect.DeepEqual(calls, []string{"AAA/USDT", "BBB/USDT"}) {
		t.Fatalf("both candidates must be evaluated, got %v", calls)
	}
	if o, _ := rep.Outcome("AAA/USDT", PhaseAcquisition); o.Kind != OutcomeFailed || o.Err == nil {
		t.Fatalf("expected failed outcome for AAA, got %+v", o)
	}
	if o, _ := rep.Outcome("BBB/USDT", PhaseAcquisition); o.Kind != OutcomeBought {
		t.Fatalf("expected BBB to be bought, got %+v", o)
	}
	if rep.Err() == nil {
		t.Fatal("report must surface the AAA failure")
	}
	if !f.store.Data().Has("BBB/USDT") {
		t.Fatal("BBB position must be persisted")
	}
}

func TestBuyRecordsFillAndPersists(t *testing.T) {
	f := newFixture(nil)
	f.candidates.Symbols = []string{"ETH/USDT"}
	f.venue.AddMarket("ETH/USDT", 0.001)
	f.venue.Prices["ETH/USDT"] = 2000
	f.eval.Snapshots["ETH/USDT"] = testutils.Buyable(2000)

	rep := f.cycle(t)

	pos, ok := f.store.Data()["ETH/USDT"]
	if !ok {
		t.Fatal("position must be saved")
	}
	if pos.BuyPrice != 2000 || pos.Amount != 0.5 {
		t.Fatalf("unexpected position %+v", pos)
	}
	if rep.Balance != 1000 || rep.Notional != 1000 {
		t.Fatalf("unexpected balance in report %+v", rep)
	}
	if len(f.n.Messages()) == 0 {
		t.Fatal("buy must be announced")
	}
}

func TestNoSignalAndInsufficientData(t *testing.T) {
	f := newFixture(nil)
	f.candidates.Symbols = []string{"AAA/USDT", "NEW/USDT"}
	f.eval.Snapshots["AAA/USDT"] = testutils.Neutral(10)
	f.eval.Errs["NEW/USDT"] = strategy.ErrInsufficientData

	rep := f.cycle(t)

	if o, _ := rep.Outcome("AAA/USDT", PhaseAcquisition); o.Kind != OutcomeNoSignal {
		t.Fatalf("expected no_signal, got %+v", o)
	}
	if o, _ := rep.Outcome("NEW/USDT", PhaseAcquisition); o.Kind != OutcomeInsufficientData {
		t.Fatalf("expected insufficient_data, got %+v", o)
	}
	if rep.Err() != nil {
		t.Fatalf("insufficient data is not a failure: %v", rep.Err())
	}
}

func TestReservationLimitsSpendToBalance(t *testing.T) {
	f := newFixture(nil)
	f.cfg.Trading.CapitalFraction = 0.5
	f.candidates.Symbols = []string{"AAA/USDT", "BBB/USDT", "CCC/USDT"}
	for _, s := range f.candidates.Symbols {
		f.venue.AddMarket(s, 0.001)
		f.venue.Prices[s] = 10
		f.eval.Snapshots[s] = testutils.Buyable(10)
	}

	f.cycle(t)

	var spent float64
	for _, o := range f.venue.Orders() {
		spent += o.Cost
	}
	if spent > 1000 {
		t.Fatalf("spent %v out of 1000", spent)
	}
	amounts := []float64{}
	for _, o := range f.venue.Orders() {
		amounts = append(amounts, o.Amount)
	}
	if !reflect.DeepEqual(amounts, []float64{50, 25, 12.5}) {
		t.Fatalf("each buy must use half of what is left, got %v", amounts)
	}
}

func TestWithoutReservationEveryBuyUsesFullBalance(t *testing.T) {
	f := newFixture(nil)
	f.cfg.Trading.ReservePerBuy = false
	f.candidates.Symbols = []string{"AAA/USDT", "BBB/USDT"}
	for _, s := range f.candidates.Symbols {
		f.venue.AddMarket(s, 0.001)
		f.venue.Prices[s] = 10
		f.eval.Snapshots[s] = testutils.Buyable(10)
	}

	f.cycle(t)

	for _, o := range f.venue.Orders() {
		if o.Amount != 100 {
			t.Fatalf("expected 100 units per buy, got %+v", o)
		}
	}
}

func TestCapIsRespectedWithinOneCycle(t *testing.T) {
	f := newFixture(nil)
	f.cfg.Trading.ReservePerBuy = false
	f.candidates.Symbols = []string{"A/USDT", "B/USDT", "C/USDT", "D/USDT", "E/USDT"}
	for _, s := range f.candidates.Symbols {
		f.venue.AddMarket(s, 0.001)
		f.venue.Prices[s] = 10
		f.eval.Snapshots[s] = testutils.Buyable(10)
	}

	rep := f.cycle(t)

	if n := len(f.store.Data()); n != f.cfg.Trading.MaxPositions {
		t.Fatalf("expected %d positions, got %d", f.cfg.Trading.MaxPositions, n)
	}
	if rep.Count(OutcomeBought) != 3 || rep.Count(OutcomeSkipped) != 2 {
		t.Fatalf("unexpected counts: bought=%d skipped=%d", rep.Count(OutcomeBought), rep.Count(OutcomeSkipped))
	}
}

func TestBelowMinimumIsSkipped(t *testing.T) {
	f := newFixture(nil)
	f.venue.Balance["USDT"] = 3
	f.candidates.Symbols = []string{"ETH/USDT"}
	f.venue.AddMarket("ETH/USDT", 0.001)
	f.venue.Markets["ETH/USDT"] = models.Market{Symbol: "ETH/USDT", StepSize: 0.001, MinNotional: 5}
	f.eval.Snapshots["ETH/USDT"] = testutils.Buyable(2000)

	rep := f.cycle(t)

	if o, _ := rep.Outcome("ETH/USDT", PhaseAcquisition); o.Kind != OutcomeSkipped {
		t.Fatalf("expected skipped, got %+v", o)
	}
	if len(f.venue.Orders()) != 0 {
		t.Fatal("no order expected below venue minimum")
	}
}

func TestPhaseLevelFailuresAbortCycle(t *testing.T) {
	boom := errors.New("boom")

	f := newFixture(btcHeld())
	f.venue.BalanceErr = boom
	if _, err := f.runner().RunCycle(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("balance failure must abort the cycle, got %v", err)
	}
	if len(f.venue.TickerCalls()) != 0 {
		t.Fatal("liquidation must not run after an aborted acquisition")
	}

	f = newFixture(nil)
	f.candidates.Err = boom
	if _, err := f.runner().RunCycle(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("candidate failure must abort the cycle, got %v", err)
	}
}

func TestSaveFailureAbortsCycle(t *testing.T) {
	f := newFixture(btcHeld())
	f.venue.Prices["BTC/USDT"] = 200
	f.store.SaveErr = errors.New("disk full")

	_, err := f.runner().RunCycle(context.Background())
	if err == nil {
		t.Fatal("save failure must propagate")
	}
}

func TestTickerFailureIsIsolated(t *testing.T) {
	f := newFixture(models.Positions{
		"AAA/USDT": {BuyPrice: 10, Amount: 1},
		"BBB/USDT": {BuyPrice: 10, Amount: 1},
	})
	f.venue.TickerErr["AAA/USDT"] = errors.New("timeout")
	f.venue.Prices["BBB/USDT"] = 11

	rep := f.cycle(t)

	if o, _ := rep.Outcome("AAA/USDT", PhaseLiquidation); o.Kind != OutcomeFailed {
		t.Fatalf("expected failed, got %+v", o)
	}
	if o, _ := rep.Outcome("BBB/USDT", PhaseLiquidation); o.Kind != OutcomeSold {
		t.Fatalf("expected sold, got %+v", o)
	}
	if got := f.store.Data(); !got.Has("AAA/USDT") || got.Has("BBB/USDT") {
		t.Fatalf("unexpected store %v", got)
	}
}

func TestCorruptStoreIsReported(t *testing.T) {
	f := newFixture(btcHeld())
	f.store.MarkCorrupt()

	rep := f.cycle(t)

	if rep.Store != positions.StatusCorrupt {
		t.Fatalf("expected corrupt status in report, got %s", rep.Store)
	}
	if rep.Open != 0 {
		t.Fatalf("corrupt store yields no positions, got %d", rep.Open)
	}
	if len(f.n.Messages()) == 0 {
		t.Fatal("corrupt store must be alerted")
	}
}

func TestReservationCountsBaseCommission(t *testing.T) {
	f := newFixture(nil)
	f.venue.Balance["USDT"] = 10000
	f.venue.BuyFeeRate = 0.001
	f.candidates.Symbols = []string{"AAA/USDT", "BBB/USDT"}
	for _, s := range f.candidates.Symbols {
		f.venue.Markets[s] = models.Market{Symbol: s, StepSize: 0.001, MinNotional: 5}
		f.venue.Prices[s] = 10
		f.eval.Snapshots[s] = testutils.Buyable(10)
	}

	rep := f.cycle(t)

	orders := f.venue.Orders()
	if len(orders) != 1 {
		t.Fatalf("expected a single buy, got %+v", orders)
	}
	if orders[0].Cost != 10000 {
		t.Fatalf("first buy must spend the whole balance, got %+v", orders[0])
	}
	if o, _ := rep.Outcome("BBB/USDT", PhaseAcquisition); o.Kind != OutcomeSkipped {
		t.Fatalf("nothing left for the second candidate, got %+v", o)
	}
	if o, _ := rep.Outcome("AAA/USDT", PhaseAcquisition); o.Cost != 10000 || o.Amount != 999 {
		t.Fatalf("outcome must carry venue cost and net amount, got %+v", o)
	}
	if pos := f.store.Data()["AAA/USDT"]; pos.Amount != 999 {
		t.Fatalf("stored amount must be net of commission, got %+v", pos)
	}
}

func TestFailedSellKeepsPosition(t *testing.T) {
	held := models.Positions{
		"AAA/USDT": {BuyPrice: 100, Amount: 1},
		"BBB/USDT": {BuyPrice: 100, Amount: 2},
	}
	f := newFixture(held)
	f.venue.Prices["AAA/USDT"] = 105
	f.venue.Prices["BBB/USDT"] = 105
	f.venue.OrderErr["AAA/USDT"] = errors.New("insufficient balance")

	rep := f.cycle(t)

	got := f.store.Data()
	want := models.Positions{"AAA/USDT": {BuyPrice: 100, Amount: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected only AAA to remain, got %v", got)
	}
	a, _ := rep.Outcome("AAA/USDT", PhaseLiquidation)
	if a.Kind != OutcomeFailed || a.Err == nil {
		t.Fatalf("expected failed sell for AAA, got %+v", a)
	}
	if b, _ := rep.Outcome("BBB/USDT", PhaseLiquidation); b.Kind != OutcomeSold {
		t.Fatalf("expected BBB sold, got %+v", b)
	}
	if rep.Err() == nil {
		t.Fatal("report must carry the failed sell")
	}
}
