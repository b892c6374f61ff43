package backtest

import (
	"context"

	"github.com/google/uuid"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/performance"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// Config drives policy backtests.
type Config struct {
	InitialCapital   float64
	TradingFee       float64
	Slippage         float64
	MinConfidence    float64
	PositionFraction float64
	TrainWindow      int
	TestWindow       int
	DefaultTPPct     float64
	DefaultSLPct     float64
}

// DefaultConfig returns the stock backtest settings.
func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		TradingFee:       0.001,
		Slippage:         0.0005,
		MinConfidence:    60,
		PositionFraction: 0.10,
		TrainWindow:      100,
		TestWindow:       20,
		DefaultTPPct:     0.02,
		DefaultSLPct:     0.01,
	}
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	switch {
	case c.InitialCapital <= 0:
		return dm.Errorf(dm.KindInvalidConfig, "initial capital must be positive")
	case c.TradingFee < 0 || c.TradingFee >= 1:
		return dm.Errorf(dm.KindInvalidConfig, "trading fee must be in [0, 1)")
	case c.Slippage < 0 || c.Slippage >= 1:
		return dm.Errorf(dm.KindInvalidConfig, "slippage must be in [0, 1)")
	case c.PositionFraction <= 0 || c.PositionFraction > 1:
		return dm.Errorf(dm.KindInvalidConfig, "position fraction must be in (0, 1]")
	case c.TrainWindow < 1 || c.TestWindow < 1:
		return dm.Errorf(dm.KindInvalidConfig, "train and test windows must be positive")
	}
	return nil
}

func (c Config) costs() Costs { return Costs{FeeRate: c.TradingFee, Slippage: c.Slippage} }

// Runner replays frames through a policy.
type Runner struct {
	cfg    Config
	logger *applogger.Logger
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, logger: applogger.NewNop()}
}

// SetLogger sets the logger for the runner and the backtesters it creates.
func (r *Runner) SetLogger(l *applogger.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Config returns the runner settings.
func (r *Runner) Config() Config { return r.cfg }

// stepper ticks one account bar by bar and feeds accepted intents into it.
type stepper struct {
	cfg      Config
	bt       *Backtester
	symbol   string
	intents  int
	accepted int
	logger   *applogger.Logger
}

// step ticks the bar and then offers it to policy. A nil policy only ticks.
func (s *stepper) step(ctx context.Context, policy domsvc.Policy, train dm.Frame, bar dm.Candle) error {
	s.bt.Tick(bar.Timestamp, map[string]float64{s.symbol: bar.Close})
	if policy == nil {
		return nil
	}

	intent, err := policy.Decide(ctx, train, bar)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("policy failed",
			applogger.String("symbol", s.symbol),
			applogger.Error(err),
		)
		return nil
	}
	if intent == nil {
		return nil
	}
	s.intents++
	if intent.Confidence < s.cfg.MinConfidence {
		return nil
	}

	// A size hint may shrink the position but never exceed the configured fraction.
	notional := s.bt.Capital() * s.cfg.PositionFraction
	if intent.SizeHint > 0 && intent.SizeHint < notional {
		notional = intent.SizeHint
	}
	tp, sl := intent.TPPct, intent.SLPct
	if tp <= 0 {
		tp = s.cfg.DefaultTPPct
	}
	if sl <= 0 {
		sl = s.cfg.DefaultSLPct
	}
	symbol := intent.Symbol
	if symbol == "" {
		symbol = s.symbol
	}
	if _, err := s.bt.Open(symbol, intent.Direction, notional, bar.Close, tp, sl, bar.Timestamp); err != nil {
		s.logger.Debug("intent rejected",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil
	}
	s.accepted++
	return nil
}

func (s *stepper) finish(bar dm.Candle) {
	prices := map[string]float64{}
	for _, symbol := range s.bt.OpenSymbols() {
		prices[symbol] = bar.Close
	}
	s.bt.CloseAll(prices, dm.ReasonPeriodEnd, bar.Timestamp)
}

func (r *Runner) newStepper(symbol string) *stepper {
	bt := NewBacktester(r.cfg.InitialCapital, r.cfg.costs())
	bt.SetLogger(r.logger)
	return &stepper{cfg: r.cfg, bt: bt, symbol: symbol, logger: r.logger}
}

// Run walks the frame once. From bar TrainWindow on, each bar ticks the open
// positions and is then offered to the policy with the trailing TrainWindow
// slice. Positions still open at the last bar close with PERIOD_END.
func (r *Runner) Run(ctx context.Context, frame dm.Frame, policy domsvc.Policy) (dm.BacktestReport, error) {
	if err := r.cfg.Validate(); err != nil {
		return dm.BacktestReport{}, err
	}
	n := frame.Len()
	if n <= r.cfg.TrainWindow {
		return dm.BacktestReport{}, dm.Errorf(dm.KindInsufficientHistory, "need more than %d bars, got %d", r.cfg.TrainWindow, n)
	}

	s := r.newStepper(frame.Symbol)
	for i := r.cfg.TrainWindow; i < n; i++ {
		if err := s.step(ctx, policy, frame.Slice(i-r.cfg.TrainWindow, i), frame.Bars[i]); err != nil {
			return dm.BacktestReport{}, err
		}
	}
	s.finish(frame.Bars[n-1])

	report := s.bt.Report(uuid.NewString(), frame.Symbol)
	r.logger.Info("backtest finished",
		applogger.String("run_id", report.RunID),
		applogger.String("symbol", frame.Symbol),
		applogger.Int("trades", report.Metrics.TotalTrades),
		applogger.Float64("final_capital", report.Metrics.FinalCapital),
	)
	return report, nil
}

// WalkForward slides a TrainWindow/TestWindow split through the frame, giving
// (len - TrainWindow) / TestWindow folds. Every fold runs on a fresh account and
// closes what is left open at its last test bar with PERIOD_END.
func (r *Runner) WalkForward(ctx context.Context, frame dm.Frame, policy domsvc.Policy) (dm.BacktestReport, error) {
	if err := r.cfg.Validate(); err != nil {
		return dm.BacktestReport{}, err
	}
	n := frame.Len()
	tw, sw := r.cfg.TrainWindow, r.cfg.TestWindow
	if n < tw+sw {
		return dm.BacktestReport{}, dm.Errorf(dm.KindInsufficientHistory, "need %d bars for one fold, got %d", tw+sw, n)
	}

	report := dm.BacktestReport{RunID: uuid.NewString(), Symbol: frame.Symbol}
	equity := r.cfg.InitialCapital
	for i := tw; i+sw <= n; i += sw {
		train := frame.Slice(i-tw, i)
		s := r.newStepper(frame.Symbol)
		active, err := r.beginFold(ctx, policy, train)
		if err != nil {
			return dm.BacktestReport{}, err
		}
		for j := i; j < i+sw; j++ {
			if err := s.step(ctx, active, train, frame.Bars[j]); err != nil {
				return dm.BacktestReport{}, err
			}
		}
		s.finish(frame.Bars[i+sw-1])

		fold := s.bt.Report(report.RunID, frame.Symbol)
		fm := dm.FoldMetrics{
			Fold:       len(report.Folds) + 1,
			TrainStart: frame.Bars[i-tw].Timestamp,
			TrainEnd:   frame.Bars[i-1].Timestamp,
			TestStart:  frame.Bars[i].Timestamp,
			TestEnd:    frame.Bars[i+sw-1].Timestamp,
			Intents:    s.intents,
			Accepted:   s.accepted,
			Metrics:    fold.Metrics,
		}
		report.Folds = append(report.Folds, fm)
		report.Trades = append(report.Trades, fold.Trades...)
		for _, t := range fold.Trades {
			equity += t.NetPnL - t.EntryFee
			report.Equity = append(report.Equity, dm.EquityPoint{Timestamp: t.ClosedAt, Equity: equity})
		}

		r.logger.Info("walk-forward fold",
			applogger.Int("fold", fm.Fold),
			applogger.Int("intents", fm.Intents),
			applogger.Int("accepted", fm.Accepted),
			applogger.Int("trades", fm.Metrics.TotalTrades),
			applogger.Float64("return_pct", fm.Metrics.TotalReturnPct),
		)
	}

	report.Drawdown = drawdownOf(r.cfg.InitialCapital, report.Equity)
	report.Metrics = performance.Calculate(r.cfg.InitialCapital, equity, report.Trades, report.Drawdown)
	return report, nil
}

// beginFold hands the fold's training window to a FoldPolicy. A policy that
// cannot refit sits the fold out; only cancellation aborts the run.
func (r *Runner) beginFold(ctx context.Context, policy domsvc.Policy, train dm.Frame) (domsvc.Policy, error) {
	fp, ok := policy.(domsvc.FoldPolicy)
	if !ok {
		return policy, nil
	}
	if err := fp.BeginFold(ctx, train); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("policy refit failed, fold skipped",
			applogger.String("symbol", train.Symbol),
			applogger.Error(err),
		)
		return nil, nil
	}
	return policy, nil
}

// drawdownOf rebuilds the drawdown series of a chained equity curve.
func drawdownOf(initial float64, equity []dm.EquityPoint) []dm.DrawdownPoint {
	out := make([]dm.DrawdownPoint, len(equity))
	peak := initial
	for i, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		out[i] = dm.DrawdownPoint{Timestamp: p.Timestamp, DrawdownPct: (peak - p.Equity) / peak * 100}
	}
	return out
}
