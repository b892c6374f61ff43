package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	dm "AdaptiveEnsemble/internal/domain/models"
	drepo "AdaptiveEnsemble/internal/domain/repository"
	"AdaptiveEnsemble/internal/handler/api"
	internalrepo "AdaptiveEnsemble/internal/repository"
	"AdaptiveEnsemble/internal/usecase"
	applogger "AdaptiveEnsemble/pkg/logger"
	"AdaptiveEnsemble/pkg/util"
)

var flags struct {
	config  string
	symbol  string
	from    string
	to      string
	tf      string
	n       int
	csv     string
	horizon int
	save    bool
	refresh int
	trainW  int
	testW   int
	bundle  string
	capital float64
}

var (
	rootCmd = &cobra.Command{
		Use:           "aelc",
		Short:         "Adaptive ensemble learning core for short-horizon price prediction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}

	trainCmd = &cobra.Command{
		Use:   "train",
		Short: "Train a bundle on a frame and print its summary",
		RunE:  runTrain,
	}
	backtestCmd = &cobra.Command{
		Use:   "backtest",
		Short: "Replay a frame through the model policy once",
		RunE:  runBacktest,
	}
	walkForwardCmd = &cobra.Command{
		Use:   "walkforward",
		Short: "Run a walk-forward backtest of the model policy",
		RunE:  runWalkForward,
	}
	regimeCmd = &cobra.Command{
		Use:   "regime",
		Short: "Classify the market regime of a frame",
		RunE:  runRegime,
	}
	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Predict the latest bar with a stored bundle, or the fallback signal",
		RunE:  runPredict,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and consume closed-trade outcomes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.Core().LoadBundle(cmd.Context(), flags.bundle); err != nil {
				app.Logger().Warn("no bundle loaded at startup", applogger.Error(err))
			}
			return app.Run(cmd.Context())
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.config, "config", "", "config file path (defaults plus environment when empty)")
	pf.StringVar(&flags.symbol, "symbol", "", "instrument symbol")
	pf.StringVar(&flags.from, "from", "", "range start (RFC3339, date or unix time)")
	pf.StringVar(&flags.to, "to", "", "range end (RFC3339, date or unix time)")
	pf.StringVar(&flags.tf, "tf", "5m", "candle timeframe: 1m, 5m, 15m or 1h")
	pf.IntVar(&flags.n, "n", 0, "maximum number of bars (0 = default)")
	pf.StringVar(&flags.csv, "csv", "", "read the frame from a CSV file instead of ClickHouse")
	pf.IntVar(&flags.horizon, "horizon", 0, "prediction horizon in minutes (0 = configured)")
	pf.StringVar(&flags.bundle, "bundle", "", "bundle id to load (empty = latest)")

	trainCmd.Flags().BoolVar(&flags.save, "save", false, "persist the trained bundle")
	predictCmd.Flags().Float64Var(&flags.capital, "capital", 0, "publish a trade intent sized against this capital when the prediction clears the confidence gate (0 = none)")
	backtestCmd.Flags().IntVar(&flags.refresh, "refresh", 20, "bars between policy retrains")
	walkForwardCmd.Flags().IntVar(&flags.refresh, "refresh", 20, "bars between policy retrains")
	walkForwardCmd.Flags().IntVar(&flags.trainW, "train-window", 0, "training window in bars (0 = configured)")
	walkForwardCmd.Flags().IntVar(&flags.testW, "test-window", 0, "test window in bars (0 = configured)")

	rootCmd.AddCommand(trainCmd, backtestCmd, walkForwardCmd, regimeCmd, predictCmd, serveCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	frame, err := loadFrame(ctx)
	if err != nil {
		return err
	}
	b, err := app.Core().Train(ctx, frame, flags.horizon)
	if err != nil {
		return err
	}
	if flags.save {
		if _, err := app.Core().SaveBundle(ctx); err != nil {
			return err
		}
	}
	return printJSON(api.Summarize(b))
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	frame, err := loadFrame(ctx)
	if err != nil {
		return err
	}
	core := app.Core()
	report, err := core.Backtest(ctx, frame, core.NewModelPolicy(flags.horizon, flags.refresh), core.Config().Backtest)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runWalkForward(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	frame, err := loadFrame(ctx)
	if err != nil {
		return err
	}
	core := app.Core()
	cfg := core.Config().Backtest
	trainW, testW := flags.trainW, flags.testW
	if trainW <= 0 {
		trainW = cfg.TrainWindow
	}
	if testW <= 0 {
		testW = cfg.TestWindow
	}
	report, err := core.WalkForward(ctx, frame, core.NewModelPolicy(flags.horizon, flags.refresh), trainW, testW, cfg)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runRegime(cmd *cobra.Command, args []string) error {
	frame, err := loadFrame(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"symbol": frame.Symbol,
		"bars":   frame.Len(),
		"regime": app.Core().RegimeOf(frame),
	})
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	frame, err := loadFrame(ctx)
	if err != nil {
		return err
	}
	if _, err := app.Core().LoadBundle(ctx, flags.bundle); err != nil {
		app.Logger().Warn("no bundle loaded, using fallback", applogger.Error(err))
	}
	pred, err := app.Core().PredictActive(frame)
	if err != nil {
		return err
	}
	res := api.PredictResponse{Prediction: pred}
	if flags.capital > 0 {
		if res.IntentPublished, err = app.Core().Emit(ctx, pred, flags.capital); err != nil {
			return err
		}
	}
	return printJSON(res)
}

func loadFrame(ctx context.Context) (dm.Frame, error) {
	if flags.csv != "" {
		frame, err := internalrepo.LoadFrameCSV(flags.csv, flags.symbol)
		if err != nil {
			return dm.Frame{}, err
		}
		if flags.n > 0 {
			frame = frame.Tail(flags.n)
		}
		return frame, nil
	}
	p := usecase.LoadFrameParams{
		Symbol:    flags.symbol,
		Timeframe: drepo.NormalizeTimeframe(flags.tf),
		Limit:     flags.n,
	}
	var ok bool
	if flags.from != "" {
		if p.From, ok = util.ParseTime(flags.from); !ok {
			return dm.Frame{}, fmt.Errorf("invalid --from %q", flags.from)
		}
		p.To = util.ParseTimeDefault(flags.to, time.Now().UTC())
	}
	return app.Frames().LoadFrame(ctx, p)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
