// Command backtest is the CLI entry point: it loads a run configuration,
// pulls OHLCV history for every required timeframe from Postgres, aligns
// them, runs the registered strategies through the engine, and prints
// the resulting performance summary.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/barforge/backtest/internal/data"
	"github.com/barforge/backtest/internal/runconfig"
	"github.com/barforge/backtest/internal/symbols"
	"github.com/barforge/backtest/pkg/align"
	"github.com/barforge/backtest/pkg/backtester"
	"github.com/barforge/backtest/pkg/logging"
	"github.com/barforge/backtest/pkg/market"
	"github.com/barforge/backtest/pkg/strategy"
	"github.com/barforge/backtest/pkg/strategy/examples"
	"github.com/barforge/backtest/pkg/timeframe"
)

// strategyFactory builds a strategy.Strategy from its YAML parameters.
type strategyFactory func(params map[string]interface{}) (strategy.Strategy, error)

var registry = map[string]strategyFactory{
	"ma_crossover": func(p map[string]interface{}) (strategy.Strategy, error) {
		return examples.NewMACrossover(
			stringParam(p, "short_column", "short_sma"),
			stringParam(p, "long_column", "long_sma"),
			floatParam(p, "sl_percent", 0.02),
			floatParam(p, "tp_rmultiple", 2.0),
		), nil
	},
	"rsi_reversion": func(p map[string]interface{}) (strategy.Strategy, error) {
		return examples.NewRSIReversion(
			stringParam(p, "rsi_column", "rsi"),
			floatParam(p, "oversold", 30),
			floatParam(p, "overbought", 70),
			floatParam(p, "sl_percent", 0.01),
		), nil
	},
	"trend_filtered_breakout": func(p map[string]interface{}) (strategy.Strategy, error) {
		return examples.NewTrendFilteredBreakout(
			stringParam(p, "higher_timeframe", "h1"),
			floatParam(p, "sl_percent", 0.01),
			int(floatParam(p, "time_exit_bars", 0)),
		), nil
	},
}

func floatParam(p map[string]interface{}, key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return def
	}
}

func stringParam(p map[string]interface{}, key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func main() {
	var (
		configPath = flag.String("config", "run.yaml", "path to the run configuration YAML file")
		envPath    = flag.String("env", ".env", "path to an optional .env file for DATABASE_URL")
		tradesOut  = flag.String("trades-out", "", "optional path to write the closed-trade CSV log")
	)
	flag.Parse()

	logging.Initialize(logging.DefaultConfig())
	logger := logging.GetLogger("backtest")

	cfg, err := runconfig.Load(*configPath, *envPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load run configuration")
	}

	loader, err := data.NewPostgresMarketFrameLoader(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to market data database")
	}
	defer loader.Close()

	symbolRepo := symbols.NewRepository()
	symbolRepo.Register(symbols.Metadata{Symbol: cfg.Symbol, PointValue: 1.0})
	if !symbolRepo.IsTradable(cfg.Symbol) {
		logger.Fatal().Str("symbol", cfg.Symbol).Msg("symbol is not tradable")
	}

	start, end := runWindow(cfg)

	requiredTFs := map[string]bool{cfg.BaseTimeframe: true}
	builtStrategies := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		factory, ok := registry[sc.Name]
		if !ok {
			logger.Fatal().Str("strategy", sc.Name).Msg("unknown strategy")
		}
		s, err := factory(sc.Parameters)
		if err != nil {
			logger.Fatal().Err(err).Str("strategy", sc.Name).Msg("failed to construct strategy")
		}
		for _, tf := range s.Metadata().RequiredTimeframes {
			requiredTFs[tf] = true
		}
		builtStrategies = append(builtStrategies, s)
	}

	frames := make(map[string]market.Frame, len(requiredTFs))
	for tf := range requiredTFs {
		f, err := loader.Load(cfg.Symbol, tf, start, end)
		if err != nil {
			logger.Fatal().Err(err).Str("timeframe", tf).Msg("failed to load bars")
		}
		if err := f.Validate(); err != nil {
			logger.Fatal().Err(err).Str("timeframe", tf).Msg("loaded frame failed validation")
		}
		frames[tf] = f
	}

	order := orderedTimeframes(cfg.BaseTimeframe, requiredTFs)
	aligned, err := align.Align(frames, order)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to align timeframes")
	}

	engine := backtester.NewEngine(backtester.Config{
		InitialCapital:       cfg.InitialCapital,
		MaxTotalRiskFraction: cfg.MaxTotalRiskFraction,
		PerTradeRiskFraction: cfg.PerTradeRiskFraction,
		UseCompounding:       cfg.UseCompounding,
		BaseTimeframe:        cfg.BaseTimeframe,
		Symbol:               cfg.Symbol,
		PointValue:           symbolRepo.PointValue(cfg.Symbol),
	}, logger)

	for i, s := range builtStrategies {
		if base, ok := s.(interface{ SetAllowedDays([]string) }); ok {
			base.SetAllowedDays(cfg.Strategies[i].AllowedDays)
		}
		engine.Register(s)
	}

	results, err := engine.Run(aligned)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest run failed")
	}

	printSummary(results)

	if *tradesOut != "" {
		f, err := os.Create(*tradesOut)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *tradesOut).Msg("failed to create trades CSV")
		}
		defer f.Close()
		if err := results.WriteTradesCSV(f); err != nil {
			logger.Fatal().Err(err).Msg("failed to write trades CSV")
		}
	}
}

func runWindow(cfg runconfig.RunConfig) (time.Time, time.Time) {
	start := time.Now().AddDate(-1, 0, 0)
	end := time.Now()
	if cfg.StartTime != nil {
		start = *cfg.StartTime
	}
	if cfg.EndTime != nil {
		end = *cfg.EndTime
	}
	return start, end
}

// orderedTimeframes returns the base timeframe followed by every other
// required timeframe sorted by ascending duration, satisfying
// align.Align's ordering requirement (Align itself only validates it).
func orderedTimeframes(base string, required map[string]bool) []string {
	higher := make([]string, 0, len(required))
	for tf := range required {
		if tf != base {
			higher = append(higher, tf)
		}
	}
	sort.Slice(higher, func(i, j int) bool {
		mi, _ := timeframe.ToMinutes(higher[i])
		mj, _ := timeframe.ToMinutes(higher[j])
		return mi < mj
	})
	return append([]string{base}, higher...)
}

func printSummary(r backtester.Results) {
	s := r.Summary
	fmt.Println("Backtest Results")
	fmt.Println("=================")
	fmt.Printf("Trades:           %d\n", s.TradeCount)
	fmt.Printf("Total return:     %.2f%%\n", s.TotalReturnPct*100)
	fmt.Printf("Win rate:         %.2f%%\n", s.WinRate*100)
	fmt.Printf("Profit factor:    %.2f\n", s.ProfitFactor)
	fmt.Printf("Max drawdown:     %.2f%%\n", s.MaxDrawdown*100)
	fmt.Printf("Avg drawdown:     %.2f%%\n", s.AvgDrawdown*100)
	fmt.Printf("Sharpe:           %.2f\n", s.Sharpe)
	fmt.Printf("Sortino:          %.2f\n", s.Sortino)
	fmt.Printf("Calmar:           %.2f\n", s.Calmar)
	fmt.Printf("Avg R-multiple:   %.2f\n", s.AvgRMultiple)
	fmt.Printf("Expectancy:       %.2f\n", s.Expectancy)
	fmt.Printf("Final equity:     %.2f\n", s.FinalEquity)
	fmt.Printf("Risk cap denials: %d\n", r.RiskCapRejections)

	if len(r.PerStrategy) > 1 {
		fmt.Println("\nPer-strategy breakdown")
		for name, sub := range r.PerStrategy {
			fmt.Printf("  %-24s trades=%d return=%.2f%% winrate=%.2f%%\n",
				name, sub.TradeCount, sub.TotalReturnPct*100, sub.WinRate*100)
		}
	}
}
