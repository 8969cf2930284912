package commands

import (
	"fmt"

	"github.com/opencta/quant/internal/broker"
	"github.com/opencta/quant/internal/data"
	"github.com/opencta/quant/internal/forex"
	"github.com/opencta/quant/internal/futures"
	"github.com/opencta/quant/internal/indicators"
	"github.com/opencta/quant/internal/instruments"
	"github.com/opencta/quant/internal/margin"
	"github.com/opencta/quant/internal/marketdata"
	"github.com/opencta/quant/internal/report"
	"github.com/opencta/quant/internal/sizing"
	"github.com/opencta/quant/internal/strategy"
	"github.com/opencta/quant/internal/strategy/buyhold"
	"github.com/opencta/quant/internal/strategy/momentum"
	"github.com/opencta/quant/pkg/config"
	"github.com/opencta/quant/pkg/database"
	"github.com/opencta/quant/pkg/logger"
)

// app bundles the components every command wires the same way: config,
// logging, the bar store and the resolver stack on top of it.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	universe *instruments.Universe
	store    *data.PgStore
	chains   *futures.ChainResolver
	bars     *marketdata.Resolver
	fx       *forex.Converter
	margins  *margin.Engine
}

// newApp connects to the database and builds the resolver stack reading
// from it. Callers must defer a.close().
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	universe, err := instruments.Load(cfg.InstrumentsFile)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	store := data.NewPgStore(db.Pool)
	chains := futures.NewChainResolver(store, universe)
	bars := marketdata.NewResolver(store, chains, universe, log)
	fx := forex.NewConverter(store, log)
	margins := margin.NewEngine(chains, bars, fx, universe, log)

	return &app{
		cfg:      cfg,
		log:      log,
		db:       db,
		universe: universe,
		store:    store,
		chains:   chains,
		bars:     bars,
		fx:       fx,
		margins:  margins,
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// newStrategyBase builds the per-run strategy wiring: a fresh ledger, the
// indicator store and the sizer on top of the shared resolvers.
func (a *app) newStrategyBase(stems []string, cash, leverage float64, noMarginCheck bool) strategy.Base {
	ind := indicators.New(a.fx, a.universe)
	sizer := sizing.New(ind, a.bars, a.fx, a.universe)
	ledger := broker.NewSim(cash, noMarginCheck, a.bars, a.fx, a.margins, a.universe, a.log)
	return strategy.Base{
		Ledger:     ledger,
		Bars:       a.bars,
		Chains:     a.chains,
		Indicators: ind,
		Sizer:      sizer,
		Universe:   a.universe,
		Log:        a.log,
		Stems:      stems,
		Leverage:   leverage,
	}
}

// newStrategy resolves a strategy name to its implementation.
func newStrategy(name string, base strategy.Base) (strategy.Strategy, error) {
	switch name {
	case "buyhold":
		return buyhold.New(base), nil
	case "momentum":
		return momentum.New(base), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (want buyhold or momentum)", name)
	}
}

// newNotifier returns the SMS notifier when alerting is configured, a no-op
// otherwise.
func (a *app) newNotifier() report.Notifier {
	if a.cfg.Notify.Enabled {
		return report.NewSMSNotifier(a.cfg.Notify, a.log)
	}
	return report.NopNotifier{}
}

// parseType validates the run's asset class flag.
func parseType(s string) (instruments.Type, error) {
	switch instruments.Type(s) {
	case instruments.TypeFuture, instruments.TypeStock, instruments.TypeCoin:
		return instruments.Type(s), nil
	}
	return "", fmt.Errorf("unknown instrument type %q (want future, stock or coin)", s)
}
