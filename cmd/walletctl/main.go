package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"miniapp-wallet-client/internal/apierror"
	"miniapp-wallet-client/internal/config"
	"miniapp-wallet-client/internal/logger"
	"miniapp-wallet-client/internal/models"
	"miniapp-wallet-client/internal/services"
	"miniapp-wallet-client/internal/storage"
	"miniapp-wallet-client/internal/transport"
)

const usage = `usage: walletctl <command> [flags]

commands:
  login         log in with -init-data or -email/-password
  logout        clear the stored session
  whoami        show the current profile
  balance       show the server balance
  deposit       open a deposit order: deposit [-currency C] [-return-url U] AMOUNT
  withdraw      request a payout: withdraw [-currency C] AMOUNT ADDRESS
  transactions  list history: transactions [-page N] [-limit N] [-type T]
  tx            show one transaction: tx ID
  health        check the backend
  watch         stream balance updates until interrupted
  slots         play one local slot spin: slots [-seed S] BET
  roulette      play one local roulette round: roulette red=10 odd=5 ...
`

type app struct {
	cfg      *config.Config
	store    storage.CredentialStore
	registry *prometheus.Registry
	client   *transport.Client
	auth     *services.AuthService
	wallet   *services.WalletService
	session  *services.Session
	cache    *services.BalanceCache
	out      io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// .env is optional for the CLI; environment variables are enough.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(cfg.LogFormat, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize client: %v", err)
	}
	err = a.run(ctx, os.Args[1], os.Args[2:])
	a.close()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err, cfg.APIBaseURL))
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	client, err := transport.NewFromConfig(cfg, store, transport.NewMetrics(registry))
	if err != nil {
		return nil, err
	}

	limits, err := services.LimitsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	cache := services.NewBalanceCache()
	auth := services.NewAuthService(client)
	a := &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		client:   client,
		auth:     auth,
		wallet:   services.NewWalletService(client, cache, limits),
		session:  services.NewSession(auth, client, cache),
		cache:    cache,
		out:      os.Stdout,
	}
	a.session.OnLogout(func(r services.Reason) {
		if r == services.ReasonExpired {
			slog.Warn("session expired, log in again")
		}
	})
	if err := a.session.Restore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if c, ok := a.store.(io.Closer); ok {
		c.Close()
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "balance":
		return a.balance(ctx)
	case "deposit":
		return a.deposit(ctx, args)
	case "withdraw":
		return a.withdraw(ctx, args)
	case "transactions":
		return a.transactions(ctx, args)
	case "tx":
		return a.transaction(ctx, args)
	case "health":
		return a.health(ctx)
	case "watch":
		return a.watch(ctx, args)
	case "slots":
		return a.slots(ctx, args)
	case "roulette":
		return a.roulette(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	initData := fs.String("init-data", a.cfg.TelegramInitData, "Telegram init-data")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("WALLET_PASSWORD"), "account password (or WALLET_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := models.TelegramLogin(*initData)
	if *email != "" {
		req = models.PasswordLogin(*email, *password)
	}

	user, err := a.session.Login(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "logged in as %s (%s) via %s\n", user.Name(), user.ID, req.Method())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	user, err := a.session.CurrentUser(ctx)
	if err != nil {
		return err
	}
	if exp, err := a.auth.TokenExpiry(ctx); err == nil {
		defer fmt.Fprintf(a.out, "token expires %s (in %s)\n", exp.Local().Format(time.RFC3339), time.Until(exp).Round(time.Second))
	}
	return printJSON(a.out, user)
}

func (a *app) balance(ctx context.Context) error {
	balance, err := a.wallet.GetBalance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, models.FormatAmount(balance.Balance, balance.Currency))
	return nil
}

func (a *app) deposit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	currency := fs.String("currency", "", "currency (default "+a.wallet.DefaultCurrency()+")")
	returnURL := fs.String("return-url", "", "redirect after payment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	amount, err := amountArg(fs.Arg(0))
	if err != nil {
		return err
	}

	var opts []services.DepositOption
	if *returnURL != "" {
		opts = append(opts, services.WithReturnURL(*returnURL))
	}
	order, err := a.wallet.CreateDeposit(ctx, amount, *currency, opts...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "transaction\t%s\n", order.TransactionID)
	fmt.Fprintf(w, "amount\t%s\n", models.FormatAmount(order.Amount, order.Currency))
	fmt.Fprintf(w, "pay to\t%s\n", order.PaymentAddress)
	if order.PaymentURL != "" {
		fmt.Fprintf(w, "payment page\t%s\n", order.PaymentURL)
	}
	return w.Flush()
}

func (a *app) withdraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	currency := fs.String("currency", "", "currency (default "+a.wallet.DefaultCurrency()+")")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("withdraw needs AMOUNT and ADDRESS")
	}
	amount, err := amountArg(fs.Arg(0))
	if err != nil {
		return err
	}

	result, err := a.wallet.CreateWithdrawal(ctx, amount, fs.Arg(1), *currency)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "withdrawal %s is %s\n", result.TransactionID, result.Status)
	if result.NewBalance != nil {
		fmt.Fprintf(a.out, "balance now %s\n", result.NewBalance.StringFixed(2))
	}
	return nil
}

func (a *app) transactions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "page size")
	txType := fs.String("type", "", "deposit, withdrawal, bet or win")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := a.wallet.ListTransactions(ctx, models.TransactionQuery{
		Page:  *page,
		Limit: *limit,
		Type:  models.TransactionType(*txType),
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tAMOUNT\tSTATUS\tCREATED")
	for _, tx := range result.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Type, models.FormatAmount(tx.Amount, tx.Currency),
			tx.Status, tx.CreatedAt.Local().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "page %d, %d of %d\n", result.Page, len(result.Transactions), result.Total)
	if result.HasMore() {
		fmt.Fprintf(a.out, "more: walletctl transactions -page %d -limit %d\n", result.Page+1, result.Limit)
	}
	return nil
}

func (a *app) transaction(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("tx needs a transaction ID")
	}
	tx, err := a.wallet.GetTransaction(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(a.out, tx)
}

func (a *app) health(ctx context.Context) error {
	if err := a.auth.Health(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is healthy\n", a.client.BaseURL())
	return nil
}

func (a *app) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	metricsAddr := fs.String("metrics-addr", "", "serve client metrics on this address, e.g. :9102")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	a.cache.OnChange(func(s services.BalanceSnapshot) {
		if s.Valid {
			fmt.Fprintf(a.out, "%s  %s\n", time.Now().Format(time.TimeOnly), models.FormatAmount(s.Balance, s.Currency))
		}
	})
	return services.NewBalanceFeed(a.client, a.cache).Run(ctx)
}

func (a *app) slots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("slots", flag.ContinueOnError)
	seed := fs.String("seed", "", "client seed; with one, the spin can be replayed from the printed server seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	bet, err := amountArg(fs.Arg(0))
	if err != nil {
		return err
	}

	var rng services.RandomSource
	serverSeed := ""
	if *seed != "" {
		serverSeed = services.GenerateServerSeed()
		rng = services.NewSeededSource(serverSeed, *seed, 0)
	}

	games, err := a.games(ctx, rng)
	if err != nil {
		return err
	}
	spin, err := games.PlaySlots(bet)
	if err != nil {
		return err
	}

	glyphs := make([]string, len(spin.Reels))
	for i, s := range spin.Reels {
		glyphs[i] = s.Glyph
	}
	fmt.Fprintf(a.out, "[ %s ]  %s, payout %s\n", strings.Join(glyphs, " | "), spin.Win, spin.Payout.StringFixed(2))
	if serverSeed != "" {
		fmt.Fprintf(a.out, "server seed %s\n", serverSeed)
	}
	a.printLocalBalance()
	return nil
}

func (a *app) roulette(ctx context.Context, args []string) error {
	stakes := make(map[models.RouletteBet]decimal.Decimal, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("bet %q: want NAME=STAKE", arg)
		}
		stake, err := amountArg(value)
		if err != nil {
			return fmt.Errorf("bet %q: %w", arg, err)
		}
		bet := models.RouletteBet(strings.ToLower(name))
		stakes[bet] = stakes[bet].Add(stake)
	}

	games, err := a.games(ctx, nil)
	if err != nil {
		return err
	}
	result, err := games.PlayRoulette(stakes)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d %s\n", result.Pocket.Number, result.Pocket.Color)
	if len(result.WinningBet) == 0 {
		fmt.Fprintf(a.out, "no winning bets, lost %s\n", result.TotalStake.StringFixed(2))
	} else {
		fmt.Fprintf(a.out, "winning bets %v, payout %s\n", result.WinningBet, result.Payout.StringFixed(2))
	}
	a.printLocalBalance()
	return nil
}

// games seeds the cache from the server so stakes are checked against a known balance.
func (a *app) games(ctx context.Context, rng services.RandomSource) (*services.GameEngine, error) {
	if _, err := a.wallet.Balance(ctx); err != nil {
		return nil, err
	}
	return services.NewGameEngine(a.cache, rng), nil
}

func (a *app) printLocalBalance() {
	snap, _ := a.cache.Snapshot()
	fmt.Fprintf(a.out, "local balance %s (unconfirmed)\n", models.FormatAmount(snap.Balance, snap.Currency))
}

func amountArg(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func describe(err error, baseURL string) string {
	switch {
	case apierror.IsAuth(err):
		return err.Error() + " (run walletctl login)"
	case apierror.IsNetwork(err):
		return err.Error() + " (is " + baseURL + " reachable?)"
	}
	return err.Error()
}
