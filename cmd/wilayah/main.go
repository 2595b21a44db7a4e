package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wilayah/internal/bps"
	"wilayah/internal/config"
	"wilayah/internal/crawl"
	"wilayah/internal/db"
	"wilayah/internal/domain"
	"wilayah/internal/emit"
	"wilayah/internal/migrate"
	"wilayah/internal/rawstore"
	"wilayah/internal/repo"
	"wilayah/internal/runlog"
	"wilayah/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "wilayah",
	Short: "Wilayah CLI",
	Long: `Wilayah fetches Indonesian administrative-division reference data
(provinsi, kabupaten, kecamatan, desa) from the BPS bridging API and turns it
into a reproducible dataset: raw JSON payloads, normalized CSV files, a
manifest, and a SQL dump. A local SQLite workspace lets you query and serve
fetched datasets offline.

The upstream API needs a browser-session cookie; pass it with --cookie, the
WILAYAH_COOKIE env var, or a .env file in the working directory.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	// .env keeps the session cookie off the command line and out of shell
	// history.
	_ = godotenv.Load()
	viper.SetEnvPrefix("WILAYAH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory (holds wilayah.yml and .wilayah/)")
	rootCmd.PersistentFlags().String("cookie", "", "session cookie header for the BPS API")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "emit progress logs to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("cookie", rootCmd.PersistentFlags().Lookup("cookie"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(periodsCmd())
	rootCmd.AddCommand(emitCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadSettings reads wilayah.yml (if present) and applies flag overrides.
func loadSettings(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("levels") {
		cfg.Levels, _ = flags.GetString("levels")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("on-error") {
		cfg.OnError, _ = flags.GetString("on-error")
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSec, _ = flags.GetInt("timeout")
	}
	if flags.Changed("delay-ms") {
		cfg.DelayMS, _ = flags.GetInt("delay-ms")
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries, _ = flags.GetInt("max-retries")
	}
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("periode-url") {
		cfg.PeriodeURL, _ = flags.GetString("periode-url")
	}
	if flags.Changed("raw-dir") {
		cfg.RawDir, _ = flags.GetString("raw-dir")
	}
	if flags.Changed("processed-dir") {
		cfg.ProcessedDir, _ = flags.GetString("processed-dir")
	}
	if flags.Changed("sql-dir") {
		cfg.SQLDir, _ = flags.GetString("sql-dir")
	}
	if flags.Changed("sql-filename") {
		cfg.SQLFilename, _ = flags.GetString("sql-filename")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().String("levels", "", "comma-separated levels to traverse (default from config)")
	cmd.Flags().Int("workers", 0, "maximum concurrent requests per level")
	cmd.Flags().String("on-error", "", "per-task failure policy: continue or abort")
	cmd.Flags().Int("timeout", 0, "request timeout in seconds")
	cmd.Flags().Int("delay-ms", 0, "retry backoff base in milliseconds")
	cmd.Flags().Int("max-retries", 0, "maximum attempts per request")
	cmd.Flags().String("base-url", "", "override the getwilayah endpoint")
	cmd.Flags().String("periode-url", "", "override the getperiode endpoint")
	cmd.Flags().String("raw-dir", "", "root directory for raw JSON payloads")
	cmd.Flags().String("processed-dir", "", "root directory for normalized CSV outputs")
	cmd.Flags().String("sql-dir", "", "directory for generated SQL dumps")
	cmd.Flags().String("sql-filename", "", "override the SQL dump filename")
}

func newClient(cfg *config.Config) (*bps.Client, error) {
	cookie := viper.GetString("cookie")
	if strings.TrimSpace(cookie) == "" {
		return nil, fmt.Errorf("a session cookie is required; pass --cookie or set WILAYAH_COOKIE")
	}
	client := bps.New(cookie)
	client.BaseURL = cfg.BaseURL
	client.PeriodeURL = cfg.PeriodeURL
	client.MaxRetries = cfg.MaxRetries
	client.Delay = cfg.Delay()
	client.HTTPClient.Timeout = cfg.Timeout()
	client.Logf = logf
	return client, nil
}

// resolvePeriode turns "latest" (or empty) into the newest catalogue entry.
func resolvePeriode(ctx context.Context, client *bps.Client, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value != "" && !strings.EqualFold(value, "latest") {
		return value, nil
	}
	periode, err := client.LatestPeriode(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve latest periode: %w", err)
	}
	logf("auto-selected latest periode: %s", periode)
	return periode, nil
}

func fetchCmd() *cobra.Command {
	var periode string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the hierarchy and emit CSV, manifest, and SQL outputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			resolved, err := resolvePeriode(ctx, client, periode)
			if err != nil {
				return err
			}

			store := rawstore.New(cfg.RawDir)
			log, err := runlog.New(filepath.Join(store.PeriodeDir(resolved), "crawl.log"))
			if err != nil {
				return err
			}
			defer log.Close()

			crawler := &crawl.Crawler{
				Fetcher: client,
				Store:   store,
				Log:     log,
				Workers: cfg.Workers,
				OnError: crawl.ErrorPolicy(cfg.OnError),
				Logf:    logf,
			}
			result, err := crawler.Run(ctx, resolved, cfg.ParsedLevels())
			if err != nil {
				return err
			}
			for _, f := range result.Failures {
				fmt.Fprintf(os.Stderr, "warning: %v\n", f)
			}

			emitter := emit.Emitter{
				Raw:          store,
				ProcessedDir: cfg.ProcessedDir,
				SQLDir:       cfg.SQLDir,
				SQLFilename:  cfg.SQLFilename,
				BaseURL:      cfg.BaseURL,
			}
			summary, err := emitter.Emit(resolved)
			if err != nil {
				return err
			}
			return printFetchSummary(cfg, result, summary)
		},
	}
	cmd.Flags().StringVar(&periode, "periode", "latest", "periode_merge value; 'latest' auto-discovers")
	addFetchFlags(cmd)
	return cmd
}

func printFetchSummary(cfg *config.Config, result *crawl.Result, summary *emit.Summary) error {
	if viper.GetBool("json") {
		return printJSON(map[string]any{
			"manifest":      summary.Manifest,
			"failures":      len(result.Failures),
			"processed_dir": summary.ProcessedDir,
			"sql_path":      summary.SQLPath,
		})
	}
	fmt.Printf("BPS wilayah extraction completed.\n")
	fmt.Printf("Periode       : %s\n", summary.Manifest.Periode)
	fmt.Printf("Fetched at    : %s\n", summary.Manifest.FetchedAt)
	fmt.Printf("Raw payloads  : %s\n", rawstore.New(cfg.RawDir).PeriodeDir(result.Periode))
	fmt.Printf("Processed CSV : %s\n", summary.ProcessedDir)
	fmt.Printf("SQL output    : %s\n", summary.SQLPath)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Level", "Units", "Failures"})
	for _, level := range bps.LevelOrder {
		if _, ok := result.Units[level]; !ok && result.FailureCount(level) == 0 {
			continue
		}
		tw.AppendRow(table.Row{level.String(), result.Count(level), result.FailureCount(level)})
	}
	tw.Render()
	return nil
}

func periodsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periods",
		Short: "List the available periode_merge snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			periodes, err := client.ListPeriodes(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(periodes)
			}
			if len(periodes) == 0 {
				fmt.Println("No periode values found.")
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Periode"})
			for i, p := range periodes {
				tw.AppendRow(table.Row{i + 1, p})
			}
			tw.Render()
			return nil
		},
	}
	addFetchFlags(cmd)
	return cmd
}

func emitCmd() *cobra.Command {
	var periode string
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Re-emit CSV, manifest, and SQL outputs from stored raw payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if periode == "" {
				return fmt.Errorf("--periode is required")
			}
			emitter := emit.Emitter{
				Raw:          rawstore.New(cfg.RawDir),
				ProcessedDir: cfg.ProcessedDir,
				SQLDir:       cfg.SQLDir,
				SQLFilename:  cfg.SQLFilename,
				BaseURL:      cfg.BaseURL,
			}
			summary, err := emitter.Emit(periode)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(summary.Manifest)
			}
			fmt.Printf("Processed CSV : %s\n", summary.ProcessedDir)
			fmt.Printf("SQL output    : %s\n", summary.SQLPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&periode, "periode", "", "periode to emit (must already be fetched)")
	_ = cmd.MarkFlagRequired("periode")
	addFetchFlags(cmd)
	return cmd
}

func loadCmd() *cobra.Command {
	var periode string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a fetched periode into the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if periode == "" {
				return fmt.Errorf("--periode is required")
			}
			dataset, err := emit.Collect(rawstore.New(cfg.RawDir), periode)
			if err != nil {
				return err
			}
			fetchedAt := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
			units := make([]domain.Unit, 0, len(dataset.All()))
			for _, u := range dataset.All() {
				units = append(units, domain.Unit{
					Periode:      periode,
					Level:        u.Level.String(),
					KodeBPS:      u.KodeBPS,
					NamaBPS:      u.NamaBPS,
					KodeDagri:    u.KodeDagri,
					NamaDagri:    u.NamaDagri,
					ParentKode:   u.ParentKode,
					ProvinceKode: dataset.ProvinceOf[u.KodeBPS],
					FetchedAt:    fetchedAt,
				})
			}
			imp := domain.Import{
				RunID:      uuid.NewString(),
				Periode:    periode,
				ImportedAt: fetchedAt,
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.ImportUnits(ctx, imp, units); err != nil {
					return err
				}
				fmt.Printf("Loaded %d unit(s) for periode %s into %s\n",
					len(units), periode, db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&periode, "periode", "", "periode to load (must already be fetched)")
	_ = cmd.MarkFlagRequired("periode")
	addFetchFlags(cmd)
	return cmd
}

func showCmd() *cobra.Command {
	var periode string
	var children bool
	cmd := &cobra.Command{
		Use:   "show <kode_bps>",
		Short: "Show a loaded unit, or its children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kode := strings.TrimSpace(args[0])
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				target := periode
				if target == "" {
					imports, err := r.ListImports(ctx)
					if err != nil {
						return err
					}
					if len(imports) == 0 {
						return fmt.Errorf("no periode loaded; run 'wilayah load' first")
					}
					target = imports[0].Periode
				}
				if children {
					units, err := r.Children(ctx, target, kode)
					if err != nil {
						return err
					}
					return printUnits(units)
				}
				u, err := r.GetUnit(ctx, target, kode)
				if errors.Is(err, repo.ErrNotFound) {
					return fmt.Errorf("no unit %s in periode %s", kode, target)
				}
				if err != nil {
					return err
				}
				return printUnits([]domain.Unit{u})
			})
		},
	}
	cmd.Flags().StringVar(&periode, "periode", "", "periode to query (default: most recently loaded)")
	cmd.Flags().BoolVar(&children, "children", false, "list the units directly under the code")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workspace database as a read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				handler, err := server.New(server.Config{Repo: r, BasePath: basePath})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving wilayah API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printUnits(units []domain.Unit) error {
	if viper.GetBool("json") {
		return printJSON(units)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Kode BPS", "Nama BPS", "Level", "Parent", "Kode Dagri"})
	for _, u := range units {
		tw.AppendRow(table.Row{u.KodeBPS, u.NamaBPS, u.Level, u.ParentKode, u.KodeDagri})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func logf(format string, args ...any) {
	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
