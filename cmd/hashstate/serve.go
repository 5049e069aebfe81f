package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
	"github.com/vango-go/hashstate/pkg/bridge"
	"github.com/vango-go/hashstate/pkg/fragment"
	"github.com/vango-go/hashstate/pkg/hashstate"
	"github.com/vango-go/hashstate/pkg/mirror"
	"github.com/vango-go/hashstate/pkg/oauth"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		port    int
		host    string
		metrics bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		Long: `Run the bridge server.

Browser tabs include <script src="/_hashstate/client.js"></script> and
connect over a websocket. Every key listed under "bindings" in the config
is then kept in step with each tab's URL fragment.

Examples:
  hashstate serve
  hashstate serve --port=9000 --metrics
  hashstate serve -c deploy/hashstate.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if metrics {
				cfg.Server.Metrics = true
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Serve Prometheus metrics at /metrics")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bindingMetrics := hashstate.NewMetrics(reg)

	mirrors, err := newMirrorFactory(cfg.Mirror, logger)
	if err != nil {
		return err
	}
	defer mirrors.Close()

	var provider *oauth.Provider
	if cfg.OAuth.Provider != "" {
		p, ok := oauth.Lookup(cfg.OAuth.Provider)
		if !ok {
			return errors.New("H401")
		}
		provider = &p
	}

	bcfg := bridge.Config{
		Prefix:      cfg.Server.Prefix,
		CheckOrigin: originChecker(cfg.Server.AllowedOrigins),
		Registerer:  reg,
		Logger:      logger,
		OnConnect: func(ctx context.Context, c *bridge.Conn) {
			onConnect(ctx, c, cfg, provider, mirrors, bindingMetrics, logger)
		},
	}
	if cfg.Server.Metrics {
		bcfg.Gatherer = reg
	}
	srv := bridge.New(bcfg)
	srv.Router().Get("/", demoPage(cfg))

	httpSrv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(out)
	success(out, "Listening on http://%s", cfg.Address())
	info(out, "Client script: %s/client.js", cfg.Server.Prefix)
	if cfg.Server.Metrics {
		info(out, "Metrics: http://%s/metrics", cfg.Address())
	}
	if len(cfg.Bindings) == 0 {
		warn(out, "No bindings configured; tabs will connect but nothing is bound")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !stderrors.Is(err, http.ErrServerClosed) {
			return errors.New("H201").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// onConnect binds every configured key for a newly connected tab and tears
// the bindings down when the tab goes away.
func onConnect(ctx context.Context, c *bridge.Conn, cfg *config.Config, provider *oauth.Provider, mirrors *mirrorFactory, metrics *hashstate.Metrics, logger *slog.Logger) {
	logger = logger.With("session", c.ID())
	frag := fragment.New(c)

	if provider != nil {
		flow := oauth.NewFlow(*provider, frag, oauth.Callbacks{
			OnSuccess: func(r oauth.Redirect) {
				logger.Info("login redirect received", "code", r.Code != "", "id_token", r.IDToken != "", "access_token", r.AccessToken != "")
			},
			OnError: func(code string) {
				logger.Warn("login redirect failed", "error", code)
			},
		}, logger)
		flow.Consume()
	}

	bindings, err := bindAll(cfg.Bindings, bindEnv{
		frag:    frag,
		mirror:  mirrors.For(c.ID()),
		metrics: metrics,
		logger:  logger,
	})
	if err != nil {
		logger.Error("bind failed", "error", err)
		c.Close()
		return
	}

	go func() {
		<-ctx.Done()
		for _, b := range bindings {
			b.Close()
		}
		mirrors.Release(c.ID())
	}()
}

// originChecker allows the listed origins. An empty list keeps the
// websocket library's same-origin check; "*" allows any origin.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		return set["*"] || set[r.Header.Get("Origin")]
	}
}

// mirrorFactory hands out a mirror store per tab session.
type mirrorFactory struct {
	sessions *mirror.Sessions
	s3client *s3.Client
	s3cfg    config.S3Config
}

func newMirrorFactory(cfg config.MirrorConfig, logger *slog.Logger) (*mirrorFactory, error) {
	f := &mirrorFactory{s3cfg: cfg.S3}

	switch cfg.Backend {
	case config.BackendMemory, "":
		idle, err := cfg.IdleDuration()
		if err != nil {
			return nil, err
		}
		opts := []mirror.SessionsOption{}
		if idle > 0 {
			opts = append(opts, mirror.WithIdleTimeout(idle))
		}
		f.sessions = mirror.NewSessions(opts...)
	case config.BackendS3:
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
			return nil, errors.New("H202").
				WithDetail("The s3 mirror needs AWS credentials in the environment").
				WithSuggestion("Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or use the memory backend")
		}
		f.s3client = newS3Client(cfg.S3)
		logger.Info("mirroring to s3", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}
	return f, nil
}

// For returns the mirror store for session id, or nil when mirroring is off.
func (f *mirrorFactory) For(id string) hashstate.MirrorStore {
	switch {
	case f.sessions != nil:
		return f.sessions.Scope(id)
	case f.s3client != nil:
		return mirror.NewS3(f.s3client, f.s3cfg.Bucket, f.s3cfg.Prefix, id)
	}
	return nil
}

// Release forgets an in-memory session once its tab has gone. S3 entries
// are kept.
func (f *mirrorFactory) Release(id string) {
	if f.sessions != nil {
		f.sessions.Drop(id)
	}
}

func (f *mirrorFactory) Close() error {
	if f.sessions != nil {
		return f.sessions.Close()
	}
	return nil
}

// newS3Client builds an S3 client from the config and the standard AWS
// environment variables.
func newS3Client(cfg config.S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
			if id == "" || secret == "" {
				return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
			}
			return aws.Credentials{
				AccessKeyID:     id,
				SecretAccessKey: secret,
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "EnvironmentVariables",
			}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// demoPage serves a page that loads the bridge client and shows its
// fragment, handy for trying bindings out.
func demoPage(cfg *config.Config) http.HandlerFunc {
	var keys strings.Builder
	for _, b := range cfg.Bindings {
		fmt.Fprintf(&keys, "<li><code>%s</code></li>", b.Key)
	}
	page := fmt.Sprintf(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>hashstate</title></head>
<body>
<h1>hashstate</h1>
<p>Bound keys:</p>
<ul>%s</ul>
<p>Fragment: <code id="hash"></code></p>
<script>
function show() { document.getElementById("hash").textContent = location.hash; }
window.addEventListener("hashchange", show);
window.addEventListener("popstate", show);
show();
</script>
<script src="%s/client.js" data-prefix="%s"></script>
</body>
</html>
`, keys.String(), cfg.Server.Prefix, cfg.Server.Prefix)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
}
