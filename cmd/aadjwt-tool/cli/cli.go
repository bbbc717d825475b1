package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/aadauth/config"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/x/print"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/aadauth", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Version  ctl.VersionFlag `name:"version" help:"Print version information and quit" hidden:""`
	Debug    bool            `short:"D" help:"Enable debug mode"`
	LogLevel string          `short:"l" help:"Set the logging level (debug|info|warn|error)" default:"error"`

	Cfg      string        `help:"Location of the configuration file, YAML or JSON" type:"path"`
	Tenant   string        `help:"Azure AD tenant ID or domain name"`
	Audience string        `help:"Expected audience, typically the application ID"`
	JWKSURL  string        `name:"jwks-url" help:"Direct JWKS URL, the discovery document is not used when set"`
	Timeout  time.Duration `help:"HTTP timeout"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx        context.Context
	cfg        *config.Config
	httpClient *http.Client
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// HTTPClient returns the client for requests to the provider,
// nil for the default client
func (c *Cli) HTTPClient() *http.Client {
	return c.httpClient
}

// WithHTTPClient allows to specify a custom HTTP client
func (c *Cli) WithHTTPClient(client *http.Client) *Cli {
	c.httpClient = client
	return c
}

// AfterApply hook sets the log level
func (c *Cli) AfterApply(_ *kong.Kong, _ kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
		return nil
	}
	val := strings.TrimLeft(c.LogLevel, "=")
	l, err := xlog.ParseLevel(strings.ToUpper(val))
	if err != nil {
		return errors.WithStack(err)
	}
	xlog.SetGlobalLogLevel(l)
	return nil
}

// Config loads the configuration from --cfg file and environment,
// overridden by the command line flags
func (c *Cli) Config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}

	cfg, err := config.Load(c.Cfg)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to load configuration")
	}
	err = cfg.Merge(&config.Config{
		TenantID:    c.Tenant,
		Audience:    c.Audience,
		JWKSURL:     c.JWKSURL,
		HTTPTimeout: c.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	logger.KV(xlog.DEBUG, "tenant", cfg.TenantID, "discovery", cfg.DiscoveryEndpoint(), "jwks", cfg.JWKSURL)
	c.cfg = cfg
	return cfg, nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value any) {
	print.JSON(c.Writer(), value)
}

// ReadFile reads from stdin if the file is "-"
func (c *Cli) ReadFile(filename string) ([]byte, error) {
	if filename == "" {
		return nil, errors.New("empty file name")
	}
	if filename == "-" {
		b, err := io.ReadAll(c.Reader())
		return b, errors.WithStack(err)
	}
	b, err := os.ReadFile(filename)
	return b, errors.WithStack(err)
}
