package cli

import (
	"github.com/cockroachdb/errors"
)

// DiscoverCmd prints the OpenID configuration of the tenant
type DiscoverCmd struct{}

// Run the command
func (a *DiscoverCmd) Run(ctx *Cli) error {
	cfg, err := ctx.Config()
	if err != nil {
		return err
	}
	dc, err := cfg.NewDiscoveryClient(ctx.HTTPClient())
	if err != nil {
		return err
	}
	md, err := dc.Discover(ctx.Context())
	if err != nil {
		return errors.WithMessage(err, "unable to discover")
	}
	ctx.WriteJSON(md)
	return nil
}
