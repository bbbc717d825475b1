package cli

import (
	"github.com/cockroachdb/errors"
)

// KeysCmd prints the published signing keys
type KeysCmd struct {
	Certs *bool `help:"optional, include subjects of the certificate chain"`
}

type keyInfo struct {
	KeyID      string   `json:"kid,omitempty"`
	KeyType    string   `json:"kty"`
	Algorithm  string   `json:"alg,omitempty"`
	Use        string   `json:"use,omitempty"`
	Thumbprint string   `json:"x5t,omitempty"`
	Subjects   []string `json:"subjects,omitempty"`
}

// Run the command
func (a *KeysCmd) Run(ctx *Cli) error {
	cfg, err := ctx.Config()
	if err != nil {
		return err
	}
	dc, err := cfg.NewDiscoveryClient(ctx.HTTPClient())
	if err != nil {
		return err
	}
	ks, err := dc.Fetch(ctx.Context())
	if err != nil {
		return errors.WithMessage(err, "unable to fetch keys")
	}

	withCerts := a.Certs != nil && *a.Certs
	list := make([]keyInfo, 0, ks.Len())
	for _, k := range ks.Keys() {
		ki := keyInfo{
			KeyID:      k.KeyID,
			KeyType:    k.KeyType,
			Algorithm:  k.Algorithm,
			Use:        k.Use,
			Thumbprint: k.Thumbprint,
		}
		if withCerts {
			for _, c := range k.Certificates {
				ki.Subjects = append(ki.Subjects, c.Subject.String())
			}
		}
		list = append(list, ki)
	}
	ctx.WriteJSON(list)
	return nil
}
