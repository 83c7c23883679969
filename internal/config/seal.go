package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tcfw/dagledger/pkg/cryptography"
	"github.com/tcfw/dagledger/pkg/seal"
)

const (
	SealDeclared  = "declared"
	SealWork      = "work"
	SealAuthority = "authority"
)

type Authority struct {
	Key    string `mapstructure:"key"`
	Weight uint64 `mapstructure:"weight"`
}

type Seal struct {
	Engine      string
	Authorities []Authority
}

const (
	Cfg_seal_engine      = "seal.engine"
	Cfg_seal_authorities = "seal.authorities"
)

var (
	sealDefaults = map[string]interface{}{
		Cfg_seal_engine: SealDeclared,
	}
)

func init() {
	for k, v := range sealDefaults {
		viper.SetDefault(k, v)
	}
}

func buildSealConfig() (*Seal, error) {
	c := &Seal{}

	c.Engine = viper.GetString(Cfg_seal_engine)
	if err := viper.UnmarshalKey(Cfg_seal_authorities, &c.Authorities); err != nil {
		return nil, errors.Wrap(err, "reading seal authorities")
	}

	if _, err := c.Verifier(); err != nil {
		return nil, err
	}

	return c, nil
}

// Verifier builds the configured seal verifier
func (c *Seal) Verifier() (seal.Verifier, error) {
	switch c.Engine {
	case SealDeclared, "":
		return seal.Declared{}, nil
	case SealWork:
		return seal.Work{}, nil
	case SealAuthority:
		a := seal.NewAuthority()
		for i, ac := range c.Authorities {
			raw, err := cryptography.DecodeMultibase(ac.Key)
			if err != nil {
				return nil, errors.Wrapf(err, "authority %d", i)
			}

			pk, err := cryptography.NewBls12381PublicKey(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "authority %d", i)
			}

			if err := a.Add(pk, ac.Weight); err != nil {
				return nil, errors.Wrapf(err, "authority %d", i)
			}
		}
		if a.Len() == 0 {
			return nil, errors.New("authority seal engine without authorities")
		}
		return a, nil
	default:
		return nil, errors.Errorf("unknown seal engine %q", c.Engine)
	}
}
