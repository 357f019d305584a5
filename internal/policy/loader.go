package policy

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// policyFile mirrors the on-disk TOML shape; every field is optional so
// a layer can override only the sections it cares about.
type policyFile struct {
	Promotion struct {
		Default   *promotionFile `toml:"default"`
		Invariant *promotionFile `toml:"invariant"`
		Guard     *promotionFile `toml:"guard"`
	} `toml:"promotion"`

	Deprecation struct {
		Default *deprecationFile `toml:"default"`
		Guard   *deprecationFile `toml:"guard"`
		Note    *deprecationFile `toml:"note"`
	} `toml:"deprecation"`

	Decay struct {
		Guard      *decayFile `toml:"guard"`
		Pattern    *decayFile `toml:"pattern"`
		Note       *decayFile `toml:"note"`
		Preference *decayFile `toml:"preference"`
		Invariant  *decayFile `toml:"invariant"`
	} `toml:"decay"`

	RegretWeights *struct {
		AlphaErrors float64 `toml:"alpha_errors"`
		BetaRetries float64 `toml:"beta_retries"`
	} `toml:"regret_weights"`

	TTL struct {
		Default *struct {
			ShortTermDays int `toml:"short_term_days"`
			EmergencyDays int `toml:"emergency_days"`
		} `toml:"default"`
		OnPromotion *struct {
			ExtendByDays     int  `toml:"extend_by_days"`
			RemoveOnLongTerm bool `toml:"remove_on_long_term"`
		} `toml:"on_promotion"`
	} `toml:"ttl"`
}

type promotionFile struct {
	MinOpportunities int     `toml:"min_opportunities"`
	MinUseRatio      float64 `toml:"min_use_ratio"`
	MinRegretHits    int     `toml:"min_regret_hits"`
}

type deprecationFile struct {
	MinOpportunities int     `toml:"min_opportunities"`
	MaxUseRatio      float64 `toml:"max_use_ratio"`
}

type decayFile struct {
	MaxInactiveDays *int `toml:"max_inactive_days"`
}

// LoadPolicy merges, in order: built-in defaults <- userPath <- projectPath.
// Missing sections fall through to the earlier layer; missing files are
// not an error. Malformed TOML is a fatal configuration error.
func LoadPolicy(userPath, projectPath string) (Policy, error) {
	p := DefaultPolicy()

	for _, path := range []string{userPath, projectPath} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Policy{}, fmt.Errorf("policy: failed to read %s: %w", path, err)
		}

		var pf policyFile
		if err := toml.Unmarshal(data, &pf); err != nil {
			return Policy{}, fmt.Errorf("policy: malformed TOML in %s: %w", path, err)
		}

		applyLayer(&p, &pf)
	}

	return p, nil
}

func applyLayer(p *Policy, pf *policyFile) {
	if pf.Promotion.Default != nil {
		p.PromotionDefault = toPromotion(*pf.Promotion.Default)
	}
	if pf.Promotion.Invariant != nil {
		p.PromotionInvariant = toPromotion(*pf.Promotion.Invariant)
	}
	if pf.Promotion.Guard != nil {
		p.PromotionGuard = toPromotion(*pf.Promotion.Guard)
	}

	if pf.Deprecation.Default != nil {
		p.DeprecationDefault = toDeprecation(*pf.Deprecation.Default)
	}
	if pf.Deprecation.Guard != nil {
		p.DeprecationGuard = toDeprecation(*pf.Deprecation.Guard)
	}
	if pf.Deprecation.Note != nil {
		p.DeprecationNote = toDeprecation(*pf.Deprecation.Note)
	}

	if pf.Decay.Guard != nil {
		p.DecayGuard = DecayRule{MaxInactiveDays: pf.Decay.Guard.MaxInactiveDays}
	}
	if pf.Decay.Pattern != nil {
		p.DecayPattern = DecayRule{MaxInactiveDays: pf.Decay.Pattern.MaxInactiveDays}
	}
	if pf.Decay.Note != nil {
		p.DecayNote = DecayRule{MaxInactiveDays: pf.Decay.Note.MaxInactiveDays}
	}
	if pf.Decay.Preference != nil {
		p.DecayPreference = DecayRule{MaxInactiveDays: pf.Decay.Preference.MaxInactiveDays}
	}
	if pf.Decay.Invariant != nil {
		p.DecayInvariant = DecayRule{MaxInactiveDays: pf.Decay.Invariant.MaxInactiveDays}
	}

	if pf.RegretWeights != nil {
		p.RegretWeights = RegretWeights{
			AlphaErrors: pf.RegretWeights.AlphaErrors,
			BetaRetries: pf.RegretWeights.BetaRetries,
		}
	}

	if pf.TTL.Default != nil {
		p.TTL.ShortTermDays = pf.TTL.Default.ShortTermDays
		p.TTL.EmergencyDays = pf.TTL.Default.EmergencyDays
	}
	if pf.TTL.OnPromotion != nil {
		p.TTL.ExtendOnPromotionDays = pf.TTL.OnPromotion.ExtendByDays
		p.TTL.RemoveOnLongTerm = pf.TTL.OnPromotion.RemoveOnLongTerm
	}
}

func toPromotion(f promotionFile) PromotionRule {
	return PromotionRule{MinOpportunities: f.MinOpportunities, MinUseRatio: f.MinUseRatio, MinRegretHits: f.MinRegretHits}
}

func toDeprecation(f deprecationFile) DeprecationRule {
	return DeprecationRule{MinOpportunities: f.MinOpportunities, MaxUseRatio: f.MaxUseRatio}
}
