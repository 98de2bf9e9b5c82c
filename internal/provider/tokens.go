package provider

import (
	"fmt"
	"log/slog"

	"market-data/internal/model"
)

// TokenTable maps canonical resolutions to a vendor's interval token.
type TokenTable struct {
	provider string
	tokens   map[model.Resolution]string
	logger   *slog.Logger
}

// NewTokenTable starts from defaults and applies overrides keyed by
// resolution name. Unknown override keys are rejected.
func NewTokenTable(provider string, defaults map[model.Resolution]string, overrides map[string]string, logger *slog.Logger) (*TokenTable, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tokens := make(map[model.Resolution]string, len(defaults))
	for res, tok := range defaults {
		tokens[res] = tok
	}
	for key, tok := range overrides {
		res, err := model.ParseResolution(key)
		if err != nil {
			return nil, fmt.Errorf("%s resolution token: %w", provider, err)
		}
		if tok == "" {
			return nil, fmt.Errorf("%s resolution token for %s is empty", provider, res)
		}
		tokens[res] = tok
	}
	if _, ok := tokens[model.Minute]; !ok {
		return nil, fmt.Errorf("%s resolution tokens must include minute", provider)
	}
	return &TokenTable{provider: provider, tokens: tokens, logger: logger}, nil
}

// Token returns the vendor token for res. A resolution missing from the table
// falls back to the minute token with a warning.
func (t *TokenTable) Token(res model.Resolution) string {
	if tok, ok := t.tokens[res]; ok {
		return tok
	}
	t.logger.Warn("unmapped resolution, falling back to minute", "provider", t.provider, "resolution", res)
	return t.tokens[model.Minute]
}
