package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/auditor"
	"github.com/StepaOpa/SQLinter/internal/cache"
	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/parser"
	"github.com/StepaOpa/SQLinter/internal/verdict"
)

// NewSource builds the configured verdict source. Remote sources are wrapped
// with the verdict cache when one is configured; the returned func releases it.
func (c Config) NewSource(log *zap.Logger) (model.VerdictSource, func() error, error) {
	if log == nil {
		log = zap.NewNop()
	}
	noop := func() error { return nil }
	var src model.VerdictSource
	credential, _ := c.Credential()

	switch c.Source {
	case SourceRules:
		a, err := c.NewAuditor(log)
		if err != nil {
			return nil, noop, err
		}
		return verdict.NewRules(a), noop, nil
	case SourceCommand:
		cmd, err := verdict.NewCommand(c.Command.Argv, credential, log.Named("command"))
		if err != nil {
			return nil, noop, err
		}
		src = cmd
	case SourceOpenAI:
		src = verdict.NewOpenAI(verdict.OpenAIOptions{
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			Temperature: c.OpenAI.Temperature,
			Timeout:     c.Timeout.Duration,
		}, credential, log.Named("openai"))
	default:
		return nil, noop, &model.ConfigurationError{Setting: "source", Err: fmt.Errorf("unknown source %q", c.Source)}
	}

	if c.Cache.Path == "" {
		return src, noop, nil
	}
	store, err := cache.Open(c.Cache.Path)
	if err != nil {
		// analysis still works without the cache
		log.Warn("verdict cache disabled", zap.String("path", c.Cache.Path), zap.Error(err))
		return src, noop, nil
	}
	return cache.Wrap(src, store, log.Named("cache")), store.Close, nil
}

// NewAuditor builds the rule auditor, loading the schema when one is configured.
func (c Config) NewAuditor(log *zap.Logger) (*auditor.Auditor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p := parser.NewSQLParser()
	schema := &model.SchemaCtx{Tables: map[string]*model.Table{}}
	if c.Rules.Schema != "" {
		s, err := p.LoadSchema(c.Rules.Schema)
		if err != nil {
			return nil, &model.ConfigurationError{Setting: "rules.schema", Err: err}
		}
		schema = s
	}
	a := auditor.NewDefaultAuditor(schema, p, c.Rules.DeepPaginationThreshold, log.Named("auditor"))
	log.Debug("rule auditor ready", zap.Strings("rules", a.Rules()), zap.Int("tables", len(schema.Tables)))
	return a, nil
}
