package services

import (
	"context"
	"encoding/json"
	"strings"

	redisclient "github.com/surveylab/codeframe-backend/internal/clients/redis"
	apperr "github.com/surveylab/codeframe-backend/internal/pkg/errors"
	"github.com/surveylab/codeframe-backend/internal/platform/logger"
	"github.com/surveylab/codeframe-backend/internal/validation"
)

// ValidationService fronts the stateless engine with the redis result
// cache. Cache failures are logged and ignored; the engine is always the
// fallback.
type ValidationService interface {
	Validate(ctx context.Context, term, category string) (*validation.Result, error)
}

type validationService struct {
	log    *logger.Logger
	engine *validation.Engine
	cache  redisclient.ValidationCache
}

func NewValidationService(baseLog *logger.Logger, engine *validation.Engine, cache redisclient.ValidationCache) ValidationService {
	return &validationService{
		log:    baseLog.With("service", "ValidationService"),
		engine: engine,
		cache:  cache,
	}
}

func (s *validationService) Validate(ctx context.Context, term, category string) (*validation.Result, error) {
	term = strings.TrimSpace(term)
	category = strings.TrimSpace(category)
	if term == "" {
		return nil, apperr.ErrInvalidArgument
	}
	if category == "" {
		return nil, apperr.ErrInvalidArgument
	}

	if s.cache != nil {
		raw, hit, err := s.cache.Get(ctx, term, category)
		if err != nil {
			s.log.Warn("Validation cache read failed", "term", term, "error", err)
		} else if hit {
			var cached validation.Result
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
			s.log.Warn("Dropping malformed cached validation result", "term", term)
		}
	}

	res := s.engine.Validate(ctx, term, category, nil)

	if s.cache != nil {
		if raw, err := json.Marshal(res); err == nil {
			if cerr := s.cache.Set(ctx, term, category, raw); cerr != nil {
				s.log.Warn("Validation cache write failed", "term", term, "error", cerr)
			}
		}
	}
	return &res, nil
}
