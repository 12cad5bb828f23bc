package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-portal/internal/dto"
	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/observability"
)

const analyticsCacheKey = "analytics:overview"

// OverviewSource aggregates submission counters.
type OverviewSource interface {
	Overview(ctx context.Context, plagiarismThreshold int) (models.SubmissionOverview, error)
}

// AnalyticsService serves the teacher analytics overview.
type AnalyticsService interface {
	CacheInvalidator
	Overview(ctx context.Context) (dto.AnalyticsOverviewResponse, error)
}

type analyticsService struct {
	source    OverviewSource
	cache     *redis.Client
	cacheTTL  time.Duration
	threshold int
	logger    zerolog.Logger
}

// NewAnalyticsService constructs the analytics service. A nil cache disables caching.
func NewAnalyticsService(source OverviewSource, cache *redis.Client, ttl time.Duration, plagiarismThreshold int, logger zerolog.Logger) AnalyticsService {
	return &analyticsService{
		source:    source,
		cache:     cache,
		cacheTTL:  ttl,
		threshold: plagiarismThreshold,
		logger:    logger.With().Str("component", "analytics_service").Logger(),
	}
}

func (s *analyticsService) Overview(ctx context.Context) (dto.AnalyticsOverviewResponse, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-portal/internal/service/analytics")
	ctx, span := tracer.Start(ctx, "analytics.overview")
	span.SetAttributes(attribute.String("analytics.cache_key", analyticsCacheKey))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, analyticsCacheKey).Result()
		switch {
		case err == nil:
			var response dto.AnalyticsOverviewResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				response.CacheHit = true
				observability.AnalyticsCache().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
				return response, nil
			}
		case errors.Is(err, redis.Nil):
			observability.AnalyticsCache().WithLabelValues("miss").Inc()
		default:
			observability.AnalyticsCache().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Msg("failed to read analytics cache")
			span.RecordError(err)
		}
	}

	overview, err := s.source.Overview(ctx, s.threshold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "overview_failed")
		return dto.AnalyticsOverviewResponse{}, err
	}

	response := buildOverview(overview)
	span.SetAttributes(attribute.Int64("analytics.total_submissions", response.TotalSubmissions))

	if s.cache != nil {
		payload, err := json.Marshal(response)
		if err == nil {
			if err := s.cache.Set(ctx, analyticsCacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store analytics cache")
				span.RecordError(err)
			}
		}
	}

	return response, nil
}

func (s *analyticsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, analyticsCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate analytics cache")
	}
}

func buildOverview(overview models.SubmissionOverview) dto.AnalyticsOverviewResponse {
	response := dto.AnalyticsOverviewResponse{
		TotalAssignments:  overview.TotalAssignments,
		TotalSubmissions:  overview.TotalSubmissions,
		LateSubmissions:   overview.LateSubmissions,
		HighPlagiarism:    overview.HighPlagiarism,
		AIDetected:        overview.AIDetected,
		GradedSubmissions: overview.GradedSubmissions,
	}
	if overview.TotalSubmissions > 0 {
		rate := float64(overview.TotalSubmissions-overview.LateSubmissions) / float64(overview.TotalSubmissions) * 100
		response.OnTimeRate = math.Round(rate*100) / 100
	}
	return response
}
