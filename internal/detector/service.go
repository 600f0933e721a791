package detector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/cache"
	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/notifications"
	"github.com/mirrorhq/opportunity-engine/internal/scoring"
	"github.com/mirrorhq/opportunity-engine/internal/storage"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidBrand is returned when a brand lacks the fields a request needs
	ErrInvalidBrand = errors.New("invalid brand")
	// ErrNoArchive is returned by report lookups when no archive is configured
	ErrNoArchive = errors.New("report archive not configured")
	// ErrInvalidReport is returned for report names outside a brand's folder
	ErrInvalidReport = errors.New("invalid report name")
)

const reportLayout = "2006-01-02-15-04-05"

// Sources are the signal feeds the detectors read from
type Sources struct {
	Weather   ForecastProvider
	Trending  ArticleFetcher
	Rankings  RankingSource
	Reviews   ReviewSource
	Generator InsightGenerator
	LLMSource string
}

// Service runs detectors and manages the insight lifecycle
type Service struct {
	config   *config.Config
	sources  Sources
	store    storage.OpportunityStore
	archive  storage.ArchiveInterface
	notifier notifications.NotificationInterface
	clock    cache.Clock

	detectors []Detector
	metrics   *Metrics
	prom      *PromMetrics
	mu        sync.RWMutex
}

// Metrics holds detection metrics
type Metrics struct {
	TotalRuns        int            `json:"total_runs"`
	TotalInsights    int            `json:"total_insights"`
	LastRun          time.Time      `json:"last_run"`
	LastRunDuration  string         `json:"last_run_duration"`
	LastBrand        string         `json:"last_brand"`
	DetectorMetrics  map[string]int `json:"detector_metrics"`
	OutcomeBreakdown map[string]int `json:"outcome_breakdown"`
	UrgencyBreakdown map[string]int `json:"urgency_breakdown"`
	ErrorCount       int            `json:"error_count"`
	LastSweep        time.Time      `json:"last_sweep"`
	ExpiredBySweep   int            `json:"expired_by_sweep"`
}

// SweepResult counts the changes made by one sweep
type SweepResult struct {
	Expired int `json:"expired"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"` // changed by another writer mid-sweep
}

// NewService creates a new detection service. archive and notifier may be nil.
func NewService(cfg *config.Config, sources Sources, store storage.OpportunityStore, archive storage.ArchiveInterface, notifier notifications.NotificationInterface) *Service {
	service := &Service{
		config:   cfg,
		sources:  sources,
		store:    store,
		archive:  archive,
		notifier: notifier,
		clock:    cache.RealClock,
		metrics: &Metrics{
			DetectorMetrics:  make(map[string]int),
			OutcomeBreakdown: make(map[string]int),
			UrgencyBreakdown: make(map[string]int),
		},
		prom: defaultPromMetrics(),
	}

	service.initializeDetectors()

	return service
}

func (s *Service) initializeDetectors() {
	s.detectors = []Detector{
		NewWeatherDetector(s.sources.Weather, s.clock),
		NewTrendingDetector(s.sources.Trending, s.config.TrendingDays, s.clock),
		NewKeywordDetector(s.sources.Rankings, s.config.SemrushDatabase, s.clock),
		NewReviewDetector(s.sources.Reviews, s.clock),
		NewSeasonalDetector(s.config.SeasonalLookahead, s.clock),
		NewIndustryShiftDetector(s.sources.Generator, s.sources.LLMSource, s.clock),
	}
	s.detectors = append(s.detectors, PlaceholderDetectors()...)
}

// Detectors returns the names of the registered detectors
func (s *Service) Detectors() []string {
	names := make([]string, len(s.detectors))
	for i, d := range s.detectors {
		names[i] = d.Name()
	}
	return names
}

// DetectOpportunities runs every detector concurrently for a brand, ranks the
// combined insights and persists them. Detector failures degrade the report
// instead of failing it; only persistence errors are returned.
func (s *Service) DetectOpportunities(ctx context.Context, brand models.Brand) (*models.DetectionReport, error) {
	if brand.ID == "" || brand.Name == "" {
		return nil, fmt.Errorf("%w: id and name are required", ErrInvalidBrand)
	}

	start := time.Now()
	logrus.Infof("Starting detection for brand %s with %d detectors", brand.ID, len(s.detectors))

	detectCtx, cancel := context.WithTimeout(ctx, s.config.DetectionTimeout)
	defer cancel()

	var wg sync.WaitGroup
	resultsChan := make(chan Result, len(s.detectors))

	for _, detector := range s.detectors {
		wg.Add(1)
		go func(d Detector) {
			defer wg.Done()
			resultsChan <- runDetector(detectCtx, d, brand)
		}(detector)
	}

	// Close the channel when all goroutines complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var groups [][]models.OpportunityInsight
	var outcomes []models.DetectorOutcome
	for result := range resultsChan {
		switch result.Outcome {
		case OutcomeOK:
			logrus.Infof("Detector %s found %d opportunities for %s", result.Detector, len(result.Insights), brand.ID)
		case OutcomeUnavailable:
			logrus.Debugf("Detector %s unavailable for %s: %s", result.Detector, brand.ID, result.Reason)
		case OutcomeFailed:
			logrus.Errorf("Detector %s failed for %s: %v", result.Detector, brand.ID, result.Err)
		}

		groups = append(groups, result.Insights)
		outcomes = append(outcomes, models.DetectorOutcome{
			Detector: result.Detector,
			Type:     result.Type,
			Outcome:  string(result.Outcome),
			Count:    len(result.Insights),
			Reason:   result.Reason,
		})
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Detector < outcomes[j].Detector })

	ranked := uniqueByID(scoring.Rank(groups...))

	created, err := s.store.Save(ctx, ranked)
	if err != nil {
		s.prom.DetectionRuns.WithLabelValues("error").Inc()
		logrus.Errorf("Failed to store opportunities for %s: %v", brand.ID, err)
		return nil, fmt.Errorf("failed to store opportunities: %w", err)
	}

	duration := time.Since(start)
	report := &models.DetectionReport{
		BrandID:     brand.ID,
		GeneratedAt: s.clock.Now().UTC(),
		Duration:    duration.String(),
		Insights:    ranked,
		Detectors:   outcomes,
		Summary:     summarize(ranked, outcomes),
	}
	report.Summary["new"] = len(created)

	s.archiveReport(ctx, report)
	s.notifyUrgent(ctx, brand, onlyCreated(ranked, created))
	s.updateMetrics(brand, report, duration)

	logrus.Infof("Detection for %s completed in %v with %d opportunities", brand.ID, duration, len(ranked))
	return report, nil
}

// runDetector shields the aggregate from a panicking detector
func runDetector(ctx context.Context, d Detector, brand models.Brand) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(d, fmt.Errorf("detector panicked: %v", r))
		}
	}()

	result = d.Detect(ctx, brand)
	if result.Detector == "" {
		result.Detector = d.Name()
		result.Type = d.Type()
	}
	return result
}

func summarize(insights []models.OpportunityInsight, outcomes []models.DetectorOutcome) map[string]any {
	byType := make(map[string]int)
	byUrgency := make(map[string]int)
	for _, insight := range insights {
		byType[string(insight.Type)]++
		byUrgency[string(insight.Urgency)]++
	}

	byOutcome := make(map[string]int)
	var unavailable, failed []string
	for _, o := range outcomes {
		byOutcome[o.Outcome]++
		switch o.Outcome {
		case string(OutcomeUnavailable):
			unavailable = append(unavailable, o.Detector)
		case string(OutcomeFailed):
			failed = append(failed, o.Detector)
		}
	}

	return map[string]any{
		"total":       len(insights),
		"by_type":     byType,
		"by_urgency":  byUrgency,
		"outcomes":    byOutcome,
		"unavailable": unavailable,
		"failed":      failed,
		"partial":     len(failed) > 0,
	}
}

func (s *Service) archiveReport(ctx context.Context, report *models.DetectionReport) {
	if s.archive == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		logrus.Errorf("Failed to marshal report for %s: %v", report.BrandID, err)
		return
	}

	name := reportPrefix(report.BrandID) + report.GeneratedAt.Format(reportLayout) + ".json"
	if err := s.archive.Store(ctx, name, data); err != nil {
		logrus.Errorf("Failed to archive report %s: %v", name, err)
	}
}

// uniqueByID drops repeats of a signal within one run, keeping the best ranked
func uniqueByID(ranked []models.OpportunityInsight) []models.OpportunityInsight {
	seen := make(map[string]bool, len(ranked))
	out := ranked[:0]
	for _, insight := range ranked {
		if seen[insight.ID] {
			continue
		}
		seen[insight.ID] = true
		out = append(out, insight)
	}
	return out
}

// onlyCreated keeps the insights a run stored for the first time
func onlyCreated(ranked []models.OpportunityInsight, created []string) []models.OpportunityInsight {
	if len(created) == 0 {
		return nil
	}
	ids := make(map[string]bool, len(created))
	for _, id := range created {
		ids[id] = true
	}

	out := make([]models.OpportunityInsight, 0, len(created))
	for _, insight := range ranked {
		if ids[insight.ID] {
			out = append(out, insight)
		}
	}
	return out
}

func (s *Service) notifyUrgent(ctx context.Context, brand models.Brand, ranked []models.OpportunityInsight) {
	if s.notifier == nil {
		return
	}

	notify := make(map[models.Urgency]bool, len(s.config.NotifyUrgencies))
	for _, u := range s.config.NotifyUrgencies {
		notify[models.Urgency(u)] = true
	}

	var urgent []models.OpportunityInsight
	for _, insight := range ranked {
		if notify[insight.Urgency] {
			urgent = append(urgent, insight)
		}
	}
	if len(urgent) == 0 {
		return
	}

	digest := &models.Digest{Brand: brand, GeneratedAt: s.clock.Now().UTC(), Insights: urgent}
	if err := s.notifier.SendDigest(ctx, digest); err != nil {
		logrus.Errorf("Failed to send digest for %s: %v", brand.ID, err)
	}
}

// Sweep expires active insights whose deadline passed and refreshes the
// urgency of the rest
func (s *Service) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active opportunities: %w", err)
	}

	result := &SweepResult{}
	for _, insight := range active {
		if insight.ExpiresAt != nil && !insight.ExpiresAt.After(now) {
			err := s.store.UpdateStatus(ctx, insight.ID, insight.Status, models.StatusExpired)
			if stale(err) {
				logrus.Debugf("Skipping expiry of %s: %v", insight.ID, err)
				result.Skipped++
				continue
			}
			if err != nil {
				return result, fmt.Errorf("failed to expire %s: %w", insight.ID, err)
			}
			result.Expired++
			continue
		}

		urgency := scoring.CalculateUrgency(insight.ExpiresAt, now)
		if urgency != insight.Urgency {
			err := s.store.UpdateUrgency(ctx, insight.ID, urgency)
			if stale(err) {
				logrus.Debugf("Skipping urgency update of %s: %v", insight.ID, err)
				result.Skipped++
				continue
			}
			if err != nil {
				return result, fmt.Errorf("failed to update urgency of %s: %w", insight.ID, err)
			}
			result.Updated++
		}
	}

	s.prom.SweepTransitions.WithLabelValues("expired").Add(float64(result.Expired))
	s.prom.SweepTransitions.WithLabelValues("urgency").Add(float64(result.Updated))

	s.mu.Lock()
	s.metrics.LastSweep = now
	s.metrics.ExpiredBySweep += result.Expired
	s.mu.Unlock()

	logrus.Infof("Sweep checked %d active opportunities: %d expired, %d re-prioritized, %d skipped", len(active), result.Expired, result.Updated, result.Skipped)
	return result, nil
}

func reportPrefix(brandID string) string {
	return "reports/" + brandID + "/"
}

func checkReportBrand(brandID string) error {
	if brandID == "" || brandID == ".." || strings.ContainsAny(brandID, "/\\") {
		return fmt.Errorf("%w: bad brand id %q", ErrInvalidReport, brandID)
	}
	return nil
}

// reportPath validates a report name from a request and returns its blob path
func reportPath(brandID, name string) (string, error) {
	if err := checkReportBrand(brandID); err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, ".json") || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidReport, name)
	}
	return reportPrefix(brandID) + name, nil
}

// Reports lists a brand's archived report names, newest first
func (s *Service) Reports(ctx context.Context, brandID string) ([]string, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	if err := checkReportBrand(brandID); err != nil {
		return nil, err
	}

	prefix := reportPrefix(brandID)
	blobs, err := s.archive.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports for %s: %w", brandID, err)
	}

	names := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		name := strings.TrimPrefix(blob, prefix)
		if name == blob || strings.Contains(name, "/") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	// timestamps in the names sort lexically
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Report loads one archived detection report
func (s *Service) Report(ctx context.Context, brandID, name string) (*models.DetectionReport, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}
	path, err := reportPath(brandID, name)
	if err != nil {
		return nil, err
	}

	data, err := s.archive.Retrieve(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", path, err)
	}

	var report models.DetectionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", path, err)
	}
	return &report, nil
}

// DeleteReport removes one archived detection report
func (s *Service) DeleteReport(ctx context.Context, brandID, name string) error {
	if s.archive == nil {
		return ErrNoArchive
	}
	path, err := reportPath(brandID, name)
	if err != nil {
		return err
	}

	if err := s.archive.Delete(ctx, path); err != nil {
		return fmt.Errorf("failed to delete report %s: %w", path, err)
	}
	logrus.Infof("Deleted report %s", path)
	return nil
}

// stale reports whether a sweep write lost to a concurrent status change
func stale(err error) bool {
	return errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, storage.ErrNotFound)
}

// UpdateStatus moves an insight along its lifecycle
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.Status) (*models.OpportunityInsight, error) {
	insight, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(insight.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, insight.Status, status)
	}

	if err := s.store.UpdateStatus(ctx, id, insight.Status, status); err != nil {
		return nil, err
	}

	insight.Status = status
	insight.UpdatedAt = s.clock.Now().UTC()
	logrus.Infof("Opportunity %s moved to %s", id, status)
	return insight, nil
}

// List returns a brand's stored insights
func (s *Service) List(ctx context.Context, brandID string, statuses []models.Status, limit int) ([]models.OpportunityInsight, error) {
	return s.store.List(ctx, storage.ListFilter{BrandID: brandID, Statuses: statuses, Limit: limit})
}

// KeywordOpportunities classifies a brand's current rankings without storing them
func (s *Service) KeywordOpportunities(ctx context.Context, brand models.Brand) ([]models.KeywordOpportunity, error) {
	return KeywordOpportunities(ctx, s.sources.Rankings, s.config.SemrushDatabase, brand)
}

// RunWatchlist runs detection for every configured brand in turn
func (s *Service) RunWatchlist(ctx context.Context) error {
	if len(s.config.Watchlist) == 0 {
		logrus.Info("Watchlist is empty, nothing to detect")
		return nil
	}

	failures := 0
	for _, brand := range s.config.Watchlist {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.DetectOpportunities(ctx, brand); err != nil {
			logrus.Errorf("Watchlist detection failed for %s: %v", brand.ID, err)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("detection failed for %d of %d brands", failures, len(s.config.Watchlist))
	}
	return nil
}

func (s *Service) updateMetrics(brand models.Brand, report *models.DetectionReport, duration time.Duration) {
	status := "ok"
	for _, o := range report.Detectors {
		s.prom.DetectorOutcomes.WithLabelValues(o.Detector, o.Outcome).Inc()
		if o.Outcome == string(OutcomeFailed) {
			status = "partial"
		}
	}
	for _, insight := range report.Insights {
		s.prom.InsightsDetected.WithLabelValues(string(insight.Type), string(insight.Urgency)).Inc()
	}
	s.prom.DetectionRuns.WithLabelValues(status).Inc()
	s.prom.DetectionDuration.Observe(duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalRuns++
	s.metrics.TotalInsights = len(report.Insights)
	s.metrics.LastRun = report.GeneratedAt
	s.metrics.LastRunDuration = duration.String()
	s.metrics.LastBrand = brand.ID

	// Reset counters
	s.metrics.DetectorMetrics = make(map[string]int)
	s.metrics.OutcomeBreakdown = make(map[string]int)
	s.metrics.UrgencyBreakdown = make(map[string]int)
	s.metrics.ErrorCount = 0

	for _, o := range report.Detectors {
		s.metrics.DetectorMetrics[o.Detector] = o.Count
		s.metrics.OutcomeBreakdown[o.Outcome]++
		if o.Outcome == string(OutcomeFailed) {
			s.metrics.ErrorCount++
		}
	}
	for _, insight := range report.Insights {
		s.metrics.UrgencyBreakdown[string(insight.Urgency)]++
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
