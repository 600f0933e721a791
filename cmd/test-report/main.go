package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mirrorhq/opportunity-engine/internal/config"
	"github.com/mirrorhq/opportunity-engine/internal/detector"
	"github.com/mirrorhq/opportunity-engine/internal/models"
	"github.com/mirrorhq/opportunity-engine/internal/storage"
)

const outputDir = "test_output"

// FileArchive stores archived reports under test_output
type FileArchive struct{}

func (f *FileArchive) Store(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(outputDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("\n💾 Report saved to: %s\n", path)
	return nil
}

func (f *FileArchive) Retrieve(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

func (f *FileArchive) List(ctx context.Context, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(outputDir, prefix) + "*")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(outputDir, m)
		if err != nil {
			return nil, err
		}
		names = append(names, filepath.ToSlash(rel))
	}
	return names, nil
}

func (f *FileArchive) Delete(ctx context.Context, name string) error {
	err := os.Remove(filepath.Join(outputDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return storage.ErrNotFound
	}
	return err
}

// TerminalNotifier prints digests instead of sending them
type TerminalNotifier struct{}

func (t *TerminalNotifier) SendDigest(ctx context.Context, digest *models.Digest) error {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("🚨 URGENT OPPORTUNITIES FOR %s\n", strings.ToUpper(digest.Brand.Name))
	fmt.Println(strings.Repeat("=", 70))
	for i, insight := range digest.Insights {
		fmt.Printf("\n   %d. [%s] %s\n", i+1, insight.Urgency, insight.Title)
		fmt.Printf("      📈 Impact: %d/100 | 🏷  %s\n", insight.ImpactScore, insight.Type)
		if insight.ExpiresAt != nil {
			fmt.Printf("      ⏰ Expires: %s\n", insight.ExpiresAt.Format("2006-01-02 15:04 UTC"))
		}
	}
	return nil
}

// Fixture feeds so the report runs without API keys
type fixtureWeather struct{ now time.Time }

func (f fixtureWeather) Forecast(ctx context.Context, loc models.Location) ([]models.WeatherPeriod, error) {
	var periods []models.WeatherPeriod
	for i := 0; i < 16; i++ {
		periods = append(periods, models.WeatherPeriod{
			Time:         f.now.Add(time.Duration(i*3) * time.Hour),
			TemperatureF: 88 + float64(i%6)*3,
			Condition:    "Clear",
		})
	}
	return periods, nil
}

type fixtureArticles struct{ now time.Time }

func (f fixtureArticles) Articles(ctx context.Context, query string, days int) ([]models.TrendingArticle, error) {
	return []models.TrendingArticle{
		{Title: "How to keep your AC running through a record heat wave", URL: "https://example.com/ac-heat", TotalShares: 14200, PublishedAt: f.now.Add(-18 * time.Hour)},
		{Title: "Heat pumps vs. central air: what homeowners should know", URL: "https://example.com/heat-pumps", TotalShares: 3100, PublishedAt: f.now.Add(-60 * time.Hour)},
	}, nil
}

type fixtureReviews struct{ now time.Time }

func (f fixtureReviews) Reviews(ctx context.Context, query string, limit int) ([]models.Review, error) {
	return []models.Review{
		{ID: "r1", Author: "Jordan", Rating: 1, Text: "Waited all day and the technician never showed.", PublishedAt: f.now.Add(-20 * time.Hour)},
		{ID: "r2", Author: "Sam", Rating: 5, Text: "Great service, fixed our unit in an hour.", PublishedAt: f.now.Add(-48 * time.Hour)},
	}, nil
}

func main() {
	fmt.Println("🤖 Opportunity Engine - Test Report Generator")
	fmt.Println("=============================================")

	now := time.Now().UTC()

	cfg := &config.Config{
		DetectionTimeout:  30 * time.Second,
		TrendingDays:      7,
		SeasonalLookahead: detector.DefaultSeasonalLookahead,
		SemrushDatabase:   "us",
		NotifyUrgencies:   []string{"critical", "high"},
	}

	brand := models.Brand{
		ID:       "sample-hvac",
		Name:     "Desert Breeze HVAC",
		Industry: "HVAC",
		Location: models.Location{City: "Phoenix", Region: "AZ", Country: "US", Lat: 33.4484, Lon: -112.0740},
		Keywords: []string{"ac repair", "heat pumps"},
	}

	service := detector.NewService(cfg, detector.Sources{
		Weather:  fixtureWeather{now: now},
		Trending: fixtureArticles{now: now},
		Reviews:  fixtureReviews{now: now},
	}, storage.NewMemoryStore(), &FileArchive{}, &TerminalNotifier{})

	fmt.Printf("\n📊 Running %d detectors for %s...\n", len(service.Detectors()), brand.Name)

	report, err := service.DetectOpportunities(context.Background(), brand)
	if err != nil {
		fmt.Printf("❌ Error generating report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n📍 Detectors:")
	for _, o := range report.Detectors {
		fmt.Printf("   • %-16s %-12s %d insights\n", o.Detector+":", o.Outcome, o.Count)
	}

	fmt.Println("\n📝 Ranked opportunities:")
	for i, insight := range report.Insights {
		if i >= 8 {
			fmt.Printf("   ... and %d more\n", len(report.Insights)-8)
			break
		}
		fmt.Printf("   %d. [%3d | %-8s] %s\n", i+1, insight.ImpactScore, insight.Urgency, insight.Title)
	}

	if names, err := service.Reports(context.Background(), brand.ID); err == nil {
		fmt.Printf("\n🗂  %d archived reports for %s\n", len(names), brand.ID)
	}

	fmt.Println("\n✅ Test report generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Printf("   • Check the '%s' directory for the archived JSON report\n", outputDir)
	fmt.Println("   • Run 'go test ./internal/detector -v' for more detailed tests")
	fmt.Println("   • Configure real API keys and run the engine with 'go run ./cmd/engine'")
}
