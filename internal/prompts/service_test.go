package prompts

import (
	"context"
	"errors"
	"testing"
)

func seedVersions(t *testing.T, repo *MemoryRepo, name string, versions ...PromptTemplate) {
	t.Helper()
	for _, v := range versions {
		v.Name = name
		if err := repo.Create(context.Background(), v); err != nil {
			t.Fatalf("create %s v%d: %v", name, v.Version, err)
		}
	}
}

func TestGetActiveNoVersions(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	_, err := svc.GetActive(context.Background(), "coverage_analysis")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetActiveSingleVersion(t *testing.T) {
	repo := NewMemoryRepo()
	seedVersions(t, repo, "coverage_analysis",
		PromptTemplate{Version: 1, Body: "v1", Active: true},
	)
	svc := NewService(repo)

	got, err := svc.GetActive(context.Background(), "coverage_analysis")
	if err != nil {
		t.Fatalf("getActive: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}
}

func TestGetActiveNewestWinsWithoutABFlag(t *testing.T) {
	repo := NewMemoryRepo()
	seedVersions(t, repo, "report_generation",
		PromptTemplate{Version: 1, Body: "v1", Active: true},
		PromptTemplate{Version: 2, Body: "v2", Active: true},
	)
	svc := NewService(repo)

	for i := 0; i < 20; i++ {
		got, err := svc.GetActive(context.Background(), "report_generation")
		if err != nil {
			t.Fatalf("getActive: %v", err)
		}
		if got.Version != 2 {
			t.Fatalf("expected newest version 2 without ab flag, got %d", got.Version)
		}
	}
}

func TestGetActiveIgnoresOlderInactiveVersions(t *testing.T) {
	repo := NewMemoryRepo()
	seedVersions(t, repo, "alert_detection",
		PromptTemplate{Version: 1, Body: "v1", Active: false},
		PromptTemplate{Version: 2, Body: "v2", Active: true},
		PromptTemplate{Version: 3, Body: "v3", Active: true, ABTesting: true},
	)
	svc := NewService(repo)

	for i := 0; i < 50; i++ {
		got, err := svc.GetActive(context.Background(), "alert_detection")
		if err != nil {
			t.Fatalf("getActive: %v", err)
		}
		if got.Version == 1 {
			t.Fatalf("inactive version 1 must never be selected")
		}
	}
}

func TestGetActiveABDistribution(t *testing.T) {
	repo := NewMemoryRepo()
	seedVersions(t, repo, "qualitative_analysis",
		PromptTemplate{Version: 1, Body: "v1", Active: true},
		PromptTemplate{Version: 2, Body: "v2", Active: true, ABTesting: true},
	)
	svc := NewService(repo)

	const draws = 400
	counts := map[int]int{}
	for i := 0; i < draws; i++ {
		got, err := svc.GetActive(context.Background(), "qualitative_analysis")
		if err != nil {
			t.Fatalf("getActive: %v", err)
		}
		counts[got.Version]++
	}

	// Wide tolerance: each version between 30% and 70% of draws.
	for _, version := range []int{1, 2} {
		share := float64(counts[version]) / draws
		if share < 0.3 || share > 0.7 {
			t.Fatalf("version %d selected %.0f%% of %d draws, outside 30-70%% band", version, share*100, draws)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.Create(context.Background(), PromptTemplate{Version: 1}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if err := svc.Create(context.Background(), PromptTemplate{Name: "x", Version: 0}); err == nil {
		t.Fatalf("expected error for non-positive version")
	}
}

func TestCreateDuplicateVersion(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	tmpl := PromptTemplate{Name: "coverage_analysis", Version: 1, Body: "a"}
	if err := svc.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Create(context.Background(), tmpl); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestSetStatusRequiresField(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	if err := svc.SetStatus(context.Background(), "x", 1, StatusUpdate{}); err == nil {
		t.Fatalf("expected error for empty status update")
	}
}
