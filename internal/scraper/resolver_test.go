package scraper

import (
	"errors"
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested []string
		available []string
		want      []string
	}{
		{
			name:      "single overlap",
			requested: []string{"202508", "202509"},
			available: []string{"202507", "202508"},
			want:      []string{"202508"},
		},
		{
			name:      "preserves available order not requested order",
			requested: []string{"202509", "202507"},
			available: []string{"202507", "202508", "202509"},
			want:      []string{"202507", "202509"},
		},
		{
			name:      "deduplicates repeats in requested",
			requested: []string{"202508", "202508", "202507"},
			available: []string{"202507", "202508"},
			want:      []string{"202507", "202508"},
		},
		{
			name:      "full overlap",
			requested: []string{"a", "b", "c"},
			available: []string{"a", "b", "c"},
			want:      []string{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.requested, tt.available)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResolveSubsetOfAvailable(t *testing.T) {
	requested := []string{"x", "202508", "y", "202507"}
	available := []string{"202506", "202507", "202508"}

	got, err := Resolve(requested, available)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	set := map[string]bool{}
	for _, v := range available {
		set[v] = true
	}
	for _, v := range got {
		if !set[v] {
			t.Errorf("resolved value %q is not in available", v)
		}
	}
}

func TestResolveEmptyIntersection(t *testing.T) {
	_, err := Resolve([]string{"999999"}, []string{"202507", "202508"})

	var emptyErr *EmptySelectionError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected EmptySelectionError, got %v", err)
	}
	if emptyErr.Available != 2 {
		t.Errorf("Available = %d, want 2", emptyErr.Available)
	}
}

func TestResolveNoAvailableOptions(t *testing.T) {
	_, err := Resolve([]string{"202508"}, nil)

	var noOptsErr *NoOptionsError
	if !errors.As(err, &noOptsErr) {
		t.Fatalf("expected NoOptionsError, got %v", err)
	}

	// The two empty cases must stay distinguishable
	var emptyErr *EmptySelectionError
	if errors.As(err, &emptyErr) {
		t.Error("NoOptionsError must not classify as EmptySelectionError")
	}
}
