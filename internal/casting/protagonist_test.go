package casting

import "testing"

func TestMatchProtagonist(t *testing.T) {
	t.Parallel()
	tests := []struct {
		protagonist string
		speakers    []string
		want        string
		ok          bool
	}{
		{"Mara", []string{"Bob", "Mara"}, "Mara", true},
		{"MARA", []string{"Bob", "mara"}, "mara", true},
		{"ANNA", []string{"Anna", "anna"}, "Anna", true},
		{"Elizabeth Bennet", []string{"Darcy", "Elizabeth"}, "Elizabeth", true},
		{"Dr. Watson", []string{"Holmes", "Watson"}, "Watson", true},
		{"Captain Ahab", []string{"Ahab", "Ishmael"}, "Ahab", true},
		{"Mara", []string{"Bob", "Tom"}, "", false},
		{"Dr.", []string{"Bob"}, "", false},
	}
	for _, tc := range tests {
		got, ok := matchProtagonist(tc.protagonist, tc.speakers)
		if got != tc.want || ok != tc.ok {
			t.Errorf("matchProtagonist(%q, %v) = %q, %v; want %q, %v", tc.protagonist, tc.speakers, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMatchProtagonist_StableAcrossRuns(t *testing.T) {
	t.Parallel()
	speakers := []string{"Ann", "Anne", "Annie"}
	first, _ := matchProtagonist("Anna", speakers)
	for range 20 {
		if got, _ := matchProtagonist("Anna", speakers); got != first {
			t.Fatalf("match changed from %q to %q", first, got)
		}
	}
}
