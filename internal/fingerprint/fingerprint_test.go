package fingerprint

import (
	"testing"

	"github.com/starford/scenesync/internal/models"
)

func sampleElements() []models.Element {
	return []models.Element{
		{ID: "a", Version: 1},
		{ID: "b", Version: 4},
		{ID: "c", Version: 2},
	}
}

func TestSceneDeterministic(t *testing.T) {
	els := sampleElements()
	first := Scene(els, "#ffffff", []string{"f1", "f2"})
	for i := 0; i < 5; i++ {
		if got := Scene(els, "#ffffff", []string{"f1", "f2"}); got != first {
			t.Fatalf("run %d: fingerprint = %q, want %q", i, got, first)
		}
	}
	if first == "" {
		t.Fatal("fingerprint should not be empty")
	}
}

func TestSceneChanges(t *testing.T) {
	base := Scene(sampleElements(), "#ffffff", []string{"f1"})

	tests := []struct {
		name string
		els  []models.Element
		bg   string
		ids  []string
	}{
		{
			name: "revision bump",
			els:  []models.Element{{ID: "a", Version: 1}, {ID: "b", Version: 5}, {ID: "c", Version: 2}},
			bg:   "#ffffff",
			ids:  []string{"f1"},
		},
		{
			name: "background",
			els:  sampleElements(),
			bg:   "#000000",
			ids:  []string{"f1"},
		},
		{
			name: "asset added",
			els:  sampleElements(),
			bg:   "#ffffff",
			ids:  []string{"f1", "f2"},
		},
		{
			name: "element deleted",
			els:  []models.Element{{ID: "a", Version: 1}, {ID: "b", Version: 4, IsDeleted: true}, {ID: "c", Version: 2}},
			bg:   "#ffffff",
			ids:  []string{"f1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scene(tt.els, tt.bg, tt.ids); got == base {
				t.Errorf("fingerprint unchanged: %q", got)
			}
		})
	}
}

func TestSceneAssetOrderIgnored(t *testing.T) {
	a := Scene(sampleElements(), "#fff", []string{"x", "y", "z"})
	b := Scene(sampleElements(), "#fff", []string{"z", "x", "y"})
	if a != b {
		t.Errorf("asset order changed fingerprint: %q vs %q", a, b)
	}
}

func TestSceneDeletedExcluded(t *testing.T) {
	withDeleted := []models.Element{{ID: "a", Version: 1}, {ID: "gone", Version: 9, IsDeleted: true}}
	without := []models.Element{{ID: "a", Version: 1}}
	if Scene(withDeleted, "", nil) != Scene(without, "", nil) {
		t.Error("deleted element should not contribute to fingerprint")
	}
}

func TestSceneKnownValue(t *testing.T) {
	// djb2("||") = ((5381*33+'|')*33+'|')*33+'|' within uint32.
	var h uint32 = 5381
	for _, c := range []byte("||") {
		h = h*33 + uint32(c)
	}
	if got, want := Scene(nil, "", nil), formatBase36(h); got != want {
		t.Errorf("empty fingerprint = %q, want %q", got, want)
	}
}

func formatBase36(h uint32) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if h == 0 {
		return "0"
	}
	var out []byte
	for h > 0 {
		out = append([]byte{digits[h%36]}, out...)
		h /= 36
	}
	return string(out)
}

func TestSum(t *testing.T) {
	if got := Sum([]byte("abc")); got != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Errorf("Sum = %q", got)
	}
}
