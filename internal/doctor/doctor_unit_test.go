package doctor

import (
	"testing"
)

func TestParseMajorMinor(t *testing.T) {
	tests := []struct {
		name      string
		ver       string
		wantMajor int
		wantMinor int
		wantErr   bool
	}{
		{"simple", "1.0", 1, 0, false},
		{"with patch", "2.3.4", 2, 3, false},
		{"single number", "1", 0, 0, true},
		{"empty", "", 0, 0, true},
		{"bad major", "abc.1", 0, 0, true},
		{"bad minor", "1.xyz", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, err := parseMajorMinor(tt.ver)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseMajorMinor(%q) = (%d,%d,nil); want error", tt.ver, major, minor)
				}

				return
			}

			if err != nil {
				t.Fatalf("parseMajorMinor(%q) error: %v", tt.ver, err)
			}

			if major != tt.wantMajor || minor != tt.wantMinor {
				t.Fatalf("parseMajorMinor(%q) = (%d,%d); want (%d,%d)",
					tt.ver, major, minor, tt.wantMajor, tt.wantMinor)
			}
		})
	}
}

func TestCheckFormatVersion(t *testing.T) {
	tests := []struct {
		name    string
		ver     string
		min     string
		wantErr bool
	}{
		{"equal", "1.0", "1.0", false},
		{"newer minor", "1.3", "1.0", false},
		{"no minimum", "7.2", "", false},
		{"older minor", "1.0", "1.2", true},
		{"other major", "2.0", "1.0", true},
		{"unparseable", "tacotron2", "", true},
		{"bad minimum", "1.0", "one", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFormatVersion(tt.ver, tt.min)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkFormatVersion(%q, %q) = %v; wantErr=%v", tt.ver, tt.min, err, tt.wantErr)
			}
		})
	}
}
