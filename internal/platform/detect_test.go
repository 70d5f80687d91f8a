package platform

import (
	"context"
	"runtime"
	"testing"
)

// MockDetector is a test implementation of Detector.
type MockDetector struct {
	info *Info
	err  error
}

// NewMockDetector creates a mock detector with specified return values.
func NewMockDetector(info *Info, err error) Detector {
	return &MockDetector{info: info, err: err}
}

// Detect returns the pre-configured info and error.
func (m *MockDetector) Detect(ctx context.Context) (*Info, error) {
	return m.info, m.err
}

func TestRealDetector_Detect(t *testing.T) {
	if _, err := normalizeArch(runtime.GOARCH); err != nil {
		t.Skipf("host architecture not supported: %v", err)
	}

	info, err := NewDetector().Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %v, want %v", info.OS, runtime.GOOS)
	}
	if info.ArchRaw != runtime.GOARCH {
		t.Errorf("ArchRaw = %v, want %v", info.ArchRaw, runtime.GOARCH)
	}
	if info.Platform != "" && info.Family == "" {
		t.Error("Family should be set when Platform is set")
	}
	if runtime.GOOS != "linux" && info.Platform != "" {
		t.Errorf("Platform should be empty on non-Linux, got %v", info.Platform)
	}
}

func TestRealDetector_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		d    *RealDetector
	}{
		{"os", &RealDetector{goos: "plan9", goarch: "amd64"}},
		{"arch", &RealDetector{goos: "linux", goarch: "mips"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.d.Detect(context.Background()); err == nil {
				t.Error("Detect() error = nil, want error")
			}
		})
	}
}

func TestRealDetector_NonLinuxSkipsDistro(t *testing.T) {
	d := &RealDetector{goos: "windows", goarch: "amd64"}
	info, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if info.GetDistro() != nil {
		t.Errorf("GetDistro() = %+v, want nil", info.GetDistro())
	}
	if info.AssetTag() != "windows-amd64" {
		t.Errorf("AssetTag() = %q", info.AssetTag())
	}
}

func TestInfo_GetDistro(t *testing.T) {
	tests := []struct {
		name string
		info *Info
		want *Distro
	}{
		{
			name: "linux with distro",
			info: &Info{OS: "linux", Platform: "ubuntu", Family: FamilyDebian, Version: "22.04"},
			want: &Distro{ID: "ubuntu", Family: FamilyDebian, Version: "22.04"},
		},
		{
			name: "linux without distro",
			info: &Info{OS: "linux"},
		},
		{
			name: "macos",
			info: &Info{OS: "darwin", Platform: "ignored"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.GetDistro()
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("GetDistro() = %v, want %v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("GetDistro() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestInfo_ExecutableName(t *testing.T) {
	tests := []struct {
		os   string
		want string
	}{
		{"linux", "modtool"},
		{"darwin", "modtool"},
		{"windows", "modtool.exe"},
	}
	for _, tt := range tests {
		info := &Info{OS: tt.os}
		if got := info.ExecutableName("modtool"); got != tt.want {
			t.Errorf("ExecutableName() on %s = %q, want %q", tt.os, got, tt.want)
		}
	}
}

func TestMockDetector(t *testing.T) {
	want := &Info{OS: "linux", Arch: "arm64"}
	got, err := NewMockDetector(want, nil).Detect(context.Background())
	if err != nil || got != want {
		t.Errorf("Detect() = %v, %v", got, err)
	}
}
