package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
)

// FakeDesktopApps writes XDG desktop entries into an applications directory.
type FakeDesktopApps struct {
	Dir string
}

// NewFakeDesktopApps creates a generator writing to dir/applications.
func NewFakeDesktopApps(dir string) *FakeDesktopApps {
	return &FakeDesktopApps{Dir: filepath.Join(dir, "applications")}
}

// Add writes a launchable application entry.
func (f *FakeDesktopApps) Add(id, name string) error {
	return f.write(id, fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\nIcon=%s\n", name, id, id))
}

// AddHidden writes an entry that must not appear in the catalog.
func (f *FakeDesktopApps) AddHidden(id, name string) error {
	return f.write(id, fmt.Sprintf("[Desktop Entry]\nType=Application\nName=%s\nExec=%s\nNoDisplay=true\n", name, id))
}

// AddWithoutName writes a launchable entry whose label cannot be loaded.
func (f *FakeDesktopApps) AddWithoutName(id string) error {
	return f.write(id, fmt.Sprintf("[Desktop Entry]\nType=Application\nExec=%s\n", id))
}

func (f *FakeDesktopApps) write(id, content string) error {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.Dir, id+".desktop"), []byte(content), 0644)
}
